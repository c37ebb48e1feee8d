package gateway

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reelforge/internal/services"
)

const bodySnippetLimit = 512

// StatusError is a non-2xx HTTP response from a backend. It unwraps to the
// services marker matching the status class.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Backend, e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *StatusError) Unwrap() error {
	return ClassifyStatus(e.StatusCode)
}

// ClassifyStatus maps an HTTP status code to a services marker.
func ClassifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return services.ErrConfiguration
	case code == http.StatusBadRequest,
		code == http.StatusNotFound,
		code == http.StatusRequestEntityTooLarge,
		code == http.StatusUnprocessableEntity:
		return services.ErrValidation
	case code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code >= http.StatusInternalServerError:
		return services.ErrTransient
	default:
		return services.ErrExternalTool
	}
}

// CheckResponse returns a *StatusError for non-2xx responses. The body is
// read (bounded) for the error message; callers still close it.
func CheckResponse(backend string, resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, bodySnippetLimit))
	retryAfter, _ := ParseRetryAfter(resp.Header.Get("Retry-After"))
	return &StatusError{
		Backend:    backend,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: retryAfter,
	}
}

// ParseRetryAfter accepts either delta-seconds or an HTTP date.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
