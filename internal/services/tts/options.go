package tts

import (
	"log/slog"
	"net/http"

	"reelforge/internal/gateway"
	"reelforge/internal/logging"
)

const (
	VariantEdge = "edge"
	VariantHTTP = "http"
)

type options struct {
	policy     gateway.Policy
	limiter    *gateway.Limiter
	logger     *slog.Logger
	httpClient *http.Client
}

// Option customizes a TTS client.
type Option func(*options)

// WithPolicy overrides the retry policy.
func WithPolicy(policy gateway.Policy) Option {
	return func(o *options) { o.policy = policy }
}

// WithLimiter sets the limiter that bounds concurrent synthesis calls.
func WithLimiter(limiter *gateway.Limiter) Option {
	return func(o *options) { o.limiter = limiter }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client used by HTTPClient.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		policy: gateway.DefaultPolicy(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
