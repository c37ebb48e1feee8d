package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"

	"reelforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "assembling", "mux", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"assembling", "mux", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", services.Wrap(services.ErrTransient, "llm", "call", "503", nil), true},
		{"timeout marker", services.Wrap(services.ErrTimeout, "tts", "call", "slow", nil), true},
		{"configuration", services.Wrap(services.ErrConfiguration, "llm", "call", "401", nil), false},
		{"validation", services.Wrap(services.ErrValidation, "image", "call", "400", nil), false},
		{"config beats transient", fmt.Errorf("%w: %w", services.ErrTransient, services.ErrConfiguration), false},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"plain", errors.New("odd"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.Retryable(tt.err); got != tt.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFailureKind(t *testing.T) {
	cases := map[string]error{
		"configuration":       services.Wrap(services.ErrConfiguration, "", "", "x", nil),
		"planning":            services.Wrap(services.ErrPlanning, "", "", "x", nil),
		"assembly":            services.Wrap(services.ErrAssembly, "", "", "x", nil),
		"incomplete_timeline": services.Wrap(services.ErrIncompleteTimeline, "", "", "x", nil),
		"cancelled":           context.Canceled,
		"transient":           errors.New("other"),
	}
	for want, err := range cases {
		if got := services.FailureKind(err); got != want {
			t.Fatalf("FailureKind(%v) = %q, want %q", err, got, want)
		}
	}
	if got := services.FailureKind(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %q", got)
	}
}
