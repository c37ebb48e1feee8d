package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelforge/internal/services"
)

func recordingPolicy(delays *[]time.Duration) Policy {
	p := DefaultPolicy()
	p.Sleeper = func(d time.Duration) { *delays = append(*delays, d) }
	return p
}

func TestPolicyRetriesTransientThenSucceeds(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := recordingPolicy(&delays).Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{Backend: "x", StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(delays) != len(want) || delays[0] != want[0] || delays[1] != want[1] {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
}

func TestPolicyStopsOnConfigurationError(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := recordingPolicy(&delays).Do(context.Background(), "op", func(context.Context) error {
		calls++
		return &StatusError{Backend: "x", StatusCode: http.StatusUnauthorized}
	})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if calls != 1 || len(delays) != 0 {
		t.Fatalf("calls = %d delays = %v", calls, delays)
	}
}

func TestPolicyExhaustsAttempts(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := recordingPolicy(&delays).Do(context.Background(), "op", func(context.Context) error {
		calls++
		return services.Wrap(services.ErrTransient, "", "", "flaky", nil)
	})
	if err == nil || !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestPolicyHonorsRetryAfterCapped(t *testing.T) {
	var delays []time.Duration
	calls := 0
	_ = recordingPolicy(&delays).Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls == 1 {
			return &StatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: 3 * time.Second}
		}
		if calls == 2 {
			return &StatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: time.Minute}
		}
		return nil
	})
	if len(delays) != 2 || delays[0] != 3*time.Second || delays[1] != 10*time.Second {
		t.Fatalf("delays = %v", delays)
	}
}

func TestPolicyAttemptTimeoutIsRetryable(t *testing.T) {
	p := DefaultPolicy()
	p.Timeout = 10 * time.Millisecond
	p.Sleeper = func(time.Duration) {}
	calls := 0
	err := p.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestPolicyStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultPolicy()
	p.Sleeper = func(time.Duration) { cancel() }
	calls := 0
	err := p.Do(ctx, "op", func(context.Context) error {
		calls++
		return services.ErrTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusUnauthorized, services.ErrConfiguration},
		{http.StatusForbidden, services.ErrConfiguration},
		{http.StatusBadRequest, services.ErrValidation},
		{http.StatusUnprocessableEntity, services.ErrValidation},
		{http.StatusRequestTimeout, services.ErrTransient},
		{http.StatusTooManyRequests, services.ErrTransient},
		{http.StatusBadGateway, services.ErrTransient},
		{http.StatusTeapot, services.ErrExternalTool},
	}
	for _, tt := range tests {
		if got := ClassifyStatus(tt.code); got != tt.want {
			t.Errorf("ClassifyStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestCheckResponseParsesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	err = CheckResponse("test", resp)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.RetryAfter != 7*time.Second || statusErr.Body != "slow down" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
	if !services.Retryable(err) {
		t.Fatal("429 should be retryable")
	}
}

func TestLimiterCapsConcurrency(t *testing.T) {
	lim := NewLimiter()
	lim.Register("image:cloud", 2)
	lim.Register("image:cloud", 8)
	if got := lim.Limit("image:cloud"); got != 2 {
		t.Fatalf("Limit() = %d, want first registration 2", got)
	}

	var inFlight, peak int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Call(context.Background(), lim, "image:cloud", Policy{MaxAttempts: 1}, func(context.Context) (int, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return 1, nil
			})
			if err != nil {
				t.Errorf("Call() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestLimiterAcquireHonorsCancellation(t *testing.T) {
	lim := NewLimiter()
	lim.Register("tts:edge", 1)
	release, err := lim.Acquire(context.Background(), "tts:edge")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := lim.Acquire(ctx, "tts:edge"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCallReleasesSlotDuringRetrySleep(t *testing.T) {
	lim := NewLimiter()
	lim.Register("llm:cloud", 1)
	p := DefaultPolicy()
	slept := false
	p.Sleeper = func(time.Duration) {
		release, err := lim.Acquire(context.Background(), "llm:cloud")
		if err != nil {
			t.Errorf("slot held during sleep: %v", err)
			return
		}
		release()
		slept = true
	}
	calls := 0
	got, err := Call(context.Background(), lim, "llm:cloud", p, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", services.ErrTransient
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("Call() = %q, %v", got, err)
	}
	if !slept {
		t.Fatal("sleeper not invoked")
	}
}

func TestCallSlotWaitDoesNotCountAgainstAttemptTimeout(t *testing.T) {
	lim := NewLimiter()
	lim.Register("image:local", 1)
	p := Policy{MaxAttempts: 1, Timeout: 200 * time.Millisecond}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = Call(context.Background(), lim, "image:local", p, func(ctx context.Context) (int, error) {
				select {
				case <-time.After(80 * time.Millisecond):
					return i, nil
				case <-ctx.Done():
					return 0, ctx.Err()
				}
			})
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}
