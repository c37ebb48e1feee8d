package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"reelforge/internal/gateway"
	"reelforge/internal/services"
)

func completionHandler(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": content}},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
}

func fastPolicy() gateway.Policy {
	p := gateway.DefaultPolicy()
	p.Sleeper = func(time.Duration) {}
	return p
}

func TestCompleteSendsOpenAIRequest(t *testing.T) {
	var got chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		completionHandler(t, `{"narrations":["a"]}`)(w, r)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL + "/v1", Model: "demo", Temperature: 0.8}, WithPolicy(fastPolicy()))
	content, err := client.Complete(context.Background(), gateway.Prompt{System: "sys", User: "hello", JSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if content != `{"narrations":["a"]}` {
		t.Fatalf("content = %q", content)
	}
	if got.Model != "demo" || len(got.Messages) != 2 || got.Messages[1].Content != "hello" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.ResponseFormat["type"] != jsonResponseType {
		t.Fatalf("response_format = %v", got.ResponseFormat)
	}
	if got.Temperature != 0.8 {
		t.Fatalf("temperature = %v", got.Temperature)
	}
}

func TestSelfHostedNeedsNoKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected authorization header")
		}
		completionHandler(t, "plain text")(w, r)
	}))
	defer server.Close()

	client := NewClient(Config{Variant: VariantSelfHosted, BaseURL: server.URL, Model: "llama"})
	content, err := client.Complete(context.Background(), gateway.Prompt{User: "hi"})
	if err != nil || content != "plain text" {
		t.Fatalf("Complete() = %q, %v", content, err)
	}
}

func TestCloudWithoutKeyIsConfigurationError(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Model: "demo"})
	_, err := client.Complete(context.Background(), gateway.Prompt{User: "hi"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		completionHandler(t, "done")(w, r)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL, Model: "m"}, WithPolicy(fastPolicy()))
	content, err := client.Complete(context.Background(), gateway.Prompt{User: "hi"})
	if err != nil || content != "done" {
		t.Fatalf("Complete() = %q, %v", content, err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestCompleteUnauthorizedFailsFast(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "m"}, WithPolicy(fastPolicy()))
	_, err := client.Complete(context.Background(), gateway.Prompt{User: "hi"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestCompleteEmptyContentIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""},"finish_reason":"length"}]}`))
			return
		}
		completionHandler(t, "second")(w, r)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL, Model: "m"}, WithPolicy(fastPolicy()))
	content, err := client.Complete(context.Background(), gateway.Prompt{User: "hi"})
	if err != nil || content != "second" {
		t.Fatalf("Complete() = %q, %v", content, err)
	}
}

func TestHealthCheckCodeFence(t *testing.T) {
	server := httptest.NewServer(completionHandler(t, "```json\n{\"ok\":true}\n```"))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL, Model: "m"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestDecodeLLMJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{name: "direct", input: `{"narrations":["a","b"]}`, want: []string{"a", "b"}},
		{name: "fenced", input: "```json\n{\"narrations\":[\"a\"]}\n```", want: []string{"a"}},
		{name: "prose", input: "Sure! Here you go: {\"narrations\":[\"x\"]} Enjoy.", want: []string{"x"}},
		{name: "empty", input: "   ", wantErr: true},
		{name: "garbage", input: "no json here", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Narrations []string `json:"narrations"`
			}
			err := DecodeLLMJSON(tt.input, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if strings.Join(out.Narrations, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("narrations = %v, want %v", out.Narrations, tt.want)
			}
		})
	}
}
