package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"reelforge/internal/gateway"
	"reelforge/internal/logging"
	"reelforge/internal/services"
)

const (
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 60 * time.Second
	completionsPath    = "/chat/completions"

	VariantCloud      = "cloud"
	VariantSelfHosted = "selfhosted"
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	Variant        string
	APIKey         string
	BaseURL        string
	Model          string
	Temperature    float64
	TimeoutSeconds int
}

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     gateway.Policy
	limiter    *gateway.Limiter
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPolicy overrides the retry policy.
func WithPolicy(policy gateway.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithLimiter sets the limiter that bounds concurrent requests.
func WithLimiter(limiter *gateway.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	variant := strings.ToLower(strings.TrimSpace(cfg.Variant))
	if variant == "" {
		variant = VariantCloud
	}
	client := &Client{
		cfg: Config{
			Variant:        variant,
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			Temperature:    cfg.Temperature,
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		policy:     gateway.DefaultPolicy(),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Backend returns the limiter key for this client.
func (c *Client) Backend() string {
	return gateway.BackendName(gateway.CapabilityLLM, c.cfg.Variant)
}

type emptyContentError struct {
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.FinishReason, e.Refusal, e.Snippet)
}

// Empty completions are worth another attempt.
func (e *emptyContentError) Unwrap() error {
	return services.ErrTransient
}

// Complete issues a chat completion and returns the message content.
func (c *Client) Complete(ctx context.Context, prompt gateway.Prompt) (string, error) {
	system := strings.TrimSpace(prompt.System)
	user := strings.TrimSpace(prompt.User)
	if user == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "complete", "user prompt required", nil)
	}
	if err := c.checkConfigured(); err != nil {
		return "", err
	}
	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	temperature := c.cfg.Temperature
	if prompt.Temperature > 0 {
		temperature = prompt.Temperature
	}
	payload := chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   prompt.MaxTokens,
	}
	if prompt.JSON {
		payload.ResponseFormat = map[string]string{"type": jsonResponseType}
	}

	started := time.Now()
	content, err := gateway.Call(ctx, c.limiter, c.Backend(), c.policy, func(ctx context.Context) (string, error) {
		return c.completeOnce(ctx, payload)
	})
	if err != nil {
		return "", err
	}
	c.logger.Debug("llm completion finished",
		logging.String(logging.FieldBackend, c.Backend()),
		logging.String("model", c.cfg.Model),
		logging.Duration("elapsed", time.Since(started)),
		logging.Int("content_chars", len(content)),
	)
	return content, nil
}

// HealthCheck issues a fast ping to verify the endpoint, key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.Complete(ctx, gateway.Prompt{
		System: "You must respond with JSON only.",
		User:   `Respond with {"ok":true}`,
		JSON:   true,
	})
	if err != nil {
		return fmt.Errorf("llm health: %w", err)
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

func (c *Client) checkConfigured() error {
	if c.cfg.BaseURL == "" {
		return services.Wrap(services.ErrConfiguration, "llm", "complete", "base_url required", nil)
	}
	if c.cfg.Model == "" {
		return services.Wrap(services.ErrConfiguration, "llm", "complete", "model required", nil)
	}
	if c.cfg.Variant == VariantCloud && c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "llm", "complete", "api key required for cloud provider", nil)
	}
	return nil
}

func (c *Client) endpoint() string {
	if strings.HasSuffix(c.cfg.BaseURL, completionsPath) {
		return c.cfg.BaseURL
	}
	return c.cfg.BaseURL + completionsPath
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
		// Some servers return the streaming schema even when stream=false.
		Delta        chatCompletionMessage `json:"delta"`
		Text         string                `json:"text"`
		FinishReason string                `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatCompletionMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

func (c *Client) completeOnce(ctx context.Context, payload chatCompletionRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llm request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(encoded))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "llm", "request", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	if err := gateway.CheckResponse(c.Backend(), resp); err != nil {
		return "", err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "llm", "request", "read body", err)
	}
	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", services.Wrap(services.ErrTransient, "llm", "request",
			"decode response: "+summarizePayloadSnippet(string(body)), err)
	}
	if completion.Error != nil {
		return "", services.Wrap(services.ErrExternalTool, "llm", "request",
			"api error: "+strings.TrimSpace(completion.Error.Message), nil)
	}
	content, finishReason, refusal := extractCompletion(completion)
	if content == "" {
		return "", &emptyContentError{
			FinishReason: finishReason,
			Refusal:      refusal,
			Snippet:      summarizePayloadSnippet(string(body)),
		}
	}
	return content, nil
}

func extractCompletion(completion chatCompletionResponse) (content, finishReason, refusal string) {
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = firstNonEmpty(choice.Message.Refusal, choice.Delta.Refusal)
		}
		if text := firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text); text != "" {
			return text, finishReason, refusal
		}
	}
	return "", finishReason, refusal
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
