package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelforge/internal/config"
)

const userAgent = "reelforge/0.1.0"

// Service defines the notification surface exposed to the orchestrator.
type Service interface {
	NotifyRunCompleted(ctx context.Context, title, output string, duration time.Duration, segments int) error
	NotifyRunFailed(ctx context.Context, title, stage, message string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		runCompleted: cfg.Notifications.RunCompleted,
		runFailed:    cfg.Notifications.RunFailed,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	runCompleted bool
	runFailed    bool
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, title, output string, duration time.Duration, segments int) error {
	if !n.runCompleted {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "untitled"
	}
	message := fmt.Sprintf("✅ Video ready: %s (%d segments, %s)", title, segments, duration.Round(time.Second))
	if output = strings.TrimSpace(output); output != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, output)
	}
	return n.send(ctx, payload{
		title:    "reelforge - Video Ready",
		message:  message,
		tags:     []string{"reelforge", "run", "completed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, title, stage, message string) error {
	if !n.runFailed {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Run failed")
	if title = strings.TrimSpace(title); title != "" {
		builder.WriteString(": ")
		builder.WriteString(title)
	}
	if stage = strings.TrimSpace(stage); stage != "" {
		builder.WriteString(" during ")
		builder.WriteString(stage)
	}
	if message = strings.TrimSpace(message); message != "" {
		builder.WriteString("\n")
		builder.WriteString(message)
	}
	return n.send(ctx, payload{
		title:    "reelforge - Run Failed",
		message:  builder.String(),
		tags:     []string{"reelforge", "run", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "reelforge - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"reelforge", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, string, string, time.Duration, int) error {
	return nil
}
func (noopService) NotifyRunFailed(context.Context, string, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
