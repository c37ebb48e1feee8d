// Package backends builds the gateway variants named in the configuration.
package backends

import (
	"fmt"
	"log/slog"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/gateway"
	"reelforge/internal/logging"
	"reelforge/internal/media/store"
	"reelforge/internal/services"
	"reelforge/internal/services/imagegen"
	"reelforge/internal/services/llm"
	"reelforge/internal/services/tts"
)

// Set holds one instance of each capability.
type Set struct {
	LLM   *llm.Client
	TTS   gateway.TTS
	Image gateway.Image
}

func policy(attempts, timeoutSeconds int, logger *slog.Logger) gateway.Policy {
	p := gateway.DefaultPolicy()
	if attempts > 0 {
		p.MaxAttempts = attempts
	}
	if timeoutSeconds > 0 {
		p.Timeout = time.Duration(timeoutSeconds) * time.Second
	}
	p.Logger = logger
	return p
}

// New builds every backend. limiter is normally gateway.Shared().
func New(cfg *config.Config, st *store.Store, limiter *gateway.Limiter, logger *slog.Logger) (*Set, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "backends", "new", "config required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	llmClient, err := NewLLM(cfg, limiter, logger)
	if err != nil {
		return nil, err
	}
	speech, err := NewTTS(cfg, st, limiter, logger)
	if err != nil {
		return nil, err
	}
	images, err := NewImage(cfg, st, limiter, logger)
	if err != nil {
		return nil, err
	}
	return &Set{LLM: llmClient, TTS: speech, Image: images}, nil
}

// NewLLM builds the configured LLM variant.
func NewLLM(cfg *config.Config, limiter *gateway.Limiter, logger *slog.Logger) (*llm.Client, error) {
	variant := cfg.LLM.Provider
	switch variant {
	case config.ProviderCloud, config.ProviderSelfHosted:
	default:
		return nil, services.Wrap(services.ErrConfiguration, "backends", "llm", fmt.Sprintf("unknown provider %q", variant), nil)
	}
	limiter.Register(gateway.BackendName(gateway.CapabilityLLM, variant), cfg.LLM.Concurrency)
	return llm.NewClient(llm.Config{
		Variant:        variant,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	},
		llm.WithPolicy(policy(cfg.LLM.RetryAttempts, cfg.LLM.TimeoutSeconds, logger)),
		llm.WithLimiter(limiter),
		llm.WithLogger(logging.NewComponentLogger(logger, "llm")),
	), nil
}

// NewTTS builds the configured TTS variant.
func NewTTS(cfg *config.Config, st *store.Store, limiter *gateway.Limiter, logger *slog.Logger) (gateway.TTS, error) {
	variant := cfg.TTS.Provider
	opts := []tts.Option{
		tts.WithPolicy(policy(cfg.TTS.RetryAttempts, cfg.TTS.TimeoutSeconds, logger)),
		tts.WithLimiter(limiter),
		tts.WithLogger(logging.NewComponentLogger(logger, "tts")),
	}
	switch variant {
	case config.ProviderEdge:
		limiter.Register(gateway.BackendName(gateway.CapabilityTTS, variant), cfg.TTS.Concurrency)
		return tts.NewEdgeClient(tts.EdgeConfig{
			Binary: cfg.TTS.Binary,
			Voice:  cfg.TTS.Voice,
			Rate:   cfg.TTS.Rate,
			Pitch:  cfg.TTS.Pitch,
			Volume: cfg.TTS.Volume,
		}, st, opts...), nil
	case config.ProviderHTTP:
		limiter.Register(gateway.BackendName(gateway.CapabilityTTS, variant), cfg.TTS.Concurrency)
		return tts.NewHTTPClient(tts.HTTPConfig{
			Endpoint:       cfg.TTS.BaseURL,
			Voice:          cfg.TTS.Voice,
			Speed:          cfg.TTS.Speed,
			TimeoutSeconds: cfg.TTS.TimeoutSeconds,
		}, st, opts...), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "backends", "tts", fmt.Sprintf("unknown provider %q", variant), nil)
	}
}

// NewImage builds the configured image variant.
func NewImage(cfg *config.Config, st *store.Store, limiter *gateway.Limiter, logger *slog.Logger) (gateway.Image, error) {
	variant := cfg.Image.Provider
	opts := []imagegen.Option{
		imagegen.WithPolicy(policy(cfg.Image.RetryAttempts, cfg.Image.TimeoutSeconds, logger)),
		imagegen.WithLimiter(limiter),
		imagegen.WithLogger(logging.NewComponentLogger(logger, "image")),
	}
	switch variant {
	case config.ProviderImageLocal:
		limiter.Register(gateway.BackendName(gateway.CapabilityImage, variant), cfg.Image.Concurrency)
		return imagegen.NewLocalClient(imagegen.LocalConfig{
			BaseURL:        cfg.Image.BaseURL,
			Steps:          cfg.Image.Steps,
			TimeoutSeconds: cfg.Image.TimeoutSeconds,
		}, st, opts...), nil
	case config.ProviderImageCloud:
		limiter.Register(gateway.BackendName(gateway.CapabilityImage, variant), cfg.Image.Concurrency)
		return imagegen.NewCloudClient(imagegen.CloudConfig{
			BaseURL:        cfg.Image.BaseURL,
			APIKey:         cfg.Image.APIKey,
			Model:          cfg.Image.Model,
			TimeoutSeconds: cfg.Image.TimeoutSeconds,
		}, st, opts...), nil
	case config.ProviderImageAssets:
		limiter.Register(gateway.BackendName(gateway.CapabilityImage, variant), cfg.Image.Concurrency)
		return imagegen.NewAssetsClient(imagegen.AssetsConfig{Dir: cfg.Image.AssetsDir}, st, opts...), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "backends", "image", fmt.Sprintf("unknown provider %q", variant), nil)
	}
}
