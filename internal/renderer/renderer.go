// Package renderer turns one narration into a rendered segment: an image, a
// narration audio file, and the measured duration of that audio.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"reelforge/internal/gateway"
	"reelforge/internal/logging"
	"reelforge/internal/media"
	"reelforge/internal/segment"
	"reelforge/internal/services"
	"reelforge/internal/services/llm"
)

// Prober measures audio duration.
type Prober interface {
	AudioDuration(ctx context.Context, path string) (time.Duration, error)
}

// Config carries the per-run image and voice parameters.
type Config struct {
	DefaultStyle   string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	// Seed < 0 requests a random seed for every segment.
	Seed   int64
	Voice  string
	Rate   string
	Pitch  string
	Volume string
	Speed  float64
}

// Renderer renders segments through the gateways.
type Renderer struct {
	llm    gateway.LLM
	image  gateway.Image
	tts    gateway.TTS
	prober Prober
	cfg    Config
	logger *slog.Logger
}

// New constructs a renderer.
func New(llmClient gateway.LLM, image gateway.Image, tts gateway.TTS, prober Prober, cfg Config, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Renderer{llm: llmClient, image: image, tts: tts, prober: prober, cfg: cfg, logger: logger}
}

// WithVoice returns a copy of r that speaks with voice. An empty voice keeps
// the configured one.
func (r *Renderer) WithVoice(voice string) *Renderer {
	clone := *r
	if v := strings.TrimSpace(voice); v != "" {
		clone.cfg.Voice = v
	}
	return &clone
}

// ResolveStyle turns a preset name or free-text description into the prefix
// applied to every image prompt of a run.
func (r *Renderer) ResolveStyle(ctx context.Context, style segment.Style) (segment.StyleContext, error) {
	resolved := segment.StyleContext{Negative: r.cfg.NegativePrompt}
	style = segment.Style{Preset: strings.TrimSpace(style.Preset), Description: strings.TrimSpace(style.Description)}
	name, description := style.Preset, style.Description
	if style.IsZero() {
		name = r.cfg.DefaultStyle
		if name == "" {
			name = DefaultPreset
		}
	}
	if name != "" {
		preset, ok := LookupPreset(name)
		if !ok {
			return resolved, services.Wrap(services.ErrValidation, "style", "resolve",
				fmt.Sprintf("unknown style preset %q", name), nil)
		}
		resolved.Prefix = preset.Description
		return resolved, nil
	}
	if r.llm == nil {
		return resolved, services.Wrap(services.ErrConfiguration, "style", "resolve", "llm not configured", nil)
	}
	converted, err := r.llm.Complete(ctx, gateway.Prompt{User: styleConversionRequest(description), Temperature: 0.7, MaxTokens: 200})
	if err != nil {
		return resolved, fmt.Errorf("style conversion: %w", err)
	}
	converted = strings.Trim(strings.TrimSpace(converted), `"`)
	if converted == "" {
		converted = description
	}
	resolved.Prefix = converted
	r.logger.Info("custom style resolved",
		logging.String(logging.FieldEventType, "style_resolved"),
		logging.String("prefix", converted),
	)
	return resolved, nil
}

// Render produces the image, audio, and duration for one narration. The image
// and audio requests run concurrently and the first failure cancels the other.
func (r *Renderer) Render(ctx context.Context, runID string, n segment.Narration, style segment.StyleContext) (segment.Rendered, error) {
	ctx = services.WithSegmentIndex(services.WithRunID(ctx, runID), n.Index)
	logger := logging.WithContext(ctx, r.logger)
	started := time.Now()

	ctx = services.WithStage(ctx, string(segment.StagePrompt))
	prompt, err := r.imagePrompt(ctx, n, style)
	if err != nil {
		return segment.Rendered{}, segment.NewRenderError(n.Index, segment.StagePrompt, err)
	}

	var (
		imageRef media.Locator
		audioRef media.Locator
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ref, err := r.image.Generate(services.WithStage(gctx, string(segment.StageImage)), gateway.ImageRequest{
			RunID:          runID,
			Index:          prompt.Index,
			Prompt:         prompt.Prompt,
			NegativePrompt: prompt.Negative,
			Width:          r.cfg.Width,
			Height:         r.cfg.Height,
			Steps:          r.cfg.Steps,
			Seed:           r.seedFor(n.Index),
		})
		if err != nil {
			return segment.NewRenderError(n.Index, segment.StageImage, err)
		}
		imageRef = ref
		return nil
	})
	g.Go(func() error {
		ref, err := r.tts.Synthesize(services.WithStage(gctx, string(segment.StageAudio)), gateway.SpeechRequest{
			RunID:  runID,
			Index:  n.Index,
			Text:   n.Text,
			Voice:  r.cfg.Voice,
			Rate:   r.cfg.Rate,
			Pitch:  r.cfg.Pitch,
			Volume: r.cfg.Volume,
			Speed:  r.cfg.Speed,
		})
		if err != nil {
			return segment.NewRenderError(n.Index, segment.StageAudio, err)
		}
		audioRef = ref
		return nil
	})
	if err := g.Wait(); err != nil {
		return segment.Rendered{}, err
	}

	duration, err := r.prober.AudioDuration(ctx, audioRef.Path())
	if err == nil {
		duration = duration.Round(time.Millisecond)
		if duration <= 0 {
			err = errors.New("zero duration")
		}
	}
	if err != nil {
		return segment.Rendered{}, segment.NewRenderError(n.Index, segment.StageAudio,
			services.Wrap(services.ErrTransient, "audio", "probe", "unusable audio duration", err))
	}

	logger.Info("segment rendered",
		logging.String(logging.FieldEventType, "segment_rendered"),
		logging.Duration("audio_duration", duration),
		logging.Duration("elapsed", time.Since(started)),
	)
	return segment.Rendered{
		Index:    n.Index,
		ImageRef: imageRef,
		AudioRef: audioRef,
		Duration: duration,
		Caption:  n.Text,
		Prompt:   prompt.Prompt,
	}, nil
}

// imagePrompt asks the LLM for an illustration prompt and applies the run's
// style prefix and negative prompt to it.
func (r *Renderer) imagePrompt(ctx context.Context, n segment.Narration, style segment.StyleContext) (segment.ImagePrompt, error) {
	if r.llm == nil {
		return segment.ImagePrompt{}, services.Wrap(services.ErrConfiguration, "prompt", "image prompt", "llm not configured", nil)
	}
	raw, err := r.llm.Complete(ctx, gateway.Prompt{System: imagePromptSystem, User: imagePromptRequest(n.Text), JSON: true})
	if err != nil {
		return segment.ImagePrompt{}, err
	}
	var payload struct {
		ImagePrompt string `json:"image_prompt"`
	}
	if err := llm.DecodeLLMJSON(raw, &payload); err != nil {
		return segment.ImagePrompt{}, services.Wrap(services.ErrTransient, "prompt", "image prompt", "malformed payload", err)
	}
	prompt := strings.TrimSpace(payload.ImagePrompt)
	if prompt == "" {
		return segment.ImagePrompt{}, services.Wrap(services.ErrTransient, "prompt", "image prompt", "empty image prompt", nil)
	}
	return segment.ImagePrompt{
		Index:    n.Index,
		Prompt:   joinPrompt(style.Prefix, prompt),
		Negative: style.Negative,
	}, nil
}

func (r *Renderer) seedFor(index int) int64 {
	if r.cfg.Seed < 0 {
		return -1
	}
	return r.cfg.Seed + int64(index)
}

func joinPrompt(prefix, prompt string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ",")
	if prefix == "" {
		return prompt
	}
	return prefix + ", " + prompt
}
