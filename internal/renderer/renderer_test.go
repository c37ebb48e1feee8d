package renderer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"reelforge/internal/gateway"
	"reelforge/internal/media"
	"reelforge/internal/segment"
	"reelforge/internal/services"
)

type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	prompts []gateway.Prompt
}

func (f *fakeLLM) Complete(_ context.Context, p gateway.Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	return f.reply, nil
}

type fakeImage struct {
	err  error
	reqs []gateway.ImageRequest
}

func (f *fakeImage) Generate(_ context.Context, req gateway.ImageRequest) (media.Locator, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	return media.Locator("/blobs/image.png"), nil
}

type fakeTTS struct {
	block bool
	voice string
	err   error
}

func (f *fakeTTS) Synthesize(ctx context.Context, req gateway.SpeechRequest) (media.Locator, error) {
	f.voice = req.Voice
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return media.Locator("/blobs/audio.mp3"), nil
}

type fakeProber struct {
	d   time.Duration
	err error
}

func (f fakeProber) AudioDuration(context.Context, string) (time.Duration, error) {
	return f.d, f.err
}

func narration() segment.Narration {
	return segment.Narration{Index: 2, Text: "Rest is productive."}
}

func TestRenderJoinsImageAndAudio(t *testing.T) {
	llm := &fakeLLM{reply: `{"image_prompt": "a person resting under a tree"}`}
	img := &fakeImage{}
	speech := &fakeTTS{}
	r := New(llm, img, speech, fakeProber{d: 2345600 * time.Microsecond}, Config{Width: 512, Height: 768, Seed: 100, Voice: "default-voice"}, nil).WithVoice("custom")

	got, err := r.Render(context.Background(), "run-1", narration(), segment.StyleContext{Prefix: "stick figure style,", Negative: "blurry"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got.Index != 2 || got.Caption != "Rest is productive." {
		t.Fatalf("unexpected segment %+v", got)
	}
	if got.Duration != 2346*time.Millisecond {
		t.Fatalf("duration = %v, want 2.346s", got.Duration)
	}
	if got.Prompt != "stick figure style, a person resting under a tree" {
		t.Fatalf("prompt = %q", got.Prompt)
	}
	req := img.reqs[0]
	if req.Seed != 102 || req.NegativePrompt != "blurry" || req.Width != 512 || req.Height != 768 {
		t.Fatalf("unexpected image request %+v", req)
	}
	if speech.voice != "custom" {
		t.Fatalf("voice = %q", speech.voice)
	}
}

func TestRenderImageFailureCancelsAudio(t *testing.T) {
	llm := &fakeLLM{reply: `{"image_prompt": "x"}`}
	imageErr := services.Wrap(services.ErrValidation, "image", "generate", "http 400", nil)
	r := New(llm, &fakeImage{err: imageErr}, &fakeTTS{block: true}, fakeProber{d: time.Second}, Config{Seed: -1}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Render(context.Background(), "run", narration(), segment.StyleContext{})
		done <- err
	}()
	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("render did not return; audio sibling was not cancelled")
	}
	var renderErr *segment.RenderError
	if !errors.As(err, &renderErr) || renderErr.Stage != segment.StageImage || renderErr.Index != 2 {
		t.Fatalf("expected image RenderError, got %v", err)
	}
	if !errors.Is(err, services.ErrSegmentRender) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("markers missing: %v", err)
	}
}

func TestRenderUnusableDurationIsTransientAudioFailure(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
	}{
		{name: "zero", d: 0},
		{name: "negative", d: -time.Second},
		{name: "rounds to zero", d: 400 * time.Microsecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{reply: `{"image_prompt": "x"}`}
			r := New(llm, &fakeImage{}, &fakeTTS{}, fakeProber{d: tt.d}, Config{}, nil)
			got, err := r.Render(context.Background(), "run", narration(), segment.StyleContext{})
			var renderErr *segment.RenderError
			if !errors.As(err, &renderErr) || renderErr.Stage != segment.StageAudio {
				t.Fatalf("expected audio RenderError, got %v (segment %+v)", err, got)
			}
			if !services.Retryable(err) {
				t.Fatal("unusable duration should be retryable")
			}
		})
	}
}

func TestRenderSubMillisecondRoundsUp(t *testing.T) {
	llm := &fakeLLM{reply: `{"image_prompt": "x"}`}
	r := New(llm, &fakeImage{}, &fakeTTS{}, fakeProber{d: 600 * time.Microsecond}, Config{}, nil)
	got, err := r.Render(context.Background(), "run", narration(), segment.StyleContext{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got.Duration != time.Millisecond {
		t.Fatalf("duration = %v, want 1ms", got.Duration)
	}
}

func TestImagePromptCarriesStyle(t *testing.T) {
	llm := &fakeLLM{reply: `{"image_prompt": "  a lighthouse at dusk  "}`}
	r := New(llm, nil, nil, nil, Config{}, nil)
	got, err := r.imagePrompt(context.Background(), narration(), segment.StyleContext{Prefix: "watercolor,", Negative: "text"})
	if err != nil {
		t.Fatalf("imagePrompt: %v", err)
	}
	want := segment.ImagePrompt{Index: 2, Prompt: "watercolor, a lighthouse at dusk", Negative: "text"}
	if got != want {
		t.Fatalf("imagePrompt = %+v, want %+v", got, want)
	}
	if !llm.prompts[0].JSON {
		t.Fatal("image prompt request should ask for JSON")
	}
}

func TestRenderMalformedPromptFailsPromptStage(t *testing.T) {
	llm := &fakeLLM{reply: "I cannot help with that"}
	img := &fakeImage{}
	r := New(llm, img, &fakeTTS{}, fakeProber{d: time.Second}, Config{}, nil)
	_, err := r.Render(context.Background(), "run", narration(), segment.StyleContext{})
	var renderErr *segment.RenderError
	if !errors.As(err, &renderErr) || renderErr.Stage != segment.StagePrompt {
		t.Fatalf("expected prompt RenderError, got %v", err)
	}
	if len(img.reqs) != 0 {
		t.Fatal("image generated despite prompt failure")
	}
}

func TestResolveStyle(t *testing.T) {
	tests := []struct {
		name       string
		style      segment.Style
		defaultSty string
		wantPrefix string
		wantLLM    bool
		wantErr    error
	}{
		{name: "preset", style: segment.Style{Preset: "minimal"}, wantPrefix: "minimalist abstract art"},
		{name: "default", defaultSty: "concept", wantPrefix: "conceptual visual metaphors"},
		{name: "fallback default", wantPrefix: "stick figure style sketch"},
		{name: "blank style uses default", style: segment.Style{Preset: "  ", Description: "\t"}, defaultSty: "minimal", wantPrefix: "minimalist abstract art"},
		{name: "description", style: segment.Style{Description: "cyberpunk neon"}, wantPrefix: "neon lights, rain", wantLLM: true},
		{name: "unknown preset", style: segment.Style{Preset: "vaporwave"}, wantErr: services.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{reply: `"neon lights, rain, cinematic"`}
			r := New(llm, nil, nil, nil, Config{DefaultStyle: tt.defaultSty, NegativePrompt: "blurry"}, nil)
			got, err := r.ResolveStyle(context.Background(), tt.style)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveStyle: %v", err)
			}
			if !strings.HasPrefix(got.Prefix, tt.wantPrefix) {
				t.Fatalf("prefix = %q", got.Prefix)
			}
			if got.Negative != "blurry" {
				t.Fatalf("negative = %q", got.Negative)
			}
			if (len(llm.prompts) > 0) != tt.wantLLM {
				t.Fatalf("llm calls = %d", len(llm.prompts))
			}
		})
	}
}
