package gateway

import (
	"context"

	"reelforge/internal/media"
)

// Prompt is a single chat completion request.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// LLM completes prompts.
type LLM interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// SpeechRequest describes one narration to synthesize.
type SpeechRequest struct {
	RunID  string
	Index  int
	Text   string
	Voice  string
	Rate   string
	Pitch  string
	Volume string
	Speed  float64
}

// TTS synthesizes speech and stores the audio blob.
type TTS interface {
	Synthesize(ctx context.Context, req SpeechRequest) (media.Locator, error)
}

// ImageRequest describes one illustration to generate.
type ImageRequest struct {
	RunID          string
	Index          int
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	// Seed < 0 asks the backend for a random seed.
	Seed int64
}

// Image generates illustrations and stores the image blob.
type Image interface {
	Generate(ctx context.Context, req ImageRequest) (media.Locator, error)
}

// Backend names used for limiter slots.
const (
	CapabilityLLM   = "llm"
	CapabilityTTS   = "tts"
	CapabilityImage = "image"
)

// BackendName joins a capability and variant into a limiter key such as
// "image:cloud".
func BackendName(capability, variant string) string {
	if variant == "" {
		return capability
	}
	return capability + ":" + variant
}
