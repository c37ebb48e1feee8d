package backends

import (
	"errors"
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/gateway"
	"reelforge/internal/services"
	"reelforge/internal/testsupport"
)

type named interface {
	Backend() string
}

func TestNewSelectsVariantsByName(t *testing.T) {
	tests := []struct {
		name      string
		ttsName   string
		imageName string
	}{
		{name: "defaults", ttsName: config.ProviderEdge, imageName: config.ProviderImageCloud},
		{name: "local", ttsName: config.ProviderHTTP, imageName: config.ProviderImageLocal},
		{name: "assets", ttsName: config.ProviderEdge, imageName: config.ProviderImageAssets},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			cfg.TTS.Provider = tt.ttsName
			cfg.Image.Provider = tt.imageName
			limiter := gateway.NewLimiter()
			set, err := New(cfg, testsupport.MustOpenMediaStore(t, cfg), limiter, nil)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			wantTTS := gateway.BackendName(gateway.CapabilityTTS, tt.ttsName)
			if got := set.TTS.(named).Backend(); got != wantTTS {
				t.Fatalf("TTS backend = %q, want %q", got, wantTTS)
			}
			wantImage := gateway.BackendName(gateway.CapabilityImage, tt.imageName)
			if got := set.Image.(named).Backend(); got != wantImage {
				t.Fatalf("Image backend = %q, want %q", got, wantImage)
			}
			if limiter.Limit(wantImage) != cfg.Image.Concurrency {
				t.Fatal("image limit not registered")
			}
		})
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Image.Provider = "dalle"
	_, err := New(cfg, testsupport.MustOpenMediaStore(t, cfg), gateway.NewLimiter(), nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
