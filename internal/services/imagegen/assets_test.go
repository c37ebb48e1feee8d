package imagegen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"reelforge/internal/gateway"
	"reelforge/internal/services"
)

func writeLibrary(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestAssetsClientStoresMatchingImage(t *testing.T) {
	lighthouse := pngBytes(t, 16, 8)
	dir := writeLibrary(t, map[string][]byte{
		"forest-path.png":        pngBytes(t, 8, 8),
		"lighthouse_at_dusk.png": lighthouse,
		"notes.txt":              []byte("not an image"),
	})
	client := NewAssetsClient(AssetsConfig{Dir: dir}, openStore(t), WithPolicy(fastPolicy()))

	loc, err := client.Generate(context.Background(), gateway.ImageRequest{RunID: "run", Index: 0, Prompt: "watercolor, a Lighthouse glowing at dusk", Width: 8, Height: 8})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	data, err := os.ReadFile(loc.Path())
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != string(lighthouse) {
		t.Fatal("stored image is not the matching library file")
	}
	if client.Backend() != "image:assets" {
		t.Fatalf("backend = %q", client.Backend())
	}
}

func TestPickAsset(t *testing.T) {
	files := []string{"/lib/a-beach.png", "/lib/b-city.png", "/lib/c-city-night.png", "/lib/d-desk.png"}
	tests := []struct {
		name   string
		prompt string
		index  int
		want   string
	}{
		{name: "best score wins", prompt: "a city at night", index: 0, want: "/lib/c-city-night.png"},
		{name: "ties rotate by index", prompt: "busy city streets", index: 1, want: "/lib/c-city-night.png"},
		{name: "ties first", prompt: "busy city streets", index: 2, want: "/lib/b-city.png"},
		{name: "no match rotates library", prompt: "mountains", index: 5, want: "/lib/b-city.png"},
		{name: "short words ignored", prompt: "a b c d", index: 0, want: "/lib/a-beach.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pickAsset(files, tt.prompt, tt.index); got != tt.want {
				t.Fatalf("pickAsset = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssetsClientConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		dir  string
	}{
		{name: "unset", dir: ""},
		{name: "missing", dir: filepath.Join(t.TempDir(), "nope")},
		{name: "no images", dir: writeLibrary(t, map[string][]byte{"readme.md": []byte("#")})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewAssetsClient(AssetsConfig{Dir: tt.dir}, openStore(t), WithPolicy(fastPolicy()))
			_, err := client.Generate(context.Background(), gateway.ImageRequest{RunID: "run", Prompt: "p", Width: 8, Height: 8})
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if services.Retryable(err) {
				t.Fatal("configuration errors must not be retried")
			}
		})
	}
}

func TestAssetsClientRejectsCorruptImage(t *testing.T) {
	dir := writeLibrary(t, map[string][]byte{"broken.png": []byte("<html>oops</html>")})
	client := NewAssetsClient(AssetsConfig{Dir: dir}, openStore(t), WithPolicy(fastPolicy()))
	_, err := client.Generate(context.Background(), gateway.ImageRequest{RunID: "run", Prompt: "p", Width: 8, Height: 8})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
