package textutil

import (
	"reflect"
	"testing"
)

func TestCountWords(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"Hello world", 2},
		{"  spaced   out\ttext\n", 3},
		{"It's a well-known fact.", 4},
		{"— ... !", 0},
		{"你好世界", 4},
		{"AI 改变世界", 5},
	}
	for _, tt := range tests {
		if got := CountWords(tt.text); got != tt.want {
			t.Errorf("CountWords(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestClipRunes(t *testing.T) {
	if got := ClipRunes("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := ClipRunes("你好世界和平", 4); got != "你好世界" {
		t.Fatalf("unexpected %q", got)
	}
	if got := ClipRunes("anything", 0); got != "" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestWrapLines(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"empty", "   ", 10, nil},
		{"fits", "one two", 10, []string{"one two"}},
		{"breaks at spaces", "the quick brown fox jumps", 10, []string{"the quick", "brown fox", "jumps"}},
		{"hard split", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"cjk", "你好世界和平", 4, []string{"你好世界", "和平"}},
		{"no width", "keep as is", 0, []string{"keep as is"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrapLines(tt.text, tt.width); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("WrapLines(%q, %d) = %#v, want %#v", tt.text, tt.width, got, tt.want)
			}
		})
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := SanitizeFileName("  Why: Sleep/Matters?  "); got != "Why- Sleep-Matters" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeFileName(".hidden"); got != "hidden" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeToken("Run ID#7"); got != "run_id_7" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeToken("!!!"); got != "unknown" {
		t.Fatalf("unexpected %q", got)
	}
}
