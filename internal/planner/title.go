package planner

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reelforge/internal/gateway"
	"reelforge/internal/textutil"
)

// Title strategies.
const (
	TitleAuto   = "auto"
	TitleDirect = "direct"
	TitleLLM    = "llm"
)

// autoDirectThreshold is the longest source, in runes, that auto uses as the
// title without asking the LLM.
const autoDirectThreshold = 15

// GenerateTitle derives a video title from the source text.
func GenerateTitle(ctx context.Context, client gateway.LLM, src Source, strategy string, maxLen int) (string, error) {
	text := strings.Join(strings.Fields(src.Text), " ")
	if text == "" {
		return "", fmt.Errorf("title: empty source text")
	}
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case TitleDirect:
		return directTitle(text, maxLen), nil
	case TitleLLM:
		return llmTitle(ctx, client, text, maxLen)
	case TitleAuto, "":
		if utf8.RuneCountInString(text) <= autoDirectThreshold {
			return textutil.ClipRunes(text, clipLimit(maxLen)), nil
		}
		return llmTitle(ctx, client, text, maxLen)
	default:
		return "", fmt.Errorf("title: unknown strategy %q", strategy)
	}
}

func directTitle(text string, maxLen int) string {
	titled := cases.Title(language.Und).String(text)
	return strings.TrimSpace(textutil.ClipRunes(titled, clipLimit(maxLen)))
}

func llmTitle(ctx context.Context, client gateway.LLM, text string, maxLen int) (string, error) {
	if client == nil {
		return directTitle(text, maxLen), nil
	}
	raw, err := client.Complete(ctx, gateway.Prompt{User: titlePrompt(text, clipLimit(maxLen)), Temperature: 0.7, MaxTokens: 50})
	if err != nil {
		return "", fmt.Errorf("title: llm: %w", err)
	}
	title := cleanTitle(raw)
	if title == "" {
		return directTitle(text, maxLen), nil
	}
	return textutil.ClipRunes(title, clipLimit(maxLen)), nil
}

func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = strings.TrimSpace(title[:idx])
	}
	title = strings.TrimPrefix(title, "Title:")
	title = strings.TrimSpace(title)
	for _, quote := range []string{`"`, `'`, "“", "”"} {
		title = strings.TrimPrefix(title, quote)
		title = strings.TrimSuffix(title, quote)
	}
	return strings.TrimSpace(title)
}

func clipLimit(maxLen int) int {
	if maxLen <= 0 {
		return autoDirectThreshold
	}
	return maxLen
}
