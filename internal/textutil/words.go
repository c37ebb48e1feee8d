package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// isCJK reports whether r belongs to a script written without spaces, where
// each character counts as one word.
func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// CountWords counts whitespace-separated words, treating every CJK character
// as a word of its own. Punctuation-only tokens are ignored.
func CountWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case isCJK(r):
			count++
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				count++
				inWord = true
			}
		case unicode.IsSpace(r):
			inWord = false
		}
	}
	return count
}

// ClipRunes shortens s to at most n runes without splitting a character.
func ClipRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

// WrapLines breaks text into lines of at most width runes. Latin text breaks
// at spaces; CJK text may break between any two characters. Words longer than
// width are split hard.
func WrapLines(text string, width int) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	var line []rune
	flush := func() {
		if trimmed := strings.TrimSpace(string(line)); trimmed != "" {
			lines = append(lines, trimmed)
		}
		line = line[:0]
	}

	for _, token := range tokens(text) {
		tr := []rune(token)
		if token == " " {
			if len(line) > 0 && len(line) < width {
				line = append(line, ' ')
			}
			continue
		}
		if len(line)+len(tr) > width {
			flush()
		}
		for len(tr) > width {
			lines = append(lines, string(tr[:width]))
			tr = tr[width:]
		}
		line = append(line, tr...)
	}
	flush()
	return lines
}

// tokens splits text into words, single spaces, and individual CJK characters.
func tokens(text string) []string {
	var out []string
	var word strings.Builder
	emit := func() {
		if word.Len() > 0 {
			out = append(out, word.String())
			word.Reset()
		}
	}
	for _, r := range text {
		switch {
		case r == ' ':
			emit()
			out = append(out, " ")
		case isCJK(r):
			emit()
			out = append(out, string(r))
		default:
			word.WriteRune(r)
		}
	}
	emit()
	return out
}
