package planner

import (
	"fmt"
	"strings"

	"reelforge/internal/textutil"
)

const jsonOnlySystem = "You write scripts for short narrated videos. Reply with a single JSON object and nothing else."

func countPhrase(opts Options) string {
	if opts.Relaxed {
		tol := opts.tolerance()
		low := max(1, opts.SegmentCount-tol)
		return fmt.Sprintf("approximately %d (anywhere from %d to %d)", opts.SegmentCount, low, opts.SegmentCount+tol)
	}
	return fmt.Sprintf("exactly %d", opts.SegmentCount)
}

func topicPrompt(topic string, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the narration for a short video about this topic:\n\n%s\n\n", strings.TrimSpace(topic))
	fmt.Fprintf(&b, "Requirements:\n")
	fmt.Fprintf(&b, "- Produce %s narrations, one per scene, in speaking order.\n", countPhrase(opts))
	fmt.Fprintf(&b, "- Each narration is between %d and %d words and reads naturally aloud.\n", opts.MinWords, opts.MaxWords)
	fmt.Fprintf(&b, "- Open with a question or a vivid scene, develop one idea per scene, close with a takeaway.\n")
	fmt.Fprintf(&b, "- No URLs, emoji, numbering, or trailing punctuation.\n\n")
	fmt.Fprintf(&b, "Output format: {\"narrations\": [\"...\", \"...\"]}")
	return b.String()
}

func contentPrompt(content string, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Condense the following content into narration for a short video.\n\nContent:\n%s\n\n", strings.TrimSpace(content))
	fmt.Fprintf(&b, "Requirements:\n")
	fmt.Fprintf(&b, "- Produce %s narrations, one per scene, in speaking order.\n", countPhrase(opts))
	fmt.Fprintf(&b, "- Each narration is between %d and %d words.\n", opts.MinWords, opts.MaxWords)
	fmt.Fprintf(&b, "- Long content: keep only the core points. Short content: expand with an example or explanation.\n")
	fmt.Fprintf(&b, "- Stay faithful to the author's meaning but phrase it for speaking aloud.\n")
	fmt.Fprintf(&b, "- No URLs, emoji, numbering, or trailing punctuation.\n\n")
	fmt.Fprintf(&b, "Output format: {\"narrations\": [\"...\", \"...\"]}")
	return b.String()
}

func splitPrompt(script string, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Split the following script into scenes for a narrated video.\n\nScript:\n%s\n\n", strings.TrimSpace(script))
	fmt.Fprintf(&b, "Requirements:\n")
	if opts.SegmentCount > 0 {
		fmt.Fprintf(&b, "- Produce %s segments.\n", countPhrase(opts))
	}
	fmt.Fprintf(&b, "- Prefer breaks at sentence boundaries; aim for %d to %d words per segment.\n", opts.MinWords, opts.MaxWords)
	fmt.Fprintf(&b, "- Copy the text verbatim. Do not rewrite, translate, reorder, add, or drop any words or punctuation.\n")
	fmt.Fprintf(&b, "- Every word of the script must appear in exactly one segment.\n\n")
	fmt.Fprintf(&b, "Output format: {\"segments\": [\"...\", \"...\"]}")
	return b.String()
}

const titlePreviewRunes = 500

func titlePrompt(text string, maxLen int) string {
	preview := textutil.ClipRunes(strings.TrimSpace(text), titlePreviewRunes)
	return fmt.Sprintf(`Write a short, catchy video title of at most %d characters for the following content.

Content:
%s

Reply with the title text only.`, maxLen, preview)
}
