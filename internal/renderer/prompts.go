package renderer

import (
	"fmt"
	"strings"
)

const imagePromptSystem = "You are a visual designer who writes English prompts for AI image models. Reply with a single JSON object and nothing else."

func imagePromptRequest(narration string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write an English image prompt that illustrates this narration line from a short video:\n\n%s\n\n", strings.TrimSpace(narration))
	b.WriteString("Requirements:\n")
	b.WriteString("- Structure: scene, character action, emotion, symbolic elements.\n")
	b.WriteString("- Turn abstract ideas into concrete visual metaphors (a fork in the road for a choice, chains for constraint).\n")
	b.WriteString("- Reflect the content and mood of the line; avoid unrelated or contradictory elements.\n")
	b.WriteString("- 30 to 80 words. Do not describe an art style; that is added separately.\n\n")
	b.WriteString(`Output format: {"image_prompt": "..."}`)
	return b.String()
}

func styleConversionRequest(description string) string {
	return fmt.Sprintf(`Convert this style description into an image generation style prompt for Stable Diffusion or FLUX.

Style description: %s

Requirements:
- Focus on visual elements, colors, lighting, mood, and atmosphere.
- Use professional photography and art terminology.
- Comma-separated descriptive phrases, under 100 words, in English.
- Output only the prompt, with no explanation.`, strings.TrimSpace(description))
}
