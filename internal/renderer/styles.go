package renderer

import (
	"sort"
	"strings"
)

// Preset is a built-in illustration style.
type Preset struct {
	Name        string
	Label       string
	Description string
}

var presets = map[string]Preset{
	"stick_figure": {
		Name:        "stick_figure",
		Label:       "Stick figure sketch",
		Description: "stick figure style sketch, black and white lines, pure white background, minimalist hand-drawn feel",
	},
	"minimal": {
		Name:        "minimal",
		Label:       "Minimal abstract",
		Description: "minimalist abstract art, geometric shapes, clean composition, modern design, soft pastel colors",
	},
	"concept": {
		Name:        "concept",
		Label:       "Conceptual visual",
		Description: "conceptual visual metaphors, symbolic elements, thought-provoking imagery, artistic interpretation",
	},
}

// DefaultPreset is used when neither a preset nor a description is given
// and the configuration does not name one.
const DefaultPreset = "stick_figure"

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Presets returns every built-in preset sorted by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
