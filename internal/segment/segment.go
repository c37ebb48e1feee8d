// Package segment holds the data model shared by the planner, renderer,
// timeline, and orchestrator.
package segment

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"reelforge/internal/media"
	"reelforge/internal/services"
)

// Narration is one planned unit of spoken text. Indices are contiguous from 0.
type Narration struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	MinWords int    `json:"min_words"`
	MaxWords int    `json:"max_words"`
}

// ImagePrompt is the illustration request derived for one narration.
type ImagePrompt struct {
	Index    int
	Prompt   string
	Negative string
}

// Rendered is a segment whose image and audio are both stored and whose
// duration is known. It is the unit of retry.
type Rendered struct {
	Index    int           `json:"index"`
	ImageRef media.Locator `json:"image_ref"`
	AudioRef media.Locator `json:"audio_ref"`
	Duration time.Duration `json:"duration"`
	Caption  string        `json:"caption"`
	Prompt   string        `json:"prompt"`
}

// Seconds returns the duration as fractional seconds.
func (r Rendered) Seconds() float64 {
	return r.Duration.Seconds()
}

// Reusable reports whether both blobs still exist and the duration is usable.
func (r Rendered) Reusable() bool {
	return r.Duration > 0 && r.ImageRef.Exists() && r.AudioRef.Exists()
}

// Style selects the illustration look for a run. Preset wins over Description.
type Style struct {
	Preset      string `json:"preset,omitempty"`
	Description string `json:"description,omitempty"`
}

// IsZero reports whether neither a preset nor a description is set.
func (s Style) IsZero() bool {
	return s.Preset == "" && s.Description == ""
}

// StyleContext is the resolved style applied to every image prompt of a run.
type StyleContext struct {
	Prefix   string `json:"prefix"`
	Negative string `json:"negative"`
}

// Stage names the step of a segment render that failed.
type Stage string

const (
	StagePrompt Stage = "prompt"
	StageImage  Stage = "image"
	StageAudio  Stage = "audio"
)

// RenderError reports a failed segment render. It matches
// services.ErrSegmentRender as well as the marker carried by Err.
type RenderError struct {
	Index int
	Stage Stage
	Err   error
}

func (e *RenderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("segment %d: %s: %v", e.Index, e.Stage, e.Err)
}

func (e *RenderError) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{services.ErrSegmentRender}
	}
	return []error{services.ErrSegmentRender, e.Err}
}

// NewRenderError wraps err for the given segment and stage.
func NewRenderError(index int, stage Stage, err error) *RenderError {
	return &RenderError{Index: index, Stage: stage, Err: err}
}

// ValidateSequence checks that narration indices are exactly 0..N-1 and
// that no narration is empty.
func ValidateSequence(narrations []Narration) error {
	if len(narrations) == 0 {
		return errors.New("no narrations")
	}
	indices := make([]int, 0, len(narrations))
	for _, n := range narrations {
		if n.Text == "" {
			return fmt.Errorf("narration %d is empty", n.Index)
		}
		indices = append(indices, n.Index)
	}
	sort.Ints(indices)
	for want, got := range indices {
		if got != want {
			return fmt.Errorf("narration indices not contiguous: expected %d, found %d", want, got)
		}
	}
	return nil
}

// Renumber returns a copy of rendered sorted by index with indices reassigned
// to 0..N-1 in that order.
func Renumber(rendered []Rendered) []Rendered {
	out := make([]Rendered, len(rendered))
	copy(out, rendered)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	for i := range out {
		out[i].Index = i
	}
	return out
}
