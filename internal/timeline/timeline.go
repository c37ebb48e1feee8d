package timeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"reelforge/internal/layout"
	"reelforge/internal/media"
	"reelforge/internal/media/audiofile"
	"reelforge/internal/segment"
	"reelforge/internal/services"
)

// Background music modes.
const (
	BGMLoop = "loop"
	BGMOnce = "once"
)

// Entry places one rendered segment on the timeline.
type Entry struct {
	Segment segment.Rendered
	Start   time.Duration
	End     time.Duration
}

// Timeline is the ordered, gap-free sequence handed to the assembler.
type Timeline struct {
	RunID    string
	Entries  []Entry
	BGM      media.Locator
	BGMMode  string
	Template layout.Template
	Total    time.Duration
}

// Start returns the offset of entry i.
func (t Timeline) Start(i int) time.Duration {
	return t.Entries[i].Start
}

// Captions returns the caption of every entry in playback order.
func (t Timeline) Captions() []string {
	out := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		out[i] = e.Segment.Caption
	}
	return out
}

// AudioRefs returns the narration blob of every entry in playback order.
func (t Timeline) AudioRefs() []media.Locator {
	out := make([]media.Locator, len(t.Entries))
	for i, e := range t.Entries {
		out[i] = e.Segment.AudioRef
	}
	return out
}

// IncompleteTimelineError reports indices that are absent or repeated.
type IncompleteTimelineError struct {
	Missing    []int
	Duplicates []int
}

func (e *IncompleteTimelineError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing %v", e.Missing))
	}
	if len(e.Duplicates) > 0 {
		parts = append(parts, fmt.Sprintf("duplicate %v", e.Duplicates))
	}
	if len(parts) == 0 {
		return "incomplete timeline: no segments"
	}
	return "incomplete timeline: " + strings.Join(parts, ", ")
}

func (e *IncompleteTimelineError) Unwrap() error {
	return services.ErrIncompleteTimeline
}

// Build orders rendered segments and computes their offsets. Input order does
// not matter; indices must cover 0..N-1 exactly once.
func Build(rendered []segment.Rendered, bgm media.Locator, bgmMode string, tpl layout.Template) (Timeline, error) {
	if len(rendered) == 0 {
		return Timeline{}, &IncompleteTimelineError{}
	}
	sorted := make([]segment.Rendered, len(rendered))
	copy(sorted, rendered)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	seen := make(map[int]int, len(sorted))
	maxIndex := 0
	for _, r := range sorted {
		if r.Index < 0 {
			return Timeline{}, services.Wrap(services.ErrValidation, "timeline", "build", fmt.Sprintf("negative segment index %d", r.Index), nil)
		}
		if r.Duration <= 0 {
			return Timeline{}, services.Wrap(services.ErrValidation, "timeline", "build", fmt.Sprintf("segment %d has no duration", r.Index), nil)
		}
		seen[r.Index]++
		maxIndex = max(maxIndex, r.Index)
	}
	var missing, duplicates []int
	for i := 0; i <= maxIndex; i++ {
		switch n := seen[i]; {
		case n == 0:
			missing = append(missing, i)
		case n > 1:
			duplicates = append(duplicates, i)
		}
	}
	if len(missing) > 0 || len(duplicates) > 0 {
		return Timeline{}, &IncompleteTimelineError{Missing: missing, Duplicates: duplicates}
	}

	mode, err := normalizeBGM(bgm, bgmMode)
	if err != nil {
		return Timeline{}, err
	}

	entries := make([]Entry, len(sorted))
	var cursor time.Duration
	for i, r := range sorted {
		d := r.Duration.Round(time.Millisecond)
		entries[i] = Entry{Segment: r, Start: cursor, End: cursor + d}
		cursor += d
	}
	return Timeline{
		Entries:  entries,
		BGM:      bgm,
		BGMMode:  mode,
		Template: tpl,
		Total:    cursor,
	}, nil
}

func normalizeBGM(bgm media.Locator, mode string) (string, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case "":
		mode = BGMLoop
	case BGMLoop, BGMOnce:
	default:
		return "", services.Wrap(services.ErrValidation, "timeline", "bgm", fmt.Sprintf("unknown bgm mode %q", mode), nil)
	}
	if bgm.IsZero() {
		return mode, nil
	}
	if !bgm.Exists() {
		return "", services.Wrap(services.ErrValidation, "timeline", "bgm", "background music not found: "+bgm.Path(), nil)
	}
	if _, err := audiofile.IdentifyFile(bgm.Path()); err != nil {
		return "", services.Wrap(services.ErrValidation, "timeline", "bgm", "background music is not a supported audio file", err)
	}
	return mode, nil
}
