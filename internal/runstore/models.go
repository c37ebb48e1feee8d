package runstore

import (
	"time"

	"reelforge/internal/media"
	"reelforge/internal/segment"
)

// Run states as persisted. They mirror the orchestrator's state machine.
const (
	StatePlanning   = "planning"
	StateRendering  = "rendering"
	StateAssembling = "assembling"
	StateCompleted  = "completed"
	StateFailed     = "failed"
	StateCancelled  = "cancelled"
)

// Segment states as persisted.
const (
	SegmentPlanned   = "planned"
	SegmentRendering = "rendering"
	SegmentRendered  = "rendered"
	SegmentFailed    = "failed"
	SegmentSkipped   = "skipped"
)

// Run is one archived pipeline run.
type Run struct {
	ID            string
	Title         string
	State         string
	SourceKind    string
	SourceText    string
	RequestJSON   string
	StylePrefix   string
	StyleNegative string
	TemplateID    string
	OutputPath    string
	SegmentCount  int
	RenderedCount int
	TotalDuration time.Duration
	FailedStage   string
	FailedIndex   int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FinishedAt    *time.Time
}

// Terminal reports whether the run reached a final state.
func (r *Run) Terminal() bool {
	switch r.State {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Resumable reports whether Resume may pick the run up again.
func (r *Run) Resumable() bool {
	return r.State != StateCompleted
}

// Segment is one archived segment row.
type Segment struct {
	RunID        string
	Index        int
	State        string
	Text         string
	MinWords     int
	MaxWords     int
	Prompt       string
	ImagePath    string
	AudioPath    string
	Duration     time.Duration
	FailedStage  string
	ErrorMessage string
	Attempts     int
	UpdatedAt    time.Time
}

// Narration returns the planned narration held by the row.
func (s Segment) Narration() segment.Narration {
	return segment.Narration{Index: s.Index, Text: s.Text, MinWords: s.MinWords, MaxWords: s.MaxWords}
}

// Rendered returns the stored render result. Only meaningful when State is
// SegmentRendered.
func (s Segment) Rendered() segment.Rendered {
	return segment.Rendered{
		Index:    s.Index,
		ImageRef: media.Locator(s.ImagePath),
		AudioRef: media.Locator(s.AudioPath),
		Duration: s.Duration,
		Caption:  s.Text,
		Prompt:   s.Prompt,
	}
}

// PlannedSegment builds the initial row for a narration.
func PlannedSegment(runID string, n segment.Narration) Segment {
	return Segment{
		RunID:    runID,
		Index:    n.Index,
		State:    SegmentPlanned,
		Text:     n.Text,
		MinWords: n.MinWords,
		MaxWords: n.MaxWords,
	}
}

// RecordRendered copies a render result into the row and marks it rendered.
func (s *Segment) RecordRendered(r segment.Rendered) {
	s.State = SegmentRendered
	s.Prompt = r.Prompt
	s.ImagePath = r.ImageRef.Path()
	s.AudioPath = r.AudioRef.Path()
	s.Duration = r.Duration
	s.FailedStage = ""
	s.ErrorMessage = ""
}
