package pipeline

import (
	"strings"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/planner"
	"reelforge/internal/segment"
	"reelforge/internal/timeline"
)

// Request is everything a caller supplies to start a run.
type Request struct {
	Source       planner.Source `json:"source"`
	Style        segment.Style  `json:"style"`
	Voice        string         `json:"voice,omitempty"`
	BGM          string         `json:"bgm,omitempty"`
	BGMMode      string         `json:"bgm_mode,omitempty"`
	Template     string         `json:"template,omitempty"`
	SegmentCount int            `json:"segment_count,omitempty"`
	MinWords     int            `json:"min_words,omitempty"`
	MaxWords     int            `json:"max_words,omitempty"`
	Title        string         `json:"title,omitempty"`
}

// Options holds run scheduling settings shared by every run.
type Options struct {
	SegmentCount     int
	MinWords         int
	MaxWords         int
	CountTolerance   int
	RelaxedRetry     bool
	Concurrency      int
	FailureTolerance int
	SegmentAttempts  int
	SegmentTimeout   time.Duration
	EventsBuffer     int
	Template         string
	BGMMode          string
	OutputDir        string
}

// OptionsFromConfig maps the [pipeline], [video], and [paths] sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SegmentCount:     cfg.Pipeline.SegmentCount,
		MinWords:         cfg.Pipeline.MinWords,
		MaxWords:         cfg.Pipeline.MaxWords,
		CountTolerance:   cfg.Pipeline.CountTolerance,
		RelaxedRetry:     cfg.Pipeline.RelaxedRetry,
		Concurrency:      cfg.Pipeline.Concurrency,
		FailureTolerance: cfg.Pipeline.FailureTolerance,
		SegmentAttempts:  cfg.Pipeline.SegmentAttempts,
		SegmentTimeout:   time.Duration(cfg.Pipeline.SegmentTimeoutSeconds) * time.Second,
		EventsBuffer:     cfg.Pipeline.EventsBuffer,
		Template:         cfg.Video.Template,
		BGMMode:          cfg.Video.BGMMode,
		OutputDir:        cfg.Paths.OutputDir,
	}
}

func (o Options) withDefaults() Options {
	if o.SegmentCount <= 0 {
		o.SegmentCount = 6
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	o.Concurrency = min(o.Concurrency, 16)
	if o.FailureTolerance < 0 {
		o.FailureTolerance = 0
	}
	if o.SegmentAttempts <= 0 {
		o.SegmentAttempts = 2
	}
	if o.SegmentTimeout <= 0 {
		o.SegmentTimeout = 300 * time.Second
	}
	if o.EventsBuffer <= 0 {
		o.EventsBuffer = 64
	}
	if strings.TrimSpace(o.Template) == "" {
		o.Template = "1080x1920/default"
	}
	if o.OutputDir == "" {
		o.OutputDir = "."
	}
	return o
}

// Event reports progress. SegmentIndex is -1 for run-scoped events.
type Event struct {
	RunID        string    `json:"run_id"`
	Seq          int64     `json:"seq"`
	Time         time.Time `json:"time"`
	Stage        string    `json:"stage"`
	SegmentIndex int       `json:"segment_index"`
	State        string    `json:"state"`
	Message      string    `json:"message,omitempty"`
}

// SegmentFailure describes one segment that failed permanently.
type SegmentFailure struct {
	Index   int    `json:"index"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Summary is the outcome of a run.
type Summary struct {
	RunID         string             `json:"run_id"`
	Title         string             `json:"title"`
	State         State              `json:"state"`
	SegmentCount  int                `json:"segment_count"`
	Rendered      int                `json:"rendered"`
	Reused        int                `json:"reused,omitempty"`
	TotalDuration time.Duration      `json:"total_duration"`
	Output        string             `json:"output,omitempty"`
	Artifact      *timeline.Artifact `json:"artifact,omitempty"`
	Failures      []SegmentFailure   `json:"failures,omitempty"`
	Tolerated     bool               `json:"tolerated,omitempty"`
	FailedStage   string             `json:"failed_stage,omitempty"`
	FailedIndex   int                `json:"failed_index"`
	Error         string             `json:"error,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
}

// SegmentStatus is the orchestrator's view of one segment.
type SegmentStatus struct {
	Index    int           `json:"index"`
	State    SegmentState  `json:"state"`
	Stage    string        `json:"stage,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
	Reused   bool          `json:"reused,omitempty"`
}

// PipelineRun is the mutable record of a run. Only the orchestrator goroutine
// writes it; Run.Snapshot hands out copies.
type PipelineRun struct {
	RunID     string                `json:"run_id"`
	Title     string                `json:"title"`
	Segments  map[int]SegmentStatus `json:"segments"`
	StartedAt time.Time             `json:"started_at"`
	Cancelled bool                  `json:"cancelled"`
	State     State                 `json:"state"`
}

func (p PipelineRun) clone() PipelineRun {
	out := p
	out.Segments = make(map[int]SegmentStatus, len(p.Segments))
	for k, v := range p.Segments {
		out.Segments[k] = v
	}
	return out
}
