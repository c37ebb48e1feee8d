package api

import (
	"time"

	"reelforge/internal/pipeline"
	"reelforge/internal/runstore"
)

// RunView is the transport representation of an archived run.
type RunView struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	State         string        `json:"state"`
	Source        string        `json:"source"`
	Template      string        `json:"template"`
	Segments      int           `json:"segments"`
	Rendered      int           `json:"rendered"`
	TotalDuration time.Duration `json:"total_duration"`
	Output        string        `json:"output,omitempty"`
	FailedStage   string        `json:"failed_stage,omitempty"`
	FailedIndex   int           `json:"failed_index"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}

// FromRun converts an archived run.
func FromRun(r *runstore.Run) RunView {
	return RunView{
		ID:            r.ID,
		Title:         r.Title,
		State:         r.State,
		Source:        r.SourceKind,
		Template:      r.TemplateID,
		Segments:      r.SegmentCount,
		Rendered:      r.RenderedCount,
		TotalDuration: r.TotalDuration,
		Output:        r.OutputPath,
		FailedStage:   r.FailedStage,
		FailedIndex:   r.FailedIndex,
		Error:         r.ErrorMessage,
		CreatedAt:     r.CreatedAt,
		FinishedAt:    r.FinishedAt,
	}
}

// RunListResponse wraps GET /api/runs.
type RunListResponse struct {
	Runs []RunView `json:"runs"`
}

// RunResponse wraps GET /api/runs/{id}. Live is set only while this server
// drives the run.
type RunResponse struct {
	Run  *RunView              `json:"run,omitempty"`
	Live *pipeline.PipelineRun `json:"live,omitempty"`
}

// AcceptedResponse acknowledges an asynchronous action on a run.
type AcceptedResponse struct {
	RunID string         `json:"run_id"`
	State pipeline.State `json:"state,omitempty"`
}

// HealthResponse answers /health and /version.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Service string `json:"service"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
