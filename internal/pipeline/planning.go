package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"reelforge/internal/logging"
	"reelforge/internal/planner"
	"reelforge/internal/runstore"
	"reelforge/internal/segment"
)

func (o *Orchestrator) plan(ctx context.Context, run *Run, in *runInput, logger *slog.Logger) *failure {
	stage := string(StatePlanning)
	opts := planner.Options{
		SegmentCount:   in.req.SegmentCount,
		MinWords:       in.req.MinWords,
		MaxWords:       in.req.MaxWords,
		CountTolerance: o.opts.CountTolerance,
	}
	narrations, err := o.deps.Planner.Plan(ctx, in.req.Source, opts)
	if err != nil && o.opts.RelaxedRetry && planner.IsPlanningError(err) && ctx.Err() == nil {
		logging.WarnWithContext(logger, "planning failed; retrying with relaxed constraints", "planning_relaxed_retry",
			logging.Error(err),
			logging.String(logging.FieldImpact, "segment count may differ from the request"),
		)
		run.emit(stage, -1, string(SegmentRetrying), "relaxing segment count")
		opts.Relaxed = true
		narrations, err = o.deps.Planner.Plan(ctx, in.req.Source, opts)
	}
	if err != nil {
		return stageFailure(ctx, stage, -1, err)
	}

	style, err := in.renderer.ResolveStyle(ctx, in.req.Style)
	if err != nil {
		return stageFailure(ctx, stage, -1, fmt.Errorf("resolve style: %w", err))
	}

	title := in.req.Title
	if title == "" {
		title = o.title(ctx, in.req.Source, logger)
	}

	in.narrations = narrations
	in.style = style
	in.title = title
	run.update(func(p *PipelineRun) {
		p.Title = title
		for _, n := range narrations {
			p.Segments[n.Index] = SegmentStatus{Index: n.Index, State: SegmentPending}
		}
	})

	if rec := in.record; rec != nil && o.deps.Recorder != nil {
		rec.Title = title
		rec.StylePrefix = style.Prefix
		rec.StyleNegative = style.Negative
		rec.SegmentCount = len(narrations)
		o.archive(ctx, rec)
		rows := make([]runstore.Segment, len(narrations))
		for i, n := range narrations {
			rows[i] = runstore.PlannedSegment(run.id, n)
		}
		if err := o.deps.Recorder.ReplaceSegments(context.WithoutCancel(ctx), run.id, rows); err != nil {
			logging.WarnWithContext(logger, "archive plan failed", "plan_archive_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "resume will plan this run again"),
			)
		}
	}
	run.emit(stage, -1, "planned", fmt.Sprintf("%d segments", len(narrations)))
	return nil
}

// title never fails: a broken title backend falls back to the source text.
func (o *Orchestrator) title(ctx context.Context, src planner.Source, logger *slog.Logger) string {
	if o.deps.Title != nil {
		title, err := o.deps.Title(ctx, src)
		if err == nil && title != "" {
			return title
		}
		if err != nil {
			logging.WarnWithContext(logger, "title generation failed", "title_fallback",
				logging.Error(err),
				logging.String(logging.FieldImpact, "title taken from the source text"),
			)
		}
	}
	title, err := planner.GenerateTitle(ctx, nil, src, planner.TitleDirect, 0)
	if err != nil {
		return ""
	}
	return title
}

func stageFailure(ctx context.Context, stage string, index int, err error) *failure {
	if ctx.Err() != nil {
		return &failure{stage: stage, index: index, err: ctx.Err(), cancelled: true}
	}
	return &failure{stage: stage, index: index, err: err}
}

func renderedRow(runID string, n segment.Narration, r segment.Rendered, attempts int) runstore.Segment {
	row := runstore.PlannedSegment(runID, n)
	row.RecordRendered(r)
	row.Attempts = attempts
	return row
}
