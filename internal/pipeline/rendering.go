package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"reelforge/internal/logging"
	"reelforge/internal/runstore"
	"reelforge/internal/segment"
	"reelforge/internal/services"
)

type taskKind int

const (
	taskStarted taskKind = iota
	taskRetrying
	taskDone
)

// taskMsg is what a segment worker reports back to the orchestrator
// goroutine, which owns all run state.
type taskMsg struct {
	kind     taskKind
	index    int
	attempt  int
	rendered segment.Rendered
	err      error
}

func (o *Orchestrator) render(ctx context.Context, run *Run, in *runInput, sum *Summary, logger *slog.Logger) ([]segment.Rendered, *failure) {
	stage := string(StateRendering)
	total := len(in.narrations)
	sum.SegmentCount = total

	rendered := make(map[int]segment.Rendered, total)
	byIndex := make(map[int]segment.Narration, total)
	pending := make([]segment.Narration, 0, total)
	for _, n := range in.narrations {
		byIndex[n.Index] = n
		if r, ok := in.reused[n.Index]; ok {
			rendered[n.Index] = r
			sum.Reused++
			run.setSegment(n.Index, func(s *SegmentStatus) {
				s.State = SegmentRendered
				s.Duration = r.Duration
				s.Reused = true
			})
			run.emit(stage, n.Index, string(SegmentRendered), "reused")
			continue
		}
		run.setSegment(n.Index, func(s *SegmentStatus) { s.State = SegmentPending })
		pending = append(pending, n)
	}
	if sum.Reused > 0 {
		logger.Info("reusing rendered segments",
			logging.String(logging.FieldEventType, "segments_reused"),
			logging.Int("reused", sum.Reused),
			logging.Int("pending", len(pending)),
		)
	}

	var (
		failures []SegmentFailure
		fatal    *failure
	)
	if len(pending) > 0 {
		failures, fatal = o.dispatch(ctx, run, in, pending, byIndex, rendered, logger)
	}
	sum.Failures = failures
	if fatal != nil {
		return nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return nil, &failure{stage: stage, index: -1, err: err, cancelled: true}
	}
	if len(rendered) == 0 {
		index := -1
		if len(failures) > 0 {
			index = failures[0].Index
		}
		return nil, &failure{stage: stage, index: index,
			err: services.Wrap(services.ErrSegmentRender, stage, "render", "no segment rendered", nil)}
	}

	if len(failures) > 0 {
		sum.Tolerated = true
		for _, f := range failures {
			run.setSegment(f.Index, func(s *SegmentStatus) { s.State = SegmentSkipped })
			run.emit(stage, f.Index, string(SegmentSkipped), f.Message)
			row := runstore.PlannedSegment(run.id, byIndex[f.Index])
			row.State = runstore.SegmentSkipped
			row.FailedStage = f.Stage
			row.ErrorMessage = f.Message
			o.archiveSegment(ctx, row)
		}
		logging.WarnWithContext(logger, "segments skipped within tolerance", "segments_skipped",
			logging.Int("skipped", len(failures)),
			logging.Int("tolerance", o.opts.FailureTolerance),
			logging.String(logging.FieldImpact, "video is shorter than planned"),
		)
	}

	survivors := make([]segment.Rendered, 0, len(rendered))
	for _, r := range rendered {
		survivors = append(survivors, r)
	}
	survivors = segment.Renumber(survivors)
	sum.Rendered = len(survivors)
	return survivors, nil
}

// dispatch renders pending segments with bounded concurrency. It returns once
// every started worker has reported back.
func (o *Orchestrator) dispatch(
	ctx context.Context,
	run *Run,
	in *runInput,
	pending []segment.Narration,
	byIndex map[int]segment.Narration,
	rendered map[int]segment.Rendered,
	logger *slog.Logger,
) ([]SegmentFailure, *failure) {
	stage := string(StateRendering)
	renderCtx, stop := context.WithCancel(ctx)
	defer stop()

	sem := semaphore.NewWeighted(int64(o.opts.Concurrency))
	msgs := make(chan taskMsg, len(pending)*(o.opts.SegmentAttempts+1))
	var wg sync.WaitGroup
	go func() {
		defer func() {
			wg.Wait()
			close(msgs)
		}()
		for _, n := range pending {
			if err := sem.Acquire(renderCtx, 1); err != nil {
				return
			}
			if renderCtx.Err() != nil {
				sem.Release(1)
				return
			}
			wg.Add(1)
			go func(n segment.Narration) {
				defer wg.Done()
				defer sem.Release(1)
				o.renderTask(renderCtx, run.id, in, n, msgs)
			}(n)
		}
	}()

	var (
		failures []SegmentFailure
		fatal    *failure
	)
	for m := range msgs {
		switch m.kind {
		case taskStarted:
			run.setSegment(m.index, func(s *SegmentStatus) {
				s.State = SegmentRendering
				s.Attempts = m.attempt
			})
			run.emit(stage, m.index, string(SegmentRendering), "")

		case taskRetrying:
			run.setSegment(m.index, func(s *SegmentStatus) {
				s.State = SegmentRetrying
				s.Attempts = m.attempt
				s.Error = m.err.Error()
			})
			run.emit(stage, m.index, string(SegmentRetrying), m.err.Error())
			logger.Warn("segment attempt failed; retrying",
				logging.String(logging.FieldEventType, "segment_retry"),
				logging.Int(logging.FieldSegmentIndex, m.index),
				logging.Int("attempt", m.attempt),
				logging.String("failure_kind", services.FailureKind(m.err)),
				logging.Error(m.err),
			)

		case taskDone:
			if m.err == nil {
				rendered[m.index] = m.rendered
				run.setSegment(m.index, func(s *SegmentStatus) {
					s.State = SegmentRendered
					s.Attempts = m.attempt
					s.Duration = m.rendered.Duration
					s.Error = ""
				})
				run.emit(stage, m.index, string(SegmentRendered), "")
				o.archiveSegment(ctx, renderedRow(run.id, byIndex[m.index], m.rendered, m.attempt))
				continue
			}
			if fatal != nil || ctx.Err() != nil {
				run.setSegment(m.index, func(s *SegmentStatus) { s.State = SegmentCancelled })
				continue
			}

			sf := segmentFailure(m.index, m.err)
			failures = append(failures, sf)
			run.setSegment(m.index, func(s *SegmentStatus) {
				s.State = SegmentFailed
				s.Stage = sf.Stage
				s.Attempts = m.attempt
				s.Error = sf.Message
			})
			run.emit(stage, m.index, string(SegmentFailed), sf.Message)
			row := runstore.PlannedSegment(run.id, byIndex[m.index])
			row.State = runstore.SegmentFailed
			row.FailedStage = sf.Stage
			row.ErrorMessage = sf.Message
			row.Attempts = m.attempt
			o.archiveSegment(ctx, row)
			logging.WarnWithContext(logger, "segment failed", "segment_failed",
				logging.Int(logging.FieldSegmentIndex, m.index),
				logging.String(logging.FieldStage, sf.Stage),
				logging.Int("attempts", m.attempt),
				logging.String("failure_kind", services.FailureKind(m.err)),
				logging.Error(m.err),
			)

			switch {
			case errors.Is(m.err, services.ErrConfiguration):
				fatal = &failure{stage: stage, index: m.index, err: m.err}
				stop()
			case len(failures) > o.opts.FailureTolerance:
				fatal = &failure{stage: stage, index: m.index,
					err: fmt.Errorf("%d segment(s) failed, tolerance %d: %w", len(failures), o.opts.FailureTolerance, m.err)}
				stop()
			}
		}
	}
	return failures, fatal
}

// renderTask renders one segment, retrying transient failures. Each attempt
// runs under its own deadline.
func (o *Orchestrator) renderTask(ctx context.Context, runID string, in *runInput, n segment.Narration, out chan<- taskMsg) {
	var err error
	attempt := 0
	for attempt < o.opts.SegmentAttempts {
		attempt++
		if attempt == 1 {
			out <- taskMsg{kind: taskStarted, index: n.Index, attempt: attempt}
		} else {
			out <- taskMsg{kind: taskRetrying, index: n.Index, attempt: attempt, err: err}
		}

		attemptCtx, cancel := context.WithTimeout(services.WithRequestID(ctx, uuid.NewString()), o.opts.SegmentTimeout)
		r, rerr := in.renderer.Render(attemptCtx, runID, n, in.style)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		if rerr == nil {
			out <- taskMsg{kind: taskDone, index: n.Index, attempt: attempt, rendered: r}
			return
		}
		err = rerr
		if timedOut && ctx.Err() == nil {
			err = services.Wrap(services.ErrTimeout, string(StateRendering), "segment",
				fmt.Sprintf("segment %d exceeded %s", n.Index, o.opts.SegmentTimeout), rerr)
		}
		if ctx.Err() != nil || !services.Retryable(err) {
			break
		}
	}
	out <- taskMsg{kind: taskDone, index: n.Index, attempt: attempt, err: err}
}

func segmentFailure(index int, err error) SegmentFailure {
	stage := "render"
	var re *segment.RenderError
	switch {
	case errors.As(err, &re):
		stage = string(re.Stage)
	case errors.Is(err, services.ErrTimeout):
		stage = "timeout"
	}
	return SegmentFailure{Index: index, Stage: stage, Message: err.Error()}
}
