package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/layout"
	"reelforge/internal/logging"
	"reelforge/internal/planner"
	"reelforge/internal/runstore"
	"reelforge/internal/segment"
	"reelforge/internal/services"
	"reelforge/internal/textutil"
	"reelforge/internal/timeline"
)

// Planner produces the narration segments of a run.
type Planner interface {
	Plan(ctx context.Context, src planner.Source, opts planner.Options) ([]segment.Narration, error)
}

// SegmentRenderer resolves styles and renders single segments.
type SegmentRenderer interface {
	ResolveStyle(ctx context.Context, style segment.Style) (segment.StyleContext, error)
	Render(ctx context.Context, runID string, n segment.Narration, style segment.StyleContext) (segment.Rendered, error)
}

// RendererFactory returns the renderer speaking with voice. An empty voice
// selects the configured default.
type RendererFactory func(voice string) SegmentRenderer

// Assembler produces the final video from a timeline.
type Assembler interface {
	Assemble(ctx context.Context, tl timeline.Timeline, outputPath string) (timeline.Artifact, error)
}

// Templates resolves template ids.
type Templates interface {
	Get(id string) (layout.Template, error)
}

// TitleFunc derives a title from the source.
type TitleFunc func(ctx context.Context, src planner.Source) (string, error)

// Recorder archives runs and segments.
type Recorder interface {
	Create(ctx context.Context, run *runstore.Run) error
	Update(ctx context.Context, run *runstore.Run) error
	Get(ctx context.Context, id string) (*runstore.Run, error)
	Segments(ctx context.Context, runID string) ([]runstore.Segment, error)
	SaveSegment(ctx context.Context, seg runstore.Segment) error
	ReplaceSegments(ctx context.Context, runID string, segs []runstore.Segment) error
}

// Locker serializes drivers of the same run across processes.
type Locker interface {
	LockRun(runID string) (func() error, error)
}

// Notifier is told about terminal outcomes.
type Notifier interface {
	NotifyRunCompleted(ctx context.Context, title, output string, duration time.Duration, segments int) error
	NotifyRunFailed(ctx context.Context, title, stage, message string) error
}

// Deps wires the orchestrator to its collaborators. Planner, Renderers,
// Assembler, and Templates are required.
type Deps struct {
	Planner   Planner
	Renderers RendererFactory
	Assembler Assembler
	Templates Templates
	Title     TitleFunc
	Recorder  Recorder
	Locker    Locker
	Notifier  Notifier
	Logger    *slog.Logger
	// NewID overrides run id generation.
	NewID func() string
}

// Orchestrator starts and resumes runs.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New validates deps and returns an orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	var missing []string
	if deps.Planner == nil {
		missing = append(missing, "planner")
	}
	if deps.Renderers == nil {
		missing = append(missing, "renderer")
	}
	if deps.Assembler == nil {
		missing = append(missing, "assembler")
	}
	if deps.Templates == nil {
		missing = append(missing, "templates")
	}
	if len(missing) > 0 {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new",
			"missing "+strings.Join(missing, ", "), nil)
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: logging.NewComponentLogger(deps.Logger, "pipeline"),
	}, nil
}

// runInput carries everything the drive loop needs for one run. Resumed runs
// arrive with narrations, style, title, and reusable renders already filled.
type runInput struct {
	req        Request
	template   layout.Template
	renderer   SegmentRenderer
	record     *runstore.Run
	narrations []segment.Narration
	style      segment.StyleContext
	title      string
	reused     map[int]segment.Rendered
}

// failure is how a stage reports a run-ending problem.
type failure struct {
	stage     string
	index     int
	err       error
	cancelled bool
}

// Start validates req, archives a new run, and begins driving it in the
// background.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Run, error) {
	req, tpl, err := o.prepare(req)
	if err != nil {
		return nil, err
	}
	id := o.deps.NewID()
	unlock, err := o.lock(id)
	if err != nil {
		return nil, err
	}

	var record *runstore.Run
	if o.deps.Recorder != nil {
		payload, err := json.Marshal(req)
		if err != nil {
			_ = unlock()
			return nil, fmt.Errorf("encode request: %w", err)
		}
		record = &runstore.Run{
			ID:          id,
			Title:       req.Title,
			State:       runstore.StatePlanning,
			SourceKind:  string(req.Source.Kind),
			SourceText:  req.Source.Text,
			RequestJSON: string(payload),
			TemplateID:  tpl.ID,
			FailedIndex: -1,
		}
		if err := o.deps.Recorder.Create(ctx, record); err != nil {
			_ = unlock()
			return nil, fmt.Errorf("archive run: %w", err)
		}
	}

	in := &runInput{
		req:      req,
		template: tpl,
		renderer: o.deps.Renderers(req.Voice),
		record:   record,
	}
	return o.launch(ctx, id, in, unlock), nil
}

// Resume picks up an unfinished run from the archive. Segments recorded as
// rendered whose files still exist are reused; everything else is rendered
// again before assembly.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*Run, error) {
	if o.deps.Recorder == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "resume", "no run store configured", nil)
	}
	record, err := o.deps.Recorder.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if record == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "resume", "run "+runID+" not found", nil)
	}
	if !record.Resumable() {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "resume", "run "+runID+" already completed", nil)
	}

	var req Request
	if err := json.Unmarshal([]byte(record.RequestJSON), &req); err != nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "resume", "stored request is unreadable", err)
	}
	if req.Template == "" {
		req.Template = record.TemplateID
	}
	req, tpl, err := o.prepare(req)
	if err != nil {
		return nil, err
	}
	unlock, err := o.lock(record.ID)
	if err != nil {
		return nil, err
	}
	rows, err := o.deps.Recorder.Segments(ctx, record.ID)
	if err != nil {
		_ = unlock()
		return nil, fmt.Errorf("load segments: %w", err)
	}

	in := &runInput{
		req:      req,
		template: tpl,
		renderer: o.deps.Renderers(req.Voice),
		record:   record,
		title:    record.Title,
		style:    segment.StyleContext{Prefix: record.StylePrefix, Negative: record.StyleNegative},
	}
	if len(rows) > 0 {
		in.reused = make(map[int]segment.Rendered)
		for _, row := range rows {
			in.narrations = append(in.narrations, row.Narration())
			if row.State != runstore.SegmentRendered {
				continue
			}
			if r := row.Rendered(); r.Reusable() {
				in.reused[row.Index] = r
			}
		}
		if err := segment.ValidateSequence(in.narrations); err != nil || in.style.Prefix == "" {
			o.logger.Warn("stored plan unusable; planning again",
				logging.String(logging.FieldRunID, record.ID),
				logging.String(logging.FieldEventType, "resume_replan"),
			)
			in.narrations, in.reused = nil, nil
		}
	}
	return o.launch(ctx, record.ID, in, unlock), nil
}

func (o *Orchestrator) prepare(req Request) (Request, layout.Template, error) {
	req.Source.Text = strings.TrimSpace(req.Source.Text)
	if req.Source.Text == "" {
		return req, layout.Template{}, services.Wrap(services.ErrValidation, "pipeline", "request", "source text is empty", nil)
	}
	kind, err := planner.ParseSourceKind(string(req.Source.Kind))
	if err != nil {
		return req, layout.Template{}, services.Wrap(services.ErrValidation, "pipeline", "request", "", err)
	}
	req.Source.Kind = kind
	if req.SegmentCount <= 0 && kind != planner.SourceScript {
		req.SegmentCount = o.opts.SegmentCount
	}
	if req.MinWords <= 0 {
		req.MinWords = o.opts.MinWords
	}
	if req.MaxWords <= 0 {
		req.MaxWords = o.opts.MaxWords
	}
	if req.MaxWords > 0 && req.MinWords > req.MaxWords {
		return req, layout.Template{}, services.Wrap(services.ErrValidation, "pipeline", "request",
			fmt.Sprintf("min words %d exceeds max words %d", req.MinWords, req.MaxWords), nil)
	}
	if strings.TrimSpace(req.Template) == "" {
		req.Template = o.opts.Template
	}
	if strings.TrimSpace(req.BGMMode) == "" {
		req.BGMMode = o.opts.BGMMode
	}
	tpl, err := o.deps.Templates.Get(req.Template)
	if err != nil {
		return req, layout.Template{}, services.Wrap(services.ErrValidation, "pipeline", "request", "", err)
	}
	return req, tpl, nil
}

func (o *Orchestrator) lock(runID string) (func() error, error) {
	if o.deps.Locker == nil {
		return func() error { return nil }, nil
	}
	unlock, err := o.deps.Locker.LockRun(runID)
	if err != nil {
		return nil, fmt.Errorf("lock run %s: %w", runID, err)
	}
	return unlock, nil
}

func (o *Orchestrator) launch(ctx context.Context, id string, in *runInput, unlock func() error) *Run {
	runCtx, cancel := context.WithCancel(ctx)
	run := newRun(id, o.opts.EventsBuffer, cancel)
	go o.drive(runCtx, run, in, unlock)
	return run
}

func (o *Orchestrator) drive(ctx context.Context, run *Run, in *runInput, unlock func() error) {
	defer run.cancel()
	ctx = services.WithRunID(ctx, run.id)
	logger := logging.WithContext(ctx, o.logger)

	sum := Summary{
		RunID:       run.id,
		StartedAt:   run.Snapshot().StartedAt,
		FailedIndex: -1,
	}
	artifact, f := o.execute(ctx, run, in, &sum, logger)

	final := StateCompleted
	var runErr error
	if f != nil {
		final = StateFailed
		if f.cancelled && run.currentState() != StateAssembling {
			final = StateCancelled
		}
		runErr = f.err
		if runErr == nil {
			runErr = context.Canceled
		}
		sum.FailedStage = f.stage
		sum.FailedIndex = f.index
		sum.Error = runErr.Error()
	}
	sum.Title = in.title
	sum.State = final
	sum.FinishedAt = time.Now().UTC()
	if artifact != nil {
		sum.Artifact = artifact
		sum.Output = artifact.Path
		sum.TotalDuration = artifact.Duration
	}

	if rec := in.record; rec != nil {
		rec.Title = in.title
		rec.SegmentCount = sum.SegmentCount
		rec.RenderedCount = sum.Rendered
		rec.OutputPath = sum.Output
		rec.TotalDuration = sum.TotalDuration
		rec.FailedStage = sum.FailedStage
		rec.FailedIndex = sum.FailedIndex
		rec.ErrorMessage = sum.Error
		finished := sum.FinishedAt
		rec.FinishedAt = &finished
	}
	run.update(func(p *PipelineRun) { p.Cancelled = final == StateCancelled })
	if err := o.moveTo(ctx, run, in, final, sum.Error); err != nil {
		logger.Error("terminal transition rejected", logging.Error(err))
	}

	switch final {
	case StateCompleted:
		logger.Info("run completed",
			logging.String(logging.FieldEventType, "run_completed"),
			logging.String("title", sum.Title),
			logging.String("output", sum.Output),
			logging.Int("segments", sum.Rendered),
			logging.Int("reused", sum.Reused),
			logging.Int("skipped", len(sum.Failures)),
			logging.Duration("duration", sum.TotalDuration),
		)
	case StateCancelled:
		logger.Info("run cancelled",
			logging.String(logging.FieldEventType, "run_cancelled"),
			logging.String(logging.FieldStage, sum.FailedStage),
		)
	default:
		logging.ErrorWithContext(logger, "run failed", "run_failed",
			logging.String(logging.FieldStage, sum.FailedStage),
			logging.Int(logging.FieldSegmentIndex, sum.FailedIndex),
			logging.String("failure_kind", services.FailureKind(runErr)),
			logging.String(logging.FieldErrorHint, failureHint(runErr)),
			logging.Error(runErr),
		)
	}
	o.notify(ctx, sum)

	if unlock != nil {
		if err := unlock(); err != nil {
			logger.Warn("release run lock failed", logging.Error(err))
		}
	}
	run.finish(sum, runErr)
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, in *runInput, sum *Summary, logger *slog.Logger) (*timeline.Artifact, *failure) {
	if len(in.narrations) == 0 {
		if err := o.moveTo(ctx, run, in, StatePlanning, ""); err != nil {
			return nil, &failure{stage: string(StatePlanning), index: -1, err: err}
		}
		if f := o.plan(ctx, run, in, logger); f != nil {
			return nil, f
		}
	} else {
		run.update(func(p *PipelineRun) { p.Title = in.title })
	}
	if err := ctx.Err(); err != nil {
		return nil, &failure{stage: string(StatePlanning), index: -1, err: err, cancelled: true}
	}

	if err := o.moveTo(ctx, run, in, StateRendering, fmt.Sprintf("%d segments", len(in.narrations))); err != nil {
		return nil, &failure{stage: string(StateRendering), index: -1, err: err}
	}
	rendered, f := o.render(ctx, run, in, sum, logger)
	if f != nil {
		return nil, f
	}

	if err := o.moveTo(ctx, run, in, StateAssembling, fmt.Sprintf("%d segments", len(rendered))); err != nil {
		return nil, &failure{stage: string(StateAssembling), index: -1, err: err}
	}
	return o.assemble(ctx, run, in, rendered)
}

// moveTo applies a run transition, archives it, and emits the run event.
func (o *Orchestrator) moveTo(ctx context.Context, run *Run, in *runInput, to State, message string) error {
	from := run.currentState()
	if err := transition(from, to); err != nil {
		return err
	}
	run.update(func(p *PipelineRun) { p.State = to })
	if rec := in.record; rec != nil {
		rec.State = string(to)
		if from == "" {
			rec.FailedStage, rec.FailedIndex, rec.ErrorMessage, rec.FinishedAt = "", -1, "", nil
		}
		o.archive(ctx, rec)
	}
	run.emit("run", -1, string(to), message)
	logging.WithContext(ctx, o.logger).Debug("run state changed",
		logging.String(logging.FieldEventType, "run_transition"),
		logging.String("from", string(from)),
		logging.String("to", string(to)),
	)
	return nil
}

func (o *Orchestrator) archive(ctx context.Context, rec *runstore.Run) {
	if o.deps.Recorder == nil || rec == nil {
		return
	}
	if err := o.deps.Recorder.Update(context.WithoutCancel(ctx), rec); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "archive run failed", "run_archive_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run history may be stale; resume may redo work"),
		)
	}
}

func (o *Orchestrator) archiveSegment(ctx context.Context, row runstore.Segment) {
	if o.deps.Recorder == nil {
		return
	}
	if err := o.deps.Recorder.SaveSegment(context.WithoutCancel(ctx), row); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "archive segment failed", "segment_archive_failed",
			logging.Int(logging.FieldSegmentIndex, row.Index),
			logging.Error(err),
			logging.String(logging.FieldImpact, "resume will render this segment again"),
		)
	}
}

func (o *Orchestrator) notify(ctx context.Context, sum Summary) {
	if o.deps.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	var err error
	switch sum.State {
	case StateCompleted:
		err = o.deps.Notifier.NotifyRunCompleted(nctx, sum.Title, sum.Output, sum.TotalDuration, sum.Rendered)
	case StateFailed:
		err = o.deps.Notifier.NotifyRunFailed(nctx, sum.Title, sum.FailedStage, sum.Error)
	}
	if err != nil {
		o.logger.Warn("notification failed",
			logging.String(logging.FieldRunID, sum.RunID),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.Error(err),
		)
	}
}

func (o *Orchestrator) outputPath(runID, title string) string {
	name := textutil.SanitizeFileName(title)
	if name == "" {
		name = "video"
	}
	return filepath.Join(o.opts.OutputDir, runID, name+".mp4")
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrConfiguration):
		return "check backend settings and credentials in config.toml"
	case errors.Is(err, services.ErrPlanning):
		return "adjust segment count or word bounds, or enable planning.relaxed_retry"
	case errors.Is(err, services.ErrAssembly):
		return "check the ffmpeg binary and the template settings"
	case errors.Is(err, services.ErrSegmentRender):
		return "raise pipeline.failure_tolerance or resume the run once the backend recovers"
	default:
		return "inspect the run with 'reelforge runs show'"
	}
}
