package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelforge/internal/layout"
	"reelforge/internal/media"
	"reelforge/internal/planner"
	"reelforge/internal/runstore"
	"reelforge/internal/segment"
	"reelforge/internal/services"
	"reelforge/internal/testsupport"
	"reelforge/internal/timeline"
)

type stubPlanner struct {
	mu    sync.Mutex
	calls []planner.Options
	plan  func(call int, opts planner.Options) ([]segment.Narration, error)
}

func (p *stubPlanner) Plan(_ context.Context, _ planner.Source, opts planner.Options) ([]segment.Narration, error) {
	p.mu.Lock()
	p.calls = append(p.calls, opts)
	call := len(p.calls)
	p.mu.Unlock()
	return p.plan(call, opts)
}

func fixedPlan(texts ...string) *stubPlanner {
	return &stubPlanner{plan: func(int, planner.Options) ([]segment.Narration, error) {
		out := make([]segment.Narration, len(texts))
		for i, text := range texts {
			out[i] = segment.Narration{Index: i, Text: text}
		}
		return out, nil
	}}
}

type stubRenderer struct {
	mu     sync.Mutex
	calls  map[int]int
	render func(ctx context.Context, n segment.Narration, attempt int) (segment.Rendered, error)
}

func (r *stubRenderer) ResolveStyle(context.Context, segment.Style) (segment.StyleContext, error) {
	return segment.StyleContext{Prefix: "watercolor", Negative: "blurry"}, nil
}

func (r *stubRenderer) Render(ctx context.Context, _ string, n segment.Narration, _ segment.StyleContext) (segment.Rendered, error) {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[int]int)
	}
	r.calls[n.Index]++
	attempt := r.calls[n.Index]
	r.mu.Unlock()
	if r.render != nil {
		return r.render(ctx, n, attempt)
	}
	return renderedFor(n), nil
}

func (r *stubRenderer) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func (r *stubRenderer) callsFor(index int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[index]
}

func renderedFor(n segment.Narration) segment.Rendered {
	return segment.Rendered{
		Index:    n.Index,
		ImageRef: media.Locator(fmt.Sprintf("/media/%d.png", n.Index)),
		AudioRef: media.Locator(fmt.Sprintf("/media/%d.mp3", n.Index)),
		Duration: time.Duration(n.Index+1) * time.Second,
		Caption:  n.Text,
	}
}

type stubAssembler struct {
	mu    sync.Mutex
	calls int
	got   timeline.Timeline
	out   string
	err   error
}

func (a *stubAssembler) Assemble(_ context.Context, tl timeline.Timeline, outputPath string) (timeline.Artifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.got = tl
	a.out = outputPath
	if a.err != nil {
		return timeline.Artifact{}, a.err
	}
	return timeline.Artifact{Path: outputPath, Duration: tl.Total, SegmentCount: len(tl.Entries)}, nil
}

func (a *stubAssembler) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func newTestOrchestrator(t *testing.T, p Planner, r SegmentRenderer, a Assembler, store *runstore.Store, opts Options) *Orchestrator {
	t.Helper()
	templates, err := layout.NewRegistry("")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}
	deps := Deps{
		Planner:   p,
		Renderers: func(string) SegmentRenderer { return r },
		Assembler: a,
		Templates: templates,
	}
	if store != nil {
		deps.Recorder = store
	}
	orch, err := New(deps, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch
}

func topicRequest() Request {
	return Request{Source: planner.Source{Kind: planner.SourceTopic, Text: "the history of tea"}, Title: "Tea Time"}
}

func waitRun(t *testing.T, run *Run) (Summary, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sum, err := run.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		t.Fatalf("run %s did not finish", run.ID())
	}
	return sum, err
}

func drain(run *Run) []Event {
	var events []Event
	for ev := range run.Events() {
		events = append(events, ev)
	}
	return events
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{"", StatePlanning, true},
		{"", StateRendering, true},
		{"", StateCompleted, false},
		{StatePlanning, StateRendering, true},
		{StatePlanning, StateAssembling, false},
		{StateRendering, StateAssembling, true},
		{StateRendering, StateCancelled, true},
		{StateAssembling, StateCompleted, true},
		{StateAssembling, StateCancelled, false},
		{StateCompleted, StateFailed, false},
		{StateFailed, StateRendering, false},
	}
	for _, tt := range tests {
		err := transition(tt.from, tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("transition(%q, %q) error = %v, want ok=%v", tt.from, tt.to, err, tt.ok)
		}
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Options{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	for _, name := range []string{"planner", "renderer", "assembler", "templates"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}
}

func TestStartRejectsInvalidRequests(t *testing.T) {
	orch := newTestOrchestrator(t, fixedPlan("a"), &stubRenderer{}, &stubAssembler{}, nil, Options{})
	tests := []struct {
		name string
		req  Request
	}{
		{"empty source", Request{Source: planner.Source{Kind: planner.SourceTopic, Text: "  "}}},
		{"unknown kind", Request{Source: planner.Source{Kind: "poem", Text: "x"}}},
		{"unknown template", Request{Source: planner.Source{Text: "x"}, Template: "1080x1920/neon"}},
		{"inverted word bounds", Request{Source: planner.Source{Text: "x"}, MinWords: 40, MaxWords: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := orch.Start(context.Background(), tt.req)
			if run != nil || !errors.Is(err, services.ErrValidation) {
				t.Fatalf("Start = (%v, %v), want validation error", run, err)
			}
		})
	}
}

func TestRunAssemblesInIndexOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	texts := []string{"zero", "one", "two", "three", "four"}
	renderer := &stubRenderer{render: func(_ context.Context, n segment.Narration, _ int) (segment.Rendered, error) {
		// Later segments finish first.
		time.Sleep(time.Duration(len(texts)-n.Index) * 5 * time.Millisecond)
		return renderedFor(n), nil
	}}
	assembler := &stubAssembler{}
	orch := newTestOrchestrator(t, fixedPlan(texts...), renderer, assembler, store, Options{Concurrency: 4})

	run, err := orch.Start(context.Background(), topicRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sum, err := waitRun(t, run)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sum.State != StateCompleted || sum.Rendered != len(texts) || sum.SegmentCount != len(texts) {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if got := assembler.got.Captions(); strings.Join(got, ",") != strings.Join(texts, ",") {
		t.Fatalf("captions out of order: %v", got)
	}
	for i, entry := range assembler.got.Entries {
		if entry.Segment.AudioRef.Path() != fmt.Sprintf("/media/%d.mp3", i) {
			t.Fatalf("entry %d audio = %s", i, entry.Segment.AudioRef)
		}
	}
	if sum.TotalDuration != 15*time.Second {
		t.Fatalf("total duration = %s, want 15s", sum.TotalDuration)
	}
	wantOut := filepath.Join(orch.opts.OutputDir, run.ID(), "Tea Time.mp4")
	if sum.Output != wantOut || assembler.out != wantOut {
		t.Fatalf("output = %q (assembler %q), want %q", sum.Output, assembler.out, wantOut)
	}

	events := drain(run)
	if len(events) == 0 || events[len(events)-1].State != string(StateCompleted) {
		t.Fatalf("last event should report completion: %+v", events)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq != events[i-1].Seq+1 {
			t.Fatalf("event sequence gap at %d: %+v", i, events)
		}
	}

	rec, err := store.Get(context.Background(), run.ID())
	if err != nil || rec == nil {
		t.Fatalf("Get: %v %v", rec, err)
	}
	if rec.State != runstore.StateCompleted || rec.RenderedCount != len(texts) || rec.OutputPath != wantOut || rec.FinishedAt == nil {
		t.Fatalf("archived run not completed: %+v", rec)
	}
	rows, err := store.Segments(context.Background(), run.ID())
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	for _, row := range rows {
		if row.State != runstore.SegmentRendered {
			t.Fatalf("segment %d archived as %s", row.Index, row.State)
		}
	}
}

func TestSegmentFailureBeyondToleranceFailsRun(t *testing.T) {
	renderer := &stubRenderer{render: func(_ context.Context, n segment.Narration, _ int) (segment.Rendered, error) {
		if n.Index == 2 {
			return segment.Rendered{}, segment.NewRenderError(n.Index, segment.StageImage,
				services.Wrap(services.ErrValidation, "image", "generate", "prompt rejected", nil))
		}
		return renderedFor(n), nil
	}}
	assembler := &stubAssembler{}
	orch := newTestOrchestrator(t, fixedPlan("a", "b", "c", "d"), renderer, assembler, nil, Options{Concurrency: 2})

	run, err := orch.Start(context.Background(), topicRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sum, err := waitRun(t, run)
	if !errors.Is(err, services.ErrSegmentRender) {
		t.Fatalf("expected segment render error, got %v", err)
	}
	if sum.State != StateFailed || sum.FailedStage != string(StateRendering) || sum.FailedIndex != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if assembler.callCount() != 0 {
		t.Fatal("assembler must not run after a render failure")
	}
	if renderer.callsFor(2) != 1 {
		t.Fatalf("non-retryable failure attempted %d times", renderer.callsFor(2))
	}
	if len(sum.Failures) != 1 || sum.Failures[0].Stage != string(segment.StageImage) {
		t.Fatalf("unexpected failures %+v", sum.Failures)
	}
}

func TestToleratedFailureSkipsAndRenumbers(t *testing.T) {
	renderer := &stubRenderer{render: func(_ context.Context, n segment.Narration, _ int) (segment.Rendered, error) {
		if n.Index == 1 {
			return segment.Rendered{}, segment.NewRenderError(n.Index, segment.StageAudio,
				services.Wrap(services.ErrExternalTool, "tts", "synthesize", "voice crashed", nil))
		}
		return renderedFor(n), nil
	}}
	assembler := &stubAssembler{}
	orch := newTestOrchestrator(t, fixedPlan("first", "second", "third"), renderer, assembler, nil,
		Options{FailureTolerance: 1, SegmentAttempts: 1})

	run, err := orch.Start(context.Background(), topicRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sum, err := waitRun(t, run)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !sum.Tolerated || len(sum.Failures) != 1 || sum.Failures[0].Index != 1 || sum.Rendered != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	entries := assembler.got.Entries
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for i, want := range []string{"first", "third"} {
		if entries[i].Segment.Index != i || entries[i].Segment.Caption != want {
			t.Fatalf("entry %d = %+v, want index %d caption %q", i, entries[i].Segment, i, want)
		}
	}
	if st := run.Snapshot().Segments[1].State; st != SegmentSkipped {
		t.Fatalf("segment 1 state = %s, want skipped", st)
	}
}

func TestTransientFailureIsRetried(t *testing.T) {
	renderer := &stubRenderer{render: func(_ context.Context, n segment.Narration, attempt int) (segment.Rendered, error) {
		if n.Index == 0 && attempt == 1 {
			return segment.Rendered{}, segment.NewRenderError(n.Index, segment.StageImage,
				services.Wrap(services.ErrTransient, "image", "generate", "503", nil))
		}
		return renderedFor(n), nil
	}}
	orch := newTestOrchestrator(t, fixedPlan("a", "b"), renderer, &stubAssembler{}, nil, Options{SegmentAttempts: 2})

	run, err := orch.Start(context.Background(), topicRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := waitRun(t, run); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if renderer.callsFor(0) != 2 {
		t.Fatalf("segment 0 rendered %d times, want 2", renderer.callsFor(0))
	}
	if status := run.Snapshot().Segments[0]; status.Attempts != 2 || status.State != SegmentRendered {
		t.Fatalf("unexpected status %+v", status)
	}
	var retried bool
	for _, ev := range drain(run) {
		if ev.SegmentIndex == 0 && ev.State == string(SegmentRetrying) {
			retried = true
		}
	}
	if !retried {
		t.Fatal("expected a retrying event for segment 0")
	}
}

func TestSegmentTimeoutIsRetryable(t *testing.T) {
	renderer := &stubRenderer{render: func(ctx context.Context, n segment.Narration, attempt int) (segment.Rendered, error) {
		if attempt == 1 {
			<-ctx.Done()
			return segment.Rendered{}, ctx.Err()
		}
		return renderedFor(n), nil
	}}
	orch := newTestOrchestrator(t, fixedPlan("slow"), renderer, &stubAssembler{}, nil,
		Options{SegmentAttempts: 2, SegmentTimeout: 20 * time.Millisecond})

	run, err := orch.Start(context.Background(), topicRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := waitRun(t, run); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if renderer.callsFor(0) != 2 {
		t.Fatalf("expected a second attempt after the timeout, got %d", renderer.callsFor(0))
	}
}

func TestCancelStopsDispatch(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	renderer := &stubRenderer{render: func(ctx context.Context, n segment.Narration, _ int) (segment.Rendered, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return segment.Rendered{}, ctx.Err()
	}}
	assembler := &stubAssembler{}
	orch := newTestOrchestrator(t, fixedPlan("a", "b", "c", "d"), renderer, assembler, nil, Options{Concurrency: 1})

	run, err := orch.Start(context.Background(), topicRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("no segment started")
	}
	run.Cancel()

	sum, err := waitRun(t, run)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sum.State != StateCancelled || !run.Snapshot().Cancelled {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if renderer.total() != 1 {
		t.Fatalf("segments dispatched after cancel: %d renders", renderer.total())
	}
	if assembler.callCount() != 0 {
		t.Fatal("assembler ran for a cancelled run")
	}
}

func TestConfigurationErrorFailsFast(t *testing.T) {
	renderer := &stubRenderer{render: func(ctx context.Context, n segment.Narration, _ int) (segment.Rendered, error) {
		if n.Index == 0 {
			return segment.Rendered{}, segment.NewRenderError(n.Index, segment.StageImage,
				services.Wrap(services.ErrConfiguration, "image", "generate", "invalid api key", nil))
		}
		<-ctx.Done()
		return segment.Rendered{}, ctx.Err()
	}}
	orch := newTestOrchestrator(t, fixedPlan("a", "b", "c", "d"), renderer, &stubAssembler{}, nil,
		Options{Concurrency: 1, FailureTolerance: 3})

	run, err := orch.Start(context.Background(), topicRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sum, err := waitRun(t, run)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if sum.State != StateFailed || sum.FailedIndex != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if renderer.callsFor(0) != 1 || renderer.total() > 2 {
		t.Fatalf("configuration error was retried or dispatch continued: %d renders", renderer.total())
	}
}

func TestRelaxedRetryAfterPlanningError(t *testing.T) {
	p := &stubPlanner{plan: func(call int, opts planner.Options) ([]segment.Narration, error) {
		if !opts.Relaxed {
			return nil, services.Wrap(services.ErrPlanning, "planning", "generate", "expected 6 narrations, got 3", nil)
		}
		return []segment.Narration{{Index: 0, Text: "only"}}, nil
	}}
	orch := newTestOrchestrator(t, p, &stubRenderer{}, &stubAssembler{}, nil, Options{RelaxedRetry: true, CountTolerance: 1})

	run, err := orch.Start(context.Background(), topicRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := waitRun(t, run); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(p.calls) != 2 || p.calls[0].Relaxed || !p.calls[1].Relaxed {
		t.Fatalf("unexpected planner calls %+v", p.calls)
	}
	if p.calls[1].CountTolerance != 1 || p.calls[1].SegmentCount != 6 {
		t.Fatalf("relaxed call lost bounds: %+v", p.calls[1])
	}
}

func TestPlanningFailureFailsRun(t *testing.T) {
	p := &stubPlanner{plan: func(int, planner.Options) ([]segment.Narration, error) {
		return nil, services.Wrap(services.ErrPlanning, "planning", "generate", "no narrations returned", nil)
	}}
	renderer := &stubRenderer{}
	orch := newTestOrchestrator(t, p, renderer, &stubAssembler{}, nil, Options{})

	run, err := orch.Start(context.Background(), topicRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sum, err := waitRun(t, run)
	if !errors.Is(err, services.ErrPlanning) {
		t.Fatalf("expected planning error, got %v", err)
	}
	if sum.State != StateFailed || sum.FailedStage != string(StatePlanning) || sum.FailedIndex != -1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(p.calls) != 1 || renderer.total() != 0 {
		t.Fatalf("planner calls %d, renders %d", len(p.calls), renderer.total())
	}
}

func TestEventsDropWhenConsumerLags(t *testing.T) {
	orch := newTestOrchestrator(t, fixedPlan("a", "b", "c"), &stubRenderer{}, &stubAssembler{}, nil, Options{EventsBuffer: 1})

	run, err := orch.Start(context.Background(), topicRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := waitRun(t, run); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	events := drain(run)
	if len(events) != 1 || events[0].Seq != 1 {
		t.Fatalf("expected only the first event to be buffered, got %+v", events)
	}
	if run.DroppedEvents() == 0 {
		t.Fatal("expected dropped events to be counted")
	}
}

func TestResumeReusesRenderedSegments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	req := topicRequest()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := store.Create(ctx, &runstore.Run{
		ID:            "run-resume",
		Title:         "Tea Time",
		State:         runstore.StateFailed,
		SourceKind:    string(req.Source.Kind),
		SourceText:    req.Source.Text,
		RequestJSON:   string(payload),
		StylePrefix:   "watercolor",
		TemplateID:    "1080x1920/default",
		FailedStage:   "rendering",
		FailedIndex:   2,
		ErrorMessage:  "boom",
		SegmentCount:  3,
		RenderedCount: 2,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dir := t.TempDir()
	texts := []string{"zero", "one", "two"}
	rows := make([]runstore.Segment, len(texts))
	for i, text := range texts {
		rows[i] = runstore.PlannedSegment("run-resume", segment.Narration{Index: i, Text: text})
		if i == 2 {
			rows[i].State = runstore.SegmentFailed
			continue
		}
		image := filepath.Join(dir, fmt.Sprintf("%d.png", i))
		audio := filepath.Join(dir, fmt.Sprintf("%d.mp3", i))
		testsupport.WriteFile(t, image, 16)
		testsupport.WriteFile(t, audio, 16)
		rows[i].RecordRendered(segment.Rendered{
			Index:    i,
			ImageRef: media.Locator(image),
			AudioRef: media.Locator(audio),
			Duration: 2 * time.Second,
		})
	}
	if err := store.ReplaceSegments(ctx, "run-resume", rows); err != nil {
		t.Fatalf("ReplaceSegments: %v", err)
	}

	p := fixedPlan("unused")
	renderer := &stubRenderer{}
	assembler := &stubAssembler{}
	orch := newTestOrchestrator(t, p, renderer, assembler, store, Options{})

	run, err := orch.Resume(ctx, "run-resume")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	sum, err := waitRun(t, run)
	if err != nil {
		t.Fatalf("resumed run failed: %v", err)
	}
	if len(p.calls) != 0 {
		t.Fatal("resume should not plan again")
	}
	if renderer.total() != 1 || renderer.callsFor(2) != 1 {
		t.Fatalf("expected only segment 2 to render, got %v", renderer.calls)
	}
	if sum.Reused != 2 || sum.Rendered != 3 || sum.Title != "Tea Time" {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if got := strings.Join(assembler.got.Captions(), ","); got != "zero,one,two" {
		t.Fatalf("captions = %s", got)
	}

	rec, err := store.Get(ctx, "run-resume")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != runstore.StateCompleted || rec.FailedStage != "" || rec.ErrorMessage != "" {
		t.Fatalf("resumed run not archived as completed: %+v", rec)
	}

	if _, err := orch.Resume(ctx, "run-resume"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("resuming a completed run: %v", err)
	}
	if _, err := orch.Resume(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("resuming a missing run: %v", err)
	}
}

func TestNotifierReceivesOutcome(t *testing.T) {
	var completed, failed atomic.Int32
	notifier := notifierFunc{
		completed: func(title string, segments int) {
			if title == "Tea Time" && segments == 2 {
				completed.Add(1)
			}
		},
		failed: func(stage string) {
			if stage == string(StateAssembling) {
				failed.Add(1)
			}
		},
	}

	for _, assembler := range []*stubAssembler{{}, {err: errors.New("mux failed")}} {
		templates, err := layout.NewRegistry("")
		if err != nil {
			t.Fatalf("NewRegistry: %v", err)
		}
		r := &stubRenderer{}
		orch, err := New(Deps{
			Planner:   fixedPlan("a", "b"),
			Renderers: func(string) SegmentRenderer { return r },
			Assembler: assembler,
			Templates: templates,
			Notifier:  notifier,
		}, Options{OutputDir: t.TempDir()})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		run, err := orch.Start(context.Background(), topicRequest())
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		_, _ = waitRun(t, run)
	}
	if completed.Load() != 1 || failed.Load() != 1 {
		t.Fatalf("notifications: completed=%d failed=%d", completed.Load(), failed.Load())
	}
}

type notifierFunc struct {
	completed func(title string, segments int)
	failed    func(stage string)
}

func (n notifierFunc) NotifyRunCompleted(_ context.Context, title, _ string, _ time.Duration, segments int) error {
	n.completed(title, segments)
	return nil
}

func (n notifierFunc) NotifyRunFailed(_ context.Context, _ string, stage, _ string) error {
	n.failed(stage)
	return nil
}
