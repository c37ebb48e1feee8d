package runstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"reelforge/internal/media"
	"reelforge/internal/runstore"
	"reelforge/internal/segment"
	"reelforge/internal/testsupport"
)

func newRun(id string) *runstore.Run {
	return &runstore.Run{
		ID:          id,
		SourceKind:  "topic",
		SourceText:  "why cats purr",
		FailedIndex: -1,
	}
}

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if store.Path() != cfg.RunStorePath() {
		t.Fatalf("path = %q, want %q", store.Path(), cfg.RunStorePath())
	}
	ctx := context.Background()
	if err := store.Create(ctx, newRun("run-a")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := runstore.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	run, err := reopened.Get(ctx, "run-a")
	if err != nil || run == nil {
		t.Fatalf("Get after reopen: %v %v", run, err)
	}
	if run.State != runstore.StatePlanning || run.SourceText != "why cats purr" {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestUpdatePersistsTerminalOutcome(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := newRun("run-b")
	if err := store.Create(ctx, run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	finished := time.Now().UTC()
	run.State = runstore.StateFailed
	run.Title = "Cats"
	run.FailedStage = "rendering"
	run.FailedIndex = 3
	run.ErrorMessage = "segment 3: image: boom"
	run.TotalDuration = 12345 * time.Millisecond
	run.FinishedAt = &finished
	if err := store.Update(ctx, run); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(ctx, "run-b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != runstore.StateFailed || got.FailedIndex != 3 || got.FailedStage != "rendering" || got.Title != "Cats" {
		t.Fatalf("unexpected run: %+v", got)
	}
	if got.TotalDuration != 12345*time.Millisecond {
		t.Fatalf("duration = %v", got.TotalDuration)
	}
	if got.FinishedAt == nil || !got.Terminal() || !got.Resumable() {
		t.Fatalf("terminal flags wrong: %+v", got)
	}

	if err := store.Update(ctx, newRun("missing")); err == nil {
		t.Fatal("expected error updating unknown run")
	}
	if missing, err := store.Get(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("Get(nope) = %v, %v", missing, err)
	}
}

func TestListFiltersByState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	states := []string{runstore.StateCompleted, runstore.StateFailed, runstore.StateRendering}
	for i, state := range states {
		run := newRun("run-" + state)
		run.State = state
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Create(ctx, run); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "run-rendering" {
		t.Fatalf("expected newest first, got %d runs starting %v", len(all), all[0].ID)
	}
	unfinished, err := store.List(ctx, 0, runstore.StateFailed, runstore.StateRendering)
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(unfinished) != 2 {
		t.Fatalf("filtered len = %d", len(unfinished))
	}
	limited, err := store.List(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limited = %v, %v", limited, err)
	}
}

func TestFindByPrefix(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	for _, id := range []string{"abc123", "abd456", "x_y"} {
		if err := store.Create(ctx, newRun(id)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	run, err := store.FindByPrefix(ctx, "abc")
	if err != nil || run == nil || run.ID != "abc123" {
		t.Fatalf("FindByPrefix(abc) = %v, %v", run, err)
	}
	if _, err := store.FindByPrefix(ctx, "ab"); err == nil {
		t.Fatal("expected ambiguity error")
	}
	if run, err := store.FindByPrefix(ctx, "x%"); err != nil || run != nil {
		t.Fatalf("wildcards must be literal: %v, %v", run, err)
	}
}

func TestSegmentsRoundTripAndCascade(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	if err := store.Create(ctx, newRun("run-s")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	narrations := []segment.Narration{
		{Index: 0, Text: "First.", MinWords: 1, MaxWords: 10},
		{Index: 1, Text: "Second.", MinWords: 1, MaxWords: 10},
	}
	var rows []runstore.Segment
	for _, n := range narrations {
		rows = append(rows, runstore.PlannedSegment("run-s", n))
	}
	if err := store.ReplaceSegments(ctx, "run-s", rows); err != nil {
		t.Fatalf("ReplaceSegments: %v", err)
	}

	dir := t.TempDir()
	rendered := segment.Rendered{
		Index:    1,
		ImageRef: media.Locator(filepath.Join(dir, "1.png")),
		AudioRef: media.Locator(filepath.Join(dir, "1.mp3")),
		Duration: 2340 * time.Millisecond,
		Caption:  "Second.",
		Prompt:   "a second thing",
	}
	row := rows[1]
	row.RecordRendered(rendered)
	row.Attempts = 1
	if err := store.SaveSegment(ctx, row); err != nil {
		t.Fatalf("SaveSegment: %v", err)
	}

	segs, err := store.Segments(ctx, "run-s")
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(segs) != 2 || segs[0].State != runstore.SegmentPlanned || segs[1].State != runstore.SegmentRendered {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	if got := segs[1].Rendered(); got != rendered {
		t.Fatalf("Rendered() = %+v, want %+v", got, rendered)
	}
	if got := segs[0].Narration(); got != narrations[0] {
		t.Fatalf("Narration() = %+v", got)
	}

	if err := store.Delete(ctx, "run-s"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	segs, err = store.Segments(ctx, "run-s")
	if err != nil || len(segs) != 0 {
		t.Fatalf("segments after delete = %v, %v", segs, err)
	}
}
