package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"reelforge/internal/pipeline"
)

// followRun prints progress until the run finishes and then reports the
// summary. Interrupting the command cancels the run through its context.
func followRun(cmd *cobra.Command, run *pipeline.Run, jsonOutput bool) error {
	progress := io.Writer(cmd.ErrOrStderr())
	if jsonOutput {
		progress = io.Discard
	}
	printer := newProgressPrinter(progress)
	for ev := range run.Events() {
		printer.handle(ev, run.Snapshot())
	}
	printer.finish()

	summary, runErr := run.Wait(context.Background())
	if jsonOutput {
		if err := writeJSON(cmd, summary); err != nil {
			return err
		}
		return runErr
	}
	printSummary(cmd.OutOrStdout(), summary, run.DroppedEvents())
	return runErr
}

func printSummary(out io.Writer, summary pipeline.Summary, dropped int64) {
	fmt.Fprintf(out, "Run:      %s\n", summary.RunID)
	if summary.Title != "" {
		fmt.Fprintf(out, "Title:    %s\n", summary.Title)
	}
	fmt.Fprintf(out, "State:    %s\n", colorState(out, string(summary.State)))
	fmt.Fprintf(out, "Segments: %d/%d rendered", summary.Rendered, summary.SegmentCount)
	if summary.Reused > 0 {
		fmt.Fprintf(out, " (%d reused)", summary.Reused)
	}
	fmt.Fprintln(out)
	if summary.Output != "" {
		fmt.Fprintf(out, "Video:    %s (%s)\n", summary.Output, formatDuration(summary.TotalDuration))
	}
	for _, f := range summary.Failures {
		verb := "failed"
		if summary.Tolerated && summary.State == pipeline.StateCompleted {
			verb = "skipped"
		}
		fmt.Fprintf(out, "Segment %d %s at %s: %s\n", f.Index, verb, f.Stage, firstLine(f.Message))
	}
	if summary.State != pipeline.StateCompleted && summary.Error != "" {
		where := summary.FailedStage
		if summary.FailedIndex >= 0 {
			where = fmt.Sprintf("%s (segment %d)", where, summary.FailedIndex)
		}
		fmt.Fprintf(out, "Failed in %s: %s\n", where, summary.Error)
		fmt.Fprintf(out, "Resume with: reelforge runs resume %s\n", shortID(summary.RunID))
	}
	if dropped > 0 {
		fmt.Fprintf(out, "(%d progress events dropped)\n", dropped)
	}
	if !summary.FinishedAt.IsZero() && !summary.StartedAt.IsZero() {
		fmt.Fprintf(out, "Elapsed:  %s\n", formatDuration(summary.FinishedAt.Sub(summary.StartedAt)))
	}
}

func colorState(out io.Writer, state string) string {
	if !isTerminal(out) {
		return state
	}
	switch state {
	case string(pipeline.StateCompleted):
		return ansiGreen + state + ansiReset
	case string(pipeline.StateFailed), string(pipeline.StateCancelled):
		return ansiRed + state + ansiReset
	}
	return state
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Minute {
		return d.Round(100 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
