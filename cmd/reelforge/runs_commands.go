package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
	"reelforge/internal/media/store"
	"reelforge/internal/runstore"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:     "runs",
		Aliases: []string{"run"},
		Short:   "Inspect, resume, and delete archived runs",
	}
	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsResumeCommand(ctx))
	runsCmd.AddCommand(newRunsDeleteCommand(ctx))
	return runsCmd
}

type segmentView struct {
	Index       int           `json:"index"`
	State       string        `json:"state"`
	Text        string        `json:"text"`
	ImagePath   string        `json:"image_path,omitempty"`
	AudioPath   string        `json:"audio_path,omitempty"`
	Duration    time.Duration `json:"duration"`
	Attempts    int           `json:"attempts"`
	FailedStage string        `json:"failed_stage,omitempty"`
	Error       string        `json:"error,omitempty"`
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var (
		states     []string
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.runStore()
			if err != nil {
				return err
			}
			filter := make([]string, 0, len(states))
			for _, s := range states {
				if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
					filter = append(filter, s)
				}
			}
			runs, err := st.List(cmd.Context(), limit, filter...)
			if err != nil {
				return err
			}
			if jsonOutput {
				views := make([]api.RunView, len(runs))
				for i, r := range runs {
					views[i] = api.FromRun(r)
				}
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					shortID(r.ID),
					truncate(r.Title, 32),
					r.State,
					fmt.Sprintf("%d/%d", r.RenderedCount, r.SegmentCount),
					formatDuration(r.TotalDuration),
					r.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"ID", "Title", "State", "Segments", "Length", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&states, "state", nil, "Filter by state (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a run and its segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.runStore()
			if err != nil {
				return err
			}
			run, err := findRun(cmd, st, args[0])
			if err != nil {
				return err
			}
			segs, err := st.Segments(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if jsonOutput {
				views := make([]segmentView, len(segs))
				for i, s := range segs {
					views[i] = segmentView{
						Index:       s.Index,
						State:       s.State,
						Text:        s.Text,
						ImagePath:   s.ImagePath,
						AudioPath:   s.AudioPath,
						Duration:    s.Duration,
						Attempts:    s.Attempts,
						FailedStage: s.FailedStage,
						Error:       s.ErrorMessage,
					}
				}
				return writeJSON(cmd, struct {
					Run      api.RunView   `json:"run"`
					Segments []segmentView `json:"segments"`
				}{api.FromRun(run), views})
			}
			printRunDetail(cmd, run, segs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printRunDetail(cmd *cobra.Command, run *runstore.Run, segs []runstore.Segment) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Title:    %s\n", fallback(run.Title, "(untitled)"))
	fmt.Fprintf(out, "State:    %s\n", run.State)
	fmt.Fprintf(out, "Source:   %s\n", run.SourceKind)
	fmt.Fprintf(out, "Template: %s\n", run.TemplateID)
	fmt.Fprintf(out, "Created:  %s\n", run.CreatedAt.Local().Format(time.RFC3339))
	if run.OutputPath != "" {
		fmt.Fprintf(out, "Video:    %s (%s)\n", run.OutputPath, formatDuration(run.TotalDuration))
	}
	if run.ErrorMessage != "" {
		where := run.FailedStage
		if run.FailedIndex >= 0 {
			where += " (segment " + strconv.Itoa(run.FailedIndex) + ")"
		}
		fmt.Fprintf(out, "Failed:   %s: %s\n", where, run.ErrorMessage)
	}
	if len(segs) == 0 {
		return
	}
	rows := make([][]string, 0, len(segs))
	for _, s := range segs {
		note := truncate(s.Text, 48)
		if s.ErrorMessage != "" {
			note = s.FailedStage + ": " + truncate(firstLine(s.ErrorMessage), 40)
		}
		rows = append(rows, []string{
			strconv.Itoa(s.Index),
			s.State,
			formatDuration(s.Duration),
			strconv.Itoa(s.Attempts),
			note,
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"#", "State", "Length", "Attempts", "Narration"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintln(out)
}

func newRunsResumeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a failed or interrupted run, reusing rendered segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.runStore()
			if err != nil {
				return err
			}
			record, err := findRun(cmd, st, args[0])
			if err != nil {
				return err
			}
			app, err := ctx.application()
			if err != nil {
				return err
			}
			run, err := app.orchestrator.Resume(cmd.Context(), record.ID)
			if err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Fprintf(cmd.ErrOrStderr(), "Resuming run %s\n", shortID(run.ID()))
			}
			return followRun(cmd, run, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run summary as JSON")
	return cmd
}

func newRunsDeleteCommand(ctx *commandContext) *cobra.Command {
	var keepMedia bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a run record and its intermediate media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.runStore()
			if err != nil {
				return err
			}
			run, err := findRun(cmd, st, args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			media, err := store.Open(cfg.Paths.MediaDir)
			if err != nil {
				return err
			}
			unlock, err := media.LockRun(run.ID)
			if err != nil {
				if errors.Is(err, store.ErrRunLocked) {
					return fmt.Errorf("run %s is in progress; cancel it before deleting", shortID(run.ID))
				}
				return err
			}
			defer func() { _ = unlock() }()

			if err := st.Delete(cmd.Context(), run.ID); err != nil {
				return err
			}
			if !keepMedia {
				if err := media.RemoveRun(run.ID); err != nil {
					return fmt.Errorf("remove media: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", shortID(run.ID))
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepMedia, "keep-media", false, "Keep rendered images and audio on disk")
	return cmd
}

func findRun(cmd *cobra.Command, st *runstore.Store, prefix string) (*runstore.Run, error) {
	run, err := st.FindByPrefix(cmd.Context(), prefix)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %q not found", prefix)
	}
	return run, nil
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
