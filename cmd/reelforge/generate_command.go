package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"reelforge/internal/config"
	"reelforge/internal/pipeline"
	"reelforge/internal/planner"
	"reelforge/internal/preflight"
	"reelforge/internal/segment"
)

type generateOptions struct {
	topic       string
	script      string
	scriptFile  string
	content     string
	contentFile string

	style            string
	styleDescription string
	voice            string
	bgm              string
	bgmMode          string
	template         string
	segments         int
	minWords         int
	maxWords         int
	title            string

	jsonOutput bool
	skipChecks bool
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Plan, render, and assemble a video",
		Long: `Generate a narrated video from exactly one source:

  --topic         the LLM writes narration about a subject
  --script        your narration, split into scenes as written
  --content       source material the LLM condenses into narration

--script-file and --content-file read the text from a file ("-" for stdin).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !opts.skipChecks {
				if err := runOfflineChecks(cmd, cfg); err != nil {
					return err
				}
			}
			app, err := ctx.application()
			if err != nil {
				return err
			}
			run, err := app.orchestrator.Start(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !opts.jsonOutput {
				fmt.Fprintf(cmd.ErrOrStderr(), "Started run %s\n", shortID(run.ID()))
			}
			return followRun(cmd, run, opts.jsonOutput)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.topic, "topic", "", "Topic to write about")
	flags.StringVar(&opts.script, "script", "", "Narration script, used verbatim")
	flags.StringVar(&opts.scriptFile, "script-file", "", "Read the script from a file")
	flags.StringVar(&opts.content, "content", "", "Source material to condense")
	flags.StringVar(&opts.contentFile, "content-file", "", "Read source material from a file")
	flags.StringVar(&opts.style, "style", "", "Image style preset (see 'reelforge styles')")
	flags.StringVar(&opts.styleDescription, "style-description", "", "Free-form image style, turned into a prompt prefix")
	flags.StringVar(&opts.voice, "voice", "", "TTS voice override")
	flags.StringVar(&opts.bgm, "bgm", "", "Background music file")
	flags.StringVar(&opts.bgmMode, "bgm-mode", "", "Background music mode: once or loop")
	flags.StringVar(&opts.template, "template", "", "Layout template id (see 'reelforge templates')")
	flags.IntVar(&opts.segments, "segments", 0, "Number of scenes (topic and content sources)")
	flags.IntVar(&opts.minWords, "min-words", 0, "Minimum words per narration")
	flags.IntVar(&opts.maxWords, "max-words", 0, "Maximum words per narration")
	flags.StringVar(&opts.title, "title", "", "Video title; generated when empty")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print the run summary as JSON")
	flags.BoolVar(&opts.skipChecks, "skip-checks", false, "Skip local dependency checks")
	return cmd
}

func (o generateOptions) request(stdin io.Reader) (pipeline.Request, error) {
	src, err := o.source(stdin)
	if err != nil {
		return pipeline.Request{}, err
	}
	return pipeline.Request{
		Source: src,
		Style: segment.Style{
			Preset:      strings.TrimSpace(o.style),
			Description: strings.TrimSpace(o.styleDescription),
		},
		Voice:        strings.TrimSpace(o.voice),
		BGM:          strings.TrimSpace(o.bgm),
		BGMMode:      strings.TrimSpace(o.bgmMode),
		Template:     strings.TrimSpace(o.template),
		SegmentCount: o.segments,
		MinWords:     o.minWords,
		MaxWords:     o.maxWords,
		Title:        strings.TrimSpace(o.title),
	}, nil
}

func (o generateOptions) source(stdin io.Reader) (planner.Source, error) {
	type candidate struct {
		kind planner.SourceKind
		text string
		file string
	}
	candidates := []candidate{
		{kind: planner.SourceTopic, text: o.topic},
		{kind: planner.SourceScript, text: o.script, file: o.scriptFile},
		{kind: planner.SourceContent, text: o.content, file: o.contentFile},
	}
	var (
		chosen *candidate
		count  int
	)
	for i := range candidates {
		c := &candidates[i]
		if c.text != "" {
			count++
			chosen = c
		}
		if c.file != "" {
			count++
			chosen = c
		}
	}
	switch {
	case count == 0:
		return planner.Source{}, errors.New("one of --topic, --script, --script-file, --content, or --content-file is required")
	case count > 1:
		return planner.Source{}, errors.New("only one source flag may be set")
	}

	text := chosen.text
	if chosen.file != "" {
		data, err := readSourceFile(stdin, chosen.file)
		if err != nil {
			return planner.Source{}, err
		}
		text = data
	}
	if strings.TrimSpace(text) == "" {
		return planner.Source{}, fmt.Errorf("%s source is empty", chosen.kind)
	}
	return planner.Source{Kind: chosen.kind, Text: text}, nil
}

func readSourceFile(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// runOfflineChecks verifies directories and local binaries before a run so a
// missing ffmpeg fails in seconds instead of after the planning call.
func runOfflineChecks(cmd *cobra.Command, cfg *config.Config) error {
	results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{SkipNetwork: true})
	failed := preflight.Failed(results)
	if len(failed) == 0 {
		return nil
	}
	out := cmd.ErrOrStderr()
	for _, r := range failed {
		fmt.Fprintf(out, "✗ %s: %s\n", r.Name, r.Detail)
	}
	return fmt.Errorf("%d dependency check(s) failed; run 'reelforge check' for details", len(failed))
}
