package main

import (
	"context"
	"fmt"
	"log/slog"

	"reelforge/internal/backends"
	"reelforge/internal/config"
	"reelforge/internal/gateway"
	"reelforge/internal/layout"
	"reelforge/internal/logging"
	"reelforge/internal/media/ffprobe"
	"reelforge/internal/media/store"
	"reelforge/internal/notifications"
	"reelforge/internal/pipeline"
	"reelforge/internal/planner"
	"reelforge/internal/renderer"
	"reelforge/internal/runstore"
	"reelforge/internal/timeline"
)

type application struct {
	cfg          *config.Config
	logger       *slog.Logger
	runs         *runstore.Store
	media        *store.Store
	orchestrator *pipeline.Orchestrator
}

func newApplication(cfg *config.Config, runs *runstore.Store, logger *slog.Logger) (*application, error) {
	media, err := store.Open(cfg.Paths.MediaDir)
	if err != nil {
		return nil, fmt.Errorf("open media store: %w", err)
	}
	templates, err := layout.NewRegistry(cfg.Paths.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	set, err := backends.New(cfg, media, gateway.Shared(), logger)
	if err != nil {
		return nil, err
	}

	base := renderer.New(
		set.LLM,
		set.Image,
		set.TTS,
		ffprobe.Prober{Binary: cfg.Video.FFprobeBinary},
		rendererConfig(cfg),
		logging.NewComponentLogger(logger, "renderer"),
	)
	assembler := timeline.NewAssembler(timeline.SettingsFromConfig(cfg), logger, timeline.WithWorkDirs(media))

	orch, err := pipeline.New(pipeline.Deps{
		Planner: planner.New(set.LLM, logging.NewComponentLogger(logger, "planner")),
		Renderers: func(voice string) pipeline.SegmentRenderer {
			return base.WithVoice(voice)
		},
		Assembler: assembler,
		Templates: templates,
		Title: func(ctx context.Context, src planner.Source) (string, error) {
			return planner.GenerateTitle(ctx, set.LLM, src, cfg.Pipeline.TitleStrategy, cfg.Pipeline.TitleMaxLength)
		},
		Recorder: runs,
		Locker:   media,
		Notifier: notifications.NewService(cfg),
		Logger:   logger,
	}, pipeline.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}

	return &application{
		cfg:          cfg,
		logger:       logger,
		runs:         runs,
		media:        media,
		orchestrator: orch,
	}, nil
}

func rendererConfig(cfg *config.Config) renderer.Config {
	return renderer.Config{
		DefaultStyle:   cfg.Image.DefaultStyle,
		NegativePrompt: cfg.Image.NegativePrompt,
		Width:          cfg.Image.Width,
		Height:         cfg.Image.Height,
		Steps:          cfg.Image.Steps,
		Seed:           cfg.Image.Seed,
		Voice:          cfg.TTS.Voice,
		Rate:           cfg.TTS.Rate,
		Pitch:          cfg.TTS.Pitch,
		Volume:         cfg.TTS.Volume,
		Speed:          cfg.TTS.Speed,
	}
}
