package api

import (
	"context"

	"reelforge/internal/pipeline"
)

// OrchestratorLauncher adapts an orchestrator to Launcher.
func OrchestratorLauncher(o *pipeline.Orchestrator) Launcher {
	return orchestratorLauncher{o: o}
}

type orchestratorLauncher struct {
	o *pipeline.Orchestrator
}

func (l orchestratorLauncher) Start(ctx context.Context, req pipeline.Request) (Handle, error) {
	run, err := l.o.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (l orchestratorLauncher) Resume(ctx context.Context, runID string) (Handle, error) {
	run, err := l.o.Resume(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run, nil
}
