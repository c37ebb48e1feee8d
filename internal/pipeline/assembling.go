package pipeline

import (
	"context"
	"fmt"
	"strings"

	"reelforge/internal/media"
	"reelforge/internal/segment"
	"reelforge/internal/timeline"
)

func (o *Orchestrator) assemble(ctx context.Context, run *Run, in *runInput, rendered []segment.Rendered) (*timeline.Artifact, *failure) {
	stage := string(StateAssembling)
	tl, err := timeline.Build(rendered, media.Locator(strings.TrimSpace(in.req.BGM)), in.req.BGMMode, in.template)
	if err != nil {
		return nil, &failure{stage: stage, index: -1, err: err}
	}
	tl.RunID = run.id

	actx := timeline.WithStepObserver(ctx, func(step string, index, total int) {
		message := step
		if index >= 0 && total > 0 {
			message = fmt.Sprintf("%s %d/%d", step, index+1, total)
		}
		run.emit(stage, -1, step, message)
	})
	artifact, err := o.deps.Assembler.Assemble(actx, tl, o.outputPath(run.id, in.title))
	if err != nil {
		return nil, &failure{stage: stage, index: -1, err: err}
	}
	return &artifact, nil
}
