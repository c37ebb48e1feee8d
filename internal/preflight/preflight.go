package preflight

import (
	"context"
	"fmt"

	"reelforge/internal/config"
	"reelforge/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional results never block a run.
	Optional bool
}

// Options toggles the checks that reach the network.
type Options struct {
	SkipNetwork bool
}

// RunAll executes every applicable check for cfg.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Media directory", cfg.Paths.MediaDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, FromStatus(status))
	}
	localImages := cfg.Image.Provider == config.ProviderImageAssets
	if localImages {
		results = append(results, CheckImageFromConfig(ctx, cfg))
	}
	if opts.SkipNetwork {
		return results
	}

	results = append(results, CheckLLM(ctx, "LLM", cfg.LLM))
	if !localImages {
		results = append(results, CheckImageFromConfig(ctx, cfg))
	}
	if cfg.TTS.Provider == config.ProviderHTTP {
		results = append(results, CheckHTTPBackend(ctx, "TTS", cfg.TTS.BaseURL, ""))
	}
	return results
}

// FromStatus converts a binary check into a Result.
func FromStatus(status deps.Status) Result {
	result := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional}
	switch {
	case !status.Available:
		result.Detail = status.Detail
	case status.Version != "":
		result.Detail = fmt.Sprintf("%s (%s)", status.Command, status.Version)
	default:
		result.Detail = status.Command
	}
	return result
}

// Failed returns the non-optional results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
