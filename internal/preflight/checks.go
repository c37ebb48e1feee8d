package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"reelforge/internal/config"
	"reelforge/internal/deps"
	"reelforge/internal/gateway"
	"reelforge/internal/services"
	"reelforge/internal/services/imagegen"
	"reelforge/internal/services/llm"
)

const httpCheckTimeout = 5 * time.Second

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt.
func CheckLLM(ctx context.Context, name string, cfg config.LLM) Result {
	if cfg.Provider == config.ProviderCloud && strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	policy := gateway.DefaultPolicy()
	policy.MaxAttempts = 1
	client := llm.NewClient(llm.Config{
		Variant: cfg.Provider,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	}, llm.WithPolicy(policy))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.Model)}
}

// CheckHTTPBackend verifies that an HTTP backend answers at baseURL. Any
// response below 500 counts as reachable except rejected credentials.
func CheckHTTPBackend(ctx context.Context, name, baseURL, apiKey string) Result {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, httpCheckTimeout)
	defer cancel()

	client := &http.Client{Timeout: httpCheckTimeout}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case resp.StatusCode >= 500:
		return Result{Name: name, Detail: fmt.Sprintf("unhealthy (%d)", resp.StatusCode)}
	default:
		return Result{Name: name, Passed: true, Detail: base + " reachable"}
	}
}

// CheckImageFromConfig checks the configured image backend.
func CheckImageFromConfig(ctx context.Context, cfg *config.Config) Result {
	name := "Image (" + cfg.Image.Provider + ")"
	switch cfg.Image.Provider {
	case config.ProviderImageLocal:
		return renamed(CheckHTTPBackend(ctx, name, strings.TrimRight(cfg.Image.BaseURL, "/")+"/sdapi/v1/options", ""), name)
	case config.ProviderImageCloud:
		return CheckHTTPBackend(ctx, name, cfg.Image.BaseURL, cfg.Image.APIKey)
	case config.ProviderImageAssets:
		return CheckAssetLibrary(name, cfg.Image.AssetsDir)
	default:
		return Result{Name: name, Detail: "unknown provider"}
	}
}

// CheckAssetLibrary verifies that dir holds at least one usable image.
func CheckAssetLibrary(name, dir string) Result {
	files, err := imagegen.ListAssets(dir)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d images)", dir, len(files))}
}

func renamed(r Result, name string) Result {
	r.Name = name
	return r
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the binaries the configured backends shell out to.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Video.FFmpegBinary,
			Description: "Renders clips and muxes the final video",
			VersionArgs: []string{"-version"},
		},
	}
	if cfg.TTS.Provider == config.ProviderEdge {
		requirements = append(requirements, deps.Requirement{
			Name:        "edge-tts",
			Command:     cfg.TTS.Binary,
			Description: "Synthesizes narration audio",
		})
	}
	requirements = append(requirements, deps.Requirement{
		Name:        "fc-match",
		Command:     "fc-match",
		Description: "Resolves caption fonts for drawtext",
		Optional:    true,
	})

	statuses := deps.CheckBinaries(ctx, requirements)
	probe := deps.ResolveFFprobe(cfg.Video.FFmpegBinary, cfg.Video.FFprobeBinary)
	return append(statuses[:1], append([]deps.Status{probe}, statuses[1:]...)...)
}

// summarizeLLMError produces a human-readable summary for LLM health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	if errors.Is(err, services.ErrConfiguration) {
		return "misconfigured: " + err.Error()
	}
	return err.Error()
}
