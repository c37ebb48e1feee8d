package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/runstore"
	"reelforge/internal/segment"
	"reelforge/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("REELFORGE_LLM_API_KEY", "")
	t.Setenv("REELFORGE_NTFY_TOPIC", "")

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(homeDir, ".config", "reelforge", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
output_dir = %q
media_dir = %q
state_dir = %q
log_dir = %q

[llm]
provider = "selfhosted"
base_url = %q
model = %q

[image]
provider = "local"
base_url = "http://127.0.0.1:0"
`,
		cfg.Paths.OutputDir,
		cfg.Paths.MediaDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.LLM.BaseURL,
		cfg.LLM.Model,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// seedRun archives a run with the given segments directly in the run store.
func seedRun(t *testing.T, cfg *config.Config, run *runstore.Run, texts ...string) {
	t.Helper()
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		t.Fatalf("mkdir state: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	if err := st.Create(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	for i, text := range texts {
		row := runstore.PlannedSegment(run.ID, segment.Narration{Index: i, Text: text})
		if err := st.SaveSegment(ctx, row); err != nil {
			t.Fatalf("save segment: %v", err)
		}
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
