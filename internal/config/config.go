package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir    string `toml:"output_dir"`
	MediaDir     string `toml:"media_dir"`
	StateDir     string `toml:"state_dir"`
	LogDir       string `toml:"log_dir"`
	TemplatesDir string `toml:"templates_dir"`
	APIBind      string `toml:"api_bind"`
	APIToken     string `toml:"api_token"`
}

// LLM selects and configures the language model backend.
type LLM struct {
	Provider       string  `toml:"provider"`
	Preset         string  `toml:"preset"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	APIKey         string  `toml:"api_key"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Concurrency    int     `toml:"concurrency"`
	RetryAttempts  int     `toml:"retry_attempts"`
}

// TTS selects and configures the speech synthesis backend.
type TTS struct {
	Provider       string  `toml:"provider"`
	Binary         string  `toml:"binary"`
	BaseURL        string  `toml:"base_url"`
	Voice          string  `toml:"voice"`
	Rate           string  `toml:"rate"`
	Pitch          string  `toml:"pitch"`
	Volume         string  `toml:"volume"`
	Speed          float64 `toml:"speed"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Concurrency    int     `toml:"concurrency"`
	RetryAttempts  int     `toml:"retry_attempts"`
}

// Image selects and configures the image generation backend.
type Image struct {
	Provider       string `toml:"provider"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	AssetsDir      string `toml:"assets_dir"`
	Width          int    `toml:"width"`
	Height         int    `toml:"height"`
	Steps          int    `toml:"steps"`
	Seed           int64  `toml:"seed"`
	NegativePrompt string `toml:"negative_prompt"`
	DefaultStyle   string `toml:"default_style"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Concurrency    int    `toml:"concurrency"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// Pipeline contains run-level planning and scheduling settings.
type Pipeline struct {
	SegmentCount          int    `toml:"segment_count"`
	MinWords              int    `toml:"min_words"`
	MaxWords              int    `toml:"max_words"`
	CountTolerance        int    `toml:"count_tolerance"`
	RelaxedRetry          bool   `toml:"relaxed_retry"`
	Concurrency           int    `toml:"concurrency"`
	FailureTolerance      int    `toml:"failure_tolerance"`
	SegmentAttempts       int    `toml:"segment_attempts"`
	SegmentTimeoutSeconds int    `toml:"segment_timeout_seconds"`
	EventsBuffer          int    `toml:"events_buffer"`
	TitleStrategy         string `toml:"title_strategy"`
	TitleMaxLength        int    `toml:"title_max_length"`
}

// Video contains assembly and encoding settings.
type Video struct {
	Template      string  `toml:"template"`
	BGMVolume     float64 `toml:"bgm_volume"`
	BGMMode       string  `toml:"bgm_mode"`
	FFmpegBinary  string  `toml:"ffmpeg_binary"`
	FFprobeBinary string  `toml:"ffprobe_binary"`
	VideoCodec    string  `toml:"video_codec"`
	CRF           int     `toml:"crf"`
	Preset        string  `toml:"preset"`
	AudioBitrate  string  `toml:"audio_bitrate"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunCompleted   bool   `toml:"run_completed"`
	RunFailed      bool   `toml:"run_failed"`
}

// Config encapsulates all configuration values for reelforge.
//
// Configuration sections by subsystem:
//   - Paths: output, media, state, log, and template directories plus the
//     HTTP API bind address and bearer token
//   - LLM / TTS / Image: backend variant selection plus per-backend limits
//   - Pipeline: planning bounds, concurrency, and failure tolerance
//   - Video: template, background music, and ffmpeg encode settings
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	LLM           LLM           `toml:"llm"`
	TTS           TTS           `toml:"tts"`
	Image         Image         `toml:"image"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Video         Video         `toml:"video"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reelforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.MediaDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunStorePath returns the sqlite database holding run history.
func (c *Config) RunStorePath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
