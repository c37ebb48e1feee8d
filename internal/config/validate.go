package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxSegmentCount        = 20
	maxPipelineConcurrency = 16
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateImage(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case ProviderCloud, ProviderSelfHosted:
	default:
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderCloud, ProviderSelfHosted, c.LLM.Provider)
	}
	if c.LLM.Preset != "" {
		if _, ok := LookupLLMPreset(c.LLM.Preset); !ok {
			return fmt.Errorf("llm.preset %q is unknown (known: %s)", c.LLM.Preset, strings.Join(LLMPresetNames(), ", "))
		}
	}
	if c.LLM.BaseURL == "" {
		return errors.New("llm.base_url must be set (or choose an llm.preset)")
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model must be set (or choose an llm.preset)")
	}
	if c.LLM.Provider == ProviderCloud && c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/reelforge/config.toml"
		}
		return fmt.Errorf("llm.api_key is required for the cloud provider. Set REELFORGE_LLM_API_KEY or edit %s (create with 'reelforge config init')", defaultPath)
	}
	if c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateTTS() error {
	switch c.TTS.Provider {
	case ProviderEdge:
	case ProviderHTTP:
		if c.TTS.BaseURL == "" {
			return errors.New("tts.base_url must be set when tts.provider is \"http\"")
		}
	default:
		return fmt.Errorf("tts.provider must be %q or %q, got %q", ProviderEdge, ProviderHTTP, c.TTS.Provider)
	}
	return nil
}

func (c *Config) validateImage() error {
	switch c.Image.Provider {
	case ProviderImageLocal, ProviderImageCloud:
		if c.Image.BaseURL == "" {
			return errors.New("image.base_url must be set")
		}
	case ProviderImageAssets:
		if c.Image.AssetsDir == "" {
			return errors.New("image.assets_dir must be set for the assets provider")
		}
	default:
		return fmt.Errorf("image.provider must be %q, %q, or %q, got %q", ProviderImageLocal, ProviderImageCloud, ProviderImageAssets, c.Image.Provider)
	}
	if c.Image.Width%8 != 0 || c.Image.Height%8 != 0 {
		return errors.New("image.width and image.height must be multiples of 8")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.SegmentCount > maxSegmentCount {
		return fmt.Errorf("pipeline.segment_count must be between 1 and %d", maxSegmentCount)
	}
	if p.MinWords > p.MaxWords {
		return errors.New("pipeline.min_words must not exceed pipeline.max_words")
	}
	if p.Concurrency > maxPipelineConcurrency {
		return fmt.Errorf("pipeline.concurrency must be between 1 and %d", maxPipelineConcurrency)
	}
	switch p.TitleStrategy {
	case "auto", "direct", "llm":
	default:
		return fmt.Errorf("pipeline.title_strategy must be auto, direct, or llm, got %q", p.TitleStrategy)
	}
	return nil
}

func (c *Config) validateVideo() error {
	if !strings.Contains(c.Video.Template, "/") {
		return fmt.Errorf("video.template must look like WIDTHxHEIGHT/name, got %q", c.Video.Template)
	}
	switch c.Video.BGMMode {
	case "loop", "once":
	default:
		return fmt.Errorf("video.bgm_mode must be loop or once, got %q", c.Video.BGMMode)
	}
	if c.Video.BGMVolume > 1 {
		return errors.New("video.bgm_volume must be between 0 and 1")
	}
	if c.Video.CRF > 51 {
		return errors.New("video.crf must be between 0 and 51")
	}
	return nil
}
