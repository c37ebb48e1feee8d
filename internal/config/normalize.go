package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeTTS()
	if err := c.normalizeImage(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeVideo()
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MediaDir) == "" {
		c.Paths.MediaDir = defaultMediaDir
	}
	if c.Paths.MediaDir, err = expandPath(c.Paths.MediaDir); err != nil {
		return fmt.Errorf("paths.media_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.TemplatesDir, err = expandPath(strings.TrimSpace(c.Paths.TemplatesDir)); err != nil {
		return fmt.Errorf("paths.templates_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = lookupFirstEnv("REELFORGE_API_TOKEN")
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.LLM.Preset = strings.ToLower(strings.TrimSpace(c.LLM.Preset))
	c.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.LLM.BaseURL), "/")
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)

	preset, hasPreset := LookupLLMPreset(c.LLM.Preset)
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
		if hasPreset && preset.SelfHosted {
			c.LLM.Provider = ProviderSelfHosted
		}
	}
	if hasPreset {
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = preset.BaseURL
		}
		if c.LLM.Model == "" {
			c.LLM.Model = preset.Model
		}
	}
	if c.LLM.APIKey == "" {
		envs := []string{"REELFORGE_LLM_API_KEY"}
		if hasPreset {
			envs = append(envs, preset.KeyEnv...)
		}
		envs = append(envs, "LLM_API_KEY")
		c.LLM.APIKey = lookupFirstEnv(envs...)
	}
	if c.LLM.Temperature < 0 {
		c.LLM.Temperature = defaultLLMTemperature
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.LLM.Concurrency <= 0 {
		c.LLM.Concurrency = defaultLLMConcurrency
	}
	if c.LLM.RetryAttempts <= 0 {
		c.LLM.RetryAttempts = defaultRetryAttempts
	}
}

func (c *Config) normalizeTTS() {
	c.TTS.Provider = strings.ToLower(strings.TrimSpace(c.TTS.Provider))
	if c.TTS.Provider == "" {
		c.TTS.Provider = defaultTTSProvider
	}
	c.TTS.Binary = strings.TrimSpace(c.TTS.Binary)
	if c.TTS.Binary == "" {
		c.TTS.Binary = defaultTTSBinary
	}
	c.TTS.BaseURL = strings.TrimRight(strings.TrimSpace(c.TTS.BaseURL), "/")
	c.TTS.Voice = strings.TrimSpace(c.TTS.Voice)
	if c.TTS.Voice == "" {
		c.TTS.Voice = defaultTTSVoice
	}
	c.TTS.Rate = strings.TrimSpace(c.TTS.Rate)
	c.TTS.Pitch = strings.TrimSpace(c.TTS.Pitch)
	c.TTS.Volume = strings.TrimSpace(c.TTS.Volume)
	if c.TTS.Speed <= 0 {
		c.TTS.Speed = 1.0
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeoutSeconds
	}
	if c.TTS.Concurrency <= 0 {
		c.TTS.Concurrency = defaultTTSConcurrency
	}
	if c.TTS.RetryAttempts <= 0 {
		c.TTS.RetryAttempts = defaultRetryAttempts
	}
}

func (c *Config) normalizeImage() error {
	c.Image.Provider = strings.ToLower(strings.TrimSpace(c.Image.Provider))
	if c.Image.Provider == "" {
		c.Image.Provider = defaultImageProvider
	}
	c.Image.BaseURL = strings.TrimRight(strings.TrimSpace(c.Image.BaseURL), "/")
	if c.Image.BaseURL == "" {
		switch c.Image.Provider {
		case ProviderImageLocal:
			c.Image.BaseURL = defaultImageLocalBaseURL
		case ProviderImageCloud:
			c.Image.BaseURL = defaultImageCloudBaseURL
		}
	}
	c.Image.APIKey = strings.TrimSpace(c.Image.APIKey)
	if c.Image.APIKey == "" {
		c.Image.APIKey = lookupFirstEnv("REELFORGE_IMAGE_API_KEY", "POLLINATIONS_API_KEY")
	}
	c.Image.Model = strings.TrimSpace(c.Image.Model)
	var err error
	if c.Image.AssetsDir, err = expandPath(strings.TrimSpace(c.Image.AssetsDir)); err != nil {
		return fmt.Errorf("image.assets_dir: %w", err)
	}
	c.Image.NegativePrompt = strings.TrimSpace(c.Image.NegativePrompt)
	c.Image.DefaultStyle = strings.TrimSpace(c.Image.DefaultStyle)
	if c.Image.DefaultStyle == "" {
		c.Image.DefaultStyle = defaultImageStyle
	}
	if c.Image.Width <= 0 {
		c.Image.Width = defaultImageSize
	}
	if c.Image.Height <= 0 {
		c.Image.Height = defaultImageSize
	}
	if c.Image.Steps <= 0 {
		c.Image.Steps = defaultImageSteps
	}
	if c.Image.TimeoutSeconds <= 0 {
		c.Image.TimeoutSeconds = defaultImageTimeoutSeconds
	}
	if c.Image.Concurrency <= 0 {
		c.Image.Concurrency = defaultImageConcurrency
	}
	if c.Image.RetryAttempts <= 0 {
		c.Image.RetryAttempts = defaultRetryAttempts
	}
	return nil
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.SegmentCount <= 0 {
		c.Pipeline.SegmentCount = defaultSegmentCount
	}
	if c.Pipeline.MinWords <= 0 {
		c.Pipeline.MinWords = defaultMinWords
	}
	if c.Pipeline.MaxWords <= 0 {
		c.Pipeline.MaxWords = defaultMaxWords
	}
	if c.Pipeline.CountTolerance < 0 {
		c.Pipeline.CountTolerance = 0
	}
	if c.Pipeline.Concurrency <= 0 {
		c.Pipeline.Concurrency = defaultPipelineConcurrency
	}
	if c.Pipeline.FailureTolerance < 0 {
		c.Pipeline.FailureTolerance = 0
	}
	if c.Pipeline.SegmentAttempts <= 0 {
		c.Pipeline.SegmentAttempts = defaultSegmentAttempts
	}
	if c.Pipeline.SegmentTimeoutSeconds <= 0 {
		c.Pipeline.SegmentTimeoutSeconds = defaultSegmentTimeoutSeconds
	}
	if c.Pipeline.EventsBuffer <= 0 {
		c.Pipeline.EventsBuffer = defaultEventsBuffer
	}
	c.Pipeline.TitleStrategy = strings.ToLower(strings.TrimSpace(c.Pipeline.TitleStrategy))
	if c.Pipeline.TitleStrategy == "" {
		c.Pipeline.TitleStrategy = defaultTitleStrategy
	}
	if c.Pipeline.TitleMaxLength <= 0 {
		c.Pipeline.TitleMaxLength = defaultTitleMaxLength
	}
}

func (c *Config) normalizeVideo() {
	c.Video.Template = strings.Trim(strings.TrimSpace(c.Video.Template), "/")
	if c.Video.Template == "" {
		c.Video.Template = defaultTemplate
	}
	c.Video.BGMMode = strings.ToLower(strings.TrimSpace(c.Video.BGMMode))
	if c.Video.BGMMode == "" {
		c.Video.BGMMode = defaultBGMMode
	}
	if c.Video.BGMVolume < 0 {
		c.Video.BGMVolume = defaultBGMVolume
	}
	if strings.TrimSpace(c.Video.FFmpegBinary) == "" {
		c.Video.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Video.FFprobeBinary) == "" {
		c.Video.FFprobeBinary = defaultFFprobeBinary
	}
	if strings.TrimSpace(c.Video.VideoCodec) == "" {
		c.Video.VideoCodec = defaultVideoCodec
	}
	if c.Video.CRF <= 0 {
		c.Video.CRF = defaultCRF
	}
	if strings.TrimSpace(c.Video.Preset) == "" {
		c.Video.Preset = defaultEncodePreset
	}
	if strings.TrimSpace(c.Video.AudioBitrate) == "" {
		c.Video.AudioBitrate = defaultAudioBitrate
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = lookupFirstEnv("REELFORGE_NTFY_TOPIC")
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func lookupFirstEnv(names ...string) string {
	for _, name := range names {
		if value, ok := os.LookupEnv(name); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
