package config

const (
	defaultOutputDir             = "~/Videos/reelforge"
	defaultMediaDir              = "~/.local/share/reelforge/media"
	defaultStateDir              = "~/.local/share/reelforge/state"
	defaultLogDir                = "~/.local/share/reelforge/logs"
	defaultAPIBind               = "127.0.0.1:7487"
	defaultLogRetentionDays      = 30
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLLMProvider           = ProviderCloud
	defaultLLMPreset             = "openai"
	defaultLLMTemperature        = 0.8
	defaultLLMTimeoutSeconds     = 60
	defaultLLMConcurrency        = 4
	defaultTTSProvider           = ProviderEdge
	defaultTTSBinary             = "edge-tts"
	defaultTTSVoice              = "en-US-AriaNeural"
	defaultTTSTimeoutSeconds     = 90
	defaultTTSConcurrency        = 4
	defaultImageProvider         = ProviderImageCloud
	defaultImageCloudBaseURL     = "https://image.pollinations.ai"
	defaultImageLocalBaseURL     = "http://127.0.0.1:7860"
	defaultImageSize             = 1024
	defaultImageSteps            = 20
	defaultImageStyle            = "stick_figure"
	defaultImageTimeoutSeconds   = 180
	defaultImageConcurrency      = 2
	defaultRetryAttempts         = 3
	defaultSegmentCount          = 5
	defaultMinWords              = 5
	defaultMaxWords              = 20
	defaultCountTolerance        = 1
	defaultPipelineConcurrency   = 4
	defaultSegmentAttempts       = 2
	defaultSegmentTimeoutSeconds = 300
	defaultEventsBuffer          = 64
	defaultTitleStrategy         = "auto"
	defaultTitleMaxLength        = 15
	defaultTemplate              = "1080x1920/default"
	defaultBGMVolume             = 0.3
	defaultBGMMode               = "loop"
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultVideoCodec            = "libx264"
	defaultCRF                   = 22
	defaultEncodePreset          = "fast"
	defaultAudioBitrate          = "192k"
	defaultNotifyTimeout         = 10
)

// Backend variant names accepted by the provider keys.
const (
	ProviderCloud       = "cloud"
	ProviderSelfHosted  = "selfhosted"
	ProviderEdge        = "edge"
	ProviderHTTP        = "http"
	ProviderImageLocal  = "local"
	ProviderImageCloud  = "cloud"
	ProviderImageAssets = "assets"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			MediaDir:  defaultMediaDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			Preset:         defaultLLMPreset,
			Temperature:    defaultLLMTemperature,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			Concurrency:    defaultLLMConcurrency,
			RetryAttempts:  defaultRetryAttempts,
		},
		TTS: TTS{
			Provider:       defaultTTSProvider,
			Binary:         defaultTTSBinary,
			Voice:          defaultTTSVoice,
			Speed:          1.0,
			TimeoutSeconds: defaultTTSTimeoutSeconds,
			Concurrency:    defaultTTSConcurrency,
			RetryAttempts:  defaultRetryAttempts,
		},
		Image: Image{
			Provider:       defaultImageProvider,
			Width:          defaultImageSize,
			Height:         defaultImageSize,
			Steps:          defaultImageSteps,
			Seed:           -1,
			DefaultStyle:   defaultImageStyle,
			TimeoutSeconds: defaultImageTimeoutSeconds,
			Concurrency:    defaultImageConcurrency,
			RetryAttempts:  defaultRetryAttempts,
		},
		Pipeline: Pipeline{
			SegmentCount:          defaultSegmentCount,
			MinWords:              defaultMinWords,
			MaxWords:              defaultMaxWords,
			CountTolerance:        defaultCountTolerance,
			RelaxedRetry:          true,
			Concurrency:           defaultPipelineConcurrency,
			FailureTolerance:      0,
			SegmentAttempts:       defaultSegmentAttempts,
			SegmentTimeoutSeconds: defaultSegmentTimeoutSeconds,
			EventsBuffer:          defaultEventsBuffer,
			TitleStrategy:         defaultTitleStrategy,
			TitleMaxLength:        defaultTitleMaxLength,
		},
		Video: Video{
			Template:      defaultTemplate,
			BGMVolume:     defaultBGMVolume,
			BGMMode:       defaultBGMMode,
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			VideoCodec:    defaultVideoCodec,
			CRF:           defaultCRF,
			Preset:        defaultEncodePreset,
			AudioBitrate:  defaultAudioBitrate,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunCompleted:   true,
			RunFailed:      true,
		},
	}
}
