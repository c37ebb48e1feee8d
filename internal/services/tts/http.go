package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelforge/internal/gateway"
	"reelforge/internal/logging"
	"reelforge/internal/media"
	"reelforge/internal/media/audiofile"
	"reelforge/internal/media/store"
	"reelforge/internal/services"
)

const maxAudioBytes = 64 << 20

// HTTPConfig configures a local TTS model server.
type HTTPConfig struct {
	// Endpoint receives POST {text, voice, speed}.
	Endpoint       string
	Voice          string
	Speed          float64
	TimeoutSeconds int
}

// HTTPClient synthesizes speech via a local model server.
type HTTPClient struct {
	cfg   HTTPConfig
	store *store.Store
	opts  options
}

// NewHTTPClient constructs a client for a local TTS server.
func NewHTTPClient(cfg HTTPConfig, st *store.Store, opts ...Option) *HTTPClient {
	o := buildOptions(opts)
	if o.httpClient == nil {
		timeout := 90 * time.Second
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		o.httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	return &HTTPClient{cfg: cfg, store: st, opts: o}
}

// Backend returns the limiter key for this client.
func (c *HTTPClient) Backend() string {
	return gateway.BackendName(gateway.CapabilityTTS, VariantHTTP)
}

type speechPayload struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed"`
}

// Synthesize posts req to the server and stores the returned audio.
func (c *HTTPClient) Synthesize(ctx context.Context, req gateway.SpeechRequest) (media.Locator, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", services.Wrap(services.ErrValidation, "tts", "synthesize", "empty text", nil)
	}
	if c.cfg.Endpoint == "" {
		return "", services.Wrap(services.ErrConfiguration, "tts", "synthesize", "tts.base_url required for http provider", nil)
	}
	if c.store == nil {
		return "", services.Wrap(services.ErrConfiguration, "tts", "synthesize", "media store not configured", nil)
	}
	speed := c.cfg.Speed
	if req.Speed > 0 {
		speed = req.Speed
	}
	body, err := json.Marshal(speechPayload{
		Text:  req.Text,
		Voice: firstNonBlank(req.Voice, c.cfg.Voice),
		Speed: speed,
	})
	if err != nil {
		return "", fmt.Errorf("tts encode body: %w", err)
	}

	audio, err := gateway.Call(ctx, c.opts.limiter, c.Backend(), c.opts.policy, func(ctx context.Context) ([]byte, error) {
		return c.postOnce(ctx, body)
	})
	if err != nil {
		return "", err
	}
	ext, err := audiofile.IdentifyBytes(audio)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "tts", "http", "undecodable audio", err)
	}
	loc, err := c.store.Put(ctx, store.Key{RunID: req.RunID, Kind: media.KindAudio, Index: req.Index}, ext, audio)
	if err != nil {
		return "", err
	}
	c.opts.logger.Debug("speech synthesized",
		logging.String(logging.FieldBackend, c.Backend()),
		logging.Int(logging.FieldSegmentIndex, req.Index),
		logging.Int("bytes", len(audio)),
	)
	return loc, nil
}

func (c *HTTPClient) postOnce(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "tts", "http", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		httpReq.Header.Set("X-Request-ID", requestID)
	}
	resp, err := c.opts.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()
	if err := gateway.CheckResponse(c.Backend(), resp); err != nil {
		return nil, err
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tts", "http", "read body", err)
	}
	if len(audio) == 0 {
		return nil, services.Wrap(services.ErrTransient, "tts", "http", "empty audio payload", nil)
	}
	return audio, nil
}
