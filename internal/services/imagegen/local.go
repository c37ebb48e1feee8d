package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"reelforge/internal/gateway"
	"reelforge/internal/logging"
	"reelforge/internal/media"
	"reelforge/internal/media/store"
	"reelforge/internal/services"
)

const txt2imgPath = "/sdapi/v1/txt2img"

// LocalConfig configures a Stable Diffusion WebUI backend.
type LocalConfig struct {
	BaseURL        string
	Steps          int
	TimeoutSeconds int
}

// LocalClient generates images through a Stable Diffusion WebUI API.
type LocalClient struct {
	cfg   LocalConfig
	store *store.Store
	opts  options
}

// NewLocalClient constructs a txt2img client.
func NewLocalClient(cfg LocalConfig, st *store.Store, opts ...Option) *LocalClient {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &LocalClient{cfg: cfg, store: st, opts: buildOptions(cfg.TimeoutSeconds, opts)}
}

// Backend returns the limiter key for this client.
func (c *LocalClient) Backend() string {
	return gateway.BackendName(gateway.CapabilityImage, VariantLocal)
}

type txt2imgRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	Seed           int64  `json:"seed"`
	BatchSize      int    `json:"batch_size"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

// Generate renders req and stores the first returned image.
func (c *LocalClient) Generate(ctx context.Context, req gateway.ImageRequest) (media.Locator, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}
	if c.cfg.BaseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "image", "generate", "image.base_url required for local provider", nil)
	}
	steps := req.Steps
	if steps <= 0 {
		steps = c.cfg.Steps
	}
	body, err := json.Marshal(txt2imgRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          steps,
		Seed:           req.Seed,
		BatchSize:      1,
	})
	if err != nil {
		return "", fmt.Errorf("txt2img encode body: %w", err)
	}
	return gateway.Call(ctx, c.opts.limiter, c.Backend(), c.opts.policy, func(ctx context.Context) (media.Locator, error) {
		data, err := c.postOnce(ctx, body)
		if err != nil {
			return "", err
		}
		loc, info, err := storeImage(ctx, c.store, req, data)
		if err != nil {
			return "", err
		}
		c.opts.logger.Debug("image generated",
			logging.String(logging.FieldBackend, c.Backend()),
			logging.Int(logging.FieldSegmentIndex, req.Index),
			logging.String("format", info.Format),
			logging.Int("width", info.Width),
			logging.Int("height", info.Height),
		)
		return loc, nil
	})
}

func (c *LocalClient) postOnce(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+txt2imgPath, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "image", "txt2img", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.opts.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("txt2img request: %w", err)
	}
	defer resp.Body.Close()
	if err := gateway.CheckResponse(c.Backend(), resp); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes*2))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "image", "txt2img", "read body", err)
	}
	var decoded txt2imgResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, services.Wrap(services.ErrTransient, "image", "txt2img", "decode response", err)
	}
	if len(decoded.Images) == 0 || strings.TrimSpace(decoded.Images[0]) == "" {
		return nil, services.Wrap(services.ErrTransient, "image", "txt2img", "no images returned", nil)
	}
	encoded := decoded.Images[0]
	// Some WebUI builds prefix a data URI.
	if idx := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && idx > 0 {
		encoded = encoded[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "image", "txt2img", "invalid base64 image", err)
	}
	return data, nil
}

func validateRequest(req gateway.ImageRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return services.Wrap(services.ErrValidation, "image", "generate", "empty prompt", nil)
	}
	if req.Width <= 0 || req.Height <= 0 {
		return services.Wrap(services.ErrValidation, "image", "generate",
			fmt.Sprintf("invalid size %dx%d", req.Width, req.Height), nil)
	}
	return nil
}
