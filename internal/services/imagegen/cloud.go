package imagegen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"reelforge/internal/gateway"
	"reelforge/internal/logging"
	"reelforge/internal/media"
	"reelforge/internal/media/store"
	"reelforge/internal/services"
)

// CloudConfig configures a Pollinations-style image service.
type CloudConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// CloudClient fetches generated images with GET /prompt/{prompt}.
type CloudClient struct {
	cfg   CloudConfig
	store *store.Store
	opts  options
}

// NewCloudClient constructs a cloud image client.
func NewCloudClient(cfg CloudConfig, st *store.Store, opts ...Option) *CloudClient {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return &CloudClient{cfg: cfg, store: st, opts: buildOptions(cfg.TimeoutSeconds, opts)}
}

// Backend returns the limiter key for this client.
func (c *CloudClient) Backend() string {
	return gateway.BackendName(gateway.CapabilityImage, VariantCloud)
}

func (c *CloudClient) requestURL(req gateway.ImageRequest) string {
	query := url.Values{}
	query.Set("width", strconv.Itoa(req.Width))
	query.Set("height", strconv.Itoa(req.Height))
	query.Set("nologo", "true")
	if req.Seed >= 0 {
		query.Set("seed", strconv.FormatInt(req.Seed, 10))
	}
	if req.NegativePrompt != "" {
		query.Set("negative_prompt", req.NegativePrompt)
	}
	if c.cfg.Model != "" {
		query.Set("model", c.cfg.Model)
	}
	return c.cfg.BaseURL + "/prompt/" + url.PathEscape(req.Prompt) + "?" + query.Encode()
}

// Generate fetches an image for req and stores it.
func (c *CloudClient) Generate(ctx context.Context, req gateway.ImageRequest) (media.Locator, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}
	if c.cfg.BaseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "image", "generate", "image.base_url required for cloud provider", nil)
	}
	endpoint := c.requestURL(req)
	return gateway.Call(ctx, c.opts.limiter, c.Backend(), c.opts.policy, func(ctx context.Context) (media.Locator, error) {
		data, err := c.fetchOnce(ctx, endpoint)
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
			logging.Int("bytes", len(data)),
		)
		return loc, nil
	})
}

func (c *CloudClient) fetchOnce(ctx context.Context, endpoint string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "image", "fetch", "build request", err)
	}
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.opts.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()
	if err := gateway.CheckResponse(c.Backend(), resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "image", "fetch", "read body", err)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrTransient, "image", "fetch", "empty image payload", nil)
	}
	return data, nil
}
