package imagegen

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"reelforge/internal/gateway"
	"reelforge/internal/logging"
	"reelforge/internal/media"
	"reelforge/internal/media/imageinfo"
	"reelforge/internal/media/store"
	"reelforge/internal/services"
)

const (
	VariantLocal  = "local"
	VariantCloud  = "cloud"
	VariantAssets = "assets"

	maxImageBytes = 32 << 20
)

type options struct {
	policy     gateway.Policy
	limiter    *gateway.Limiter
	logger     *slog.Logger
	httpClient *http.Client
}

// Option customizes an image client.
type Option func(*options)

// WithPolicy overrides the retry policy.
func WithPolicy(policy gateway.Policy) Option {
	return func(o *options) { o.policy = policy }
}

// WithLimiter sets the limiter that bounds concurrent generations.
func WithLimiter(limiter *gateway.Limiter) Option {
	return func(o *options) { o.limiter = limiter }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func buildOptions(timeoutSeconds int, opts []Option) options {
	o := options{
		policy: gateway.DefaultPolicy(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		timeout := 180 * time.Second
		if timeoutSeconds > 0 {
			timeout = time.Duration(timeoutSeconds) * time.Second
		}
		o.httpClient = &http.Client{Timeout: timeout}
	}
	return o
}

// storeImage validates data as an image and writes it to the store.
func storeImage(ctx context.Context, st *store.Store, req gateway.ImageRequest, data []byte) (media.Locator, imageinfo.Info, error) {
	info, err := imageinfo.Detect(data)
	if err != nil {
		return "", info, services.Wrap(services.ErrValidation, "image", "decode", "undecodable image payload", err)
	}
	loc, err := st.Put(ctx, store.Key{RunID: req.RunID, Kind: media.KindImage, Index: req.Index}, info.Ext(), data)
	if err != nil {
		return "", info, err
	}
	return loc, info, nil
}
