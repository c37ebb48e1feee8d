package imagegen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"reelforge/internal/gateway"
	"reelforge/internal/logging"
	"reelforge/internal/media"
	"reelforge/internal/media/store"
	"reelforge/internal/services"
)

var assetExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// AssetsConfig configures the image library backend.
type AssetsConfig struct {
	Dir string
}

// AssetsClient illustrates segments with images from a local library
// instead of generating them. Each segment gets the file whose name shares
// the most words with its prompt; segments with no match rotate through the
// library by index.
type AssetsClient struct {
	cfg   AssetsConfig
	store *store.Store
	opts  options
}

// NewAssetsClient constructs a library-backed client.
func NewAssetsClient(cfg AssetsConfig, st *store.Store, opts ...Option) *AssetsClient {
	cfg.Dir = strings.TrimSpace(cfg.Dir)
	return &AssetsClient{cfg: cfg, store: st, opts: buildOptions(0, opts)}
}

// Backend returns the limiter key for this client.
func (c *AssetsClient) Backend() string {
	return gateway.BackendName(gateway.CapabilityImage, VariantAssets)
}

// Generate copies the best matching library image into the store.
func (c *AssetsClient) Generate(ctx context.Context, req gateway.ImageRequest) (media.Locator, error) {
	if c.cfg.Dir == "" {
		return "", services.Wrap(services.ErrConfiguration, "image", "assets", "image.assets_dir required for assets provider", nil)
	}
	return gateway.Call(ctx, c.opts.limiter, c.Backend(), c.opts.policy, func(ctx context.Context) (media.Locator, error) {
		files, err := ListAssets(c.cfg.Dir)
		if err != nil {
			return "", err
		}
		path := pickAsset(files, req.Prompt, req.Index)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", services.Wrap(services.ErrConfiguration, "image", "assets", "read "+path, err)
		}
		loc, info, err := storeImage(ctx, c.store, req, data)
		if err != nil {
			return "", err
		}
		c.opts.logger.Debug("library image selected",
			logging.String(logging.FieldBackend, c.Backend()),
			logging.Int(logging.FieldSegmentIndex, req.Index),
			logging.String("asset", filepath.Base(path)),
			logging.String("format", info.Format),
		)
		return loc, nil
	})
}

// ListAssets returns the image files directly inside dir, sorted by name.
func ListAssets(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "image", "assets", "read asset library", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if slices.Contains(assetExtensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "image", "assets",
			fmt.Sprintf("no images (%s) in %s", strings.Join(assetExtensions, ", "), dir), nil)
	}
	slices.Sort(files)
	return files, nil
}

// pickAsset scores each file by the words of its base name found in prompt.
// Ties among the best matches, and prompts matching nothing, are broken by
// index so neighbouring segments do not repeat the same picture.
func pickAsset(files []string, prompt string, index int) string {
	promptWords := make(map[string]bool)
	for _, w := range words(prompt) {
		promptWords[w] = true
	}
	best, candidates := 0, files
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		score := 0
		for _, w := range words(name) {
			if promptWords[w] {
				score++
			}
		}
		switch {
		case score > best:
			best, candidates = score, []string{f}
		case score == best && best > 0:
			candidates = append(candidates, f)
		}
	}
	return candidates[max(index, 0)%len(candidates)]
}

// words splits s into lower-case words of at least three letters or digits.
func words(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			out = append(out, f)
		}
	}
	return out
}
