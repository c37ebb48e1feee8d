package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"reelforge/internal/gateway"
	"reelforge/internal/logging"
	"reelforge/internal/media"
	"reelforge/internal/media/audiofile"
	"reelforge/internal/media/store"
	"reelforge/internal/services"
	"reelforge/internal/textutil"
)

// EdgeConfig configures the edge-tts CLI backend.
type EdgeConfig struct {
	Binary string
	Voice  string
	Rate   string
	Pitch  string
	Volume string
}

// EdgeClient synthesizes speech with the edge-tts CLI.
type EdgeClient struct {
	cfg   EdgeConfig
	store *store.Store
	opts  options
}

// NewEdgeClient constructs an edge-tts backed client.
func NewEdgeClient(cfg EdgeConfig, st *store.Store, opts ...Option) *EdgeClient {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "edge-tts"
	}
	return &EdgeClient{cfg: cfg, store: st, opts: buildOptions(opts)}
}

// Backend returns the limiter key for this client.
func (c *EdgeClient) Backend() string {
	return gateway.BackendName(gateway.CapabilityTTS, VariantEdge)
}

// Synthesize renders req.Text to an mp3 blob.
func (c *EdgeClient) Synthesize(ctx context.Context, req gateway.SpeechRequest) (media.Locator, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", services.Wrap(services.ErrValidation, "tts", "synthesize", "empty text", nil)
	}
	if c.store == nil {
		return "", services.Wrap(services.ErrConfiguration, "tts", "synthesize", "media store not configured", nil)
	}
	return gateway.Call(ctx, c.opts.limiter, c.Backend(), c.opts.policy, func(ctx context.Context) (media.Locator, error) {
		return c.synthesizeOnce(ctx, req)
	})
}

func (c *EdgeClient) args(req gateway.SpeechRequest, output string) []string {
	voice := firstNonBlank(req.Voice, c.cfg.Voice)
	args := []string{"--text=" + req.Text, "--write-media", output}
	if voice != "" {
		args = append(args, "--voice", voice)
	}
	// Values such as "-10%" must be attached with "=" or the CLI parses
	// them as flags.
	if rate := firstNonBlank(req.Rate, c.cfg.Rate); rate != "" {
		args = append(args, "--rate="+rate)
	}
	if pitch := firstNonBlank(req.Pitch, c.cfg.Pitch); pitch != "" {
		args = append(args, "--pitch="+pitch)
	}
	if volume := firstNonBlank(req.Volume, c.cfg.Volume); volume != "" {
		args = append(args, "--volume="+volume)
	}
	return args
}

func (c *EdgeClient) synthesizeOnce(ctx context.Context, req gateway.SpeechRequest) (media.Locator, error) {
	key := store.Key{RunID: req.RunID, Kind: media.KindAudio, Index: req.Index}
	scratch, err := c.store.ScratchFile(key, "mp3")
	if err != nil {
		return "", fmt.Errorf("tts scratch file: %w", err)
	}
	adopted := false
	defer func() {
		if !adopted {
			_ = os.Remove(scratch)
		}
	}()

	started := time.Now()
	cmd := exec.CommandContext(ctx, c.cfg.Binary, c.args(req, scratch)...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return "", services.Wrap(services.ErrConfiguration, "tts", "edge-tts",
				fmt.Sprintf("binary %q not found", c.cfg.Binary), err)
		}
		return "", services.Wrap(services.ErrTransient, "tts", "edge-tts",
			textutil.ClipRunes(strings.TrimSpace(stderr.String()), 200), err)
	}

	info, err := os.Stat(scratch)
	if err != nil || info.Size() == 0 {
		return "", services.Wrap(services.ErrTransient, "tts", "edge-tts", "no audio written", err)
	}
	ext, err := audiofile.IdentifyFile(scratch)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "tts", "edge-tts", "undecodable audio", err)
	}
	loc, err := c.store.Adopt(ctx, key, ext, scratch)
	if err != nil {
		return "", err
	}
	adopted = true
	c.opts.logger.Debug("speech synthesized",
		logging.String(logging.FieldBackend, c.Backend()),
		logging.Int(logging.FieldSegmentIndex, req.Index),
		logging.Int64("bytes", info.Size()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return loc, nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
