package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"reelforge/internal/gateway"
	"reelforge/internal/logging"
	"reelforge/internal/segment"
	"reelforge/internal/services"
	"reelforge/internal/services/llm"
	"reelforge/internal/textutil"
)

// SourceKind selects how narrations are produced.
type SourceKind string

const (
	SourceTopic   SourceKind = "topic"
	SourceScript  SourceKind = "script"
	SourceContent SourceKind = "content"
)

// ParseSourceKind validates a user-supplied source kind.
func ParseSourceKind(value string) (SourceKind, error) {
	switch kind := SourceKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case SourceTopic, SourceScript, SourceContent:
		return kind, nil
	case "":
		return SourceTopic, nil
	default:
		return "", fmt.Errorf("unknown source kind %q (want topic, script, or content)", value)
	}
}

// Source is the user input a run starts from.
type Source struct {
	Kind SourceKind `json:"kind"`
	Text string     `json:"text"`
}

// Options bounds the plan.
type Options struct {
	SegmentCount   int
	MinWords       int
	MaxWords       int
	CountTolerance int
	// Relaxed widens the tolerance to at least 2 and asks for an approximate count.
	Relaxed bool
}

func (o Options) tolerance() int {
	tol := max(o.CountTolerance, 0)
	if o.Relaxed && tol < 2 {
		tol = 2
	}
	return tol
}

// Planner produces narration segments through the LLM.
type Planner struct {
	client gateway.LLM
	logger *slog.Logger
}

// New constructs a planner.
func New(client gateway.LLM, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{client: client, logger: logger}
}

func planningError(op, message string, err error) error {
	return services.Wrap(services.ErrPlanning, "planning", op, message, err)
}

// Plan returns narrations indexed 0..N-1.
func (p *Planner) Plan(ctx context.Context, src Source, opts Options) ([]segment.Narration, error) {
	if strings.TrimSpace(src.Text) == "" {
		return nil, services.Wrap(services.ErrValidation, "planning", "plan", "empty source text", nil)
	}
	if opts.SegmentCount <= 0 && src.Kind != SourceScript {
		return nil, services.Wrap(services.ErrValidation, "planning", "plan", "segment count must be positive", nil)
	}

	var (
		texts []string
		err   error
	)
	switch src.Kind {
	case SourceTopic, "":
		texts, err = p.generate(ctx, topicPrompt(src.Text, opts), opts)
	case SourceContent:
		texts, err = p.generate(ctx, contentPrompt(src.Text, opts), opts)
	case SourceScript:
		texts, err = p.split(ctx, src.Text, opts)
	default:
		return nil, services.Wrap(services.ErrValidation, "planning", "plan", fmt.Sprintf("unknown source kind %q", src.Kind), nil)
	}
	if err != nil {
		return nil, err
	}

	narrations := make([]segment.Narration, len(texts))
	for i, text := range texts {
		narrations[i] = segment.Narration{Index: i, Text: text, MinWords: opts.MinWords, MaxWords: opts.MaxWords}
		p.checkWordBounds(narrations[i])
	}
	if err := segment.ValidateSequence(narrations); err != nil {
		return nil, planningError("plan", "invalid sequence", err)
	}
	p.logger.Info("script planned",
		logging.String(logging.FieldEventType, "script_planned"),
		logging.String("source", string(src.Kind)),
		logging.Int("segments", len(narrations)),
		logging.Bool("relaxed", opts.Relaxed),
	)
	return narrations, nil
}

func (p *Planner) complete(ctx context.Context, user string) (string, error) {
	if p.client == nil {
		return "", services.Wrap(services.ErrConfiguration, "planning", "complete", "llm not configured", nil)
	}
	raw, err := p.client.Complete(ctx, gateway.Prompt{System: jsonOnlySystem, User: user, JSON: true})
	if err != nil {
		return "", fmt.Errorf("planning: llm: %w", err)
	}
	return raw, nil
}

func (p *Planner) generate(ctx context.Context, prompt string, opts Options) ([]string, error) {
	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Narrations []string `json:"narrations"`
	}
	if err := llm.DecodeLLMJSON(raw, &payload); err != nil {
		return nil, planningError("generate", "malformed narration payload", err)
	}
	if payload.Narrations == nil {
		return nil, planningError("generate", "response missing narrations array", nil)
	}
	texts := make([]string, 0, len(payload.Narrations))
	for i, text := range payload.Narrations {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, planningError("generate", fmt.Sprintf("narration %d is empty", i), nil)
		}
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return nil, planningError("generate", "no narrations returned", nil)
	}
	if len(texts) > opts.SegmentCount {
		p.logger.Warn("surplus narrations truncated",
			logging.String(logging.FieldEventType, "narrations_truncated"),
			logging.Int("received", len(texts)),
			logging.Int("requested", opts.SegmentCount),
			logging.String(logging.FieldImpact, "extra scenes dropped"),
		)
		texts = texts[:opts.SegmentCount]
	}
	if short := opts.SegmentCount - len(texts); short > opts.tolerance() {
		return nil, planningError("generate",
			fmt.Sprintf("expected %d narrations, got %d (tolerance %d)", opts.SegmentCount, len(texts), opts.tolerance()), nil)
	}
	return texts, nil
}

func (p *Planner) split(ctx context.Context, script string, opts Options) ([]string, error) {
	raw, err := p.complete(ctx, splitPrompt(script, opts))
	if err != nil {
		return nil, err
	}
	var payload struct {
		Segments []string `json:"segments"`
	}
	if err := llm.DecodeLLMJSON(raw, &payload); err != nil {
		return nil, planningError("split", "malformed segments payload", err)
	}
	if len(payload.Segments) == 0 {
		return nil, planningError("split", "no segments returned", nil)
	}
	texts, err := AlignScript(script, payload.Segments)
	if err != nil {
		return nil, planningError("split", "segments do not match the script", err)
	}
	if opts.SegmentCount > 0 {
		diff := len(texts) - opts.SegmentCount
		if diff < 0 {
			diff = -diff
		}
		if diff > opts.tolerance() {
			return nil, planningError("split",
				fmt.Sprintf("expected %d segments, got %d (tolerance %d)", opts.SegmentCount, len(texts), opts.tolerance()), nil)
		}
	}
	return texts, nil
}

func (p *Planner) checkWordBounds(n segment.Narration) {
	words := textutil.CountWords(n.Text)
	if (n.MinWords > 0 && words < n.MinWords) || (n.MaxWords > 0 && words > n.MaxWords) {
		p.logger.Warn("narration outside word bounds",
			logging.String(logging.FieldEventType, "narration_word_bounds"),
			logging.Int(logging.FieldSegmentIndex, n.Index),
			logging.Int("words", words),
			logging.Int("min_words", n.MinWords),
			logging.Int("max_words", n.MaxWords),
			logging.String(logging.FieldImpact, "narration kept as generated"),
		)
	}
}

// IsPlanningError reports whether err is a planning failure the relaxed
// retry can address.
func IsPlanningError(err error) bool {
	return errors.Is(err, services.ErrPlanning)
}
