package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/layout"
	"reelforge/internal/logging"
	"reelforge/internal/services"
	"reelforge/internal/textutil"
)

// Assembly steps, reported in AssemblyError.Step and to step observers.
const (
	StepPrepare = "prepare"
	StepClip    = "clip"
	StepConcat  = "concat"
	StepAudio   = "audio"
	StepMix     = "mix"
	StepMux     = "mux"
	StepFinal   = "finalize"
)

// AssemblyError reports a failed ffmpeg step. It is never retried.
type AssemblyError struct {
	Step string
	Err  error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assembly %s: %v", e.Step, e.Err)
}

func (e *AssemblyError) Unwrap() []error {
	return []error{services.ErrAssembly, e.Err}
}

// Artifact describes the finished video.
type Artifact struct {
	Path         string        `json:"path"`
	Duration     time.Duration `json:"duration"`
	SegmentCount int           `json:"segment_count"`
	SizeBytes    int64         `json:"size_bytes"`
}

// Runner executes an external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, args ...string) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) error {
	return f(ctx, name, args...)
}

// ExecRunner runs commands with os/exec and folds the tail of their output
// into the returned error.
type ExecRunner struct{}

// Run executes name with args.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		tail := strings.TrimSpace(string(output))
		if len(tail) > 512 {
			tail = tail[len(tail)-512:]
		}
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, tail)
	}
	return nil
}

// WorkDirs hands out private scratch directories per run.
type WorkDirs interface {
	WorkDir(runID string) (string, func(), error)
}

// Settings controls encoding.
type Settings struct {
	FFmpegBinary string
	VideoCodec   string
	CRF          int
	Preset       string
	AudioBitrate string
	BGMVolume    float64
}

// SettingsFromConfig maps the [video] section onto Settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	if cfg == nil {
		return Settings{}
	}
	return Settings{
		FFmpegBinary: cfg.Video.FFmpegBinary,
		VideoCodec:   cfg.Video.VideoCodec,
		CRF:          cfg.Video.CRF,
		Preset:       cfg.Video.Preset,
		AudioBitrate: cfg.Video.AudioBitrate,
		BGMVolume:    cfg.Video.BGMVolume,
	}
}

func (s Settings) withDefaults() Settings {
	if strings.TrimSpace(s.FFmpegBinary) == "" {
		s.FFmpegBinary = "ffmpeg"
	}
	if s.VideoCodec == "" {
		s.VideoCodec = "libx264"
	}
	if s.CRF <= 0 {
		s.CRF = 23
	}
	if s.Preset == "" {
		s.Preset = "medium"
	}
	if s.AudioBitrate == "" {
		s.AudioBitrate = "192k"
	}
	if s.BGMVolume <= 0 {
		s.BGMVolume = 0.3
	}
	return s
}

// StepObserver is told about every assembly step as it starts. index is -1
// for steps that are not tied to a single entry.
type StepObserver func(step string, index, total int)

// Option configures an Assembler.
type Option func(*Assembler)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(a *Assembler) {
		if r != nil {
			a.runner = r
		}
	}
}

// WithWorkDirs makes Assemble place its scratch files in per-run directories.
func WithWorkDirs(w WorkDirs) Option {
	return func(a *Assembler) { a.workDirs = w }
}

type observerKey struct{}

// WithStepObserver returns a context that makes Assemble report each step to fn.
func WithStepObserver(ctx context.Context, fn StepObserver) context.Context {
	return context.WithValue(ctx, observerKey{}, fn)
}

func observerFrom(ctx context.Context) StepObserver {
	fn, _ := ctx.Value(observerKey{}).(StepObserver)
	return fn
}

// Assembler turns a Timeline into a video file.
type Assembler struct {
	settings Settings
	runner   Runner
	workDirs WorkDirs
	logger   *slog.Logger
}

// NewAssembler constructs an assembler.
func NewAssembler(settings Settings, logger *slog.Logger, opts ...Option) *Assembler {
	a := &Assembler{
		settings: settings.withDefaults(),
		runner:   ExecRunner{},
		logger:   logging.NewComponentLogger(logger, "assembler"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble renders tl into outputPath. On failure no file is left at
// outputPath and the partial file is removed.
func (a *Assembler) Assemble(ctx context.Context, tl Timeline, outputPath string) (Artifact, error) {
	if len(tl.Entries) == 0 {
		return Artifact{}, &IncompleteTimelineError{}
	}
	outputPath = strings.TrimSpace(outputPath)
	if outputPath == "" {
		return Artifact{}, &AssemblyError{Step: StepPrepare, Err: errors.New("empty output path")}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return Artifact{}, &AssemblyError{Step: StepPrepare, Err: err}
	}
	work, cleanup, err := a.workDir(tl.RunID, outputPath)
	if err != nil {
		return Artifact{}, &AssemblyError{Step: StepPrepare, Err: err}
	}
	defer cleanup()

	observe := observerFrom(ctx)
	step := func(name string, index, total int) {
		if observe != nil {
			observe(name, index, total)
		}
		a.logger.Debug("assembly step",
			logging.String(logging.FieldStage, name),
			logging.Int(logging.FieldSegmentIndex, index),
			logging.Int("total", total),
		)
	}

	total := len(tl.Entries)
	clips := make([]string, total)
	for i, entry := range tl.Entries {
		step(StepClip, i, total)
		clip, err := a.renderClip(ctx, work, tl, entry, i)
		if err != nil {
			return Artifact{}, &AssemblyError{Step: StepClip, Err: fmt.Errorf("entry %d: %w", i, err)}
		}
		clips[i] = clip
	}

	step(StepConcat, -1, total)
	video := filepath.Join(work, "video.mp4")
	if err := a.concat(ctx, work, "clips.txt", clips, []string{"-c", "copy", video}); err != nil {
		return Artifact{}, &AssemblyError{Step: StepConcat, Err: err}
	}

	step(StepAudio, -1, total)
	audioPaths := make([]string, total)
	for i, ref := range tl.AudioRefs() {
		audioPaths[i] = ref.Path()
	}
	narration := filepath.Join(work, "narration.m4a")
	audioArgs := []string{"-c:a", "aac", "-b:a", a.settings.AudioBitrate, "-ar", "44100", "-ac", "2", narration}
	if err := a.concat(ctx, work, "narration.txt", audioPaths, audioArgs); err != nil {
		return Artifact{}, &AssemblyError{Step: StepAudio, Err: err}
	}

	soundtrack := narration
	if !tl.BGM.IsZero() {
		step(StepMix, -1, total)
		soundtrack = filepath.Join(work, "mixed.m4a")
		if err := a.run(ctx, a.mixArgs(tl, narration, soundtrack)); err != nil {
			return Artifact{}, &AssemblyError{Step: StepMix, Err: err}
		}
	}

	step(StepMux, -1, total)
	partial := partialPath(outputPath)
	muxArgs := []string{
		"-i", video,
		"-i", soundtrack,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy", "-c:a", "copy",
		"-t", seconds(tl.Total),
		"-movflags", "+faststart",
		partial,
	}
	if err := a.run(ctx, muxArgs); err != nil {
		_ = os.Remove(partial)
		return Artifact{}, &AssemblyError{Step: StepMux, Err: err}
	}

	step(StepFinal, -1, total)
	info, err := os.Stat(partial)
	if err != nil {
		_ = os.Remove(partial)
		return Artifact{}, &AssemblyError{Step: StepFinal, Err: fmt.Errorf("ffmpeg produced no output: %w", err)}
	}
	if err := os.Rename(partial, outputPath); err != nil {
		_ = os.Remove(partial)
		return Artifact{}, &AssemblyError{Step: StepFinal, Err: err}
	}

	artifact := Artifact{
		Path:         outputPath,
		Duration:     tl.Total,
		SegmentCount: total,
		SizeBytes:    info.Size(),
	}
	a.logger.Info("video assembled",
		logging.String(logging.FieldEventType, "assembly_complete"),
		logging.String("output", outputPath),
		logging.Int("segments", total),
		logging.Duration("duration", tl.Total),
		logging.Int64("size_bytes", info.Size()),
	)
	return artifact, nil
}

func (a *Assembler) workDir(runID, outputPath string) (string, func(), error) {
	if a.workDirs != nil && strings.TrimSpace(runID) != "" {
		return a.workDirs.WorkDir(runID)
	}
	dir, err := os.MkdirTemp(filepath.Dir(outputPath), ".assemble-*")
	if err != nil {
		return "", nil, err
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func (a *Assembler) run(ctx context.Context, args []string) error {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	return a.runner.Run(ctx, a.settings.FFmpegBinary, full...)
}

func (a *Assembler) renderClip(ctx context.Context, work string, tl Timeline, entry Entry, i int) (string, error) {
	tpl := tl.Template
	filter := fitFilter(tpl.Width, tpl.Height, tpl.ImageFit, tpl.Background)
	if lines := textutil.WrapLines(entry.Segment.Caption, tpl.Caption.MaxCharsPerLine); len(lines) > 0 {
		textFile := filepath.Join(work, fmt.Sprintf("caption_%03d.txt", i))
		if err := os.WriteFile(textFile, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
			return "", err
		}
		filter += "," + drawTextFilter(textFile, tpl)
	}
	rate := max(tpl.FPS, 1)
	fps := strconv.Itoa(rate)
	clip := filepath.Join(work, fmt.Sprintf("clip_%03d.mp4", i))
	args := []string{
		"-loop", "1",
		"-framerate", fps,
		"-i", entry.Segment.ImageRef.Path(),
		"-frames:v", strconv.Itoa(clipFrames(entry, rate)),
		"-vf", filter,
		"-r", fps,
		"-c:v", a.settings.VideoCodec,
		"-preset", a.settings.Preset,
		"-crf", strconv.Itoa(a.settings.CRF),
		"-pix_fmt", "yuv420p",
		"-an",
		clip,
	}
	if err := a.run(ctx, args); err != nil {
		return "", err
	}
	return clip, nil
}

// clipFrames returns the number of frames entry occupies. Boundaries are taken
// from the cumulative timeline so per-clip rounding never accumulates: the
// clips of a timeline always sum to frameIndex(Total, fps) frames.
func clipFrames(entry Entry, fps int) int {
	return max(frameIndex(entry.End, fps)-frameIndex(entry.Start, fps), 1)
}

// frameIndex rounds d to the nearest frame boundary, halves rounding up.
func frameIndex(d time.Duration, fps int) int {
	return int((d.Nanoseconds()*int64(fps) + int64(time.Second)/2) / int64(time.Second))
}

func (a *Assembler) concat(ctx context.Context, work, listName string, paths []string, outArgs []string) error {
	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	list := filepath.Join(work, listName)
	if err := os.WriteFile(list, []byte(b.String()), 0o644); err != nil {
		return err
	}
	args := append([]string{"-f", "concat", "-safe", "0", "-i", list}, outArgs...)
	return a.run(ctx, args)
}

func (a *Assembler) mixArgs(tl Timeline, narration, output string) []string {
	total := seconds(tl.Total)
	volume := strconv.FormatFloat(a.settings.BGMVolume, 'f', 2, 64)
	var args []string
	var bg string
	if tl.BGMMode == BGMOnce {
		args = []string{"-i", narration, "-i", tl.BGM.Path()}
		bg = fmt.Sprintf("[1:a]volume=%s,apad,atrim=0:%s,asetpts=N/SR/TB[bg]", volume, total)
	} else {
		args = []string{"-i", narration, "-stream_loop", "-1", "-i", tl.BGM.Path()}
		bg = fmt.Sprintf("[1:a]volume=%s,atrim=0:%s,asetpts=N/SR/TB[bg]", volume, total)
	}
	graph := bg + ";[0:a]volume=1.0[nar];[nar][bg]amix=inputs=2:duration=first:dropout_transition=0:normalize=0,alimiter=limit=0.95[aout]"
	return append(args,
		"-filter_complex", graph,
		"-map", "[aout]",
		"-c:a", "aac", "-b:a", a.settings.AudioBitrate,
		"-t", total,
		output,
	)
}

func fitFilter(width, height int, fit, background string) string {
	if fit == "cover" {
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1", width, height, width, height)
	}
	if background == "" {
		background = "black"
	}
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=%s,setsar=1",
		width, height, width, height, filterValue(background))
}

func drawTextFilter(textFile string, tpl layout.Template) string {
	c := tpl.Caption
	var y string
	switch c.Position {
	case "top":
		y = strconv.Itoa(c.Margin)
	case "center":
		y = "(h-text_h)/2"
	default:
		y = fmt.Sprintf("h-text_h-%d", c.Margin)
	}
	parts := []string{
		"drawtext=textfile=" + filterValue(textFile),
		"fontsize=" + strconv.Itoa(c.FontSize),
		"fontcolor=" + filterValue(c.Color),
		"line_spacing=" + strconv.Itoa(c.LineSpacing),
		"x=(w-text_w)/2",
		"y=" + y,
	}
	if c.FontFile != "" {
		parts = append(parts, "fontfile="+filterValue(c.FontFile))
	}
	if c.BoxColor != "" {
		parts = append(parts, "box=1", "boxcolor="+filterValue(c.BoxColor), "boxborderw=16")
	}
	return strings.Join(parts, ":")
}

var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// filterValue escapes v for use as an option value inside a -vf filter
// graph. ffmpeg unescapes twice: once when splitting the graph into filters
// and once when splitting a filter's arguments into options.
func filterValue(v string) string {
	return graphEscaper.Replace(optionEscaper.Replace(v))
}

func partialPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".partial.mp4"
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Round(time.Millisecond).Seconds(), 'f', 3, 64)
}
