package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"reelforge/internal/logging"
	"reelforge/internal/pipeline"
)

const (
	ansiClearLine = "\r\033[K"
	ansiGreen     = "\033[32m"
	ansiRed       = "\033[31m"
	ansiReset     = "\033[0m"
)

// progressPrinter renders run events. On a terminal it keeps one status line
// updated in place; otherwise it prints one line per meaningful event and
// samples assembly steps.
type progressPrinter struct {
	out     io.Writer
	live    bool
	sampler *logging.ProgressSampler
	width   int
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{
		out:     out,
		live:    isTerminal(out),
		sampler: logging.NewProgressSampler(25),
	}
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *progressPrinter) handle(ev pipeline.Event, snap pipeline.PipelineRun) {
	if p.live {
		p.renderLive(ev, snap)
		return
	}
	if line := p.plainLine(ev, snap); line != "" {
		fmt.Fprintln(p.out, line)
	}
}

func (p *progressPrinter) finish() {
	if p.live && p.width > 0 {
		fmt.Fprint(p.out, ansiClearLine)
		p.width = 0
	}
}

func (p *progressPrinter) renderLive(ev pipeline.Event, snap pipeline.PipelineRun) {
	if ev.Stage == "run" && pipeline.State(ev.State).Terminal() {
		p.finish()
		return
	}
	done, failed := segmentCounts(snap)
	line := fmt.Sprintf("[%s] %d/%d segments", snap.State, done, len(snap.Segments))
	if failed > 0 {
		line += fmt.Sprintf(", %s%d failed%s", ansiRed, failed, ansiReset)
	}
	if ev.Stage == string(pipeline.StateAssembling) && ev.Message != "" {
		line += " | " + ev.Message
	}
	if snap.Title != "" {
		line = snap.Title + " " + line
	}
	fmt.Fprint(p.out, ansiClearLine+line)
	p.width = len(line)
}

func (p *progressPrinter) plainLine(ev pipeline.Event, snap pipeline.PipelineRun) string {
	switch ev.Stage {
	case "run":
		line := "run " + ev.State
		if ev.Message != "" {
			line += ": " + ev.Message
		}
		return line
	case string(pipeline.StatePlanning):
		if ev.Message == "" {
			return ""
		}
		return "planning: " + ev.Message
	case string(pipeline.StateRendering):
		switch pipeline.SegmentState(ev.State) {
		case pipeline.SegmentRendered, pipeline.SegmentFailed, pipeline.SegmentSkipped, pipeline.SegmentRetrying:
			done, _ := segmentCounts(snap)
			line := fmt.Sprintf("segment %d %s (%d/%d)", ev.SegmentIndex, ev.State, done, len(snap.Segments))
			if ev.Message != "" && ev.State != string(pipeline.SegmentRendered) {
				line += ": " + firstLine(ev.Message)
			} else if ev.Message != "" {
				line += " " + ev.Message
			}
			return line
		}
		return ""
	case string(pipeline.StateAssembling):
		percent := -1.0
		if idx, total, ok := parseStepCounter(ev.Message); ok && total > 0 {
			percent = float64(idx) / float64(total) * 100
		}
		if !p.sampler.ShouldLog(percent, ev.State) {
			return ""
		}
		return "assembling: " + ev.Message
	default:
		return ""
	}
}

func segmentCounts(snap pipeline.PipelineRun) (done, failed int) {
	for _, s := range snap.Segments {
		switch s.State {
		case pipeline.SegmentRendered:
			done++
		case pipeline.SegmentFailed, pipeline.SegmentSkipped:
			failed++
		}
	}
	return done, failed
}

// parseStepCounter reads the "step i/n" suffix of assembly messages.
func parseStepCounter(message string) (int, int, bool) {
	fields := strings.Fields(message)
	if len(fields) < 2 {
		return 0, 0, false
	}
	var idx, total int
	if _, err := fmt.Sscanf(fields[len(fields)-1], "%d/%d", &idx, &total); err != nil {
		return 0, 0, false
	}
	return idx, total, true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
