// Package logging assembles structured slog loggers and formatting helpers used
// across reelforge.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code tags log lines
// with run IDs, segment indices, stages, and correlation IDs. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
