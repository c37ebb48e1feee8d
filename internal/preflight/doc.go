// Package preflight provides readiness checks for the backends, binaries, and
// directories reelforge depends on.
//
// The "reelforge check" command prints every result. "reelforge generate"
// runs the same checks first and refuses to start when a required one fails,
// so a run does not plan a script only to discover ffmpeg is missing.
package preflight
