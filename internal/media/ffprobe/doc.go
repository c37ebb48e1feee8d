// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Prober: binds an ffprobe binary and measures audio durations
//
// Durations are reported at millisecond precision and must be positive;
// a container that decodes to zero length yields ErrNoDuration.
package ffprobe
