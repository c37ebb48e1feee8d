// Package runstore archives pipeline runs and their per-segment results in
// SQLite so finished runs can be listed and unfinished ones resumed.
//
// Each run row records the request, resolved title and style, lifecycle
// state, and terminal outcome. Segment rows hold the planned narration plus,
// once rendered, the stored image and audio paths and the measured duration.
// The orchestrator writes a run row on every state transition and a segment
// row whenever a segment changes state.
//
// Schema changes bump schemaVersion in schema.go; users delete runs.db to
// adopt the new schema.
package runstore
