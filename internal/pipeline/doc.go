// Package pipeline drives one video run from source text to finished file.
//
// The Orchestrator owns every run it starts. A single goroutine per run
// moves the run through planning, rendering, and assembling, and it is the
// only writer of the run's PipelineRun record. Segment renders execute in
// worker goroutines bounded by a weighted semaphore and report back over a
// channel, so completion order never affects the final segment order.
//
// Callers observe progress through Run.Events, a buffered channel that drops
// (and counts) events rather than stall the run when the consumer lags.
// Every state transition is archived through the Recorder so an unfinished
// run can be resumed later, reusing the segments that already rendered.
package pipeline
