// Package services defines shared utilities consumed by the pipeline stages
// and the backend gateways.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, segment indices, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures from any
//     backend classify the same way (configuration, validation, transient).
//   - Retryable and FailureKind, which the gateway retry policy and the run
//     summary use to decide what happens next.
//
// Use these helpers when wiring new backends so retry and reporting behaviour
// stays uniform across the pipeline.
package services
