// Package gateway defines the capability contracts the pipeline talks to
// (LLM, TTS, Image) together with the shared call machinery every backend
// variant uses:
//
//   - Policy retries transient failures with capped exponential backoff and
//     honors Retry-After hints.
//   - Limiter holds one weighted semaphore per backend name for the whole
//     process so concurrent runs share a single ceiling.
//   - StatusError classifies HTTP responses into the services error markers.
//
// Backend implementations live under internal/services and are selected by
// name in internal/backends.
package gateway
