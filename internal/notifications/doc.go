// Package notifications pushes run outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the orchestrator can always call it. Messages carry a title, tags, and an
// optional priority header the way ntfy expects them.
package notifications
