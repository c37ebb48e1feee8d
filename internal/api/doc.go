// Package api exposes pipeline runs over HTTP and defines the transport types
// shared by the HTTP server and the CLI's JSON output.
//
// # Routes
//
//	GET  /health                  liveness and version
//	GET  /version                 same payload as /health
//	GET  /api/runs                archived runs, newest first (?state=, ?limit=)
//	POST /api/runs                start a run; returns 202 with the run id
//	GET  /api/runs/{id}           archived record plus live progress when active
//	POST /api/runs/{id}/cancel    cancel a run driven by this server
//	POST /api/runs/{id}/resume    resume an unfinished archived run
//
// Runs started over HTTP outlive the request that created them. They are tied
// to the server's lifetime instead and are cancelled when the server shuts
// down, which leaves them resumable.
//
// When a token is configured every /api route requires
// "Authorization: Bearer <token>"; /health and /version stay open.
package api
