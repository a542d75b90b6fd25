// Package server provides the HTTP status server for running poll sessions.
//
// Routes:
//
//   - GET /: Session status page from the embedded assets (if configured)
//   - GET /api/sessions: JSON snapshot of every session
//   - GET /api/sessions/{id}: JSON status of one session
//   - GET /api/sse: Server-Sent Events stream of status updates
//   - GET /metrics: Prometheus metrics (if a handler is configured)
//   - GET /healthz: Liveness probe
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
