// Package api implements the HTTP interface of the garage bridge.
//
// This package provides:
//   - Hub-compatible routes (/details, /{doorId}/ping, /{doorId}/refresh,
//     /{doorId}/control) used by the home automation hub
//   - A JSON API under /api/v1 for listing doors, registering peers,
//     sending commands and reading transition history
//   - A Server-Sent Events stream and a WebSocket feed of door transitions
//   - Prometheus metrics at /metrics
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Credentials
//
// With api.require_credentials enabled, listing and command routes expect
// the cloud account in X-MyQ-Email and X-MyQ-Password headers (or email and
// password query parameters). Missing credentials are rejected with 401
// before the session is touched. Credentials that differ from the active
// session re-initialise it before the request proceeds.
//
// # Graceful Degradation
//
// The history route and /metrics answer 503 when their collaborators are not
// configured. The event stream and WebSocket feed are only mounted when supplied.
package api
