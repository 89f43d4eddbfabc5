// Package server exposes a running [tasks.Coordinator] over HTTP for local tools and browser dashboards.
//
// # Router Infrastructure
//
// Routing uses chi. [Middleware] wraps handlers in the standard Go pattern; the router installs
// panic recovery, request logging through charmbracelet/log, CORS and a request body limit.
//
// # Endpoints
//
// All routes live under /api:
//   - GET  /state : Coordinator snapshot
//   - GET  /notifications : live notifications; DELETE /notifications/{id} dismisses one
//   - POST /check : refresh API health and the model catalogue
//   - POST /tasks : track an already submitted task
//   - POST /batches : track an already submitted batch
//   - POST /batches/{id}/pause, /resume, /refresh : batch poller controls
//   - GET  /ws : websocket stream of coordinator updates
//
// # Update Stream
//
// The [Hub] fans coordinator updates out to websocket clients. Each client first receives a
// "state" message carrying the full snapshot, then one "update" message per event. Slow clients
// are dropped instead of blocking the coordinator.
package server
