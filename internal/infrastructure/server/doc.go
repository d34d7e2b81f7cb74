// Package server wires the package daemon together.
//
// NewServer builds, in order: logger, metrics, tracer, broadcaster, the
// CLI daemon client, board discovery and its interlock, the library and
// platform catalogs, the install orchestrator and the first-start
// provisioner. Run serves HTTP and, in the background, initializes the
// daemon session, starts discovery and runs provisioning once.
//
// Middleware stack: recovery, tracing, metrics, CORS, rate limiting.
//
// Routes:
//   - REST API: see internal/api/http
//   - /events: broadcaster WebSocket
//   - /metrics: Prometheus exposition
package server
