// Package http provides the REST API of the package daemon.
//
// Endpoints:
//   - Health: /health
//   - Catalog: /packages/:kind, /packages/:kind/installed, /packages/:kind/:id
//   - Mutations: /packages/:kind/install, /packages/:kind/uninstall,
//     /libraries/archive
//   - Dependencies: /libraries/:id/dependencies
//   - State: /operations, /provision
//
// :kind is "library" or "platform". Mutations block until the backend
// stream ends; progress is delivered on the event stream under the
// request's progress_id, generated when the caller sends none.
//
// Error mapping: a concurrent change of the same package is 409, invalid
// input and unknown filters are 400, backend failures are 502 carrying
// the plain backend message.
//
// Example Usage:
//
//	handlers := http.NewHandlers(catalogs, orchestrator, provisioner, status)
//	handlers.Register(router)
package http
