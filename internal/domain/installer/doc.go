// Package installer orchestrates package mutations against the CLI backend.
//
// Each request moves through
//
//	pending -> discovery_stopped -> streaming -> completed|failed -> discovery_restarted
//
// A second request for a package that is already being changed is
// rejected with ErrInFlight before discovery is touched. Failures write a
// human-readable line plus the backend message to the output sink, tagged
// with the request's progress ID, and are returned to the caller.
package installer
