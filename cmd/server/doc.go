// Package main is the entry point of the PTSolns IDE package daemon.
//
// The daemon sits between the IDE frontend and the arduino-cli style CLI
// daemon that owns the board and library index:
//
//	IDE (browser) → package daemon (HTTP + /events WebSocket)
//	                      → CLI daemon (gRPC)
//
// It serves the merged package catalog, serializes installs and
// uninstalls with board discovery paused, streams progress to every
// listener and provisions the vendor packages on first start.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./server -port 8000 -cli localhost:50051
//
//	# Development mode (console logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
