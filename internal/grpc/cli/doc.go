// Package cli is the gRPC client for the arduino-cli compatible daemon.
//
// It owns the daemon instance handle, maps library and platform calls onto
// the daemon's unary and streaming methods, and drains progress streams
// into the notify package's event types.
//
// Messages are exchanged with a JSON codec registered under the "json"
// content subtype, so the daemon must be started with JSON codec support.
//
// Example Usage:
//
//	client, err := cli.New("localhost:50051", cli.WithLogger(logger))
//	if err := client.Init(ctx); err != nil { ... }
//	records, err := client.Search(ctx, types.KindLibrary, "servo")
//
// BoardWatcher runs the board-list watch stream. It is stopped and
// restarted around platform installs.
package cli
