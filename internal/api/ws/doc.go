// Package ws streams package events to the IDE over a WebSocket.
//
// Each connection is one broadcaster listener: it receives installed,
// uninstalled, index_updated, output, warning and boards_changed events
// as JSON, in publish order. A slow client drops events rather than
// stalling other listeners.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping, answered with pong
//
// Message Types (Server → Client):
//   - system: Connection established
//   - pong: Keep-alive reply
//   - error: Unknown request
//   - any broadcaster event type
//
// Example Usage:
//
//	handler := ws.NewHandler(broadcaster, 64, nil, logger)
//	router.GET("/events", handler.HandleConnection)
package ws
