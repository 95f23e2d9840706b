// Package server implements the HTTP and WebSocket transport for roomchat.
//
// The Hub owns live connections and the named groups the room coordinator
// fans out through. Each Client runs a read pump that feeds frames to the
// Router and a write pump that drains its send channel one event per frame.
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, and HTTP handlers.
package server
