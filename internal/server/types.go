// Package server defines shared transport types and utility helpers that
// are reused across client and hub logic.
package server

import "strings"

// FrameHandler consumes one inbound text frame from a connection.
type FrameHandler interface {
	HandleFrame(connID string, raw []byte)
}

// ConnectionObserver is told when sockets open and close.
type ConnectionObserver interface {
	ConnectionOpened()
	ConnectionClosed()
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
