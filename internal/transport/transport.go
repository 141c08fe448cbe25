// Package transport keeps a single logical duplex connection to the remote
// transcriber and reconnects it after unexpected loss.
package transport

import (
	"context"
	"errors"
)

var (
	ErrNotConnected = errors.New("transport is not connected")
	ErrNoEndpoint   = errors.New("transport endpoint is not set")
	// ErrClosedNormally is reported by Conn.ReadMessage when the peer closed
	// the connection with a normal closure.
	ErrClosedNormally = errors.New("connection closed normally")
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Conn is one established connection. WriteMessage is never called
// concurrently. Close performs a clean close.
type Conn interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

type MessageHandler func(data []byte)
