// Package transport defines the peer-to-peer capability the session is built on.
package transport

import (
	"context"
	"errors"
	"io"
)

var (
	ErrClosed      = errors.New("transport closed")
	ErrNotOpen     = errors.New("transport not open")
	ErrUnknownPeer = errors.New("unknown peer")
)

// Transport opens a local session and produces connections to remote peers.
// Callbacks registered with OnConnection may run on any goroutine.
type Transport interface {
	Open(ctx context.Context) (string, error)
	Connect(ctx context.Context, remoteID string) (Conn, error)
	OnConnection(fn func(Conn))
	Close() error
}

// Conn is one live channel to a remote peer. Data arriving before OnData is
// registered is buffered, and a close that happened earlier is reported as
// soon as OnClose is registered.
type Conn interface {
	PeerID() string
	Send(data []byte) error
	OnData(fn func([]byte))
	OnClose(fn func())
	Close() error
}

// Signaler carries session descriptions between peers that have no channel yet.
type Signaler interface {
	Register(ctx context.Context) (string, error)
	SendSignal(ctx context.Context, s Signal) error
	Signals() <-chan Signal
	io.Closer
}

type SignalType string

const (
	SignalOffer  SignalType = "offer"
	SignalAnswer SignalType = "answer"
	// SignalError reports that a signal addressed to PeerID could not be
	// delivered. Payload carries the signaler's reason.
	SignalError SignalType = "error"
)

type Signal struct {
	PeerID  string
	Type    SignalType
	Payload []byte
}
