package core

import "errors"

// Frame is a raw payload handed to a member's transport.
type Frame []byte

var ErrConnClosed = errors.New("connection closed")

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Drainer is a SignalConnection that buffers frames until the member collects them.
type Drainer interface {
	SignalConnection
	Drain() []Frame
}
