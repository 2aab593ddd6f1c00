// Package transport defines the peer mesh contract the session layer drives.
//
// Implementations deliver callbacks from their own goroutines. A closed
// transport never fires a callback again, and Broadcast never blocks.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Presence/internal/domain"
)

var (
	ErrClosed      = errors.New("transport closed")
	ErrAlreadyOpen = errors.New("transport already joined")
	ErrRoomFull    = errors.New("room full")
)

type PeerInfo struct {
	ID     domain.PeerID
	Client domain.ClientID
}

// Track is the remote media handle surfaced to the session layer.
// *webrtc.TrackRemote satisfies it.
type Track interface {
	ID() string
	StreamID() string
}

type Options struct {
	PollIntervalFast time.Duration
	PollIntervalSlow time.Duration
	// StableAfter is how many unchanged polls switch to the slow interval.
	StableAfter      int
	ParticipantLimit int
	ICEServers       []webrtc.ICEServer
}

func DefaultOptions() Options {
	return Options{
		PollIntervalFast: 1500 * time.Millisecond,
		PollIntervalSlow: 5000 * time.Millisecond,
		StableAfter:      3,
		ParticipantLimit: 10,
	}
}

type Transport interface {
	Join(ctx context.Context, room domain.RoomID, self domain.ClientID, opts Options) error
	Broadcast(data []byte)
	// SetLocalTrack swaps the outgoing audio on every peer; nil detaches it.
	SetLocalTrack(track webrtc.TrackLocal) error
	Peers() []PeerInfo
	Close() error

	OnPeerConnected(func(PeerInfo))
	OnPeerClosed(func(domain.PeerID))
	OnMessage(func(from domain.PeerID, data []byte))
	OnTrack(func(peer domain.PeerID, track Track))
	OnRoomFull(func())
}

//go:generate mockgen -destination=mocks/transport.go -package=mocks . Transport

// Factory builds a fresh transport per room session.
type Factory func() Transport
