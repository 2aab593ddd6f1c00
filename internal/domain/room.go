package domain

import "strings"

type (
	// RoomID is the derived name every peer of one mesh agrees on.
	RoomID   string
	ClientID string
	PeerID   string
)

// RoomIdentity names a room as a domain plus a content slug.
// It is immutable for the lifetime of a session.
type RoomIdentity struct {
	Domain string
	Slug   string
}

func (r RoomIdentity) RoomID() RoomID {
	if r.Domain == "" {
		return RoomID(r.Slug)
	}
	if r.Slug == "" {
		return RoomID(r.Domain)
	}
	return RoomID(r.Domain + "-" + r.Slug)
}

func (r RoomIdentity) IsZero() bool { return r.Domain == "" && r.Slug == "" }

func (r RoomIdentity) String() string { return string(r.RoomID()) }

// Room is the relay-side record of a signaling room.
type Room struct {
	ID    RoomID
	Limit int
}

// NormalizeRoomID trims and lower-cases a raw room name coming off the wire.
func NormalizeRoomID(raw string) RoomID {
	return RoomID(strings.ToLower(strings.TrimSpace(raw)))
}
