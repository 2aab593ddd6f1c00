package core

import (
	"errors"
	"time"

	"github.com/dkeye/Presence/internal/domain"
)

var (
	ErrRoomFull      = errors.New("room full")
	ErrUnknownMember = errors.New("unknown member")
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	SessionID SessionID       `json:"session_id"`
	ClientID  domain.ClientID `json:"client_id"`
	JoinedAt  time.Time       `json:"joined_at"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO
	Has(sid SessionID) bool

	// AddMember fails with ErrRoomFull once the room limit is reached.
	AddMember(sid SessionID, ms MemberSession) error
	RemoveMember(sid SessionID) bool
	Broadcast(from SessionID, data Frame) PublishResult
	SendTo(to SessionID, data Frame) error
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
	Limit       int           `json:"limit"`
}

type RoomManager interface {
	// GetOrCreate returns the room, creating it with limit when missing.
	GetOrCreate(id domain.RoomID, limit int) RoomService
	GetRoom(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	// StopIfEmpty drops the room when nobody is in it.
	StopIfEmpty(id domain.RoomID) bool
	StopRoom(id domain.RoomID)
}
