// Package proto holds the JSON shapes exchanged between peers and the relay.
package proto

import (
	"github.com/goccy/go-json"
)

// PackageKind tags a signaling package routed through a peer's mailbox.
type PackageKind string

const (
	KindOffer  PackageKind = "offer"
	KindAnswer PackageKind = "answer"
	KindBye    PackageKind = "bye"
)

// Package is one SDP hand-off between two sessions of the same room.
// Candidates travel inside the SDP since peers gather fully before sending.
type Package struct {
	From   string      `json:"from"`
	To     string      `json:"to"`
	Kind   PackageKind `json:"kind"`
	SDP    string      `json:"sdp,omitempty"`
	Client string      `json:"client,omitempty"`
}

type PollRequest struct {
	SessionID string    `json:"sessionId"`
	ClientID  string    `json:"clientId"`
	Limit     int       `json:"limit,omitempty"`
	Packages  []Package `json:"packages,omitempty"`
}

type Peer struct {
	SessionID string `json:"sessionId"`
	ClientID  string `json:"clientId"`
}

type PollResponse struct {
	Peers    []Peer    `json:"peers"`
	Packages []Package `json:"packages"`
}

type LeaveRequest struct {
	SessionID string `json:"sessionId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	ErrCodeRoomFull    = "room_full"
	ErrCodeBadPayload  = "bad_payload"
	ErrCodeRateLimited = "rate_limited"
)

// ICEServer mirrors the browser RTCIceServer shape; urls may be a string or a list.
type ICEServer struct {
	URLs       URLList `json:"urls"`
	Username   string  `json:"username,omitempty"`
	Credential string  `json:"credential,omitempty"`
}

type URLList []string

func (u *URLList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*u = URLList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*u = many
	return nil
}

// RelayEventType tags frames on the websocket relay.
type RelayEventType string

const (
	EventWelcome    RelayEventType = "welcome"
	EventData       RelayEventType = "data"
	EventPeerJoined RelayEventType = "peer_joined"
	EventPeerLeft   RelayEventType = "peer_left"
	EventRoomFull   RelayEventType = "room_full"
	EventPing       RelayEventType = "ping"
	EventPong       RelayEventType = "pong"
)

// RelayEvent is the envelope for every websocket relay frame in both directions.
type RelayEvent struct {
	Type    RelayEventType  `json:"type"`
	Session string          `json:"session,omitempty"`
	Client  string          `json:"client,omitempty"`
	Peers   []Peer          `json:"peers,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
