package domain

import "time"

// Member represents a participant's meta inside a relay room.
// No transport or lifecycle logic here.
type Member struct {
	Client   ClientID
	JoinedAt time.Time
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(client ClientID, now time.Time) *Member {
	return &Member{Client: client, JoinedAt: now}
}
