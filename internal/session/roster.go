package session

import (
	"github.com/dkeye/Presence/internal/domain"
)

// RosterEntry is one line of the participants list.
type RosterEntry struct {
	PeerID   domain.PeerID
	ClientID domain.ClientID
	Name     string
	Self     bool
}

// Roster lists the local participant first, then connected peers in transport order.
func (m *Manager) Roster(self domain.LocalIdentity) []RosterEntry {
	name := self.DisplayName
	if name == "" {
		name = string(m.cfg.Self)
	}
	out := []RosterEntry{{ClientID: m.cfg.Self, Name: name, Self: true}}

	m.mu.RLock()
	cur := m.current
	nameOf := m.h.Name
	m.mu.RUnlock()
	if cur == nil {
		return out
	}
	for _, p := range cur.Transport.Peers() {
		e := RosterEntry{PeerID: p.ID, ClientID: p.Client, Name: string(p.Client)}
		if nameOf != nil {
			if n := nameOf(p.ID); n != "" {
				e.Name = n
			}
		}
		if e.Name == "" {
			e.Name = string(p.ID)
		}
		out = append(out, e)
	}
	return out
}
