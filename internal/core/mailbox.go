package core

import (
	"errors"
	"sync"
)

var ErrMailboxFull = errors.New("mailbox full")

// Mailbox holds frames for a polling member between two polls.
type Mailbox struct {
	mu     sync.Mutex
	frames []Frame
	limit  int
	closed bool
}

func NewMailbox(limit int) *Mailbox {
	if limit <= 0 {
		limit = 64
	}
	return &Mailbox{limit: limit}
}

func (m *Mailbox) TrySend(f Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrConnClosed
	}
	if len(m.frames) >= m.limit {
		return ErrMailboxFull
	}
	m.frames = append(m.frames, f)
	return nil
}

// Drain hands over every queued frame in arrival order.
func (m *Mailbox) Drain() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.frames
	m.frames = nil
	return out
}

func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.frames = nil
	m.mu.Unlock()
}
