package transport

import (
	"sync"

	"github.com/dkeye/Presence/internal/domain"
)

// Callbacks stores the handler set of a transport and gates it on a closed flag.
// Implementations embed it to share the setter half of the Transport contract.
type Callbacks struct {
	mu          sync.RWMutex
	closed      bool
	onConnected func(PeerInfo)
	onClosed    func(domain.PeerID)
	onMessage   func(domain.PeerID, []byte)
	onTrack     func(domain.PeerID, Track)
	onRoomFull  func()
}

func (c *Callbacks) OnPeerConnected(fn func(PeerInfo)) {
	c.mu.Lock()
	c.onConnected = fn
	c.mu.Unlock()
}

func (c *Callbacks) OnPeerClosed(fn func(domain.PeerID)) {
	c.mu.Lock()
	c.onClosed = fn
	c.mu.Unlock()
}

func (c *Callbacks) OnMessage(fn func(domain.PeerID, []byte)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *Callbacks) OnTrack(fn func(domain.PeerID, Track)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Callbacks) OnRoomFull(fn func()) {
	c.mu.Lock()
	c.onRoomFull = fn
	c.mu.Unlock()
}

// Shutdown silences every handler. It reports false when already shut down.
func (c *Callbacks) Shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

func (c *Callbacks) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Callbacks) FirePeerConnected(p PeerInfo) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.closed && c.onConnected != nil {
		c.onConnected(p)
	}
}

func (c *Callbacks) FirePeerClosed(id domain.PeerID) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.closed && c.onClosed != nil {
		c.onClosed(id)
	}
}

func (c *Callbacks) FireMessage(from domain.PeerID, data []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.closed && c.onMessage != nil {
		c.onMessage(from, data)
	}
}

func (c *Callbacks) FireTrack(peer domain.PeerID, t Track) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.closed && c.onTrack != nil {
		c.onTrack(peer, t)
	}
}

func (c *Callbacks) FireRoomFull() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.closed && c.onRoomFull != nil {
		c.onRoomFull()
	}
}
