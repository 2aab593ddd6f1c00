// Package session owns the single live room session of a viewer: which room
// it is in, the transport carrying it, and the rebuild on room changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/ice"
	"github.com/dkeye/Presence/internal/transport"
)

var (
	ErrSuperseded = errors.New("session superseded")
	ErrClosed     = errors.New("session manager closed")
)

// RoomSession is one joined room. A new generation is minted for every Start.
type RoomSession struct {
	Identity         domain.RoomIdentity
	ParticipantLimit int
	Transport        transport.Transport
	Generation       uint64
}

// Location reports the current location fragment, e.g. "#host-xr-publisher-slug".
type Location func() string

// Handlers receive events of the live generation only.
type Handlers struct {
	Message       func(peer domain.PeerID, data []byte)
	PeerConnected func(transport.PeerInfo)
	PeerClosed    func(peer domain.PeerID)
	Track         func(peer domain.PeerID, track transport.Track)
	// Reset runs under the manager lock whenever the live session is torn down.
	Reset func()
	// Name resolves a display name for the roster.
	Name func(peer domain.PeerID) string
	// Migrated runs after a room-full migration joined the overflow room.
	Migrated func(domain.RoomIdentity)
}

type Config struct {
	Self             domain.ClientID
	ParticipantLimit int
	RoomFullDelay    time.Duration
	Options          transport.Options
	// Fallback is joined by Sync when the location names no room.
	Fallback domain.RoomIdentity
}

type Manager struct {
	cfg          Config
	newTransport transport.Factory
	ice          ice.Source
	location     Location

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu      sync.RWMutex
	h       Handlers
	gen     uint64
	current *RoomSession
	closed  bool
	track   webrtc.TrackLocal
	release func()
}

func NewManager(cfg Config, factory transport.Factory, servers ice.Source, location Location) *Manager {
	if cfg.RoomFullDelay <= 0 {
		cfg.RoomFullDelay = 500 * time.Millisecond
	}
	if cfg.ParticipantLimit <= 0 {
		cfg.ParticipantLimit = transport.DefaultOptions().ParticipantLimit
	}
	if servers == nil {
		servers = ice.Static(ice.DefaultServers())
	}
	if location == nil {
		location = func() string { return "" }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:          cfg,
		newTransport: factory,
		ice:          servers,
		location:     location,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (m *Manager) SetHandlers(h Handlers) {
	m.mu.Lock()
	m.h = h
	m.mu.Unlock()
}

func (m *Manager) Self() domain.ClientID { return m.cfg.Self }

// Current returns a copy of the live session.
func (m *Manager) Current() (RoomSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return RoomSession{}, false
	}
	return *m.current, true
}

// Start joins identity. A live session for the same room is returned as is;
// any other live session is torn down first.
func (m *Manager) Start(ctx context.Context, identity domain.RoomIdentity) (*RoomSession, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.current != nil && m.current.Identity.RoomID() == identity.RoomID() {
		cur := m.current
		m.mu.Unlock()
		return cur, nil
	}
	old := m.teardownLocked()
	gen := m.gen
	m.mu.Unlock()

	if old != nil {
		m.closeTransport(old)
	}

	opts := m.cfg.Options
	opts.ParticipantLimit = m.cfg.ParticipantLimit
	opts.ICEServers = m.ice.Servers(ctx)

	t := m.newTransport()
	m.bind(t, gen)

	m.mu.Lock()
	if m.gen != gen || m.closed {
		m.mu.Unlock()
		_ = t.Close()
		return nil, ErrSuperseded
	}
	sess := &RoomSession{
		Identity:         identity,
		ParticipantLimit: m.cfg.ParticipantLimit,
		Transport:        t,
		Generation:       gen,
	}
	m.current = sess
	track := m.track
	m.mu.Unlock()

	if err := t.Join(ctx, identity.RoomID(), m.cfg.Self, opts); err != nil {
		m.mu.Lock()
		if m.current == sess {
			m.current = nil
		}
		m.mu.Unlock()
		_ = t.Close()
		return nil, fmt.Errorf("join %s: %w", identity.RoomID(), err)
	}
	if track != nil {
		if err := t.SetLocalTrack(track); err != nil {
			log.Warn().Err(err).Str("module", "session").Msg("attach local track")
		}
	}
	log.Info().Str("module", "session").Str("room", string(identity.RoomID())).Uint64("generation", gen).Msg("session started")
	return sess, nil
}

// Sync rebuilds the session when the location fragment names a different room.
func (m *Manager) Sync(ctx context.Context) (*RoomSession, error) {
	target, ok := ParseFragment(m.location())
	if !ok {
		target = m.cfg.Fallback
	}
	if target.IsZero() {
		return nil, fmt.Errorf("sync: no room to join")
	}
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()
	if cur != nil && cur.Identity.RoomID() == target.RoomID() {
		return cur, nil
	}
	if cur != nil {
		log.Info().Str("module", "session").Str("from", string(cur.Identity.RoomID())).Str("to", string(target.RoomID())).Msg("location changed, rebuilding session")
	}
	return m.Start(ctx, target)
}

// Leave tears down the live session without joining another.
func (m *Manager) Leave() {
	m.mu.Lock()
	old := m.teardownLocked()
	m.mu.Unlock()
	if old != nil {
		m.closeTransport(old)
	}
}

// Broadcast sends data on the live session; it reports false when there is none.
func (m *Manager) Broadcast(data []byte) bool {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()
	if cur == nil {
		return false
	}
	cur.Transport.Broadcast(data)
	return true
}

// SetLocalTrack makes track the single local media source. The previous track
// is detached from every peer before its release func runs.
func (m *Manager) SetLocalTrack(track webrtc.TrackLocal, release func()) error {
	m.mu.Lock()
	prev := m.release
	m.track = track
	m.release = release
	cur := m.current
	m.mu.Unlock()

	var err error
	if cur != nil {
		err = cur.Transport.SetLocalTrack(track)
	}
	if prev != nil {
		prev()
	}
	return err
}

func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	old := m.teardownLocked()
	release := m.release
	m.track, m.release = nil, nil
	m.mu.Unlock()

	m.cancel()
	if old != nil {
		m.closeTransport(old)
	}
	m.wg.Wait()
	if release != nil {
		release()
	}
	return nil
}

// teardownLocked retires the live generation; the caller closes the returned session.
func (m *Manager) teardownLocked() *RoomSession {
	m.gen++
	old := m.current
	m.current = nil
	if m.h.Reset != nil {
		m.h.Reset()
	}
	return old
}

func (m *Manager) closeTransport(s *RoomSession) {
	if err := s.Transport.Close(); err != nil {
		log.Warn().Err(err).Str("module", "session").Str("room", string(s.Identity.RoomID())).Msg("close transport")
	}
	log.Info().Str("module", "session").Str("room", string(s.Identity.RoomID())).Uint64("generation", s.Generation).Msg("session closed")
}

func (m *Manager) bind(t transport.Transport, gen uint64) {
	t.OnMessage(func(peer domain.PeerID, data []byte) {
		m.deliver(gen, func(h Handlers) {
			if h.Message != nil {
				h.Message(peer, data)
			}
		})
	})
	t.OnPeerConnected(func(p transport.PeerInfo) {
		m.deliver(gen, func(h Handlers) {
			if h.PeerConnected != nil {
				h.PeerConnected(p)
			}
		})
	})
	t.OnPeerClosed(func(peer domain.PeerID) {
		m.deliver(gen, func(h Handlers) {
			if h.PeerClosed != nil {
				h.PeerClosed(peer)
			}
		})
	})
	t.OnTrack(func(peer domain.PeerID, track transport.Track) {
		m.deliver(gen, func(h Handlers) {
			if h.Track != nil {
				h.Track(peer, track)
			}
		})
	})
	t.OnRoomFull(func() {
		m.deliver(gen, func(Handlers) {
			if m.ctx.Err() == nil {
				m.wg.Go(func() { m.migrate(gen) })
			}
		})
	})
}

// deliver runs fn only while gen is live. Holding the read lock keeps a
// concurrent teardown from clearing state underneath a late event.
func (m *Manager) deliver(gen uint64, fn func(Handlers)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if gen != m.gen {
		log.Debug().Str("module", "session").Uint64("generation", gen).Uint64("live", m.gen).Msg("stale event dropped")
		return
	}
	fn(m.h)
}

func (m *Manager) migrate(gen uint64) {
	timer := time.NewTimer(m.cfg.RoomFullDelay)
	defer timer.Stop()
	select {
	case <-m.ctx.Done():
		return
	case <-timer.C:
	}

	m.mu.RLock()
	if m.gen != gen || m.current == nil {
		m.mu.RUnlock()
		return
	}
	full := m.current.Identity
	migrated := m.h.Migrated
	m.mu.RUnlock()

	next, ok := ParseFragment(m.location())
	if !ok || next.RoomID() == full.RoomID() {
		next = NextRoom(full)
	}
	log.Info().Str("module", "session").Str("full", string(full.RoomID())).Str("next", string(next.RoomID())).Msg("room full, migrating")

	if _, err := m.Start(m.ctx, next); err != nil {
		if !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrClosed) {
			log.Error().Err(err).Str("module", "session").Str("room", string(next.RoomID())).Msg("migration failed")
		}
		return
	}
	if migrated != nil {
		migrated(next)
	}
}
