// Package presence wires local input to the mesh and the mesh to what the
// renderer draws: frames go through the scheduler, the codec and the live
// session; inbound messages are decoded into the peer store.
package presence

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/metrics"
	"github.com/dkeye/Presence/internal/presence/codec"
	"github.com/dkeye/Presence/internal/presence/scheduler"
	"github.com/dkeye/Presence/internal/presence/store"
	"github.com/dkeye/Presence/internal/session"
	"github.com/dkeye/Presence/internal/transport"
)

// PeerView is the renderer-facing state of one remote avatar.
type PeerView = store.View

// Clock returns the current time; tests substitute a fake.
type Clock func() time.Time

type Config struct {
	Scheduler scheduler.Config
	Store     store.Config
	Clock     Clock
}

func DefaultConfig() Config {
	return Config{
		Scheduler: scheduler.DefaultConfig(),
		Store:     store.DefaultConfig(),
		Clock:     time.Now,
	}
}

type Engine struct {
	mgr     *session.Manager
	sched   *scheduler.Scheduler
	store   *store.Store
	metrics *metrics.Client
	clock   Clock
	seq     atomic.Uint64

	mu       sync.RWMutex
	identity domain.LocalIdentity
}

// New binds an engine to mgr. The manager's handlers are replaced.
func New(cfg Config, mgr *session.Manager, identity domain.LocalIdentity, m *metrics.Client) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	e := &Engine{
		mgr:      mgr,
		store:    store.New(mgr.Self(), cfg.Store),
		metrics:  m,
		clock:    cfg.Clock,
		identity: identity,
	}
	e.sched = scheduler.New(cfg.Scheduler, e.Identity, e.publish)
	mgr.SetHandlers(session.Handlers{
		Message: e.receive,
		PeerConnected: func(p transport.PeerInfo) {
			log.Info().Str("module", "presence").Str("peer", string(p.ID)).Str("client", string(p.Client)).Msg("peer connected")
		},
		PeerClosed: func(peer domain.PeerID) {
			if e.store.Remove(peer) {
				log.Info().Str("module", "presence").Str("peer", string(peer)).Msg("peer removed")
			}
		},
		Track: func(peer domain.PeerID, track transport.Track) { e.store.SetMedia(peer, track) },
		Reset: e.store.Clear,
		Name:  e.nameOf,
	})
	return e
}

// Step feeds one render frame to the publish scheduler. Call it from a single goroutine.
func (e *Engine) Step(f scheduler.Frame) {
	e.sched.Step(f)
}

// Views ticks every remote peer to now and returns their renderable state.
func (e *Engine) Views(now time.Time) []PeerView {
	return e.store.Views(now)
}

func (e *Engine) PeerCount() int { return e.store.Len() }

func (e *Engine) Identity() domain.LocalIdentity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.identity
}

func (e *Engine) SetIdentity(id domain.LocalIdentity) {
	e.mu.Lock()
	e.identity = id
	e.mu.Unlock()
}

func (e *Engine) SetDisplayName(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identity.SetDisplayName(name)
}

// Roster lists the local participant first, then connected peers.
func (e *Engine) Roster() []session.RosterEntry {
	return e.mgr.Roster(e.Identity())
}

func (e *Engine) publish(s domain.OutboundSample) {
	data, err := codec.Encode(s, e.mgr.Self(), e.seq.Add(1))
	if err != nil {
		log.Warn().Err(err).Str("module", "presence").Msg("encode sample")
		return
	}
	if !e.mgr.Broadcast(data) {
		log.Debug().Str("module", "presence").Msg("no live session, sample dropped")
		return
	}
	e.metrics.Published()
}

func (e *Engine) receive(peer domain.PeerID, data []byte) {
	client, p, err := codec.Decode(data)
	if err != nil {
		e.metrics.DecodeFailed()
		log.Debug().Err(err).Str("module", "presence").Str("peer", string(peer)).Msg("undecodable message dropped")
		return
	}
	out := e.store.Ingest(peer, client, p, e.clock())
	e.metrics.Ingested(out.String())
}

func (e *Engine) nameOf(peer domain.PeerID) string {
	rec, ok := e.store.Get(peer)
	if !ok {
		return ""
	}
	return rec.LastSample.Identity.DisplayName
}
