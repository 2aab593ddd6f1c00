// Package store keeps the latest presence sample of every remote peer and
// interpolates what the renderer should display between sparse samples.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/presence/anim"
	"github.com/dkeye/Presence/internal/presence/codec"
)

type Config struct {
	// InterpWindow is the time to converge on an ordinary sample.
	InterpWindow time.Duration
	// JumpWindow is used while the peer is airborne.
	JumpWindow time.Duration
	// SnapWindow is used for a JumpStop landing.
	SnapWindow time.Duration
	// DuplicateWindow coalesces content-equal samples that arrive this close together.
	DuplicateWindow time.Duration
	Crossfade       time.Duration
	// JumpCooldown is the minimum time between two starts of a peer's jump clip.
	JumpCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		InterpWindow:    300 * time.Millisecond,
		JumpWindow:      800 * time.Millisecond,
		SnapWindow:      100 * time.Millisecond,
		DuplicateWindow: 50 * time.Millisecond,
		Crossfade:       anim.DefaultCrossfade,
		JumpCooldown:    time.Second,
	}
}

// MediaTrack is the part of a remote media track the store keeps.
// *webrtc.TrackRemote satisfies it.
type MediaTrack interface {
	ID() string
	StreamID() string
}

// PeerRecord is owned by the Store. Callers only ever see copies.
type PeerRecord struct {
	PeerID         domain.PeerID
	ClientID       domain.ClientID
	LastSample     domain.OutboundSample
	LastSampleTime time.Time
	// LastSeq is the highest sender sequence seen; zero for senders without one.
	LastSeq           uint64
	DisplayedPosition domain.Vec3
	DisplayedRotation mgl64.Quat
	Media             MediaTrack

	blend        anim.Blend
	lastJumpClip time.Time
}

// Outcome says what Ingest did with a sample.
type Outcome int

const (
	Created Outcome = iota
	Updated
	Coalesced
	Stale
	Rejected
)

func (o Outcome) String() string {
	return [...]string{"created", "updated", "coalesced", "stale", "rejected"}[o]
}

// Changed reports whether the outcome is visible to the renderer.
func (o Outcome) Changed() bool { return o == Created || o == Updated }

type Store struct {
	cfg  Config
	self domain.ClientID

	mu           sync.Mutex
	peers        map[domain.PeerID]*PeerRecord
	pendingMedia map[domain.PeerID]MediaTrack
}

// New returns an empty store that never tracks self.
func New(self domain.ClientID, cfg Config) *Store {
	return &Store{
		cfg:          cfg,
		self:         self,
		peers:        make(map[domain.PeerID]*PeerRecord),
		pendingMedia: make(map[domain.PeerID]MediaTrack),
	}
}

// Ingest upserts the sample sent by peer. A record is created exactly once,
// on the first sample that names the peer.
func (s *Store) Ingest(peer domain.PeerID, client domain.ClientID, p codec.PartialSample, now time.Time) Outcome {
	if peer == "" || (client != "" && client == s.self) {
		return Rejected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.peers[peer]
	if !ok {
		sample := p.Sample()
		rec = &PeerRecord{
			PeerID:            peer,
			ClientID:          client,
			LastSample:        sample,
			LastSampleTime:    now,
			LastSeq:           p.Seq,
			DisplayedPosition: sample.Position,
			DisplayedRotation: eulerToQuat(sample.Rotation),
			Media:             s.pendingMedia[peer],
			blend:             anim.NewBlend(anim.ClipFor(sample.Movement), s.cfg.Crossfade),
		}
		if sample.Movement.Kind == domain.Jumping {
			rec.lastJumpClip = now
		}
		delete(s.pendingMedia, peer)
		s.peers[peer] = rec
		log.Debug().Str("module", "presence.store").Str("peer", string(peer)).Str("client", string(client)).Msg("peer record created")
		return Created
	}

	if now.Before(rec.LastSampleTime) {
		now = rec.LastSampleTime
	}
	if p.Seq != 0 && rec.LastSeq != 0 && p.Seq <= rec.LastSeq {
		return Stale
	}

	merged := p.Merge(rec.LastSample)
	if merged == rec.LastSample && now.Sub(rec.LastSampleTime) < s.cfg.DuplicateWindow {
		if p.Seq > rec.LastSeq {
			rec.LastSeq = p.Seq
		}
		return Coalesced
	}

	if client != "" {
		rec.ClientID = client
	}
	s.animate(rec, merged.Movement, now)
	rec.LastSample = merged
	rec.LastSampleTime = now
	if p.Seq > rec.LastSeq {
		rec.LastSeq = p.Seq
	}
	return Updated
}

func (s *Store) animate(rec *PeerRecord, m domain.MovementState, now time.Time) {
	clip := anim.ClipFor(m)
	if clip == anim.ClipJump && rec.blend.To != anim.ClipJump {
		if !rec.lastJumpClip.IsZero() && now.Sub(rec.lastJumpClip) < s.cfg.JumpCooldown {
			return
		}
		rec.lastJumpClip = now
	}
	rec.blend = rec.blend.Transition(clip, now)
}

func (s *Store) window(m domain.MovementState) time.Duration {
	switch m.Kind {
	case domain.Jumping:
		return s.cfg.JumpWindow
	case domain.JumpStop:
		return s.cfg.SnapWindow
	default:
		return s.cfg.InterpWindow
	}
}

// Factor is the interpolation factor for a sample received at sampled,
// clamped to [0,1].
func Factor(now, sampled time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 1
	}
	return clamp01(float64(now.Sub(sampled)) / float64(window))
}

// Tick advances the displayed transform of peer toward its latest sample and
// returns it. ok is false for unknown peers.
func (s *Store) Tick(now time.Time, peer domain.PeerID) (pos, rot domain.Vec3, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.peers[peer]
	if !ok {
		return domain.Vec3{}, domain.Vec3{}, false
	}
	s.tickLocked(rec, now)
	return rec.DisplayedPosition, quatToEuler(rec.DisplayedRotation), true
}

func (s *Store) tickLocked(rec *PeerRecord, now time.Time) {
	target := rec.LastSample
	f := Factor(now, rec.LastSampleTime, s.window(target.Movement))

	rec.DisplayedPosition = lerp(rec.DisplayedPosition, target.Position, f)
	rec.DisplayedRotation = slerp(rec.DisplayedRotation, eulerToQuat(target.Rotation), f)

	// A landing settles into idle once the snap has completed.
	if target.Movement.Kind == domain.JumpStop && f >= 1 {
		rec.LastSample.Movement = domain.MovementState{Kind: domain.Idle}
		rec.blend = rec.blend.Transition(anim.ClipIdle, now)
	}
}

// SetMedia attaches a remote media track. Tracks for peers not yet seen are
// held until their record is created.
func (s *Store) SetMedia(peer domain.PeerID, track MediaTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.peers[peer]; ok {
		rec.Media = track
		return
	}
	s.pendingMedia[peer] = track
}

// Remove evicts peer. It reports whether a record existed.
func (s *Store) Remove(peer domain.PeerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingMedia, peer)
	if _, ok := s.peers[peer]; !ok {
		return false
	}
	delete(s.peers, peer)
	log.Debug().Str("module", "presence.store").Str("peer", string(peer)).Msg("peer record removed")
	return true
}

// Clear drops every record, used on room migration.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.peers)
	s.peers = make(map[domain.PeerID]*PeerRecord)
	s.pendingMedia = make(map[domain.PeerID]MediaTrack)
	log.Debug().Str("module", "presence.store").Int("dropped", n).Msg("store cleared")
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Get returns a copy of the record for peer.
func (s *Store) Get(peer domain.PeerID) (PeerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.peers[peer]
	if !ok {
		return PeerRecord{}, false
	}
	return *rec, true
}

// Peers lists known peers in a stable order.
func (s *Store) Peers() []domain.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PeerID, 0, len(s.peers))
	for id := range s.peers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// View is what the renderer pulls for one peer each frame.
type View struct {
	PeerID       domain.PeerID
	ClientID     domain.ClientID
	Position     domain.Vec3
	Rotation     domain.Vec3
	Quat         mgl64.Quat
	Movement     domain.MovementState
	Animation    anim.State
	DisplayName  string
	ProfileImage string
	AvatarURL    string
	HasMedia     bool
}

// Views ticks every peer at now and returns their views sorted by peer id.
func (s *Store) Views(now time.Time) []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]View, 0, len(s.peers))
	for _, rec := range s.peers {
		s.tickLocked(rec, now)
		id := rec.LastSample.Identity
		out = append(out, View{
			PeerID:       rec.PeerID,
			ClientID:     rec.ClientID,
			Position:     rec.DisplayedPosition,
			Rotation:     quatToEuler(rec.DisplayedRotation),
			Quat:         rec.DisplayedRotation,
			Movement:     rec.LastSample.Movement,
			Animation:    rec.blend.State(now),
			DisplayName:  id.DisplayName,
			ProfileImage: id.ProfileImage,
			AvatarURL:    id.AvatarURL,
			HasMedia:     rec.Media != nil,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}
