// Package memory is an in-process mesh for tests and bots sharing one process.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/transport"
)

// Hub connects every memory transport joined to the same room.
type Hub struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]map[domain.PeerID]*Transport
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[domain.RoomID]map[domain.PeerID]*Transport)}
}

// Factory returns a transport.Factory producing transports bound to h.
func (h *Hub) Factory() transport.Factory {
	return func() transport.Transport { return h.New() }
}

func (h *Hub) New() *Transport {
	return &Transport{hub: h, id: domain.PeerID(uuid.NewString()), q: newQueue()}
}

// Members reports the peer ids currently joined to room.
func (h *Hub) Members(room domain.RoomID) []domain.PeerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.PeerID, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Hub) join(t *Transport, limit int) (mates []*Transport, full bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[t.room]
	if members == nil {
		members = make(map[domain.PeerID]*Transport)
		h.rooms[t.room] = members
	}
	if limit > 0 && len(members) >= limit {
		return nil, true
	}
	for _, m := range members {
		mates = append(mates, m)
	}
	members[t.id] = t
	return mates, false
}

func (h *Hub) leave(t *Transport) []*Transport {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[t.room]
	if _, ok := members[t.id]; !ok {
		return nil
	}
	delete(members, t.id)
	if len(members) == 0 {
		delete(h.rooms, t.room)
	}
	out := make([]*Transport, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return out
}

func (h *Hub) mates(t *Transport) []*Transport {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Transport, 0, len(h.rooms[t.room]))
	for id, m := range h.rooms[t.room] {
		if id != t.id {
			out = append(out, m)
		}
	}
	return out
}

type Transport struct {
	transport.Callbacks

	hub  *Hub
	id   domain.PeerID
	q    *queue
	wg   conc.WaitGroup

	mu     sync.Mutex
	room   domain.RoomID
	client domain.ClientID
	joined bool
	peers  map[domain.PeerID]transport.PeerInfo
	track  webrtc.TrackLocal
}

func (t *Transport) ID() domain.PeerID { return t.id }

func (t *Transport) Join(ctx context.Context, room domain.RoomID, self domain.ClientID, opts transport.Options) error {
	if t.IsClosed() {
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.joined {
		t.mu.Unlock()
		return transport.ErrAlreadyOpen
	}
	t.joined = true
	t.room = room
	t.client = self
	t.peers = make(map[domain.PeerID]transport.PeerInfo)
	t.mu.Unlock()

	t.wg.Go(t.q.run)

	mates, full := t.hub.join(t, opts.ParticipantLimit)
	if full {
		log.Info().Str("module", "transport.memory").Str("room", string(room)).Msg("room full")
		t.q.push(t.FireRoomFull)
		return nil
	}
	for _, m := range mates {
		m.connect(t)
		t.connect(m)
	}
	return nil
}

// connect links other and replays its current track, so late joiners hear existing speakers.
func (t *Transport) connect(other *Transport) {
	info := transport.PeerInfo{ID: other.id, Client: other.client}
	track := other.LocalTrack()
	t.mu.Lock()
	t.peers[other.id] = info
	t.mu.Unlock()
	t.q.push(func() { t.FirePeerConnected(info) })
	if track != nil {
		t.q.push(func() { t.FireTrack(info.ID, track) })
	}
}

func (t *Transport) disconnect(id domain.PeerID) {
	t.mu.Lock()
	_, ok := t.peers[id]
	delete(t.peers, id)
	t.mu.Unlock()
	if ok {
		t.q.push(func() { t.FirePeerClosed(id) })
	}
}

func (t *Transport) deliver(from domain.PeerID, data []byte) {
	t.mu.Lock()
	_, ok := t.peers[from]
	t.mu.Unlock()
	if !ok {
		return
	}
	if !t.q.tryPush(func() { t.FireMessage(from, data) }) {
		log.Debug().Str("module", "transport.memory").Str("peer", string(t.id)).Msg("message dropped, queue full")
	}
}

func (t *Transport) Broadcast(data []byte) {
	if t.IsClosed() {
		return
	}
	for _, m := range t.hub.mates(t) {
		buf := append([]byte(nil), data...)
		m.deliver(t.id, buf)
	}
}

// SetLocalTrack announces the track to every connected peer.
func (t *Transport) SetLocalTrack(track webrtc.TrackLocal) error {
	if t.IsClosed() {
		return transport.ErrClosed
	}
	t.mu.Lock()
	t.track = track
	t.mu.Unlock()
	if track == nil {
		return nil
	}
	for _, m := range t.hub.mates(t) {
		from := t.id
		m.q.push(func() { m.FireTrack(from, track) })
	}
	return nil
}

// LocalTrack reports the track currently attached.
func (t *Transport) LocalTrack() webrtc.TrackLocal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.track
}

func (t *Transport) Peers() []transport.PeerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.PeerInfo, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *Transport) Close() error {
	if !t.Shutdown() {
		return nil
	}
	for _, m := range t.hub.leave(t) {
		m.disconnect(t.id)
	}
	t.q.close()
	t.wg.Wait()
	log.Debug().Str("module", "transport.memory").Str("peer", string(t.id)).Msg("closed")
	return nil
}
