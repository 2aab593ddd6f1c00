// Package mesh implements the peer mesh over pion data channels, coordinated
// through the polling signaling relay.
package mesh

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Presence/internal/adapters/rtc"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/proto"
	"github.com/dkeye/Presence/internal/transport"
)

type Config struct {
	// BaseURL is the relay root, e.g. https://example.org.
	BaseURL    string
	HTTPClient *http.Client
	// WebRTC builds the peer connection settings; defaults to rtc.DefaultWebRTCConfig.
	WebRTC func(servers []webrtc.ICEServer) webrtc.Configuration
}

type peer struct {
	info transport.PeerInfo
	conn *rtc.Connection
	open bool
}

type Transport struct {
	transport.Callbacks

	sig    *signalClient
	sid    string
	rtcCfg func([]webrtc.ICEServer) webrtc.Configuration

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu     sync.Mutex
	joined bool
	room   domain.RoomID
	self   domain.ClientID
	opts   transport.Options
	peers  map[domain.PeerID]*peer
	known  map[domain.PeerID]domain.ClientID
	outbox []proto.Package
	track  webrtc.TrackLocal
}

func New(cfg Config) *Transport {
	build := cfg.WebRTC
	if build == nil {
		build = rtc.DefaultWebRTCConfig
	}
	return &Transport{
		sig:    newSignalClient(cfg.BaseURL, cfg.HTTPClient),
		sid:    uuid.NewString(),
		rtcCfg: build,
		peers:  make(map[domain.PeerID]*peer),
		known:  make(map[domain.PeerID]domain.ClientID),
	}
}

// Factory returns a transport.Factory for relay cfg.
func Factory(cfg Config) transport.Factory {
	return func() transport.Transport { return New(cfg) }
}

// SessionID is this transport's identity on the relay.
func (t *Transport) SessionID() string { return t.sid }

func (t *Transport) Join(ctx context.Context, room domain.RoomID, self domain.ClientID, opts transport.Options) error {
	if t.IsClosed() {
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	defaults := transport.DefaultOptions()
	if opts.PollIntervalFast <= 0 {
		opts.PollIntervalFast = defaults.PollIntervalFast
	}
	if opts.PollIntervalSlow < opts.PollIntervalFast {
		opts.PollIntervalSlow = opts.PollIntervalFast
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = defaults.StableAfter
	}

	t.mu.Lock()
	if t.joined {
		t.mu.Unlock()
		return transport.ErrAlreadyOpen
	}
	t.joined = true
	t.room = room
	t.self = self
	t.opts = opts
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.mu.Unlock()

	log.Info().Str("module", "transport.mesh").Str("room", string(room)).Str("sid", t.sid).Msg("joining")
	t.wg.Go(func() { t.loop(t.ctx) })
	return nil
}

func (t *Transport) loop(ctx context.Context) {
	backoff := transport.Backoff{
		InitialDelay: t.opts.PollIntervalFast,
		Multiplier:   2,
		MaxDelay:     t.opts.PollIntervalSlow,
	}
	stable, failures := 0, 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		var delay time.Duration
		resp, err := t.pollOnce(ctx)
		switch {
		case errors.Is(err, transport.ErrRoomFull):
			log.Info().Str("module", "transport.mesh").Str("room", string(t.room)).Msg("room full")
			t.FireRoomFull()
			return
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			failures++
			delay = backoff.NextDelay(failures)
			log.Warn().Err(err).Str("module", "transport.mesh").Int("failures", failures).Dur("retry_in", delay).Msg("poll failed")
		default:
			failures = 0
			if t.apply(ctx, resp) {
				stable = 0
			} else {
				stable++
			}
			delay = t.opts.PollIntervalFast
			if stable >= t.opts.StableAfter {
				delay = t.opts.PollIntervalSlow
			}
		}
		timer.Reset(delay)
	}
}

func (t *Transport) pollOnce(ctx context.Context) (proto.PollResponse, error) {
	t.mu.Lock()
	out := t.outbox
	t.outbox = nil
	req := proto.PollRequest{
		SessionID: t.sid,
		ClientID:  string(t.self),
		Limit:     t.opts.ParticipantLimit,
		Packages:  out,
	}
	t.mu.Unlock()

	resp, err := t.sig.poll(ctx, t.room, req)
	if err != nil && len(out) > 0 {
		t.mu.Lock()
		t.outbox = append(out, t.outbox...)
		t.mu.Unlock()
	}
	return resp, err
}

func (t *Transport) enqueue(p proto.Package) {
	t.mu.Lock()
	p.From = t.sid
	p.Client = string(t.self)
	t.outbox = append(t.outbox, p)
	t.mu.Unlock()
}

// apply reconciles the relay's view with local links; it reports whether anything changed.
func (t *Transport) apply(ctx context.Context, resp proto.PollResponse) bool {
	changed := len(resp.Packages) > 0
	present := make(map[domain.PeerID]bool, len(resp.Peers))

	t.mu.Lock()
	var offers []transport.PeerInfo
	for _, p := range resp.Peers {
		id := domain.PeerID(p.SessionID)
		if p.SessionID == t.sid || id == "" {
			continue
		}
		present[id] = true
		if _, ok := t.known[id]; !ok {
			changed = true
			t.known[id] = domain.ClientID(p.ClientID)
			if t.sid < p.SessionID {
				offers = append(offers, transport.PeerInfo{ID: id, Client: domain.ClientID(p.ClientID)})
			}
		}
	}
	var gone []domain.PeerID
	for id := range t.known {
		if !present[id] {
			gone = append(gone, id)
			delete(t.known, id)
		}
	}
	t.mu.Unlock()

	if len(gone) > 0 {
		changed = true
	}
	for _, id := range gone {
		t.closePeer(id)
	}
	for _, info := range offers {
		t.wg.Go(func() { t.offer(ctx, info) })
	}
	for _, pkg := range resp.Packages {
		t.handlePackage(ctx, pkg)
	}
	return changed
}

func (t *Transport) handlePackage(ctx context.Context, pkg proto.Package) {
	id := domain.PeerID(pkg.From)
	switch pkg.Kind {
	case proto.KindOffer:
		info := transport.PeerInfo{ID: id, Client: domain.ClientID(pkg.Client)}
		t.wg.Go(func() { t.answer(ctx, info, pkg.SDP) })
	case proto.KindAnswer:
		t.mu.Lock()
		p, ok := t.peers[id]
		t.mu.Unlock()
		if !ok {
			log.Debug().Str("module", "transport.mesh").Str("peer", string(id)).Msg("answer for unknown peer")
			return
		}
		if err := p.conn.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: pkg.SDP}); err != nil {
			log.Warn().Err(err).Str("module", "transport.mesh").Str("peer", string(id)).Msg("apply answer")
			t.closePeer(id)
		}
	case proto.KindBye:
		t.closePeer(id)
	default:
		log.Warn().Str("module", "transport.mesh").Str("kind", string(pkg.Kind)).Msg("unknown package")
	}
}

func (t *Transport) offer(ctx context.Context, info transport.PeerInfo) {
	conn, err := t.newConn(ctx, info)
	if err != nil {
		log.Warn().Err(err).Str("module", "transport.mesh").Str("peer", string(info.ID)).Msg("new connection")
		t.forget(info.ID)
		return
	}
	if err := conn.OpenDataChannel(); err != nil {
		log.Warn().Err(err).Str("module", "transport.mesh").Str("peer", string(info.ID)).Msg("open data channel")
		t.closePeer(info.ID)
		return
	}
	desc, err := conn.CreateOffer(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "transport.mesh").Str("peer", string(info.ID)).Msg("create offer")
		t.closePeer(info.ID)
		return
	}
	t.enqueue(proto.Package{To: string(info.ID), Kind: proto.KindOffer, SDP: desc.SDP})
}

func (t *Transport) answer(ctx context.Context, info transport.PeerInfo, sdp string) {
	t.closePeer(info.ID)
	conn, err := t.newConn(ctx, info)
	if err != nil {
		log.Warn().Err(err).Str("module", "transport.mesh").Str("peer", string(info.ID)).Msg("new connection")
		return
	}
	desc, err := conn.ApplyOfferAndCreateAnswer(ctx, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
	if err != nil {
		log.Warn().Err(err).Str("module", "transport.mesh").Str("peer", string(info.ID)).Msg("apply offer")
		t.closePeer(info.ID)
		return
	}
	t.enqueue(proto.Package{To: string(info.ID), Kind: proto.KindAnswer, SDP: desc.SDP})
}

func (t *Transport) newConn(ctx context.Context, info transport.PeerInfo) (*rtc.Connection, error) {
	conn, err := rtc.NewConnection(t.rtcCfg(t.opts.ICEServers), info.ID)
	if err != nil {
		return nil, err
	}
	p := &peer{info: info, conn: conn}

	conn.OnOpen(func() {
		t.mu.Lock()
		cur, ok := t.peers[info.ID]
		if ok && cur == p {
			p.open = true
		}
		t.mu.Unlock()
		if ok && cur == p {
			t.FirePeerConnected(info)
		}
	})
	conn.OnMessage(func(data []byte) { t.FireMessage(info.ID, data) })
	conn.OnTrack(func(_ context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t.FireTrack(info.ID, track)
	})
	conn.OnClosed(func() { t.dropPeer(info.ID, p) })

	if err := conn.Start(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	t.mu.Lock()
	if ctx.Err() != nil {
		t.mu.Unlock()
		conn.Close()
		return nil, ctx.Err()
	}
	track := t.track
	t.peers[info.ID] = p
	t.mu.Unlock()

	if track != nil {
		if err := conn.SetLocalTrack(track); err != nil {
			log.Warn().Err(err).Str("module", "transport.mesh").Str("peer", string(info.ID)).Msg("attach local track")
		}
	}
	return conn, nil
}

func (t *Transport) closePeer(id domain.PeerID) {
	t.mu.Lock()
	p, ok := t.peers[id]
	t.mu.Unlock()
	if ok {
		p.conn.Close()
	}
}

// forget clears id from the relay view so the next poll that lists it links again.
func (t *Transport) forget(id domain.PeerID) {
	t.mu.Lock()
	delete(t.known, id)
	t.mu.Unlock()
}

// dropPeer forgets p once its link is gone and reports the close if it was ever open.
// The peer also leaves the relay view, so a peer still listed by the relay is relinked.
func (t *Transport) dropPeer(id domain.PeerID, p *peer) {
	t.mu.Lock()
	cur, ok := t.peers[id]
	if !ok || cur != p {
		t.mu.Unlock()
		return
	}
	delete(t.peers, id)
	delete(t.known, id)
	wasOpen := p.open
	t.mu.Unlock()

	go p.conn.Close()
	if wasOpen {
		t.FirePeerClosed(id)
	}
}

func (t *Transport) Broadcast(data []byte) {
	if t.IsClosed() {
		return
	}
	t.mu.Lock()
	conns := make([]*rtc.Connection, 0, len(t.peers))
	for _, p := range t.peers {
		if p.open {
			conns = append(conns, p.conn)
		}
	}
	t.mu.Unlock()

	for _, c := range conns {
		if err := c.Send(data); err != nil {
			log.Debug().Err(err).Str("module", "transport.mesh").Str("peer", string(c.Peer())).Msg("frame dropped")
		}
	}
}

func (t *Transport) SetLocalTrack(track webrtc.TrackLocal) error {
	if t.IsClosed() {
		return transport.ErrClosed
	}
	t.mu.Lock()
	t.track = track
	conns := make([]*rtc.Connection, 0, len(t.peers))
	for _, p := range t.peers {
		conns = append(conns, p.conn)
	}
	t.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.SetLocalTrack(track); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Transport) Peers() []transport.PeerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.PeerInfo, 0, len(t.peers))
	for _, p := range t.peers {
		if p.open {
			out = append(out, p.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *Transport) Close() error {
	if !t.Shutdown() {
		return nil
	}
	t.mu.Lock()
	joined := t.joined
	cancel := t.cancel
	t.mu.Unlock()
	if !joined {
		return nil
	}
	cancel()
	t.wg.Wait()

	t.mu.Lock()
	peers := make([]*peer, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.peers = make(map[domain.PeerID]*peer)
	t.mu.Unlock()
	for _, p := range peers {
		p.conn.Close()
	}

	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := t.sig.leave(ctx, t.room, t.sid); err != nil {
		log.Debug().Err(err).Str("module", "transport.mesh").Msg("leave")
	}
	log.Info().Str("module", "transport.mesh").Str("room", string(t.room)).Str("sid", t.sid).Msg("closed")
	return nil
}
