// Package wsrelay carries presence frames through the server's websocket
// relay when direct peer links are not wanted. It has no media path.
package wsrelay

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/proto"
	"github.com/dkeye/Presence/internal/transport"
)

type Config struct {
	BaseURL    string
	Dialer     *websocket.Dialer
	SendQueue  int
	PingPeriod time.Duration
	// RetryMin and RetryMax bound the redial backoff after the relay drops the socket.
	RetryMin time.Duration
	RetryMax time.Duration
}

type Transport struct {
	transport.Callbacks

	cfg  Config
	wg   conc.WaitGroup
	send chan []byte

	mu     sync.Mutex
	cancel context.CancelFunc
	joined bool
	full   bool
	sid    string
	peers  map[domain.PeerID]transport.PeerInfo
}

func New(cfg Config) *Transport {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 32
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 30 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = 500 * time.Millisecond
	}
	if cfg.RetryMax < cfg.RetryMin {
		cfg.RetryMax = max(10*time.Second, cfg.RetryMin)
	}
	return &Transport{
		cfg:   cfg,
		send:  make(chan []byte, cfg.SendQueue),
		peers: make(map[domain.PeerID]transport.PeerInfo),
	}
}

func Factory(cfg Config) transport.Factory {
	return func() transport.Transport { return New(cfg) }
}

// RelayURL maps an http(s) base to the websocket relay endpoint.
func RelayURL(base string, room domain.RoomID, self domain.ClientID, limit int) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("relay url: unsupported scheme %q", u.Scheme)
	}
	u.Path += "/api/ws/relay"
	q := url.Values{}
	q.Set("room", string(room))
	q.Set("client", string(self))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *Transport) Join(ctx context.Context, room domain.RoomID, self domain.ClientID, opts transport.Options) error {
	if t.IsClosed() {
		return transport.ErrClosed
	}
	endpoint, err := RelayURL(t.cfg.BaseURL, room, self, opts.ParticipantLimit)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.joined {
		t.mu.Unlock()
		return transport.ErrAlreadyOpen
	}
	t.joined = true
	t.mu.Unlock()

	conn, _, err := t.cfg.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("relay dial: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	if t.IsClosed() {
		cancel()
		_ = conn.Close()
		return transport.ErrClosed
	}

	log.Info().Str("module", "transport.wsrelay").Str("room", string(room)).Msg("connected")
	t.wg.Go(func() { t.run(runCtx, endpoint, conn) })
	return nil
}

// run serves conn and redials with backoff whenever the relay drops it.
// A room_full refusal ends the session for good.
func (t *Transport) run(ctx context.Context, endpoint string, conn *websocket.Conn) {
	backoff := transport.Backoff{
		InitialDelay: t.cfg.RetryMin,
		Multiplier:   2,
		MaxDelay:     t.cfg.RetryMax,
	}
	for {
		t.serve(ctx, conn)
		t.dropAll()

		t.mu.Lock()
		full := t.full
		t.mu.Unlock()
		if full || ctx.Err() != nil {
			return
		}
		if conn = t.redial(ctx, endpoint, backoff); conn == nil {
			return
		}
	}
}

func (t *Transport) serve(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	var wg conc.WaitGroup
	wg.Go(func() { t.writePump(connCtx, conn) })
	t.readPump(ctx, conn)
	cancel()
	wg.Wait()
}

func (t *Transport) redial(ctx context.Context, endpoint string, backoff transport.Backoff) *websocket.Conn {
	for attempt := 1; ; attempt++ {
		delay := backoff.NextDelay(attempt)
		log.Warn().Str("module", "transport.wsrelay").Int("attempt", attempt).Dur("retry_in", delay).Msg("relay lost, redialing")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		conn, _, err := t.cfg.Dialer.DialContext(ctx, endpoint, nil)
		if err == nil {
			log.Info().Str("module", "transport.wsrelay").Int("attempt", attempt).Msg("reconnected")
			return conn
		}
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Str("module", "transport.wsrelay").Msg("relay dial")
	}
}

// writePump owns conn's write side and closes conn when it stops, which also ends readPump.
func (t *Transport) writePump(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	ping := time.NewTicker(t.cfg.PingPeriod)
	defer ping.Stop()
	pingFrame, _ := json.Marshal(proto.RelayEvent{Type: proto.EventPing})

	for {
		var data []byte
		select {
		case <-ctx.Done():
			return
		case data = <-t.send:
		case <-ping.C:
			data = pingFrame
		}
		if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			log.Error().Err(err).Str("module", "transport.wsrelay").Msg("writePump set deadline")
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "transport.wsrelay").Msg("writePump write error")
			return
		}
	}
}

func (t *Transport) readPump(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "transport.wsrelay").Msg("readPump read error")
			}
			return
		}
		var ev proto.RelayEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Debug().Err(err).Str("module", "transport.wsrelay").Msg("bad relay frame")
			continue
		}
		t.handle(ev)
	}
}

func (t *Transport) handle(ev proto.RelayEvent) {
	switch ev.Type {
	case proto.EventWelcome:
		t.mu.Lock()
		t.sid = ev.Session
		t.mu.Unlock()
		for _, p := range ev.Peers {
			t.addPeer(transport.PeerInfo{ID: domain.PeerID(p.SessionID), Client: domain.ClientID(p.ClientID)})
		}
	case proto.EventPeerJoined:
		t.addPeer(transport.PeerInfo{ID: domain.PeerID(ev.Session), Client: domain.ClientID(ev.Client)})
	case proto.EventPeerLeft:
		id := domain.PeerID(ev.Session)
		t.mu.Lock()
		_, ok := t.peers[id]
		delete(t.peers, id)
		t.mu.Unlock()
		if ok {
			t.FirePeerClosed(id)
		}
	case proto.EventData:
		t.FireMessage(domain.PeerID(ev.Session), []byte(ev.Data))
	case proto.EventRoomFull:
		t.mu.Lock()
		t.full = true
		t.mu.Unlock()
		t.FireRoomFull()
	case proto.EventPong:
	default:
		log.Debug().Str("module", "transport.wsrelay").Str("type", string(ev.Type)).Msg("unknown relay event")
	}
}

func (t *Transport) addPeer(info transport.PeerInfo) {
	if info.ID == "" {
		return
	}
	t.mu.Lock()
	if info.ID == domain.PeerID(t.sid) {
		t.mu.Unlock()
		return
	}
	_, existed := t.peers[info.ID]
	t.peers[info.ID] = info
	t.mu.Unlock()
	if !existed {
		t.FirePeerConnected(info)
	}
}

func (t *Transport) dropAll() {
	t.mu.Lock()
	ids := make([]domain.PeerID, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	t.peers = make(map[domain.PeerID]transport.PeerInfo)
	t.mu.Unlock()
	for _, id := range ids {
		t.FirePeerClosed(id)
	}
}

// Broadcast frames data for the relay; data must be a JSON document.
func (t *Transport) Broadcast(data []byte) {
	if t.IsClosed() {
		return
	}
	frame, err := json.Marshal(proto.RelayEvent{Type: proto.EventData, Data: data})
	if err != nil {
		log.Debug().Err(err).Str("module", "transport.wsrelay").Msg("frame not JSON, dropped")
		return
	}
	select {
	case t.send <- frame:
	default:
		log.Debug().Str("module", "transport.wsrelay").Msg("send queue full, frame dropped")
	}
}

// SetLocalTrack is a no-op; the relay carries no media.
func (t *Transport) SetLocalTrack(track webrtc.TrackLocal) error {
	if t.IsClosed() {
		return transport.ErrClosed
	}
	if track != nil {
		log.Info().Str("module", "transport.wsrelay").Msg("relay transport has no media path, track ignored")
	}
	return nil
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
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
	return nil
}
