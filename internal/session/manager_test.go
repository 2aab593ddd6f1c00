package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/ice"
	"github.com/dkeye/Presence/internal/transport"
	"github.com/dkeye/Presence/internal/transport/memory"
	"github.com/dkeye/Presence/internal/transport/mocks"
)

type captured struct {
	message  func(domain.PeerID, []byte)
	roomFull func()
}

func expectSetters(mt *mocks.MockTransport) *captured {
	cb := &captured{}
	mt.EXPECT().OnMessage(gomock.Any()).Do(func(fn func(domain.PeerID, []byte)) { cb.message = fn })
	mt.EXPECT().OnPeerConnected(gomock.Any())
	mt.EXPECT().OnPeerClosed(gomock.Any())
	mt.EXPECT().OnTrack(gomock.Any())
	mt.EXPECT().OnRoomFull(gomock.Any()).Do(func(fn func()) { cb.roomFull = fn })
	return cb
}

func sequence(ts ...transport.Transport) transport.Factory {
	var mu sync.Mutex
	return func() transport.Transport {
		mu.Lock()
		defer mu.Unlock()
		t := ts[0]
		ts = ts[1:]
		return t
	}
}

func testConfig() Config {
	return Config{
		Self:             "user-self",
		ParticipantLimit: 4,
		RoomFullDelay:    10 * time.Millisecond,
	}
}

func newAudioTrack(t *testing.T, id string) webrtc.TrackLocal {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, id, "local")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	return track
}

var (
	roomA = DeriveRoomID("example.org", "a", DefaultPrefix)
	roomB = DeriveRoomID("example.org", "b", DefaultPrefix)
)

func TestStartIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	mt := mocks.NewMockTransport(ctrl)
	expectSetters(mt)
	mt.EXPECT().Join(gomock.Any(), roomA.RoomID(), domain.ClientID("user-self"), gomock.Any()).Return(nil)
	mt.EXPECT().Close().Return(nil)

	m := NewManager(testConfig(), sequence(mt), ice.Static(nil), nil)
	first, err := m.Start(context.Background(), roomA)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := m.Start(context.Background(), roomA)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if first != second || first.Generation != second.Generation {
		t.Fatalf("sessions differ: %+v vs %+v", first, second)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := m.Start(context.Background(), roomA); err != ErrClosed {
		t.Fatalf("start after close = %v", err)
	}
}

func TestStaleEventsAreDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	t1, t2 := mocks.NewMockTransport(ctrl), mocks.NewMockTransport(ctrl)
	cb1, cb2 := expectSetters(t1), expectSetters(t2)
	t1.EXPECT().Join(gomock.Any(), roomA.RoomID(), gomock.Any(), gomock.Any()).Return(nil)
	t2.EXPECT().Join(gomock.Any(), roomB.RoomID(), gomock.Any(), gomock.Any()).Return(nil)
	t1.EXPECT().Close().Return(nil)
	t2.EXPECT().Close().Return(nil)

	var got []string
	var resets int
	m := NewManager(testConfig(), sequence(t1, t2), ice.Static(nil), nil)
	m.SetHandlers(Handlers{
		Message: func(peer domain.PeerID, data []byte) { got = append(got, string(peer)+":"+string(data)) },
		Reset:   func() { resets++ },
	})
	defer m.Close()

	if _, err := m.Start(context.Background(), roomA); err != nil {
		t.Fatalf("start a: %v", err)
	}
	cb1.message("p1", []byte("one"))
	if _, err := m.Start(context.Background(), roomB); err != nil {
		t.Fatalf("start b: %v", err)
	}
	cb1.message("p1", []byte("late"))
	cb1.roomFull()
	cb2.message("p2", []byte("two"))

	want := []string{"p1:one", "p2:two"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("delivered = %v, want %v", got, want)
	}
	if resets != 2 {
		t.Fatalf("resets = %d, want 2", resets)
	}
	cur, ok := m.Current()
	if !ok || cur.Identity != roomB {
		t.Fatalf("current = %+v, %v", cur, ok)
	}
}

func TestJoinUsesFallbackServersWhenTURNFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctrl := gomock.NewController(t)
	mt := mocks.NewMockTransport(ctrl)
	expectSetters(mt)
	mt.EXPECT().Join(gomock.Any(), roomA.RoomID(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ domain.RoomID, _ domain.ClientID, opts transport.Options) error {
			want := ice.DefaultServers()
			if len(opts.ICEServers) != len(want) {
				t.Errorf("ice servers = %+v", opts.ICEServers)
				return nil
			}
			for i := range want {
				if opts.ICEServers[i].URLs[0] != want[i].URLs[0] {
					t.Errorf("ice server %d = %+v", i, opts.ICEServers[i])
				}
			}
			if opts.ParticipantLimit != 4 {
				t.Errorf("participant limit = %d", opts.ParticipantLimit)
			}
			return nil
		})
	mt.EXPECT().Close().Return(nil)

	m := NewManager(testConfig(), sequence(mt), ice.NewFetcher(srv.URL, ""), nil)
	defer m.Close()
	if _, err := m.Start(context.Background(), roomA); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestSetLocalTrackDetachesBeforeRelease(t *testing.T) {
	ctrl := gomock.NewController(t)
	mt := mocks.NewMockTransport(ctrl)
	expectSetters(mt)
	mt.EXPECT().Join(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	mt.EXPECT().Close().Return(nil)

	first, second := newAudioTrack(t, "mic-1"), newAudioTrack(t, "mic-2")
	var released1, released2 atomic.Bool

	gomock.InOrder(
		mt.EXPECT().SetLocalTrack(first).Return(nil),
		mt.EXPECT().SetLocalTrack(second).Do(func(webrtc.TrackLocal) {
			if released1.Load() {
				t.Error("previous track released before it was detached")
			}
		}).Return(nil),
	)

	m := NewManager(testConfig(), sequence(mt), ice.Static(nil), nil)
	if _, err := m.Start(context.Background(), roomA); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.SetLocalTrack(first, func() { released1.Store(true) }); err != nil {
		t.Fatalf("set first: %v", err)
	}
	if err := m.SetLocalTrack(second, func() { released2.Store(true) }); err != nil {
		t.Fatalf("set second: %v", err)
	}
	if !released1.Load() || released2.Load() {
		t.Fatalf("released1=%v released2=%v", released1.Load(), released2.Load())
	}
	_ = m.Close()
	if !released2.Load() {
		t.Fatal("current track not released on close")
	}
}

func TestRoomFullMigratesToOverflowRoom(t *testing.T) {
	hub := memory.NewHub()
	cfg := testConfig()
	cfg.ParticipantLimit = 1

	host := NewManager(cfg, hub.Factory(), ice.Static(nil), nil)
	defer host.Close()
	if _, err := host.Start(context.Background(), roomA); err != nil {
		t.Fatalf("host start: %v", err)
	}

	migrated := make(chan domain.RoomIdentity, 1)
	var resets atomic.Int32
	guest := NewManager(cfg, hub.Factory(), ice.Static(nil), func() string { return Fragment(roomA) })
	guest.SetHandlers(Handlers{
		Reset:    func() { resets.Add(1) },
		Migrated: func(id domain.RoomIdentity) { migrated <- id },
	})
	defer guest.Close()
	if _, err := guest.Start(context.Background(), roomA); err != nil {
		t.Fatalf("guest start: %v", err)
	}

	select {
	case id := <-migrated:
		if id.RoomID() != NextRoom(roomA).RoomID() {
			t.Fatalf("migrated to %q", id.RoomID())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("guest never migrated")
	}
	cur, ok := guest.Current()
	if !ok || cur.Identity.RoomID() != NextRoom(roomA).RoomID() {
		t.Fatalf("guest current = %+v", cur)
	}
	if resets.Load() != 2 {
		t.Fatalf("resets = %d, want 2", resets.Load())
	}
	if n := len(hub.Members(roomA.RoomID())); n != 1 {
		t.Fatalf("full room members = %d", n)
	}
	if n := len(hub.Members(NextRoom(roomA).RoomID())); n != 1 {
		t.Fatalf("overflow room members = %d", n)
	}
}

func TestSyncFollowsLocation(t *testing.T) {
	hub := memory.NewHub()
	var mu sync.Mutex
	fragment := Fragment(roomA)
	loc := func() string {
		mu.Lock()
		defer mu.Unlock()
		return fragment
	}

	m := NewManager(testConfig(), hub.Factory(), ice.Static(nil), loc)
	defer m.Close()

	s1, err := m.Sync(context.Background())
	if err != nil || s1.Identity.RoomID() != roomA.RoomID() {
		t.Fatalf("first sync = %+v, %v", s1, err)
	}
	s2, err := m.Sync(context.Background())
	if err != nil || s2 != s1 {
		t.Fatalf("unchanged sync rebuilt the session")
	}

	mu.Lock()
	fragment = Fragment(roomB)
	mu.Unlock()
	s3, err := m.Sync(context.Background())
	if err != nil || s3.Identity.RoomID() != roomB.RoomID() || s3.Generation == s1.Generation {
		t.Fatalf("sync after change = %+v, %v", s3, err)
	}
	if n := len(hub.Members(roomA.RoomID())); n != 0 {
		t.Fatalf("old room still has %d members", n)
	}
}

func TestSyncUsesFallback(t *testing.T) {
	cfg := testConfig()
	cfg.Fallback = roomB
	m := NewManager(cfg, memory.NewHub().Factory(), ice.Static(nil), nil)
	defer m.Close()
	s, err := m.Sync(context.Background())
	if err != nil || s.Identity != roomB {
		t.Fatalf("sync = %+v, %v", s, err)
	}
}

func TestRosterListsSelfFirst(t *testing.T) {
	hub := memory.NewHub()
	other := NewManager(Config{Self: "user-other"}, hub.Factory(), ice.Static(nil), nil)
	defer other.Close()

	connected := make(chan struct{}, 1)
	m := NewManager(testConfig(), hub.Factory(), ice.Static(nil), nil)
	m.SetHandlers(Handlers{
		PeerConnected: func(transport.PeerInfo) { connected <- struct{}{} },
		Name:          func(domain.PeerID) string { return "Grace" },
	})
	defer m.Close()

	if _, err := m.Start(context.Background(), roomA); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := other.Start(context.Background(), roomA); err != nil {
		t.Fatalf("other start: %v", err)
	}
	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("peer never connected")
	}

	r := m.Roster(domain.LocalIdentity{DisplayName: "Ada"})
	if len(r) != 2 {
		t.Fatalf("roster = %+v", r)
	}
	if !r[0].Self || r[0].Name != "Ada" {
		t.Fatalf("first entry = %+v", r[0])
	}
	if r[1].Self || r[1].Name != "Grace" || r[1].ClientID != "user-other" {
		t.Fatalf("second entry = %+v", r[1])
	}
}
