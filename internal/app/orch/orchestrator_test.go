package orch

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dkeye/Presence/internal/app"
	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/metrics"
	"github.com/dkeye/Presence/internal/proto"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newOrch(defaultLimit, maxLimit int) (*Orchestrator, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	return &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(defaultLimit, maxLimit),
		Policy:   app.SimplePolicy{},
		Channel:  "poll",
		Now:      clock.Now,
	}, clock
}

func poll(t *testing.T, o *Orchestrator, room, sid string, pkgs ...proto.Package) proto.PollResponse {
	t.Helper()
	resp, err := o.Poll(domain.RoomID(room), proto.PollRequest{SessionID: sid, ClientID: "user-" + sid, Packages: pkgs})
	if err != nil {
		t.Fatalf("poll %s: %v", sid, err)
	}
	return resp
}

func TestPollRoutesPackages(t *testing.T) {
	o, _ := newOrch(10, 10)

	first := poll(t, o, "lobby", "a")
	if len(first.Peers) != 1 || first.Peers[0].SessionID != "a" {
		t.Fatalf("first peers = %+v", first.Peers)
	}
	second := poll(t, o, "lobby", "b")
	if len(second.Peers) != 2 {
		t.Fatalf("second peers = %+v", second.Peers)
	}

	poll(t, o, "lobby", "a", proto.Package{To: "b", Kind: proto.KindOffer, SDP: "v=0", From: "spoofed"})
	got := poll(t, o, "lobby", "b")
	if len(got.Packages) != 1 {
		t.Fatalf("packages = %+v", got.Packages)
	}
	pkg := got.Packages[0]
	if pkg.From != "a" || pkg.Kind != proto.KindOffer || pkg.Client != "user-a" {
		t.Fatalf("package = %+v", pkg)
	}
	if again := poll(t, o, "lobby", "b"); len(again.Packages) != 0 {
		t.Fatalf("mailbox not drained: %+v", again.Packages)
	}
}

func TestPollRoomFull(t *testing.T) {
	o, _ := newOrch(2, 10)
	poll(t, o, "lobby", "a")
	poll(t, o, "lobby", "b")

	_, err := o.Poll("lobby", proto.PollRequest{SessionID: "c", ClientID: "user-c"})
	if !errors.Is(err, core.ErrRoomFull) {
		t.Fatalf("err = %v, want ErrRoomFull", err)
	}
	if _, ok := o.Registry.GetSession("c"); ok {
		t.Fatal("rejected session stayed registered")
	}
	if got := poll(t, o, "lobby", "a"); len(got.Peers) != 2 {
		t.Fatalf("peers = %+v", got.Peers)
	}
}

func TestRequestedLimitIsClamped(t *testing.T) {
	o, _ := newOrch(10, 3)
	for _, sid := range []string{"a", "b", "c"} {
		if _, err := o.Poll("lobby", proto.PollRequest{SessionID: sid, ClientID: "u", Limit: 50}); err != nil {
			t.Fatalf("poll %s: %v", sid, err)
		}
	}
	if _, err := o.Poll("lobby", proto.PollRequest{SessionID: "d", ClientID: "u", Limit: 50}); !errors.Is(err, core.ErrRoomFull) {
		t.Fatalf("fourth = %v", err)
	}
	rooms := o.Rooms.List()
	if len(rooms) != 1 || rooms[0].Limit != 3 {
		t.Fatalf("rooms = %+v", rooms)
	}
}

func TestPollRejectsBadRequests(t *testing.T) {
	o, _ := newOrch(10, 10)
	tests := []struct {
		name string
		room domain.RoomID
		req  proto.PollRequest
	}{
		{"no room", "", proto.PollRequest{SessionID: "a", ClientID: "u"}},
		{"no session", "lobby", proto.PollRequest{ClientID: "u"}},
		{"no client", "lobby", proto.PollRequest{SessionID: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := o.Poll(tt.room, tt.req); !errors.Is(err, ErrBadPoll) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestExpireDropsIdleSessions(t *testing.T) {
	o, clock := newOrch(10, 10)
	var departed []core.SessionID
	o.OnDeparted = func(room domain.RoomID, sid core.SessionID) { departed = append(departed, sid) }

	poll(t, o, "lobby", "a")
	poll(t, o, "lobby", "b")
	clock.Advance(20 * time.Second)
	poll(t, o, "lobby", "b")
	clock.Advance(15 * time.Second)

	if n := o.Expire(30 * time.Second); n != 1 {
		t.Fatalf("expired = %d", n)
	}
	if len(departed) != 1 || departed[0] != "a" {
		t.Fatalf("departed = %v", departed)
	}
	if got := poll(t, o, "lobby", "b"); len(got.Peers) != 1 {
		t.Fatalf("peers = %+v", got.Peers)
	}
}

func TestLeaveRemovesEmptyRoom(t *testing.T) {
	o, _ := newOrch(10, 10)
	poll(t, o, "lobby", "a")
	o.Leave("a")
	o.Leave("a")
	if rooms := o.Rooms.List(); len(rooms) != 0 {
		t.Fatalf("rooms = %+v", rooms)
	}
	if o.Registry.Count() != 0 {
		t.Fatal("session still registered")
	}
}

func TestJoinMovesBetweenRooms(t *testing.T) {
	o, _ := newOrch(10, 10)
	poll(t, o, "one", "a")
	poll(t, o, "two", "a")

	if _, ok := o.Rooms.GetRoom("one"); ok {
		t.Fatal("old room should be gone")
	}
	if room, _, ok := o.Registry.RoomOf("a"); !ok || room != "two" {
		t.Fatalf("room = %q", room)
	}
}

func TestOnFrameKicksSlowMember(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, clock := newOrch(10, 10)
	o.Metrics = metrics.NewRelay(reg)
	o.Channel = "ws"

	bind := func(sid string, mb *core.Mailbox) {
		sess := core.NewMemberSession(domain.NewMember(domain.ClientID("u-"+sid), clock.Now())).UpdateSignal(mb)
		o.Registry.BindSignal(core.SessionID(sid), sess, nil, clock.Now())
		if err := o.Join(core.SessionID(sid), "lobby", 0); err != nil {
			t.Fatalf("join %s: %v", sid, err)
		}
	}
	slow := core.NewMailbox(1)
	fast := core.NewMailbox(8)
	bind("sender", core.NewMailbox(8))
	bind("slow", slow)
	bind("fast", fast)

	o.OnFrame("sender", core.Frame(`{"a":1}`))
	o.OnFrame("sender", core.Frame(`{"a":2}`))

	if _, ok := o.Registry.GetSession("slow"); ok {
		t.Fatal("slow member should be kicked")
	}
	if got := len(fast.Drain()); got != 2 {
		t.Fatalf("fast got %d frames", got)
	}
	expected := `
# HELP presence_relay_members_kicked_total Members removed by the backpressure policy.
# TYPE presence_relay_members_kicked_total counter
presence_relay_members_kicked_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "presence_relay_members_kicked_total"); err != nil {
		t.Fatal(err)
	}
}

func TestDropPolicyKeepsSlowMember(t *testing.T) {
	o, clock := newOrch(10, 10)
	o.Policy = app.PolicyByName("drop")
	for _, sid := range []string{"a", "b"} {
		sess := core.NewMemberSession(domain.NewMember("u", clock.Now())).UpdateSignal(core.NewMailbox(1))
		o.Registry.BindSignal(core.SessionID(sid), sess, nil, clock.Now())
		_ = o.Join(core.SessionID(sid), "lobby", 0)
	}
	o.OnFrame("a", core.Frame("1"))
	o.OnFrame("a", core.Frame("2"))
	if _, ok := o.Registry.GetSession("b"); !ok {
		t.Fatal("drop policy must not kick")
	}
}
