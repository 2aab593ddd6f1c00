package store

import (
	"math"
	"testing"
	"time"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/presence/anim"
	"github.com/dkeye/Presence/internal/presence/codec"
)

func at(pos domain.Vec3, m domain.MovementState, seq uint64) codec.PartialSample {
	rot := domain.Vec3{0, 0, 0}
	return codec.PartialSample{Seq: seq, Position: &pos, Rotation: &rot, Movement: m, HasMovement: true}
}

var walking = domain.MovementState{Kind: domain.Walking}

func TestIngestCreatesOnce(t *testing.T) {
	s := New("me", DefaultConfig())
	now := time.Unix(10, 0)

	if got := s.Ingest("p1", "user-1", at(domain.Vec3{1, 0, 0}, walking, 0), now); got != Created {
		t.Fatalf("first ingest = %v, want created", got)
	}
	if got := s.Ingest("p1", "user-1", at(domain.Vec3{2, 0, 0}, walking, 0), now.Add(time.Second)); got != Updated {
		t.Fatalf("second ingest = %v, want updated", got)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

func TestIngestRejectsSelf(t *testing.T) {
	s := New("me", DefaultConfig())
	if got := s.Ingest("p1", "me", at(domain.Vec3{}, walking, 0), time.Now()); got != Rejected {
		t.Fatalf("self ingest = %v, want rejected", got)
	}
	if got := s.Ingest("", "user-1", at(domain.Vec3{}, walking, 0), time.Now()); got != Rejected {
		t.Fatalf("empty peer ingest = %v, want rejected", got)
	}
	if s.Len() != 0 {
		t.Fatal("store must never hold the local identity")
	}
}

func TestDuplicateCoalescing(t *testing.T) {
	s := New("me", DefaultConfig())
	now := time.Unix(10, 0)
	sample := at(domain.Vec3{3, 0, 1}, walking, 0)

	s.Ingest("p1", "user-1", at(domain.Vec3{0, 0, 0}, walking, 0), now.Add(-time.Second))

	changes := 0
	for _, dt := range []time.Duration{0, 20 * time.Millisecond, 49 * time.Millisecond} {
		if s.Ingest("p1", "user-1", sample, now.Add(dt)).Changed() {
			changes++
		}
	}
	if changes != 1 {
		t.Fatalf("visible changes = %d, want 1", changes)
	}
	rec, _ := s.Get("p1")
	if !rec.LastSampleTime.Equal(now) {
		t.Fatalf("coalesced sample moved LastSampleTime to %v", rec.LastSampleTime)
	}

	// Outside the window an equal sample refreshes the record.
	if got := s.Ingest("p1", "user-1", sample, now.Add(80*time.Millisecond)); got != Updated {
		t.Fatalf("ingest after window = %v, want updated", got)
	}
}

func TestSequenceRejectsStale(t *testing.T) {
	s := New("me", DefaultConfig())
	now := time.Unix(10, 0)
	s.Ingest("p1", "user-1", at(domain.Vec3{0, 0, 0}, walking, 5), now)

	if got := s.Ingest("p1", "user-1", at(domain.Vec3{9, 9, 9}, walking, 4), now.Add(time.Second)); got != Stale {
		t.Fatalf("older seq = %v, want stale", got)
	}
	if got := s.Ingest("p1", "user-1", at(domain.Vec3{9, 9, 9}, walking, 5), now.Add(time.Second)); got != Stale {
		t.Fatalf("equal seq = %v, want stale", got)
	}
	if got := s.Ingest("p1", "user-1", at(domain.Vec3{9, 9, 9}, walking, 6), now.Add(time.Second)); got != Updated {
		t.Fatalf("newer seq = %v, want updated", got)
	}
	rec, _ := s.Get("p1")
	if rec.LastSeq != 6 {
		t.Fatalf("LastSeq = %d, want 6", rec.LastSeq)
	}
}

func TestLastSampleTimeMonotonic(t *testing.T) {
	s := New("me", DefaultConfig())
	now := time.Unix(10, 0)
	s.Ingest("p1", "user-1", at(domain.Vec3{0, 0, 0}, walking, 0), now)
	s.Ingest("p1", "user-1", at(domain.Vec3{1, 0, 0}, walking, 0), now.Add(-time.Second))
	rec, _ := s.Get("p1")
	if rec.LastSampleTime.Before(now) {
		t.Fatalf("LastSampleTime went backwards: %v", rec.LastSampleTime)
	}
}

func TestFactorClamped(t *testing.T) {
	base := time.Unix(0, 0)
	cases := []struct {
		dt   time.Duration
		want float64
	}{
		{-time.Second, 0},
		{0, 0},
		{150 * time.Millisecond, 0.5},
		{300 * time.Millisecond, 1},
		{time.Hour, 1},
	}
	for _, tc := range cases {
		if got := Factor(base.Add(tc.dt), base, 300*time.Millisecond); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Factor(%v) = %f, want %f", tc.dt, got, tc.want)
		}
	}
	if got := Factor(base, base, 0); got != 1 {
		t.Fatalf("zero window factor = %f, want 1", got)
	}
}

func TestTickNeverOvershoots(t *testing.T) {
	s := New("me", DefaultConfig())
	start := time.Unix(10, 0)
	s.Ingest("p1", "user-1", at(domain.Vec3{0, 0, 0}, walking, 1), start)

	target := domain.Vec3{10, 0, -4}
	sampled := start.Add(100 * time.Millisecond)
	s.Ingest("p1", "user-1", at(target, walking, 2), sampled)

	prev := target.Len()
	for i := 0; i <= 40; i++ {
		now := sampled.Add(time.Duration(i) * 10 * time.Millisecond)
		pos, _, ok := s.Tick(now, "p1")
		if !ok {
			t.Fatal("tick on known peer failed")
		}
		d := target.Sub(pos).Len()
		if d > prev+1e-9 {
			t.Fatalf("frame %d moved away from target: %f > %f", i, d, prev)
		}
		if pos.Len() > target.Len()+1e-9 || pos.Dot(target) < -1e-9 {
			t.Fatalf("frame %d left the segment: %v", i, pos)
		}
		prev = d
	}
	if prev > 1e-9 {
		t.Fatalf("not converged after the window: distance %f", prev)
	}
}

func TestTickRotationConverges(t *testing.T) {
	s := New("me", DefaultConfig())
	start := time.Unix(10, 0)
	s.Ingest("p1", "user-1", at(domain.Vec3{}, walking, 1), start)

	rot := domain.Vec3{0.2, -1.1, 0.05}
	p := at(domain.Vec3{}, walking, 2)
	p.Rotation = &rot
	s.Ingest("p1", "user-1", p, start.Add(time.Second))

	_, got, _ := s.Tick(start.Add(2*time.Second), "p1")
	for i := range got {
		if math.Abs(got[i]-rot[i]) > 1e-6 {
			t.Fatalf("rotation = %v, want %v", got, rot)
		}
	}
}

func TestJumpWindows(t *testing.T) {
	s := New("me", DefaultConfig())
	start := time.Unix(10, 0)
	s.Ingest("p1", "user-1", at(domain.Vec3{0, 0, 0}, walking, 1), start)

	// Airborne samples use the longer jump window.
	s.Ingest("p1", "user-1", at(domain.Vec3{0, 8, 0}, domain.Jump(0), 2), start.Add(time.Second))
	pos, _, _ := s.Tick(start.Add(time.Second+400*time.Millisecond), "p1")
	if want := 4.0; math.Abs(pos[1]-want) > 1e-9 {
		t.Fatalf("jump lerp y = %f, want %f", pos[1], want)
	}

	// The landing snaps within the short window and settles into idle.
	land := start.Add(2 * time.Second)
	s.Ingest("p1", "user-1", at(domain.Vec3{0, 0, 0}, domain.Land(30), 3), land)
	pos, _, _ = s.Tick(land.Add(100*time.Millisecond), "p1")
	if pos != (domain.Vec3{0, 0, 0}) {
		t.Fatalf("landing did not snap: %v", pos)
	}
	rec, _ := s.Get("p1")
	if rec.LastSample.Movement.Kind != domain.Idle {
		t.Fatalf("movement after landing = %v, want idle", rec.LastSample.Movement)
	}
}

func TestJumpClipCooldown(t *testing.T) {
	s := New("me", DefaultConfig())
	start := time.Unix(10, 0)
	s.Ingest("p1", "user-1", at(domain.Vec3{}, domain.Jump(0), 1), start)
	s.Ingest("p1", "user-1", at(domain.Vec3{}, domain.Land(3), 2), start.Add(200*time.Millisecond))
	s.Ingest("p1", "user-1", at(domain.Vec3{}, domain.Jump(0), 3), start.Add(400*time.Millisecond))

	views := s.Views(start.Add(410 * time.Millisecond))
	if views[0].Animation.To == anim.ClipJump {
		t.Fatal("jump clip restarted inside the cooldown")
	}

	s.Ingest("p1", "user-1", at(domain.Vec3{}, domain.Land(3), 4), start.Add(600*time.Millisecond))
	s.Ingest("p1", "user-1", at(domain.Vec3{}, domain.Jump(0), 5), start.Add(1500*time.Millisecond))
	views = s.Views(start.Add(1510 * time.Millisecond))
	if views[0].Animation.To != anim.ClipJump {
		t.Fatalf("jump clip = %v after cooldown, want jump", views[0].Animation.To)
	}
}

func TestRemoveAndClear(t *testing.T) {
	s := New("me", DefaultConfig())
	now := time.Now()
	s.Ingest("p1", "user-1", at(domain.Vec3{}, walking, 0), now)
	s.Ingest("p2", "user-2", at(domain.Vec3{}, walking, 0), now)

	if !s.Remove("p1") {
		t.Fatal("Remove(p1) = false")
	}
	if _, _, ok := s.Tick(now, "p1"); ok {
		t.Fatal("tick still sees a removed peer")
	}
	if s.Remove("p1") {
		t.Fatal("second Remove(p1) = true")
	}
	if got := s.Peers(); len(got) != 1 || got[0] != "p2" {
		t.Fatalf("peers = %v", got)
	}

	s.Clear()
	if s.Len() != 0 || len(s.Views(now)) != 0 {
		t.Fatal("store not empty after Clear")
	}
}

type fakeTrack struct{ id string }

func (f fakeTrack) ID() string       { return f.id }
func (f fakeTrack) StreamID() string { return "stream-" + f.id }

func TestMediaBeforeFirstSample(t *testing.T) {
	s := New("me", DefaultConfig())
	s.SetMedia("p1", fakeTrack{id: "a"})
	s.Ingest("p1", "user-1", at(domain.Vec3{}, walking, 0), time.Now())

	rec, _ := s.Get("p1")
	if rec.Media == nil || rec.Media.ID() != "a" {
		t.Fatalf("pending media not attached: %+v", rec.Media)
	}
	if !s.Views(time.Now())[0].HasMedia {
		t.Fatal("view does not report media")
	}
}
