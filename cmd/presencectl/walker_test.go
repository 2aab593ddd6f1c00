package main

import (
	"testing"
	"time"
)

func TestWalkerScript(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := newWalker(start)

	tests := []struct {
		at          time.Duration
		directional bool
		grounded    bool
	}{
		{0, true, true},
		{2 * time.Second, true, true},
		{3200 * time.Millisecond, false, true},
		{4600 * time.Millisecond, true, true},
		{7200 * time.Millisecond, true, false},
		{7700 * time.Millisecond, false, true},
	}
	for _, tt := range tests {
		f := w.frame(start.Add(tt.at))
		if f.Directional != tt.directional || f.Grounded != tt.grounded {
			t.Fatalf("at %v: directional=%v grounded=%v", tt.at, f.Directional, f.Grounded)
		}
		if !f.Grounded && f.Position[1] <= 0 {
			t.Fatalf("at %v: airborne frame at height %v", tt.at, f.Position[1])
		}
	}
}

func TestWalkerHoldsPositionWhilePaused(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := newWalker(start)
	w.frame(start.Add(3100 * time.Millisecond))
	a := w.frame(start.Add(3500 * time.Millisecond))
	b := w.frame(start.Add(4000 * time.Millisecond))
	if a.Position != b.Position {
		t.Fatalf("moved while paused: %v -> %v", a.Position, b.Position)
	}
}
