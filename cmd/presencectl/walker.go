package main

import (
	"math"
	"time"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/presence/scheduler"
)

// walker scripts a bot: it walks a circle, pauses, and hops now and then.
type walker struct {
	start  time.Time
	radius float64
	speed  float64

	walkFor  time.Duration
	pauseFor time.Duration
	jumpEach time.Duration
	airFor   time.Duration

	angle float64
	last  time.Time
}

func newWalker(start time.Time) *walker {
	return &walker{
		start:    start,
		radius:   4,
		speed:    1.5,
		walkFor:  3 * time.Second,
		pauseFor: 1500 * time.Millisecond,
		jumpEach: 7 * time.Second,
		airFor:   600 * time.Millisecond,
		last:     start,
	}
}

// frame advances the script to now.
func (w *walker) frame(now time.Time) scheduler.Frame {
	elapsed := now.Sub(w.start)
	dt := now.Sub(w.last).Seconds()
	w.last = now

	cycle := w.walkFor + w.pauseFor
	walking := elapsed%cycle < w.walkFor
	airborne := elapsed >= w.jumpEach && elapsed%w.jumpEach < w.airFor

	if walking && dt > 0 {
		w.angle += w.speed * dt / w.radius
	}
	pos := domain.Vec3{w.radius * math.Cos(w.angle), 0, w.radius * math.Sin(w.angle)}
	if airborne {
		t := float64(elapsed%w.jumpEach) / float64(w.airFor)
		pos[1] = 4 * t * (1 - t)
	}
	return scheduler.Frame{
		Now:         now,
		Grounded:    !airborne,
		Directional: walking,
		Sprint:      false,
		Position:    pos,
		Rotation:    domain.Vec3{0, -w.angle, 0},
	}
}
