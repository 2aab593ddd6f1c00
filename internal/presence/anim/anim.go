// Package anim picks the animation clip for a movement state and blends
// between clips. Blending is strictly pairwise: a transition fades from the
// clip that currently dominates to the new one.
package anim

import (
	"time"

	"github.com/dkeye/Presence/internal/domain"
)

type Clip int

const (
	ClipIdle Clip = iota
	ClipWalk
	ClipRun
	ClipJump
)

func (c Clip) String() string {
	switch c {
	case ClipIdle:
		return "idle"
	case ClipWalk:
		return "walk"
	case ClipRun:
		return "run"
	case ClipJump:
		return "jump"
	default:
		return "unknown"
	}
}

// PlayOnce reports whether the clip plays a single time and holds its last frame.
func (c Clip) PlayOnce() bool { return c == ClipJump }

// ClipFor maps a movement state to its clip.
func ClipFor(m domain.MovementState) Clip {
	switch m.Kind {
	case domain.Walking:
		return ClipWalk
	case domain.Running:
		return ClipRun
	case domain.Jumping:
		return ClipJump
	default:
		return ClipIdle
	}
}

// DefaultCrossfade is the symmetric fade duration used by NewBlend.
const DefaultCrossfade = 250 * time.Millisecond

// Blend is a two-state crossfade from From to To that started at Start.
type Blend struct {
	From     Clip
	To       Clip
	Start    time.Time
	Duration time.Duration
}

// NewBlend returns a settled blend resting on clip.
func NewBlend(clip Clip, d time.Duration) Blend {
	if d <= 0 {
		d = DefaultCrossfade
	}
	return Blend{From: clip, To: clip, Duration: d}
}

// Progress is the eased fade progress in [0,1] at now.
func (b Blend) Progress(now time.Time) float64 {
	if b.From == b.To || b.Duration <= 0 {
		return 1
	}
	t := float64(now.Sub(b.Start)) / float64(b.Duration)
	return smoothstep(clamp01(t))
}

// Weights returns the weights of From and To at now; they always sum to 1.
func (b Blend) Weights(now time.Time) (from, to float64) {
	p := b.Progress(now)
	return 1 - p, p
}

// Dominant is the clip with the larger weight at now.
func (b Blend) Dominant(now time.Time) Clip {
	if b.Progress(now) >= 0.5 {
		return b.To
	}
	return b.From
}

// Settled reports whether the fade has finished.
func (b Blend) Settled(now time.Time) bool { return b.Progress(now) >= 1 }

// Transition starts a fade toward clip. Re-targeting the current target is a
// no-op so repeated samples do not restart the fade.
func (b Blend) Transition(clip Clip, now time.Time) Blend {
	if clip == b.To {
		return b
	}
	return Blend{From: b.Dominant(now), To: clip, Start: now, Duration: b.Duration}
}

// State is the renderer-facing view of a blend.
type State struct {
	From       Clip
	To         Clip
	FromWeight float64
	ToWeight   float64
	PlayOnce   bool
}

func (b Blend) State(now time.Time) State {
	fw, tw := b.Weights(now)
	return State{From: b.From, To: b.To, FromWeight: fw, ToWeight: tw, PlayOnce: b.To.PlayOnce()}
}

func smoothstep(t float64) float64 { return t * t * (3 - 2*t) }

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
