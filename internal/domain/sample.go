package domain

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 is used for both positions and euler rotations (radians, XYZ order).
type Vec3 = mgl64.Vec3

var (
	ErrNonFinite        = errors.New("non-finite vector component")
	ErrNegativeHangtime = errors.New("negative hangtime")
)

// OutboundSample is one presence snapshot of the local avatar.
// It is built fresh for every publish and never retained by the sender.
type OutboundSample struct {
	Position Vec3
	Rotation Vec3
	Identity LocalIdentity
	Movement MovementState
}

func (s OutboundSample) Validate() error {
	for _, v := range [...]Vec3{s.Position, s.Rotation} {
		for _, c := range v {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return ErrNonFinite
			}
		}
	}
	if s.Movement.Hangtime < 0 {
		return ErrNegativeHangtime
	}
	return nil
}
