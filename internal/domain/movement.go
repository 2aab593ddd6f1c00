package domain

import "fmt"

type MovementKind int

const (
	Idle MovementKind = iota
	Walking
	Running
	Jumping
	JumpStop
	Stopped
)

var movementNames = [...]string{
	Idle:     "idle",
	Walking:  "walking",
	Running:  "running",
	Jumping:  "jumping",
	JumpStop: "jumpStop",
	Stopped:  "stopped",
}

func (k MovementKind) String() string {
	if k < 0 || int(k) >= len(movementNames) {
		return fmt.Sprintf("movement(%d)", int(k))
	}
	return movementNames[k]
}

// ParseMovementKind maps a wire tag back to a kind. Unknown tags report false.
func ParseMovementKind(tag string) (MovementKind, bool) {
	for i, name := range movementNames {
		if name == tag {
			return MovementKind(i), true
		}
	}
	return Idle, false
}

// MovementState is the movement/animation intent carried by every sample.
// Hangtime is only meaningful for Jumping and JumpStop.
type MovementState struct {
	Kind     MovementKind
	Hangtime int
}

func Jump(hangtime int) MovementState { return MovementState{Kind: Jumping, Hangtime: hangtime} }
func Land(hangtime int) MovementState { return MovementState{Kind: JumpStop, Hangtime: hangtime} }

// Airborne reports whether the state belongs to an open jump episode.
func (m MovementState) Airborne() bool { return m.Kind == Jumping }

// Locomotion reports whether the avatar is translating on the ground.
func (m MovementState) Locomotion() bool { return m.Kind == Walking || m.Kind == Running }

func (m MovementState) String() string {
	if m.Kind == Jumping || m.Kind == JumpStop {
		return fmt.Sprintf("%s{%d}", m.Kind, m.Hangtime)
	}
	return m.Kind.String()
}
