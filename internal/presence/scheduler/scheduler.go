// Package scheduler decides when the local avatar's state goes on the wire.
//
// Publishing is event driven: one sample on every state transition, a fixed
// cadence heartbeat while moving, nothing while idle. A jump episode always
// opens with Jumping{0} and closes with exactly one JumpStop.
package scheduler

import (
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dkeye/Presence/internal/domain"
)

type State int

const (
	Stationary State = iota
	Moving
	Jumping
)

func (s State) String() string {
	switch s {
	case Stationary:
		return "stationary"
	case Moving:
		return "moving"
	case Jumping:
		return "jumping"
	default:
		return "unknown"
	}
}

type Config struct {
	// TransitionMinInterval debounces transition-triggered publishes.
	TransitionMinInterval time.Duration
	// HeartbeatInterval is the publish cadence while input is held.
	HeartbeatInterval time.Duration
	// JumpPublishThreshold is the hangtime, in ticks, before airborne updates go out.
	JumpPublishThreshold int
	// JumpStopDelay lets a landing settle before JumpStop is sent.
	JumpStopDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		TransitionMinInterval: 100 * time.Millisecond,
		HeartbeatInterval:     200 * time.Millisecond,
		JumpPublishThreshold:  3,
		JumpStopDelay:         100 * time.Millisecond,
	}
}

// Frame is the local avatar/input state for one render tick.
type Frame struct {
	Now         time.Time
	Grounded    bool
	Directional bool
	Sprint      bool
	Position    domain.Vec3
	Rotation    domain.Vec3
}

// IdentitySource returns the current local identity; it is read on every publish.
type IdentitySource func() domain.LocalIdentity

// Publisher receives every sample the scheduler decides to send.
type Publisher func(domain.OutboundSample)

type Scheduler struct {
	cfg      Config
	identity IdentitySource
	publish  Publisher

	state      State
	transition *rate.Limiter
	nextBeat   time.Time
	sprinting  bool

	hangtime    int
	landing     bool
	landedAt    time.Time
	lastAirBeat time.Time
}

func New(cfg Config, identity IdentitySource, publish Publisher) *Scheduler {
	if identity == nil {
		identity = func() domain.LocalIdentity { return domain.LocalIdentity{} }
	}
	return &Scheduler{
		cfg:        cfg,
		identity:   identity,
		publish:    publish,
		transition: rate.NewLimiter(rate.Every(cfg.TransitionMinInterval), 1),
	}
}

func (s *Scheduler) State() State { return s.state }

// Hangtime is the current airborne tick count.
func (s *Scheduler) Hangtime() int { return s.hangtime }

// Step consumes one frame and publishes zero or more samples.
func (s *Scheduler) Step(f Frame) {
	if s.landing {
		if f.Grounded && f.Now.Sub(s.landedAt) < s.cfg.JumpStopDelay {
			return
		}
		s.finishJump(f)
	}

	if !f.Grounded {
		s.airborne(f)
		return
	}
	if s.state == Jumping {
		s.landing = true
		s.landedAt = f.Now
		return
	}

	switch {
	case f.Directional && s.state == Stationary:
		s.state = Moving
		s.startMoving(f)
	case f.Directional:
		if f.Sprint != s.sprinting {
			s.startMoving(f)
			return
		}
		if !f.Now.Before(s.nextBeat) {
			s.emit(f, s.locomotion(f))
			s.nextBeat = s.nextBeat.Add(s.cfg.HeartbeatInterval)
			if !f.Now.Before(s.nextBeat) {
				s.nextBeat = f.Now.Add(s.cfg.HeartbeatInterval)
			}
		}
	case s.state == Moving:
		s.state = Stationary
		s.emit(f, domain.MovementState{Kind: domain.Stopped})
	}
}

// startMoving publishes the transition sample unless one went out too recently;
// the heartbeat cadence is anchored here either way.
func (s *Scheduler) startMoving(f Frame) {
	s.sprinting = f.Sprint
	s.nextBeat = f.Now.Add(s.cfg.HeartbeatInterval)
	if s.transition.AllowN(f.Now, 1) {
		s.emit(f, s.locomotion(f))
		return
	}
	log.Debug().Str("module", "presence.scheduler").Msg("transition publish debounced")
}

func (s *Scheduler) airborne(f Frame) {
	if s.state != Jumping {
		s.state = Jumping
		s.hangtime = 0
		s.lastAirBeat = f.Now
		s.emit(f, domain.Jump(0))
		return
	}
	s.hangtime++
	if s.hangtime < s.cfg.JumpPublishThreshold {
		return
	}
	if s.hangtime == s.cfg.JumpPublishThreshold || f.Now.Sub(s.lastAirBeat) >= s.cfg.HeartbeatInterval {
		s.lastAirBeat = f.Now
		s.emit(f, domain.Jump(s.hangtime))
	}
}

// finishJump closes the open episode with its single JumpStop and resumes
// ground state from the current input.
func (s *Scheduler) finishJump(f Frame) {
	s.emit(f, domain.Land(s.hangtime))
	s.landing = false
	s.hangtime = 0
	s.sprinting = f.Sprint
	if f.Directional {
		s.state = Moving
		s.nextBeat = f.Now.Add(s.cfg.HeartbeatInterval)
	} else {
		s.state = Stationary
	}
}

func (s *Scheduler) locomotion(f Frame) domain.MovementState {
	if f.Sprint {
		return domain.MovementState{Kind: domain.Running}
	}
	return domain.MovementState{Kind: domain.Walking}
}

func (s *Scheduler) emit(f Frame, m domain.MovementState) {
	if s.publish == nil {
		return
	}
	s.publish(domain.OutboundSample{
		Position: f.Position,
		Rotation: f.Rotation,
		Identity: s.identity(),
		Movement: m,
	})
}
