package codec

import "github.com/dkeye/Presence/internal/domain"

// PartialSample is a decoded record. Nil fields were absent on the wire and
// leave the receiver's previous value in place.
type PartialSample struct {
	Version int
	// Seq is the sender's publish counter; zero when the sender did not send one.
	Seq uint64

	Position     *domain.Vec3
	Rotation     *domain.Vec3
	UserID       *string
	ProfileImage *string
	AvatarURL    *string
	DisplayName  *string

	Movement    domain.MovementState
	HasMovement bool
}

// Merge overlays the present fields onto base. Movement always replaces the
// base movement: an absent movement field means Idle.
func (p PartialSample) Merge(base domain.OutboundSample) domain.OutboundSample {
	out := base
	if p.Position != nil {
		out.Position = *p.Position
	}
	if p.Rotation != nil {
		out.Rotation = *p.Rotation
	}
	if p.UserID != nil {
		out.Identity.UserID = *p.UserID
	}
	if p.ProfileImage != nil {
		out.Identity.ProfileImage = *p.ProfileImage
	}
	if p.AvatarURL != nil {
		out.Identity.AvatarURL = *p.AvatarURL
	}
	if p.DisplayName != nil {
		out.Identity.DisplayName = *p.DisplayName
	}
	out.Movement = p.Movement
	return out
}

// Sample is Merge onto a zero sample.
func (p PartialSample) Sample() domain.OutboundSample {
	return p.Merge(domain.OutboundSample{})
}
