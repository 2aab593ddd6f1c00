// Package domain holds the identity, room, movement and presence sample types
// shared by the client engine and the relay server.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxClientIDLen    = 64
	MaxDisplayNameLen = 64
)

var (
	ErrClientIDEmpty    = errors.New("client id empty")
	ErrClientIDTooLong  = errors.New("client id too long")
	ErrDisplayNameEmpty = errors.New("display name empty")
)

// LocalIdentity is what the local user looks like to everyone else.
type LocalIdentity struct {
	UserID       string `json:"userId"`
	ProfileImage string `json:"profileImage"`
	AvatarURL    string `json:"avatarUrl"`
	DisplayName  string `json:"displayName"`
}

// NewClientID returns a random client id in the "user-<uuid>" form.
func NewClientID() ClientID {
	return ClientID("user-" + uuid.NewString())
}

func ValidateClientID(id ClientID) error {
	if len(id) == 0 {
		return ErrClientIDEmpty
	}
	if len(id) > MaxClientIDLen {
		return ErrClientIDTooLong
	}
	return nil
}

func (li *LocalIdentity) SetDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		name = name[:MaxDisplayNameLen]
	}
	li.DisplayName = name
	return nil
}
