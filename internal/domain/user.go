// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
)

const MaxUserIDLen = 64

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
	ErrUnknownRole   = errors.New("unknown role")
)

type UserID string

type Role string

const (
	RoleUser   Role = "user"
	RoleMentor Role = "mentor"
	RoleAdmin  Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleMentor, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Identity is what the auth layer hands to the relay. It is trusted as is.
type Identity struct {
	UserID UserID `json:"userId"`
	Role   Role   `json:"role"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(userID string, role string) (Identity, error) {
	if len(userID) == 0 {
		return Identity{}, ErrUserIDEmpty
	}
	if len(userID) > MaxUserIDLen {
		return Identity{}, ErrUserIDTooLong
	}
	r, err := ParseRole(role)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: UserID(userID), Role: r}, nil
}

// ParticipantRole is the role a connection plays inside a live-session room.
// Admins watch like users.
func (i Identity) ParticipantRole() Role {
	if i.Role == RoleMentor {
		return RoleMentor
	}
	return RoleUser
}
