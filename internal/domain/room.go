package domain

import (
	"errors"
	"strings"
)

const MaxRoomNameLen = 128

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
)

type (
	RoomID      string
	ChannelName string
)

const (
	AdminChannel ChannelName = "admin-room"

	userChannelPrefix   = "user:"
	mentorChannelPrefix = "mentor:"
)

func UserChannel(id UserID) ChannelName   { return ChannelName(userChannelPrefix + string(id)) }
func MentorChannel(id UserID) ChannelName { return ChannelName(mentorChannelPrefix + string(id)) }

// IsChannel reports whether a join-room target names a notification channel
// rather than a live-session room.
func IsChannel(name string) bool {
	return name == string(AdminChannel) ||
		strings.HasPrefix(name, userChannelPrefix) ||
		strings.HasPrefix(name, mentorChannelPrefix)
}

// IdentityChannels lists the channels a connection is auto-subscribed to.
func IdentityChannels(id Identity) []ChannelName {
	out := []ChannelName{UserChannel(id.UserID)}
	switch id.Role {
	case RoleMentor:
		out = append(out, MentorChannel(id.UserID))
	case RoleAdmin:
		out = append(out, AdminChannel)
	}
	return out
}

func ValidateRoomName(name string) error {
	if len(name) == 0 {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return ErrRoomNameTooLong
	}
	return nil
}
