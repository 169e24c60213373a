package app

import "errors"

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrAlreadyIdentified = errors.New("connection already identified with a different identity")
	ErrNotIdentified     = errors.New("connection is not identified")
	ErrRoomNotFound      = errors.New("room not found")
	ErrNotParticipant    = errors.New("connection is not a participant of the room")
	ErrForbiddenChannel  = errors.New("channel is not derived from the connection identity")
)
