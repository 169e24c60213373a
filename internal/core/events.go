package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/relay/internal/domain"
)

// Inbound is the closed set of client events the relay acts on.
type Inbound interface {
	inbound()
}

type JoinRoom struct {
	Room string `json:"room"`
}

type LeaveRoom struct {
	Room string `json:"room"`
}

// Signal carries opaque WebRTC negotiation data. Data is never interpreted by the relay.
type Signal struct {
	Room domain.RoomID     `json:"room"`
	Kind domain.SignalKind `json:"type"`
	Data json.RawMessage   `json:"data"`
}

func (JoinRoom) inbound()  {}
func (LeaveRoom) inbound() {}
func (Signal) inbound()    {}

// Outbound is anything the relay sends to a client.
type Outbound interface {
	EventName() string
}

const (
	EventIdentified   = "identified"
	EventRoomState    = "room-state"
	EventPeerJoined   = "peer-joined"
	EventPeerLeft     = "peer-left"
	EventSignal       = "signal"
	EventNotification = "notification"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventLeft         = "left"
	EventError        = "error"
	EventPong         = "pong"
)

type Identified struct {
	UserID   domain.UserID        `json:"userId"`
	Role     domain.Role          `json:"role"`
	Channels []domain.ChannelName `json:"channels"`
}

type ParticipantDTO struct {
	Peer     ConnectionID  `json:"peer"`
	UserID   domain.UserID `json:"userId"`
	Role     domain.Role   `json:"role"`
	JoinedAt time.Time     `json:"joinedAt"`
}

type RoomState struct {
	Room         domain.RoomID    `json:"room"`
	Host         ConnectionID     `json:"host,omitempty"`
	IsHost       bool             `json:"isHost"`
	Participants []ParticipantDTO `json:"participants"`
}

type PeerJoined struct {
	Room   domain.RoomID `json:"room"`
	Peer   ConnectionID  `json:"peer"`
	UserID domain.UserID `json:"userId"`
	Role   domain.Role   `json:"role"`
}

type PeerLeft struct {
	Room domain.RoomID `json:"room"`
	Peer ConnectionID  `json:"peer"`
	Host bool          `json:"host"`
}

// RelayedSignal is Signal as seen by the recipient.
type RelayedSignal struct {
	Signal
	From ConnectionID `json:"from"`
}

type NotificationEvent struct {
	domain.Notification
}

type Subscribed struct {
	Channel domain.ChannelName `json:"channel"`
}

type Unsubscribed struct {
	Channel domain.ChannelName `json:"channel"`
}

type Left struct {
	Room domain.RoomID `json:"room"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Room    string `json:"room,omitempty"`
}

type Pong struct{}

func (Identified) EventName() string        { return EventIdentified }
func (RoomState) EventName() string         { return EventRoomState }
func (PeerJoined) EventName() string        { return EventPeerJoined }
func (PeerLeft) EventName() string          { return EventPeerLeft }
func (RelayedSignal) EventName() string     { return EventSignal }
func (NotificationEvent) EventName() string { return EventNotification }
func (Subscribed) EventName() string        { return EventSubscribed }
func (Unsubscribed) EventName() string      { return EventUnsubscribed }
func (Left) EventName() string              { return EventLeft }
func (Error) EventName() string             { return EventError }
func (Pong) EventName() string              { return EventPong }
