package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
)

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event")
)

// Inbound wire event names.
const (
	EventIdentify  = "identify"
	EventJoinRoom  = "join-room"
	EventLeaveRoom = "leave-room"
	EventSignal    = "signal"
	EventPing      = "ping"
)

type identifyPayload struct {
	Token string `json:"token"`
}

func decodeEnvelope(data []byte) (core.Envelope, error) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return core.Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if env.Event == "" {
		return core.Envelope{}, fmt.Errorf("%w: missing event", ErrMalformedEvent)
	}
	return env, nil
}

// DecodeInbound turns a relay-bound envelope into its typed event.
func DecodeInbound(env core.Envelope) (core.Inbound, error) {
	switch env.Event {
	case EventJoinRoom:
		var ev core.JoinRoom
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		if ev.Room == "" {
			return nil, fmt.Errorf("%w: %s without room", ErrMalformedEvent, env.Event)
		}
		return ev, nil
	case EventLeaveRoom:
		var ev core.LeaveRoom
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		if ev.Room == "" {
			return nil, fmt.Errorf("%w: %s without room", ErrMalformedEvent, env.Event)
		}
		return ev, nil
	case EventSignal:
		var wire struct {
			Room string          `json:"room"`
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := decodePayload(env.Payload, &wire); err != nil {
			return nil, err
		}
		if wire.Room == "" {
			return nil, fmt.Errorf("%w: signal without room", ErrMalformedEvent)
		}
		kind, err := domain.ParseSignalKind(wire.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		return core.Signal{Room: domain.RoomID(wire.Room), Kind: kind, Data: wire.Data}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformedEvent)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return nil
}
