package app

import (
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// SignalRouter relays negotiation payloads to the other participants of a room
// without looking inside them.
type SignalRouter struct {
	rooms *RoomStore
	out   Deliverer
}

func NewSignalRouter(rooms *RoomStore, out Deliverer) *SignalRouter {
	return &SignalRouter{rooms: rooms, out: out}
}

// Route forwards the payload to every participant except the sender.
// An empty recipient set is not an error.
func (r *SignalRouter) Route(id domain.RoomID, from core.ConnectionID, sig core.Signal) (PublishResult, error) {
	room, ok := r.rooms.Get(id)
	if !ok {
		return PublishResult{}, ErrRoomNotFound
	}
	if !room.Has(from) {
		return PublishResult{}, ErrNotParticipant
	}
	others := room.Others(from)
	if len(others) == 0 {
		log.Debug().Str("module", "app.signaling").Str("room", string(id)).Str("from", string(from)).Str("kind", string(sig.Kind)).Msg("no peer to route to")
		return PublishResult{}, nil
	}

	sig.Room = id
	frame, err := core.Encode(core.RelayedSignal{Signal: sig, From: from})
	if err != nil {
		return PublishResult{}, err
	}
	ids := make([]core.ConnectionID, 0, len(others))
	for _, p := range others {
		ids = append(ids, p.Conn)
	}
	res := deliverAll(r.out, ids, frame)
	log.Debug().Str("module", "app.signaling").Str("room", string(id)).Str("from", string(from)).Str("kind", string(sig.Kind)).Int("sent_to", res.SentTo).Int("failed", len(res.Failed)).Msg("signal routed")
	return res, nil
}

// Broadcast sends an already encoded event to the room, skipping one connection.
func (r *SignalRouter) Broadcast(id domain.RoomID, except core.ConnectionID, f core.Frame) PublishResult {
	room, ok := r.rooms.Get(id)
	if !ok {
		return PublishResult{}
	}
	ids := make([]core.ConnectionID, 0, room.Len())
	for _, p := range room.Others(except) {
		ids = append(ids, p.Conn)
	}
	return deliverAll(r.out, ids, f)
}

// SendTo delivers a peer-facing event to a set of participants.
func (r *SignalRouter) SendTo(ps []Participant, f core.Frame) PublishResult {
	ids := make([]core.ConnectionID, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.Conn)
	}
	return deliverAll(r.out, ids, f)
}
