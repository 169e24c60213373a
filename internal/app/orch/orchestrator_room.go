package orch

import (
	"errors"
	"slices"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) join(conn *app.Connection, ev core.JoinRoom) {
	identity, ok := conn.Identity()
	if !ok {
		o.reply(conn.ID, core.Error{Code: "not_identified", Message: app.ErrNotIdentified.Error(), Room: ev.Room})
		return
	}
	if domain.IsChannel(ev.Room) {
		o.joinChannel(conn.ID, identity, domain.ChannelName(ev.Room))
		return
	}
	if err := domain.ValidateRoomName(ev.Room); err != nil {
		o.reply(conn.ID, core.Error{Code: "bad_room", Message: err.Error(), Room: ev.Room})
		return
	}

	roomID := domain.RoomID(ev.Room)
	if cur, ok := o.Registry.RoomOf(conn.ID); ok && cur != roomID {
		if err := o.leaveRoom(conn.ID, cur, true); err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("conn", string(conn.ID)).Str("room", string(cur)).Msg("leave previous room")
		}
		log.Info().Str("module", "orch").Str("conn", string(conn.ID)).Str("from_room", string(cur)).Msg("moved out of room")
	}

	res := o.Rooms.Join(roomID, conn.ID, identity.UserID, identity.ParticipantRole())
	o.Registry.AddRoom(conn.ID, roomID)

	o.reply(conn.ID, core.RoomState{
		Room:         roomID,
		Host:         res.Host,
		IsHost:       res.Host == conn.ID,
		Participants: participantDTOs(res.Roster),
	})
	if !res.Rejoined {
		frame := core.MustEncode(core.PeerJoined{
			Room:   roomID,
			Peer:   conn.ID,
			UserID: identity.UserID,
			Role:   identity.ParticipantRole(),
		})
		o.fail(o.Signals.Broadcast(roomID, conn.ID, frame).Failed)
	}
}

func (o *Orchestrator) joinChannel(id core.ConnectionID, identity domain.Identity, ch domain.ChannelName) {
	if !slices.Contains(domain.IdentityChannels(identity), ch) {
		log.Warn().Str("module", "orch").Str("conn", string(id)).Str("channel", string(ch)).Msg("forbidden channel")
		o.reply(id, core.Error{Code: "forbidden_channel", Message: app.ErrForbiddenChannel.Error(), Room: string(ch)})
		return
	}
	o.subscribe(id, ch)
	o.reply(id, core.Subscribed{Channel: ch})
}

func (o *Orchestrator) leave(conn *app.Connection, ev core.LeaveRoom) {
	if domain.IsChannel(ev.Room) {
		ch := domain.ChannelName(ev.Room)
		if o.Fanout.Unsubscribe(conn.ID, ch) {
			o.Registry.RemoveChannel(conn.ID, ch)
		}
		o.reply(conn.ID, core.Unsubscribed{Channel: ch})
		return
	}
	roomID := domain.RoomID(ev.Room)
	if err := o.leaveRoom(conn.ID, roomID, true); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("conn", string(conn.ID)).Str("room", ev.Room).Msg("leave is a no-op")
	}
	o.reply(conn.ID, core.Left{Room: roomID})
}

// leaveRoom removes the participant and tells whoever remains.
func (o *Orchestrator) leaveRoom(id core.ConnectionID, room domain.RoomID, notify bool) error {
	res, err := o.Rooms.Leave(room, id)
	if err != nil {
		return err
	}
	o.Registry.RemoveRoom(id, room)
	if notify && len(res.Remaining) > 0 {
		frame := core.MustEncode(core.PeerLeft{Room: room, Peer: id, Host: res.WasHost})
		o.fail(o.Signals.SendTo(res.Remaining, frame).Failed)
	}
	return nil
}

func (o *Orchestrator) signal(conn *app.Connection, ev core.Signal) {
	res, err := o.Signals.Route(ev.Room, conn.ID, ev)
	switch {
	case errors.Is(err, app.ErrRoomNotFound), errors.Is(err, app.ErrNotParticipant):
		log.Debug().Err(err).Str("module", "orch").Str("conn", string(conn.ID)).Str("room", string(ev.Room)).Msg("signal dropped")
		return
	case err != nil:
		log.Error().Err(err).Str("module", "orch").Str("conn", string(conn.ID)).Msg("route signal")
		return
	}
	o.fail(res.Failed)
}

func participantDTOs(ps []app.Participant) []core.ParticipantDTO {
	out := make([]core.ParticipantDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, core.ParticipantDTO{Peer: p.Conn, UserID: p.UserID, Role: p.Role, JoinedAt: p.JoinedAt})
	}
	return out
}
