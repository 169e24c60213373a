package orch

import (
	"context"
	"errors"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Connect registers a freshly handshaken transport. The connection starts anonymous.
func (o *Orchestrator) Connect(ctx context.Context, sc core.SignalConnection, device string) (core.ConnectionID, error) {
	var id core.ConnectionID
	err := o.exec(ctx, func() {
		id = o.Registry.Register(sc, device)
	})
	return id, err
}

// Identify binds identity to the connection and subscribes it to its identity channels.
// The client is told the outcome with an identified or error event.
func (o *Orchestrator) Identify(ctx context.Context, id core.ConnectionID, identity domain.Identity) error {
	var opErr error
	err := o.exec(ctx, func() {
		opErr = o.identify(id, identity)
	})
	if err != nil {
		return err
	}
	return opErr
}

func (o *Orchestrator) identify(id core.ConnectionID, identity domain.Identity) error {
	changed, err := o.Registry.Identify(id, identity)
	if errors.Is(err, app.ErrAlreadyIdentified) {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(id)).Msg("identity conflict")
		o.reply(id, core.Error{Code: "identity_conflict", Message: err.Error()})
		return err
	}
	if err != nil {
		return err
	}

	channels := domain.IdentityChannels(identity)
	if changed {
		for _, ch := range channels {
			o.subscribe(id, ch)
		}
	}
	o.reply(id, core.Identified{UserID: identity.UserID, Role: identity.Role, Channels: channels})
	return nil
}

// Disconnect runs the cleanup for a closed transport. Unknown ids are ignored.
func (o *Orchestrator) Disconnect(id core.ConnectionID) error {
	return o.submit(func() {
		o.teardown(id, true)
	})
}

// Dispatch queues an inbound event. Events of one connection run in the order they were dispatched.
func (o *Orchestrator) Dispatch(id core.ConnectionID, ev core.Inbound) error {
	return o.submit(func() {
		o.handle(id, ev)
	})
}

func (o *Orchestrator) handle(id core.ConnectionID, ev core.Inbound) {
	conn, ok := o.Registry.Lookup(id)
	if !ok {
		log.Debug().Str("module", "orch").Str("conn", string(id)).Msg("event for closed connection")
		return
	}
	switch ev := ev.(type) {
	case core.JoinRoom:
		o.join(conn, ev)
	case core.LeaveRoom:
		o.leave(conn, ev)
	case core.Signal:
		o.signal(conn, ev)
	default:
		log.Warn().Str("module", "orch").Str("conn", string(id)).Type("event", ev).Msg("ignored event")
	}
}

// teardown purges the connection from every room and channel and closes its transport.
// With notify set, remaining room participants get peer-left.
func (o *Orchestrator) teardown(id core.ConnectionID, notify bool) {
	conn, m, ok := o.Registry.Unregister(id)
	if !ok {
		return
	}
	o.Fanout.UnsubscribeAll(id)
	for _, room := range m.Rooms {
		if err := o.leaveRoom(id, room, notify); err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("conn", string(id)).Str("room", string(room)).Msg("leave on teardown")
		}
	}
	conn.Signal.Close()
	log.Info().Str("module", "orch").Str("conn", string(id)).Msg("connection closed")
}

func (o *Orchestrator) reply(id core.ConnectionID, ev core.Outbound) {
	frame, err := core.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", ev.EventName()).Msg("encode")
		return
	}
	if err := o.Registry.Deliver(id, frame); err != nil {
		o.fail([]app.Failure{{Conn: id, Err: err}})
	}
}

func (o *Orchestrator) fail(failures []app.Failure) {
	for _, f := range failures {
		if errors.Is(f.Err, app.ErrUnknownConnection) {
			continue
		}
		log.Error().Err(f.Err).Str("module", "orch").Str("conn", string(f.Conn)).Msg("send failed")
		if o.Policy != nil && o.Policy.OnSendFailure(f.Conn, f.Err) == app.Disconnect {
			o.pending = append(o.pending, f.Conn)
		}
	}
}

func (o *Orchestrator) flushPending() {
	for len(o.pending) > 0 {
		id := o.pending[0]
		o.pending = o.pending[1:]
		o.teardown(id, true)
	}
}
