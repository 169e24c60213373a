package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/relay/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id core.ConnectionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		cancel()
		ctl.Joins.Forget(id)
		if err := ctl.Orch.Disconnect(id); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("disconnect after close")
		}
		c.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
			}
			return
		}
		ctl.handleFrame(ctx, id, c, data)
	}
}

func (ctl *SignalWSController) handleFrame(ctx context.Context, id core.ConnectionID, c *WsSignalConn, data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad json")
		ctl.sendEvent(c, core.Error{Code: "bad_payload", Message: err.Error()})
		return
	}

	switch env.Event {
	case EventPing:
		ctl.sendEvent(c, core.Pong{})
		return
	case EventIdentify:
		ctl.handleIdentify(ctx, id, c, env)
		return
	case EventJoinRoom:
		if !ctl.Joins.Allow(id) {
			log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("join rate limited")
			ctl.sendEvent(c, core.Error{Code: "rate_limited", Message: "too many join attempts"})
			return
		}
	}

	ev, err := DecodeInbound(env)
	switch {
	case errors.Is(err, ErrUnknownEvent):
		log.Debug().Str("module", "signal").Str("conn", string(id)).Str("event", env.Event).Msg("unknown event ignored")
		return
	case err != nil:
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Str("event", env.Event).Msg("malformed event dropped")
		ctl.sendEvent(c, core.Error{Code: "bad_payload", Message: err.Error()})
		return
	}

	if sig, ok := ev.(core.Signal); ok {
		if err := ctl.Validator.Validate(sig.Kind, sig.Data); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Str("kind", string(sig.Kind)).Msg("invalid signal dropped")
			ctl.sendEvent(c, core.Error{Code: "bad_payload", Message: err.Error(), Room: string(sig.Room)})
			return
		}
	}

	if err := ctl.Orch.Dispatch(id, ev); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("dispatch")
	}
}

func (ctl *SignalWSController) handleIdentify(ctx context.Context, id core.ConnectionID, c *WsSignalConn, env core.Envelope) {
	var p identifyPayload
	if err := decodePayload(env.Payload, &p); err != nil {
		ctl.sendEvent(c, core.Error{Code: "bad_payload", Message: err.Error()})
		return
	}
	identity, err := ctl.Verifier.Parse(p.Token)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("identify rejected")
		ctl.sendEvent(c, core.Error{Code: "invalid_token", Message: "invalid token"})
		return
	}
	// The relay replies with identified or identity_conflict itself.
	if err := ctl.Orch.Identify(ctx, id, identity); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("identify")
	}
}

func (ctl *SignalWSController) sendEvent(c *WsSignalConn, ev core.Outbound) {
	f, err := core.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendEvent encode")
		return
	}
	if err := c.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("event", ev.EventName()).Msg("sendEvent")
	}
}
