package orch

import (
	"context"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/domain"
)

type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
	Channels    int `json:"channels"`
}

func (o *Orchestrator) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := o.exec(ctx, func() {
		st = Stats{
			Connections: o.Registry.Len(),
			Rooms:       o.Rooms.Len(),
			Channels:    o.Fanout.Channels(),
		}
	})
	return st, err
}

func (o *Orchestrator) ListRooms(ctx context.Context) ([]app.RoomInfo, error) {
	var out []app.RoomInfo
	err := o.exec(ctx, func() { out = o.Rooms.List() })
	return out, err
}

func (o *Orchestrator) Room(ctx context.Context, id domain.RoomID) (app.RoomInfo, bool, error) {
	var (
		info app.RoomInfo
		ok   bool
	)
	err := o.exec(ctx, func() {
		var room *app.Room
		if room, ok = o.Rooms.Get(id); ok {
			info = room.Info()
		}
	})
	return info, ok, err
}

// Subscribers lists the connections currently subscribed to ch.
func (o *Orchestrator) Subscribers(ctx context.Context, ch domain.ChannelName) ([]string, error) {
	var out []string
	err := o.exec(ctx, func() {
		for _, id := range o.Fanout.Subscribers(ch) {
			out = append(out, string(id))
		}
	})
	return out, err
}
