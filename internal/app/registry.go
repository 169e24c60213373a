package app

import (
	"fmt"
	"slices"
	"time"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Connection is the registry's record of one live transport connection.
type Connection struct {
	ID          core.ConnectionID
	Signal      core.SignalConnection
	Device      string
	ConnectedAt time.Time

	identity *domain.Identity
	rooms    map[domain.RoomID]struct{}
	channels map[domain.ChannelName]struct{}
}

// Identity returns false while the connection is still anonymous.
func (c *Connection) Identity() (domain.Identity, bool) {
	if c.identity == nil {
		return domain.Identity{}, false
	}
	return *c.identity, true
}

// Memberships is the set of rooms and channels a connection belonged to.
type Memberships struct {
	Rooms    []domain.RoomID
	Channels []domain.ChannelName
}

// Registry tracks who is connected and who they are.
// It is not safe for concurrent use; the relay loop owns it.
type Registry struct {
	conns map[core.ConnectionID]*Connection
	now   func() time.Time
	newID func() core.ConnectionID
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[core.ConnectionID]*Connection),
		now:   time.Now,
		newID: func() core.ConnectionID { return core.ConnectionID(uuid.NewString()) },
	}
}

func (r *Registry) Register(sc core.SignalConnection, device string) core.ConnectionID {
	id := r.newID()
	r.conns[id] = &Connection{
		ID:          id,
		Signal:      sc,
		Device:      device,
		ConnectedAt: r.now(),
		rooms:       make(map[domain.RoomID]struct{}),
		channels:    make(map[domain.ChannelName]struct{}),
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("device", device).Msg("registered connection")
	return id
}

// Identify binds identity once. Repeating the same identity is a no-op and reports changed=false.
func (r *Registry) Identify(id core.ConnectionID, identity domain.Identity) (changed bool, err error) {
	c, ok := r.conns[id]
	if !ok {
		return false, ErrUnknownConnection
	}
	if c.identity != nil {
		if *c.identity == identity {
			return false, nil
		}
		return false, fmt.Errorf("%w: bound to %s/%s", ErrAlreadyIdentified, c.identity.UserID, c.identity.Role)
	}
	c.identity = &identity
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(identity.UserID)).Str("role", string(identity.Role)).Msg("identified connection")
	return true, nil
}

// Unregister forgets the connection and returns what it belonged to.
// Safe for anonymous and already removed connections.
func (r *Registry) Unregister(id core.ConnectionID) (*Connection, Memberships, bool) {
	c, ok := r.conns[id]
	if !ok {
		return nil, Memberships{}, false
	}
	delete(r.conns, id)
	m := Memberships{
		Rooms:    sortedKeys(c.rooms),
		Channels: sortedKeys(c.channels),
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Int("rooms", len(m.Rooms)).Int("channels", len(m.Channels)).Msg("unregistered connection")
	return c, m, true
}

func (r *Registry) Lookup(id core.ConnectionID) (*Connection, bool) {
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) Len() int { return len(r.conns) }

// IDs returns every registered connection id in stable order.
func (r *Registry) IDs() []core.ConnectionID {
	return sortedKeys(r.conns)
}

func (r *Registry) AddRoom(id core.ConnectionID, room domain.RoomID) {
	if c, ok := r.conns[id]; ok {
		c.rooms[room] = struct{}{}
	}
}

func (r *Registry) RemoveRoom(id core.ConnectionID, room domain.RoomID) {
	if c, ok := r.conns[id]; ok {
		delete(c.rooms, room)
	}
}

// RoomOf returns the live-session room the connection is currently in.
func (r *Registry) RoomOf(id core.ConnectionID) (domain.RoomID, bool) {
	c, ok := r.conns[id]
	if !ok {
		return "", false
	}
	for room := range c.rooms {
		return room, true
	}
	return "", false
}

func (r *Registry) AddChannel(id core.ConnectionID, ch domain.ChannelName) {
	if c, ok := r.conns[id]; ok {
		c.channels[ch] = struct{}{}
	}
}

func (r *Registry) RemoveChannel(id core.ConnectionID, ch domain.ChannelName) {
	if c, ok := r.conns[id]; ok {
		delete(c.channels, ch)
	}
}

func (r *Registry) Memberships(id core.ConnectionID) (Memberships, bool) {
	c, ok := r.conns[id]
	if !ok {
		return Memberships{}, false
	}
	return Memberships{Rooms: sortedKeys(c.rooms), Channels: sortedKeys(c.channels)}, true
}

// Deliver queues a frame on the connection's transport without blocking.
func (r *Registry) Deliver(id core.ConnectionID, f core.Frame) error {
	c, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	if err := c.Signal.TrySend(f); err != nil {
		return fmt.Errorf("deliver to %s: %w", id, err)
	}
	return nil
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
