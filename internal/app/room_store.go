package app

import (
	"cmp"
	"slices"
	"time"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Participant is a connection's membership record within a room.
type Participant struct {
	Conn     core.ConnectionID `json:"peer"`
	UserID   domain.UserID     `json:"userId"`
	Role     domain.Role       `json:"role"`
	JoinedAt time.Time         `json:"joinedAt"`

	seq uint64
}

// Room is a live-session signaling room.
// Host is empty or a connection present in participants.
type Room struct {
	ID        domain.RoomID
	Host      core.ConnectionID
	CreatedAt time.Time

	participants map[core.ConnectionID]Participant
}

func (r *Room) Has(id core.ConnectionID) bool {
	_, ok := r.participants[id]
	return ok
}

func (r *Room) Len() int { return len(r.participants) }

// Roster returns participants ordered by join time.
func (r *Room) Roster() []Participant {
	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Participant) int { return cmp.Compare(a.seq, b.seq) })
	return out
}

// Others returns the roster without the given connection.
func (r *Room) Others(id core.ConnectionID) []Participant {
	return slices.DeleteFunc(r.Roster(), func(p Participant) bool { return p.Conn == id })
}

// RoomInfo is a read-only snapshot for APIs.
type RoomInfo struct {
	ID           domain.RoomID     `json:"id"`
	Host         core.ConnectionID `json:"host,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	Participants []Participant     `json:"participants"`
}

func (r *Room) Info() RoomInfo {
	return RoomInfo{ID: r.ID, Host: r.Host, CreatedAt: r.CreatedAt, Participants: r.Roster()}
}

type JoinResult struct {
	Roster     []Participant
	Host       core.ConnectionID
	BecameHost bool
	Created    bool
	Rejoined   bool
}

type LeaveResult struct {
	Remaining []Participant
	WasHost   bool
	Destroyed bool
}

// RoomStore owns room membership and host designation.
// It is not safe for concurrent use; the relay loop owns it.
type RoomStore struct {
	rooms map[domain.RoomID]*Room
	now   func() time.Time
	seq   uint64
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[domain.RoomID]*Room), now: time.Now}
}

func (s *RoomStore) createIfAbsent(id domain.RoomID) (*Room, bool) {
	if room, ok := s.rooms[id]; ok {
		return room, false
	}
	room := &Room{ID: id, CreatedAt: s.now(), participants: make(map[core.ConnectionID]Participant)}
	s.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room, true
}

func (s *RoomStore) destroyIfEmpty(room *Room) bool {
	if room.Len() > 0 {
		return false
	}
	delete(s.rooms, room.ID)
	log.Info().Str("module", "app.rooms").Str("room", string(room.ID)).Msg("room destroyed")
	return true
}

// Join adds the connection to the room, creating it on first join.
// A mentor joining a room without host becomes host. Rejoining updates the record in place.
func (s *RoomStore) Join(id domain.RoomID, conn core.ConnectionID, user domain.UserID, role domain.Role) JoinResult {
	room, created := s.createIfAbsent(id)

	p, rejoin := room.participants[conn]
	if !rejoin {
		s.seq++
		p = Participant{Conn: conn, JoinedAt: s.now(), seq: s.seq}
	}
	p.UserID = user
	p.Role = role
	room.participants[conn] = p

	res := JoinResult{Created: created, Rejoined: rejoin}
	if role == domain.RoleMentor && room.Host == "" {
		room.Host = conn
		res.BecameHost = true
	} else if role != domain.RoleMentor && room.Host == conn {
		room.Host = ""
	}
	res.Host = room.Host
	res.Roster = room.Roster()

	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("conn", string(conn)).Str("role", string(role)).Bool("host", res.BecameHost).Int("count", room.Len()).Msg("participant joined")
	return res
}

func (s *RoomStore) Leave(id domain.RoomID, conn core.ConnectionID) (LeaveResult, error) {
	room, ok := s.rooms[id]
	if !ok {
		return LeaveResult{}, ErrRoomNotFound
	}
	if !room.Has(conn) {
		return LeaveResult{}, ErrNotParticipant
	}
	delete(room.participants, conn)

	res := LeaveResult{}
	if room.Host == conn {
		room.Host = ""
		res.WasHost = true
	}
	res.Remaining = room.Roster()
	res.Destroyed = s.destroyIfEmpty(room)

	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("conn", string(conn)).Bool("was_host", res.WasHost).Int("count", len(res.Remaining)).Msg("participant left")
	return res, nil
}

func (s *RoomStore) Get(id domain.RoomID) (*Room, bool) {
	room, ok := s.rooms[id]
	return room, ok
}

func (s *RoomStore) Len() int { return len(s.rooms) }

func (s *RoomStore) List() []RoomInfo {
	out := make([]RoomInfo, 0, len(s.rooms))
	for _, id := range sortedKeys(s.rooms) {
		out = append(out, s.rooms[id].Info())
	}
	return out
}
