package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransport = errors.New("peer unreachable")

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errTransport
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) setFail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = true
}

// payloads returns the payloads of every received event with the given name.
func (c *fakeConn) payloads(t *testing.T, event string) []json.RawMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, f := range c.frames {
		var env core.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		if env.Event == event {
			out = append(out, env.Payload)
		}
	}
	return out
}

func decodeOne[T any](t *testing.T, c *fakeConn, event string) T {
	t.Helper()
	ps := c.payloads(t, event)
	require.Len(t, ps, 1, "expected exactly one %s event", event)
	var v T
	require.NoError(t, json.Unmarshal(ps[0], &v))
	return v
}

func newRelay(t *testing.T) *Orchestrator {
	t.Helper()
	o := New(WithClock(func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }))
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() {
		_ = o.Shutdown(context.Background())
	})
	return o
}

// settle waits until every op queued so far has run.
func settle(t *testing.T, o *Orchestrator) {
	t.Helper()
	_, err := o.Stats(context.Background())
	require.NoError(t, err)
}

func connect(t *testing.T, o *Orchestrator) (core.ConnectionID, *fakeConn) {
	t.Helper()
	c := &fakeConn{}
	id, err := o.Connect(context.Background(), c, "")
	require.NoError(t, err)
	return id, c
}

func connectAs(t *testing.T, o *Orchestrator, user string, role domain.Role) (core.ConnectionID, *fakeConn) {
	t.Helper()
	id, c := connect(t, o)
	require.NoError(t, o.Identify(context.Background(), id, domain.Identity{UserID: domain.UserID(user), Role: role}))
	return id, c
}

func dispatch(t *testing.T, o *Orchestrator, id core.ConnectionID, ev core.Inbound) {
	t.Helper()
	require.NoError(t, o.Dispatch(id, ev))
	settle(t, o)
}

func TestLiveSessionScenario(t *testing.T) {
	o := newRelay(t)
	ctx := context.Background()

	mid, m := connectAs(t, o, "mentor-1", domain.RoleMentor)
	uid, u := connectAs(t, o, "u1", domain.RoleUser)

	dispatch(t, o, mid, core.JoinRoom{Room: "live-42"})
	mState := decodeOne[core.RoomState](t, m, core.EventRoomState)
	assert.True(t, mState.IsHost)
	assert.Equal(t, mid, mState.Host)

	dispatch(t, o, uid, core.JoinRoom{Room: "live-42"})
	uState := decodeOne[core.RoomState](t, u, core.EventRoomState)
	assert.False(t, uState.IsHost)
	assert.Equal(t, mid, uState.Host)
	require.Len(t, uState.Participants, 2)
	assert.Equal(t, mid, uState.Participants[0].Peer)
	assert.Equal(t, uid, uState.Participants[1].Peer)

	joined := decodeOne[core.PeerJoined](t, m, core.EventPeerJoined)
	assert.Equal(t, uid, joined.Peer)
	assert.Equal(t, domain.UserID("u1"), joined.UserID)

	info, ok, err := o.Room(ctx, "live-42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, info.Participants, 2)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	dispatch(t, o, mid, core.Signal{Room: "live-42", Kind: domain.SignalOffer, Data: offer})
	got := decodeOne[core.RelayedSignal](t, u, core.EventSignal)
	assert.Equal(t, mid, got.From)
	assert.Equal(t, domain.SignalOffer, got.Kind)
	assert.JSONEq(t, string(offer), string(got.Data))
	assert.Empty(t, m.payloads(t, core.EventSignal), "sender never gets its own signal")

	require.NoError(t, o.Disconnect(uid))
	settle(t, o)
	left := decodeOne[core.PeerLeft](t, m, core.EventPeerLeft)
	assert.Equal(t, domain.RoomID("live-42"), left.Room)
	assert.Equal(t, uid, left.Peer)
	assert.False(t, left.Host)
	assert.True(t, u.isClosed())

	info, ok, err = o.Room(ctx, "live-42")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, info.Participants, 1)
	assert.Equal(t, mid, info.Participants[0].Conn)
}

func TestUserChannelNotification(t *testing.T) {
	o := newRelay(t)
	ctx := context.Background()

	_, a := connectAs(t, o, "u1", domain.RoleUser)
	ident := decodeOne[core.Identified](t, a, core.EventIdentified)
	assert.Equal(t, []domain.ChannelName{"user:u1"}, ident.Channels)

	res, err := o.Publish(ctx, "user:u1", domain.Notification{Title: "Task", Message: "New daily task", Type: domain.NotificationInfo})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SentTo)

	n := decodeOne[domain.Notification](t, a, core.EventNotification)
	assert.Equal(t, "Task", n.Title)
	assert.Equal(t, "New daily task", n.Message)
	assert.Equal(t, domain.NotificationInfo, n.Type)
	assert.False(t, n.CreatedAt.IsZero())
}

func TestAdminRoomReachesEveryAdmin(t *testing.T) {
	o := newRelay(t)
	_, a1 := connectAs(t, o, "admin-1", domain.RoleAdmin)
	_, a2 := connectAs(t, o, "admin-2", domain.RoleAdmin)
	_, user := connectAs(t, o, "u1", domain.RoleUser)

	res, err := o.Publish(context.Background(), domain.AdminChannel, domain.Notification{Title: "Mentor request", Type: domain.NotificationWarning})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SentTo)
	assert.Len(t, a1.payloads(t, core.EventNotification), 1)
	assert.Len(t, a2.payloads(t, core.EventNotification), 1)
	assert.Empty(t, user.payloads(t, core.EventNotification))
}

func TestPublishWithoutSubscribers(t *testing.T) {
	o := newRelay(t)
	res, err := o.Publish(context.Background(), "user:offline", domain.Notification{Title: "hi"})
	require.NoError(t, err)
	assert.Zero(t, res.SentTo)
}

func TestPublishRejectsInvalidNotification(t *testing.T) {
	o := newRelay(t)
	_, err := o.Publish(context.Background(), "user:u1", domain.Notification{})
	assert.ErrorIs(t, err, ErrInvalidNotification)
	_, err = o.Publish(context.Background(), "", domain.Notification{Title: "x"})
	assert.ErrorIs(t, err, ErrInvalidNotification)
}

func TestIdentify(t *testing.T) {
	o := newRelay(t)
	ctx := context.Background()
	id, c := connect(t, o)
	u1 := domain.Identity{UserID: "u1", Role: domain.RoleUser}

	require.NoError(t, o.Identify(ctx, id, u1))
	require.NoError(t, o.Identify(ctx, id, u1), "identical identity is idempotent")

	subs, err := o.Subscribers(ctx, "user:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{string(id)}, subs)

	err = o.Identify(ctx, id, domain.Identity{UserID: "u2", Role: domain.RoleAdmin})
	assert.ErrorIs(t, err, app.ErrAlreadyIdentified)
	e := decodeOne[core.Error](t, c, core.EventError)
	assert.Equal(t, "identity_conflict", e.Code)

	subs, err = o.Subscribers(ctx, domain.AdminChannel)
	require.NoError(t, err)
	assert.Empty(t, subs, "rejected identity leaves state untouched")
}

func TestAnonymousCannotJoin(t *testing.T) {
	o := newRelay(t)
	id, c := connect(t, o)

	dispatch(t, o, id, core.JoinRoom{Room: "live-42"})
	e := decodeOne[core.Error](t, c, core.EventError)
	assert.Equal(t, "not_identified", e.Code)

	rooms, err := o.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestChannelJoin(t *testing.T) {
	o := newRelay(t)
	ctx := context.Background()
	uid, u := connectAs(t, o, "u1", domain.RoleUser)

	dispatch(t, o, uid, core.JoinRoom{Room: string(domain.AdminChannel)})
	e := decodeOne[core.Error](t, u, core.EventError)
	assert.Equal(t, "forbidden_channel", e.Code)

	aid, a := connectAs(t, o, "admin-1", domain.RoleAdmin)
	dispatch(t, o, aid, core.JoinRoom{Room: string(domain.AdminChannel)})
	sub := decodeOne[core.Subscribed](t, a, core.EventSubscribed)
	assert.Equal(t, domain.AdminChannel, sub.Channel)

	dispatch(t, o, aid, core.LeaveRoom{Room: string(domain.AdminChannel)})
	subs, err := o.Subscribers(ctx, domain.AdminChannel)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestHostLeaveInformsPeers(t *testing.T) {
	o := newRelay(t)
	ctx := context.Background()
	mid, _ := connectAs(t, o, "m1", domain.RoleMentor)
	uid, u := connectAs(t, o, "u1", domain.RoleUser)
	dispatch(t, o, mid, core.JoinRoom{Room: "r"})
	dispatch(t, o, uid, core.JoinRoom{Room: "r"})

	dispatch(t, o, mid, core.LeaveRoom{Room: "r"})
	left := decodeOne[core.PeerLeft](t, u, core.EventPeerLeft)
	assert.True(t, left.Host)

	info, ok, err := o.Room(ctx, "r")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, info.Host)
}

func TestJoinSecondRoomLeavesFirst(t *testing.T) {
	o := newRelay(t)
	ctx := context.Background()
	mid, _ := connectAs(t, o, "m1", domain.RoleMentor)
	uid, u := connectAs(t, o, "u1", domain.RoleUser)
	dispatch(t, o, uid, core.JoinRoom{Room: "a"})
	dispatch(t, o, mid, core.JoinRoom{Room: "a"})

	dispatch(t, o, mid, core.JoinRoom{Room: "b"})
	left := decodeOne[core.PeerLeft](t, u, core.EventPeerLeft)
	assert.Equal(t, domain.RoomID("a"), left.Room)
	assert.Equal(t, mid, left.Peer)

	rooms, err := o.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	for _, r := range rooms {
		assert.Len(t, r.Participants, 1, r.ID)
	}
}

func TestSignalAloneIsNoop(t *testing.T) {
	o := newRelay(t)
	mid, m := connectAs(t, o, "m1", domain.RoleMentor)
	dispatch(t, o, mid, core.JoinRoom{Room: "solo"})

	dispatch(t, o, mid, core.Signal{Room: "solo", Kind: domain.SignalOffer, Data: json.RawMessage(`{}`)})
	assert.Empty(t, m.payloads(t, core.EventSignal))
	assert.Empty(t, m.payloads(t, core.EventError))
}

func TestSignalToUnknownRoomIsNoop(t *testing.T) {
	o := newRelay(t)
	mid, m := connectAs(t, o, "m1", domain.RoleMentor)
	dispatch(t, o, mid, core.Signal{Room: "gone", Kind: domain.SignalAnswer, Data: json.RawMessage(`{}`)})
	assert.Empty(t, m.payloads(t, core.EventError))
}

func TestHostDisconnectAloneRemovesRoom(t *testing.T) {
	o := newRelay(t)
	ctx := context.Background()
	mid, _ := connectAs(t, o, "m1", domain.RoleMentor)
	dispatch(t, o, mid, core.JoinRoom{Room: "live-1"})

	require.NoError(t, o.Disconnect(mid))
	st, err := o.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
}

func TestDisconnectPurgesEverything(t *testing.T) {
	o := newRelay(t)
	ctx := context.Background()
	aid, a := connectAs(t, o, "admin-1", domain.RoleAdmin)
	dispatch(t, o, aid, core.JoinRoom{Room: "live-9"})

	require.NoError(t, o.Disconnect(aid))
	settle(t, o)
	assert.True(t, a.isClosed())

	var found bool
	require.NoError(t, o.exec(ctx, func() { _, found = o.Registry.Lookup(aid) }))
	assert.False(t, found)

	for _, ch := range []domain.ChannelName{"user:admin-1", domain.AdminChannel} {
		subs, err := o.Subscribers(ctx, ch)
		require.NoError(t, err)
		assert.Empty(t, subs, ch)
	}
	_, ok, err := o.Room(ctx, "live-9")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, o.Disconnect(aid), "disconnecting twice is harmless")
	settle(t, o)
}

func TestTransportErrorTriggersCleanup(t *testing.T) {
	o := newRelay(t)
	ctx := context.Background()
	mid, m := connectAs(t, o, "m1", domain.RoleMentor)
	uid, u := connectAs(t, o, "u1", domain.RoleUser)
	dispatch(t, o, mid, core.JoinRoom{Room: "r"})
	dispatch(t, o, uid, core.JoinRoom{Room: "r"})

	u.setFail()
	dispatch(t, o, mid, core.Signal{Room: "r", Kind: domain.SignalOffer, Data: json.RawMessage(`{}`)})

	assert.True(t, u.isClosed())
	left := decodeOne[core.PeerLeft](t, m, core.EventPeerLeft)
	assert.Equal(t, uid, left.Peer)

	st, err := o.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Connections)
}

type keepPolicy struct{}

func (keepPolicy) OnSendFailure(core.ConnectionID, error) app.SendFailureAction { return app.NoAction }

func TestPolicyCanKeepConnection(t *testing.T) {
	o := New(WithPolicy(keepPolicy{}))
	require.NoError(t, o.Start(context.Background()))
	defer o.Shutdown(context.Background())

	_, c := connectAs(t, o, "u1", domain.RoleUser)
	c.setFail()
	_, err := o.Publish(context.Background(), "user:u1", domain.Notification{Title: "x"})
	require.NoError(t, err)

	st, err := o.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Connections)
	assert.False(t, c.isClosed())
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	o := New()
	require.NoError(t, o.Start(ctx))
	assert.ErrorIs(t, o.Start(ctx), ErrAlreadyStarted)

	_, c := connectAs(t, o, "u1", domain.RoleUser)
	require.NoError(t, o.Shutdown(ctx))
	assert.True(t, c.isClosed())

	_, err := o.Connect(ctx, &fakeConn{}, "")
	assert.ErrorIs(t, err, ErrServerClosed)
	_, err = o.Publish(ctx, "user:u1", domain.Notification{Title: "x"})
	assert.ErrorIs(t, err, ErrServerClosed)
	assert.ErrorIs(t, o.Start(ctx), ErrServerClosed)
	require.NoError(t, o.Shutdown(ctx), "shutdown is idempotent")
}

func TestContextCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o := New()
	require.NoError(t, o.Start(ctx))
	_, c := connectAs(t, o, "u1", domain.RoleUser)

	cancel()
	<-o.Done()
	assert.True(t, c.isClosed())
	assert.NoError(t, o.Shutdown(context.Background()))
}

func TestIsolatedInstances(t *testing.T) {
	o1, o2 := newRelay(t), newRelay(t)
	connectAs(t, o1, "u1", domain.RoleUser)

	res, err := o2.Publish(context.Background(), "user:u1", domain.Notification{Title: "x"})
	require.NoError(t, err)
	assert.Zero(t, res.SentTo)
}
