package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	ch domain.ChannelName
	n  domain.Notification
}

type fakePublisher struct {
	got []published
	err error
}

func (p *fakePublisher) Publish(_ context.Context, ch domain.ChannelName, n domain.Notification) (app.PublishResult, error) {
	if p.err != nil {
		return app.PublishResult{}, p.err
	}
	p.got = append(p.got, published{ch: ch, n: n})
	return app.PublishResult{SentTo: 1}, nil
}

func TestBridgeForwardsNotification(t *testing.T) {
	pub := &fakePublisher{}
	b := NewBridge(nil, pub, "notify:")

	err := b.handle(context.Background(), &redis.Message{
		Channel: "notify:user:42",
		Payload: `{"title":"Task","message":"New daily task","type":"info"}`,
	})
	require.NoError(t, err)
	require.Len(t, pub.got, 1)
	assert.Equal(t, domain.ChannelName("user:42"), pub.got[0].ch)
	assert.Equal(t, "Task", pub.got[0].n.Title)
	assert.Equal(t, domain.NotificationInfo, pub.got[0].n.Type)
}

func TestBridgeRejectsBadMessages(t *testing.T) {
	pub := &fakePublisher{}
	b := NewBridge(nil, pub, "notify:")
	ctx := context.Background()

	assert.ErrorIs(t, b.handle(ctx, &redis.Message{Channel: "notify:admin-room", Payload: "{"}), ErrBadMessage)
	assert.ErrorIs(t, b.handle(ctx, &redis.Message{Channel: "other:user:1", Payload: `{"title":"x"}`}), ErrBadMessage)
	assert.ErrorIs(t, b.handle(ctx, &redis.Message{Channel: "notify:", Payload: `{"title":"x"}`}), ErrBadMessage)
	assert.Empty(t, pub.got)
}

func TestBridgeReturnsPublishError(t *testing.T) {
	boom := errors.New("relay closed")
	b := NewBridge(nil, &fakePublisher{err: boom}, "notify:")
	err := b.handle(context.Background(), &redis.Message{Channel: "notify:user:1", Payload: `{"title":"x"}`})
	assert.ErrorIs(t, err, boom)
}
