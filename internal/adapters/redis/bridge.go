// Package redis lets producers outside this process publish notifications:
//
//	PUBLISH notify:user:42 '{"title":"Task","message":"New daily task","type":"info"}'
//
// reaches every connection subscribed to channel "user:42".
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrBadMessage = errors.New("bad notification message")

type Publisher interface {
	Publish(ctx context.Context, ch domain.ChannelName, n domain.Notification) (app.PublishResult, error)
}

type Bridge struct {
	client *redis.Client
	pub    Publisher
	prefix string
}

func NewBridge(client *redis.Client, pub Publisher, prefix string) *Bridge {
	return &Bridge{client: client, pub: pub, prefix: prefix}
}

// Run forwards messages until ctx is done. Bad messages are logged and skipped.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s*: %w", b.prefix, err)
	}
	log.Info().Str("module", "redis.bridge").Str("pattern", b.prefix+"*").Msg("bridge subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := b.handle(ctx, msg); err != nil {
				log.Warn().Err(err).Str("module", "redis.bridge").Str("redis_channel", msg.Channel).Msg("notification dropped")
			}
		}
	}
}

func (b *Bridge) handle(ctx context.Context, msg *redis.Message) error {
	channel, err := b.channelOf(msg.Channel)
	if err != nil {
		return err
	}
	var n domain.Notification
	if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
		return fmt.Errorf("%w: %w", ErrBadMessage, err)
	}
	res, err := b.pub.Publish(ctx, channel, n)
	if err != nil {
		return err
	}
	log.Debug().Str("module", "redis.bridge").Str("channel", string(channel)).Int("sent_to", res.SentTo).Msg("notification forwarded")
	return nil
}

func (b *Bridge) channelOf(redisChannel string) (domain.ChannelName, error) {
	name, ok := strings.CutPrefix(redisChannel, b.prefix)
	if !ok || name == "" {
		return "", fmt.Errorf("%w: channel %q outside prefix %q", ErrBadMessage, redisChannel, b.prefix)
	}
	return domain.ChannelName(name), nil
}
