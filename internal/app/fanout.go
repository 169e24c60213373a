package app

import (
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Fanout delivers notifications to every connection subscribed to a channel.
// It is not safe for concurrent use; the relay loop owns it.
type Fanout struct {
	out    Deliverer
	subs   map[domain.ChannelName]map[core.ConnectionID]struct{}
	byConn map[core.ConnectionID]map[domain.ChannelName]struct{}
}

func NewFanout(out Deliverer) *Fanout {
	return &Fanout{
		out:    out,
		subs:   make(map[domain.ChannelName]map[core.ConnectionID]struct{}),
		byConn: make(map[core.ConnectionID]map[domain.ChannelName]struct{}),
	}
}

// Subscribe reports whether the membership is new.
func (f *Fanout) Subscribe(id core.ConnectionID, ch domain.ChannelName) bool {
	set, ok := f.subs[ch]
	if !ok {
		set = make(map[core.ConnectionID]struct{})
		f.subs[ch] = set
	}
	if _, dup := set[id]; dup {
		return false
	}
	set[id] = struct{}{}

	chans, ok := f.byConn[id]
	if !ok {
		chans = make(map[domain.ChannelName]struct{})
		f.byConn[id] = chans
	}
	chans[ch] = struct{}{}
	log.Debug().Str("module", "app.fanout").Str("conn", string(id)).Str("channel", string(ch)).Msg("subscribed")
	return true
}

func (f *Fanout) Unsubscribe(id core.ConnectionID, ch domain.ChannelName) bool {
	set, ok := f.subs[ch]
	if !ok {
		return false
	}
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(f.subs, ch)
	}
	if chans, ok := f.byConn[id]; ok {
		delete(chans, ch)
		if len(chans) == 0 {
			delete(f.byConn, id)
		}
	}
	log.Debug().Str("module", "app.fanout").Str("conn", string(id)).Str("channel", string(ch)).Msg("unsubscribed")
	return true
}

// UnsubscribeAll drops every membership of the connection and returns the channels it had.
func (f *Fanout) UnsubscribeAll(id core.ConnectionID) []domain.ChannelName {
	chans := sortedKeys(f.byConn[id])
	for _, ch := range chans {
		f.Unsubscribe(id, ch)
	}
	return chans
}

// Publish delivers to the current subscribers only. No subscribers is a no-op.
func (f *Fanout) Publish(ch domain.ChannelName, n domain.Notification) (PublishResult, error) {
	set := f.subs[ch]
	if len(set) == 0 {
		log.Debug().Str("module", "app.fanout").Str("channel", string(ch)).Msg("publish without subscribers")
		return PublishResult{}, nil
	}
	frame, err := core.Encode(core.NotificationEvent{Notification: n})
	if err != nil {
		return PublishResult{}, err
	}
	res := deliverAll(f.out, sortedKeys(set), frame)
	log.Debug().Str("module", "app.fanout").Str("channel", string(ch)).Int("sent_to", res.SentTo).Int("failed", len(res.Failed)).Msg("published")
	return res, nil
}

func (f *Fanout) Subscribers(ch domain.ChannelName) []core.ConnectionID {
	return sortedKeys(f.subs[ch])
}

func (f *Fanout) Channels() int { return len(f.subs) }
