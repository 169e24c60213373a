package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
)

// Publish delivers n to every connection subscribed to ch at the time the loop runs it.
// All sends are queued before Publish returns.
func (o *Orchestrator) Publish(ctx context.Context, ch domain.ChannelName, n domain.Notification) (app.PublishResult, error) {
	if ch == "" {
		return app.PublishResult{}, fmt.Errorf("%w: empty channel", ErrInvalidNotification)
	}
	n, err := n.Normalize(o.now())
	if err != nil {
		return app.PublishResult{}, fmt.Errorf("%w: %w", ErrInvalidNotification, err)
	}

	var (
		res   app.PublishResult
		opErr error
	)
	err = o.exec(ctx, func() {
		res, opErr = o.Fanout.Publish(ch, n)
		o.fail(res.Failed)
	})
	if err != nil {
		return app.PublishResult{}, err
	}
	return res, opErr
}

func (o *Orchestrator) subscribe(id core.ConnectionID, ch domain.ChannelName) {
	if o.Fanout.Subscribe(id, ch) {
		o.Registry.AddChannel(id, ch)
	}
}
