// Package orch is the relay's composition root. One goroutine owns every
// registry, room and channel map; callers reach it only through queued ops.
package orch

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/core"
	"github.com/rs/zerolog/log"
)

var (
	ErrServerClosed        = errors.New("relay server closed")
	ErrAlreadyStarted      = errors.New("relay server already started")
	ErrInvalidNotification = errors.New("invalid notification")
)

const DefaultQueueSize = 1024

const (
	stateNew int32 = iota
	stateRunning
	stateStopped
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomStore
	Signals  *app.SignalRouter
	Fanout   *app.Fanout
	Policy   app.Policy

	now     func() time.Time
	ops     chan func()
	quit    chan struct{}
	done    chan struct{}
	state   atomic.Int32
	pending []core.ConnectionID
}

type Option func(*Orchestrator)

func WithPolicy(p app.Policy) Option { return func(o *Orchestrator) { o.Policy = p } }

func WithQueueSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.ops = make(chan func(), n)
		}
	}
}

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func New(opts ...Option) *Orchestrator {
	reg := app.NewRegistry()
	rooms := app.NewRoomStore()
	o := &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Signals:  app.NewSignalRouter(rooms, reg),
		Fanout:   app.NewFanout(reg),
		Policy:   app.SimplePolicy{},
		now:      time.Now,
		ops:      make(chan func(), DefaultQueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start runs the event loop until ctx is done or Shutdown is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.state.CompareAndSwap(stateNew, stateRunning) {
		if o.state.Load() == stateStopped {
			return ErrServerClosed
		}
		return ErrAlreadyStarted
	}
	go o.loop(ctx)
	log.Info().Str("module", "orch").Msg("relay loop started")
	return nil
}

// Shutdown closes every connection and waits for the loop to exit.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if o.state.CompareAndSwap(stateNew, stateStopped) {
		close(o.done)
		return nil
	}
	if o.state.CompareAndSwap(stateRunning, stateStopped) {
		close(o.quit)
	}
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the loop has exited.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			o.state.Store(stateStopped)
			o.closeAll()
			return
		case <-o.quit:
			o.closeAll()
			return
		case op := <-o.ops:
			op()
			o.flushPending()
		}
	}
}

func (o *Orchestrator) closeAll() {
	ids := o.Registry.IDs()
	for _, id := range ids {
		o.teardown(id, false)
	}
	o.pending = nil
	log.Info().Str("module", "orch").Int("connections", len(ids)).Msg("relay loop stopped")
}

// submit queues op without waiting for it.
func (o *Orchestrator) submit(op func()) error {
	select {
	case <-o.done:
		return ErrServerClosed
	default:
	}
	select {
	case o.ops <- op:
		return nil
	case <-o.done:
		return ErrServerClosed
	}
}

// exec queues op and waits until the loop has run it.
func (o *Orchestrator) exec(ctx context.Context, op func()) error {
	finished := make(chan struct{})
	if err := o.submit(func() {
		op()
		close(finished)
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-o.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrServerClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
