package events

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"facestore/internal/facestore/metrics"
)

const (
	defaultWorkers    = 4
	defaultQueueDepth = 1024
)

type delivery struct {
	sub   subscriber
	event Event
}

type subscriber struct {
	name     string
	listener Listener
}

// Bus fans events out to subscribed listeners on a fixed pool of lanes. Each
// lane is drained by one worker goroutine, and every (listener, person) pair
// maps to exactly one lane, so a listener observes the events of one person in
// publish order. Different persons and different listeners proceed in
// parallel.
type Bus struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	workers    int
	queueDepth int

	mu     sync.RWMutex
	subs   []subscriber
	lanes  []chan delivery
	closed bool
	wg     sync.WaitGroup
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithWorkers sets the number of lanes (and worker goroutines).
func WithWorkers(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithQueueDepth sets the buffered capacity of each lane.
func WithQueueDepth(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.queueDepth = n
		}
	}
}

// NewBus creates a bus and starts its lane workers. Call Close to drain and
// stop them.
func NewBus(logger *slog.Logger, m *metrics.Metrics, opts ...BusOption) *Bus {
	b := &Bus{
		logger:     logger,
		metrics:    m,
		workers:    defaultWorkers,
		queueDepth: defaultQueueDepth,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.lanes = make([]chan delivery, b.workers)
	for i := range b.lanes {
		lane := make(chan delivery, b.queueDepth)
		b.lanes[i] = lane
		b.wg.Add(1)
		go b.drain(lane)
	}
	return b
}

// Subscribe registers a listener under a name used for lane selection, logs
// and metrics.
func (b *Bus) Subscribe(name string, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscriber{name: name, listener: listener})
}

// Publish enqueues event for every subscriber without blocking. When a lane is
// full the event is dropped for that subscriber; clients recover through a
// full refresh.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Warn("event published after bus close", "kind", event.Kind.String(), "person_id", event.PersonID)
		return
	}
	for _, sub := range b.subs {
		select {
		case b.lanes[b.laneFor(sub.name, event.PersonID)] <- delivery{sub: sub, event: event}:
		default:
			b.metrics.IncrementEventsDropped(sub.name)
			b.logger.Warn("event lane full, dropping event",
				"listener", sub.name,
				"kind", event.Kind.String(),
				"person_id", event.PersonID,
			)
		}
	}
}

// Close stops accepting events, delivers everything already queued, and waits
// for the workers to exit.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, lane := range b.lanes {
		close(lane)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bus) laneFor(listener, personID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(listener))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(personID))
	return int(h.Sum32() % uint32(len(b.lanes)))
}

func (b *Bus) drain(lane <-chan delivery) {
	defer b.wg.Done()
	for d := range lane {
		b.deliver(d)
	}
}

func (b *Bus) deliver(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked",
				"listener", d.sub.name,
				"kind", d.event.Kind.String(),
				"error", fmt.Sprint(r),
			)
		}
	}()
	d.sub.listener.HandleEvent(context.Background(), d.event)
}
