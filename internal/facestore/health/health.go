// Package health collects the operational state exposed on the health
// surface: connected clients and statistics over completed client requests.
// It only observes; nothing in dispatch or caching reads from it.
package health

import (
	"slices"
	"sort"
	"sync"
	"time"
)

// Status values reported by Snapshot. The collector never reports DOWN: an
// empty client set only means nothing is known about liveness.
const (
	StatusUp      = "UP"
	StatusUnknown = "UNKNOWN"
)

const defaultRecentLimit = 20

// ClientMessage records one completed client request.
type ClientMessage struct {
	Address   string    `json:"address"`
	Type      string    `json:"type"`
	Token     string    `json:"token,omitempty"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Failed    bool      `json:"failed,omitempty"`
}

// Duration returns end - start in seconds.
func (m ClientMessage) Duration() float64 {
	return m.EndTime.Sub(m.StartTime).Seconds()
}

// RecentMessage is a ClientMessage with its derived duration, as listed in
// the snapshot.
type RecentMessage struct {
	ClientMessage
	DurationSeconds float64 `json:"duration"`
}

// Snapshot is a point-in-time copy of the collector state.
type Snapshot struct {
	Status            string             `json:"status"`
	ActiveClients     []string           `json:"activeClients"`
	ReceivedTotal     int64              `json:"receivedTotal"`
	CountByAddress    map[string]int64   `json:"countByAddress"`
	CountByType       map[string]int64   `json:"countByType"`
	MeanSecondsByAddr map[string]float64 `json:"meanSecondsByAddress"`
	MeanSecondsByType map[string]float64 `json:"meanSecondsByType"`
	RecentMessages    []RecentMessage    `json:"recentMessages"`
}

type aggregate struct {
	count   int64
	seconds float64
}

// Collector tracks live clients and request statistics. Aggregates are kept
// incrementally; only the most recent messages are retained verbatim.
type Collector struct {
	mu        sync.RWMutex
	clients   map[string]struct{}
	total     int64
	byAddress map[string]*aggregate
	byType    map[string]*aggregate
	recent    []ClientMessage
	next      int
	limit     int
}

// Option configures a Collector.
type Option func(*Collector)

// WithRecentLimit sets how many recent messages the snapshot lists.
func WithRecentLimit(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.limit = n
		}
	}
}

func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		clients:   make(map[string]struct{}),
		byAddress: make(map[string]*aggregate),
		byType:    make(map[string]*aggregate),
		limit:     defaultRecentLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.recent = make([]ClientMessage, 0, c.limit)
	return c
}

func (c *Collector) AddClient(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[address] = struct{}{}
}

func (c *Collector) RemoveClient(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, address)
}

// RecordClientMessage appends a completed request.
func (c *Collector) RecordClientMessage(msg ClientMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	d := msg.Duration()
	add(c.byAddress, msg.Address, d)
	add(c.byType, msg.Type, d)

	if len(c.recent) < c.limit {
		c.recent = append(c.recent, msg)
		return
	}
	c.recent[c.next] = msg
	c.next = (c.next + 1) % c.limit
}

func add(m map[string]*aggregate, key string, seconds float64) {
	a, ok := m[key]
	if !ok {
		a = &aggregate{}
		m[key] = a
	}
	a.count++
	a.seconds += seconds
}

// Snapshot returns the current state. Recent messages are most recent first.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clients := make([]string, 0, len(c.clients))
	for addr := range c.clients {
		clients = append(clients, addr)
	}
	sort.Strings(clients)

	status := StatusUnknown
	if len(clients) > 0 {
		status = StatusUp
	}

	snap := Snapshot{
		Status:            status,
		ActiveClients:     clients,
		ReceivedTotal:     c.total,
		CountByAddress:    make(map[string]int64, len(c.byAddress)),
		CountByType:       make(map[string]int64, len(c.byType)),
		MeanSecondsByAddr: make(map[string]float64, len(c.byAddress)),
		MeanSecondsByType: make(map[string]float64, len(c.byType)),
		RecentMessages:    make([]RecentMessage, 0, len(c.recent)),
	}
	for k, a := range c.byAddress {
		snap.CountByAddress[k] = a.count
		snap.MeanSecondsByAddr[k] = a.seconds / float64(a.count)
	}
	for k, a := range c.byType {
		snap.CountByType[k] = a.count
		snap.MeanSecondsByType[k] = a.seconds / float64(a.count)
	}

	// Oldest entry sits at c.next once the ring is full.
	ordered := make([]ClientMessage, 0, len(c.recent))
	ordered = append(ordered, c.recent[c.next:]...)
	ordered = append(ordered, c.recent[:c.next]...)
	slices.Reverse(ordered)
	for _, msg := range ordered {
		snap.RecentMessages = append(snap.RecentMessages, RecentMessage{ClientMessage: msg, DurationSeconds: msg.Duration()})
	}
	return snap
}
