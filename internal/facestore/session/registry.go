// Package session tracks live client connections and delivers broadcasts to
// them best-effort.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"facestore/internal/facestore/metrics"
)

const defaultQueueDepth = 256

// ClientTracker is told about every connect and disconnect.
type ClientTracker interface {
	AddClient(address string)
	RemoveClient(address string)
}

// Registry maps remote addresses to their sessions.
type Registry struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	clients ClientTracker

	queueDepth int
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	seq      uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithQueueDepth bounds how many broadcasts may wait for one session's
// writer. A session whose queue overflows is disconnected.
func WithQueueDepth(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.queueDepth = n
		}
	}
}

// NewRegistry creates an empty registry. clients may be nil.
func NewRegistry(clients ClientTracker, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Registry {
	r := &Registry{
		logger:     logger,
		metrics:    m,
		clients:    clients,
		queueDepth: defaultQueueDepth,
		now:        time.Now,
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Add registers a new session for remoteAddr. A stale session still
// registered under the same address is replaced.
func (r *Registry) Add(remoteAddr string, t Transport) *Session {
	r.mu.Lock()
	r.seq++
	s := newSession(uuid.NewString(), remoteAddr, r.now(), r.seq, t, r.queueDepth)
	prev, replaced := r.sessions[remoteAddr]
	r.sessions[remoteAddr] = s
	r.mu.Unlock()

	go s.writeLoop(r.writeFailed)

	if replaced {
		r.logger.Warn("replacing session registered under same address",
			"remote_addr", remoteAddr,
			"previous_session_id", prev.ID,
			"session_id", s.ID,
		)
	} else {
		r.metrics.SessionOpened()
	}
	if r.clients != nil {
		r.clients.AddClient(remoteAddr)
	}
	r.logger.Info("session connected", "session_id", s.ID, "remote_addr", remoteAddr)
	return s
}

// Remove deregisters s and stops its writer. Deregistration is a no-op when s
// was already removed or replaced.
func (r *Registry) Remove(s *Session) {
	s.stop()

	r.mu.Lock()
	current, ok := r.sessions[s.RemoteAddr]
	if !ok || current != s {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, s.RemoteAddr)
	r.mu.Unlock()

	r.metrics.SessionClosed()
	if r.clients != nil {
		r.clients.RemoveClient(s.RemoteAddr)
	}
	r.logger.Info("session disconnected", "session_id", s.ID, "remote_addr", s.RemoteAddr)
}

// Get returns the session registered for remoteAddr.
func (r *Registry) Get(remoteAddr string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[remoteAddr]
	return s, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of registered sessions in registration order.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Publish queues data for every session in a snapshot taken at call time and
// returns without waiting for any write. A session whose queue is full is
// disconnected; it recovers with a REFRESH after reconnecting. Write failures
// surface asynchronously on the session's writer and never reach other
// sessions. Publish returns the number of sessions that could not take data.
func (r *Registry) Publish(ctx context.Context, data []byte) int {
	failed := 0
	for _, s := range r.Sessions() {
		err := s.enqueue(data)
		if err == nil || errors.Is(err, errClosed) {
			continue
		}
		failed++
		r.metrics.IncrementBroadcastFailures()
		r.logger.WarnContext(ctx, "disconnecting slow session",
			"session_id", s.ID,
			"remote_addr", s.RemoteAddr,
			"queue_depth", r.queueDepth,
		)
		s.stop()
		_ = s.Close()
	}
	return failed
}

func (r *Registry) writeFailed(s *Session, err error) {
	r.metrics.IncrementBroadcastFailures()
	r.logger.Warn("broadcast send failed, closing session",
		"session_id", s.ID,
		"remote_addr", s.RemoteAddr,
		"error", err.Error(),
	)
}

// CloseAll closes every registered transport. Read loops observe the closed
// connection and deregister their sessions themselves.
func (r *Registry) CloseAll() {
	for _, s := range r.Sessions() {
		s.stop()
		if err := s.Close(); err != nil {
			r.logger.Debug("closing session transport", "session_id", s.ID, "error", err.Error())
		}
	}
}
