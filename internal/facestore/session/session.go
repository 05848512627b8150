package session

import (
	"errors"
	"sync"
	"time"
)

var (
	errQueueFull = errors.New("outbound queue full")
	errClosed    = errors.New("session closed")
)

// Transport is the write side of one client connection. Implementations need
// not be safe for concurrent use; Session serializes access.
type Transport interface {
	WriteText(p []byte) error
	Close() error
}

// Session is one live client connection.
//
// Broadcasts are queued and written by the session's own writer goroutine, so
// a slow peer only ever delays itself. Request replies go through Send and
// share the same write lock.
type Session struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	seq       uint64
	mu        sync.Mutex
	transport Transport

	out      chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func newSession(id, remoteAddr string, at time.Time, seq uint64, t Transport, queueDepth int) *Session {
	return &Session{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: at,
		seq:         seq,
		transport:   t,
		out:         make(chan []byte, queueDepth),
		done:        make(chan struct{}),
	}
}

// Send writes one text message. Sends to the same session never overlap.
func (s *Session) Send(p []byte) error {
	return s.Exclusive(func(t Transport) error {
		return t.WriteText(p)
	})
}

// Exclusive runs fn while holding the session's write lock. Transport code
// uses it for writes that bypass Send, such as control frame replies.
func (s *Session) Exclusive(fn func(Transport) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.transport)
}

// Close closes the underlying transport.
func (s *Session) Close() error {
	return s.transport.Close()
}

// enqueue hands p to the writer without blocking.
func (s *Session) enqueue(p []byte) error {
	select {
	case <-s.done:
		return errClosed
	default:
	}
	select {
	case s.out <- p:
		return nil
	default:
		return errQueueFull
	}
}

// writeLoop drains the outbound queue until stop. After a failed write the
// frame boundary on the wire is unknown, so the transport is closed and the
// read loop deregisters the session.
func (s *Session) writeLoop(onError func(*Session, error)) {
	for {
		select {
		case <-s.done:
			return
		case p := <-s.out:
			if err := s.Send(p); err != nil {
				onError(s, err)
				_ = s.Close()
				s.stop()
				return
			}
		}
	}
}

func (s *Session) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
