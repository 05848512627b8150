package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"facestore/internal/facestore/cache"
	"facestore/internal/facestore/catalog"
	"facestore/internal/facestore/events"
	"facestore/internal/facestore/health"
	"facestore/internal/facestore/metrics"
	"facestore/internal/facestore/models"
	"facestore/internal/facestore/protocol"
	"facestore/internal/facestore/session"
	"facestore/internal/facestore/store"
	"facestore/internal/facestore/store/mocks"
)

type frame = protocol.Message[json.RawMessage]

type clientConn struct {
	mu     sync.Mutex
	frames []frame
}

func (c *clientConn) WriteText(p []byte) error {
	var f frame
	if err := json.Unmarshal(p, &f); err != nil {
		return fmt.Errorf("server sent invalid json: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *clientConn) Close() error { return nil }

func (c *clientConn) received() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame(nil), c.frames...)
}

func (c *clientConn) types() []string {
	out := []string{}
	for _, f := range c.received() {
		out = append(out, f.Headers[protocol.HeaderType])
	}
	return out
}

func request(kind protocol.ClientKind, token string, payload any, headers map[string]string) []byte {
	h := protocol.Headers{protocol.HeaderType: string(kind)}
	if token != "" {
		h[protocol.HeaderToken] = token
	}
	for k, v := range headers {
		h[k] = v
	}
	raw, err := json.Marshal(protocol.Message[any]{Headers: h, Payload: payload})
	if err != nil {
		panic(err)
	}
	return raw
}

type DispatcherSuite struct {
	suite.Suite
	ctx        context.Context
	logger     *slog.Logger
	metrics    *metrics.Metrics
	store      *store.InMemoryStore
	bus        *events.Bus
	collector  *health.Collector
	sessions   *session.Registry
	dispatcher *Dispatcher
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.store = store.NewInMemory()
	s.bus = events.NewBus(s.logger, s.metrics)
	s.collector = health.NewCollector()
	s.sessions = session.NewRegistry(s.collector, s.logger, s.metrics)
	cat := catalog.New(s.store, cache.NewInMemory(), s.bus, s.logger, s.metrics)
	s.dispatcher = New(cat, s.sessions, s.collector, s.logger, s.metrics)
	s.bus.Subscribe("broadcast", s.dispatcher)
}

func (s *DispatcherSuite) TearDownTest() {
	s.bus.Close()
}

func (s *DispatcherSuite) connect(addr string) (*session.Session, *clientConn) {
	conn := &clientConn{}
	return s.sessions.Add(addr, conn), conn
}

func (s *DispatcherSuite) seed() {
	_, err := s.store.SavePerson(s.ctx, models.Person{ID: "p1", Name: "Alice"})
	s.Require().NoError(err)
	_, err = s.store.SavePerson(s.ctx, models.Person{ID: "p2", Name: "Bob"})
	s.Require().NoError(err)
	for _, faceID := range []string{"f1", "f2"} {
		_, err = s.store.SaveFace(s.ctx, "p1", models.Face{ID: faceID, Data: json.RawMessage(`[0.5]`)})
		s.Require().NoError(err)
	}
}

func (s *DispatcherSuite) TestRefreshStreamsCatalogInOrder() {
	s.seed()
	sess, conn := s.connect("10.0.0.1:1")

	s.dispatcher.Handle(s.ctx, sess, request(protocol.KindRefresh, "r1", "", nil))

	got := conn.received()
	s.Equal([]string{
		"PERSON_ID_LIST",
		"PERSON", "FACE_ID_LIST", "FACE", "FACE",
		"PERSON", "FACE_ID_LIST",
		"CONFIRM",
	}, conn.types())
	for _, f := range got {
		s.Equal("r1", f.Headers[protocol.HeaderToken])
		s.NotEmpty(f.Headers[protocol.HeaderTimestamp])
	}

	s.JSONEq(`["p1","p2"]`, string(got[0].Payload))

	s.Equal("0", got[1].Headers[protocol.HeaderIndex])
	s.Equal("2", got[1].Headers[protocol.HeaderSize])
	var alice models.Person
	s.Require().NoError(json.Unmarshal(got[1].Payload, &alice))
	s.Equal("Alice", alice.Name)

	s.Equal("p1", got[2].Headers[protocol.HeaderPersonID])
	s.JSONEq(`["f1","f2"]`, string(got[2].Payload))

	s.Equal("p1", got[3].Headers[protocol.HeaderPersonID])
	s.Equal("0", got[3].Headers[protocol.HeaderIndex])
	s.Equal("2", got[3].Headers[protocol.HeaderSize])
	s.Equal("1", got[4].Headers[protocol.HeaderIndex])

	s.Equal("1", got[5].Headers[protocol.HeaderIndex])
	s.JSONEq(`[]`, string(got[6].Payload))
	s.JSONEq(`""`, string(got[7].Payload))
}

func (s *DispatcherSuite) TestRefreshOfEmptyCatalog() {
	sess, conn := s.connect("10.0.0.1:1")

	s.dispatcher.Handle(s.ctx, sess, request(protocol.KindRefresh, "", "", nil))

	s.Equal([]string{"PERSON_ID_LIST", "CONFIRM"}, conn.types())
	s.JSONEq(`[]`, string(conn.received()[0].Payload))
}

func (s *DispatcherSuite) TestSavePersonConfirmsAndBroadcasts() {
	writer, writerConn := s.connect("10.0.0.1:1")
	_, otherConn := s.connect("10.0.0.2:1")

	s.dispatcher.Handle(s.ctx, writer, request(protocol.KindPerson, "t1", map[string]string{"id": "p1", "name": "Alice"}, nil))

	s.Eventually(func() bool { return len(otherConn.received()) == 1 }, time.Second, 5*time.Millisecond)
	s.Eventually(func() bool { return len(writerConn.received()) == 2 }, time.Second, 5*time.Millisecond)

	note := otherConn.received()[0]
	s.Equal("PERSON", note.Headers[protocol.HeaderType])
	_, hasToken := note.Headers[protocol.HeaderToken]
	s.False(hasToken, "notifications carry no token")
	var p models.Person
	s.Require().NoError(json.Unmarshal(note.Payload, &p))
	s.Equal("p1", p.ID)
	s.False(p.CreatedAt.IsZero())

	var confirm frame
	for _, f := range writerConn.received() {
		if f.Headers[protocol.HeaderType] == "CONFIRM" {
			confirm = f
		}
	}
	s.Equal("t1", confirm.Headers[protocol.HeaderToken])

	stored, ok, err := s.store.Person(s.ctx, "p1")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("Alice", stored.Name)
}

func (s *DispatcherSuite) TestFaceUnderMissingPersonFailsWithoutConfirm() {
	sess, conn := s.connect("10.0.0.1:1")

	s.dispatcher.Handle(s.ctx, sess, request(protocol.KindFace, "t2",
		map[string]string{"id": "f1"}, map[string]string{protocol.HeaderPersonID: "ghost"}))

	s.Empty(conn.received())
	snap := s.collector.Snapshot()
	s.Require().Len(snap.RecentMessages, 1)
	s.True(snap.RecentMessages[0].Failed)
}

func (s *DispatcherSuite) TestDeleteBroadcastsCarryIDs() {
	s.seed()
	writer, _ := s.connect("10.0.0.1:1")
	_, other := s.connect("10.0.0.2:1")

	s.dispatcher.Handle(s.ctx, writer, request(protocol.KindFaceDelete, "d1", "",
		map[string]string{protocol.HeaderPersonID: "p1", protocol.HeaderFaceID: "f2"}))
	s.dispatcher.Handle(s.ctx, writer, request(protocol.KindPersonDelete, "d2", "",
		map[string]string{protocol.HeaderPersonID: "p1"}))

	s.Eventually(func() bool { return len(other.received()) == 2 }, time.Second, 5*time.Millisecond)
	got := other.received()
	s.Equal("FACE_DELETE", got[0].Headers[protocol.HeaderType])
	s.Equal("p1", got[0].Headers[protocol.HeaderPersonID])
	s.Equal("f2", got[0].Headers[protocol.HeaderFaceID])
	s.Equal("PERSON_DELETE", got[1].Headers[protocol.HeaderType])
	s.Equal("p1", got[1].Headers[protocol.HeaderPersonID])
	s.JSONEq(`""`, string(got[1].Payload))

	ids, err := s.store.PersonIDs(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"p2"}, ids)
}

func (s *DispatcherSuite) TestConcurrentRefreshesKeepTheirTokens() {
	s.seed()
	a, connA := s.connect("10.0.0.1:1")
	b, connB := s.connect("10.0.0.2:1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.dispatcher.Handle(s.ctx, a, request(protocol.KindRefresh, "a", "", nil))
	}()
	go func() {
		defer wg.Done()
		s.dispatcher.Handle(s.ctx, b, request(protocol.KindRefresh, "b", "", nil))
	}()
	wg.Wait()

	for token, conn := range map[string]*clientConn{"a": connA, "b": connB} {
		frames := conn.received()
		s.Len(frames, 8)
		for _, f := range frames {
			s.Equal(token, f.Headers[protocol.HeaderToken])
		}
		s.Equal("CONFIRM", frames[len(frames)-1].Headers[protocol.HeaderType])
	}
}

func (s *DispatcherSuite) TestMalformedAndHeartbeatGetNoReply() {
	sess, conn := s.connect("10.0.0.1:1")

	s.dispatcher.Handle(s.ctx, sess, []byte("@heart"))
	s.dispatcher.Handle(s.ctx, sess, []byte("{not json"))
	s.dispatcher.Handle(s.ctx, sess, request("FACE_CLEAR", "x", "", nil))
	s.dispatcher.Handle(s.ctx, sess, request(protocol.KindPerson, "x", map[string]string{"name": "no id"}, nil))

	s.Empty(conn.received())
	s.Equal(3.0, promtest.ToFloat64(s.metrics.MessagesDropped.WithLabelValues("invalid_message")))
	s.EqualValues(0, s.collector.Snapshot().ReceivedTotal)
}

func (s *DispatcherSuite) TestRequestsAreRecorded() {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := New(catalog.New(s.store, cache.NewInMemory(), nil, s.logger, s.metrics), s.sessions, s.collector, s.logger, s.metrics,
		WithClock(func() time.Time { return at }))
	sess, _ := s.connect("10.0.0.7:9")

	d.Handle(s.ctx, sess, request(protocol.KindRefresh, "r", "", nil))
	d.Handle(s.ctx, sess, request(protocol.KindPerson, "p", map[string]string{"id": "p1"}, nil))

	snap := s.collector.Snapshot()
	s.EqualValues(2, snap.ReceivedTotal)
	s.Equal(map[string]int64{"10.0.0.7:9": 2}, snap.CountByAddress)
	s.Equal(map[string]int64{"REFRESH": 1, "PERSON": 1}, snap.CountByType)
	s.Equal("PERSON", snap.RecentMessages[0].Type)
	s.Equal("p", snap.RecentMessages[0].Token)
	s.Equal(at, snap.RecentMessages[0].StartTime)
}

func (s *DispatcherSuite) TestStoreFailureSendsNoConfirm() {
	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl)
	st.EXPECT().SavePerson(gomock.Any(), gomock.Any()).Return(models.Person{}, errors.New("disk full"))

	published := false
	pub := publisherFunc(func(events.Event) { published = true })
	d := New(catalog.New(st, cache.NewInMemory(), pub, s.logger, s.metrics), s.sessions, s.collector, s.logger, s.metrics)
	sess, conn := s.connect("10.0.0.1:1")

	d.Handle(s.ctx, sess, request(protocol.KindPerson, "t1", map[string]string{"id": "p1"}, nil))

	s.Empty(conn.received())
	s.False(published)
}

func (s *DispatcherSuite) TestHandleEventWithoutSessions() {
	s.NotPanics(func() {
		s.dispatcher.HandleEvent(s.ctx, events.PersonDeletedEvent("p1", time.Now()))
	})
}

type stalledConn struct {
	release chan struct{}
}

func (c *stalledConn) WriteText([]byte) error {
	<-c.release
	return errors.New("write deadline exceeded")
}

func (c *stalledConn) Close() error { return nil }

func (s *DispatcherSuite) TestStalledSessionDoesNotHoldBroadcasts() {
	bus := events.NewBus(s.logger, s.metrics, events.WithWorkers(4), events.WithQueueDepth(256))
	defer bus.Close()
	bus.Subscribe("broadcast", s.dispatcher)

	stalled := &stalledConn{release: make(chan struct{})}
	defer close(stalled.release)
	s.sessions.Add("10.0.0.9:1", stalled)
	_, healthy := s.connect("10.0.0.2:1")

	for i := 0; i < 200; i++ {
		bus.Publish(events.PersonDeletedEvent(fmt.Sprintf("p%d", i), time.Now()))
	}

	s.Eventually(func() bool { return len(healthy.received()) == 200 }, time.Second, 5*time.Millisecond)
	s.Zero(promtest.ToFloat64(s.metrics.EventsDropped.WithLabelValues("broadcast")))
}

type publisherFunc func(events.Event)

func (f publisherFunc) Publish(ev events.Event) { f(ev) }
