package events

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"facestore/internal/facestore/metrics"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleEvent(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type BusSuite struct {
	suite.Suite
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func TestBusSuite(t *testing.T) {
	suite.Run(t, new(BusSuite))
}

func (s *BusSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.metrics = metrics.New(prometheus.NewRegistry())
}

func (s *BusSuite) TestPerPersonOrderIsPublishOrder() {
	bus := NewBus(s.logger, s.metrics, WithWorkers(4))
	rec := &recorder{}
	bus.Subscribe("rec", rec)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	const n = 200
	for i := 0; i < n; i++ {
		personID := []string{"p1", "p2", "p3"}[i%3]
		bus.Publish(PersonDeletedEvent(personID, base.Add(time.Duration(i)*time.Millisecond)))
	}
	bus.Close()

	got := rec.snapshot()
	s.Len(got, n)
	last := map[string]time.Time{}
	for _, ev := range got {
		s.True(ev.At.After(last[ev.PersonID]), "events for %s out of order", ev.PersonID)
		last[ev.PersonID] = ev.At
	}
}

func (s *BusSuite) TestEveryListenerReceivesEveryEvent() {
	bus := NewBus(s.logger, s.metrics)
	a, b := &recorder{}, &recorder{}
	bus.Subscribe("a", a)
	bus.Subscribe("b", b)

	bus.Publish(FaceDeletedEvent("p1", "f1", time.Now()))
	bus.Publish(PersonDeletedEvent("p2", time.Now()))
	bus.Close()

	s.Len(a.snapshot(), 2)
	s.Len(b.snapshot(), 2)
}

func (s *BusSuite) TestFullLaneDropsInsteadOfBlocking() {
	bus := NewBus(s.logger, s.metrics, WithWorkers(1), WithQueueDepth(1))
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	bus.Subscribe("slow", ListenerFunc(func(context.Context, Event) {
		once.Do(func() { close(started) })
		<-release
	}))

	bus.Publish(PersonDeletedEvent("p1", time.Now()))
	<-started
	bus.Publish(PersonDeletedEvent("p1", time.Now()))

	done := make(chan struct{})
	go func() {
		bus.Publish(PersonDeletedEvent("p1", time.Now()))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("publish blocked on a full lane")
	}

	s.Equal(1.0, promtest.ToFloat64(s.metrics.EventsDropped.WithLabelValues("slow")))
	close(release)
	bus.Close()
}

func (s *BusSuite) TestPanickingListenerIsRecovered() {
	bus := NewBus(s.logger, s.metrics, WithWorkers(1))
	rec := &recorder{}
	bus.Subscribe("boom", ListenerFunc(func(_ context.Context, ev Event) {
		if ev.PersonID == "p1" {
			panic("listener failure")
		}
	}))
	bus.Subscribe("rec", rec)

	bus.Publish(PersonDeletedEvent("p1", time.Now()))
	bus.Publish(PersonDeletedEvent("p2", time.Now()))
	bus.Close()

	s.Len(rec.snapshot(), 2)
}

func (s *BusSuite) TestPublishAfterCloseIsIgnored() {
	bus := NewBus(s.logger, s.metrics)
	rec := &recorder{}
	bus.Subscribe("rec", rec)
	bus.Close()

	s.NotPanics(func() {
		bus.Publish(PersonDeletedEvent("p1", time.Now()))
	})
	s.NotPanics(bus.Close)
	s.Empty(rec.snapshot())
}

func (s *BusSuite) TestKindNames() {
	s.Equal("person_updated", PersonUpdated.String())
	s.Equal("face_deleted", FaceDeleted.String())
	text, err := FaceUpdated.MarshalText()
	s.Require().NoError(err)
	s.Equal("face_updated", string(text))
}
