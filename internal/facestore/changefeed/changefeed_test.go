package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"facestore/internal/facestore/events"
	"facestore/internal/facestore/models"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	p.mu.Lock()
	p.records = append(p.records, r)
	err := p.err
	p.mu.Unlock()
	promise(r, err)
}

func (p *fakeProducer) produced() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordIsKeyedByPerson(t *testing.T) {
	producer := &fakeProducer{}
	feed := New(producer, "facestore.changes", discardLogger())
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	feed.HandleEvent(context.Background(), events.FaceUpdatedEvent("p1", models.Face{ID: "f1", Picture: "cGlj"}, at))

	require.Equal(t, 1, producer.produced())
	r := producer.records[0]
	assert.Equal(t, "facestore.changes", r.Topic)
	assert.Equal(t, "p1", string(r.Key))
	assert.Equal(t, at, r.Timestamp)
	require.Len(t, r.Headers, 1)
	assert.Equal(t, "kind", r.Headers[0].Key)
	assert.Equal(t, "face_updated", string(r.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(r.Value, &decoded))
	assert.Equal(t, "face_updated", decoded["kind"])
	assert.Equal(t, "p1", decoded["personId"])
}

func TestFailuresOpenTheCircuit(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker unreachable")}
	feed := New(producer, "t", discardLogger(), WithCircuitBreaker(NewCircuitBreaker(2, time.Hour)))

	for i := 0; i < 5; i++ {
		feed.HandleEvent(context.Background(), events.PersonDeletedEvent("p1", time.Now()))
	}

	assert.Equal(t, 2, producer.produced())
	assert.True(t, feed.breaker.IsOpen())
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(3, time.Minute)
	cb.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow(), "trial allowed after cooldown")
	assert.False(t, cb.IsOpen())

	cb.RecordFailure()
	assert.True(t, cb.IsOpen(), "a failed trial reopens at once")
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	require.True(t, cb.Allow())
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.False(t, cb.IsOpen(), "success resets the failure count")
}

func TestCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(0, 0)
	assert.Equal(t, 5, cb.threshold)
	assert.Equal(t, 30*time.Second, cb.cooldown)
}

func TestFeedInstallsDefaultBreaker(t *testing.T) {
	feed := New(nil, "t", discardLogger())
	assert.Equal(t, NewCircuitBreaker(0, 0).threshold, feed.breaker.threshold)
	assert.Equal(t, NewCircuitBreaker(0, 0).cooldown, feed.breaker.cooldown)
}
