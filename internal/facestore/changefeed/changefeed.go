// Package changefeed mirrors catalog change events to a Kafka topic so that
// systems outside the sync socket can follow the catalog.
//
// Records are keyed by person id, which keeps every change to one person on
// one partition and therefore in order. Production is asynchronous and
// best-effort: a failed record is logged and lost.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"facestore/internal/facestore/events"
)

// Producer is the part of *kgo.Client the feed uses.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Feed is an events.Listener that produces one record per change event.
type Feed struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	breaker  *CircuitBreaker
}

// Option configures a Feed.
type Option func(*Feed)

// WithCircuitBreaker replaces the default breaker (5 failures, 30s).
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(f *Feed) {
		if cb != nil {
			f.breaker = cb
		}
	}
}

func New(producer Producer, topic string, logger *slog.Logger, opts ...Option) *Feed {
	f := &Feed{
		producer: producer,
		topic:    topic,
		logger:   logger,
		breaker:  NewCircuitBreaker(defaultBreakerThreshold, defaultBreakerCooldown),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// NewClient connects a producer client for topic.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// HandleEvent produces event as JSON.
func (f *Feed) HandleEvent(ctx context.Context, event events.Event) {
	if !f.breaker.Allow() {
		f.logger.DebugContext(ctx, "change feed circuit open, dropping event",
			"kind", event.Kind.String(),
			"person_id", event.PersonID,
		)
		return
	}
	value, err := json.Marshal(event)
	if err != nil {
		f.logger.ErrorContext(ctx, "encoding change record failed",
			"kind", event.Kind.String(),
			"person_id", event.PersonID,
			"error", err.Error(),
		)
		return
	}
	record := &kgo.Record{
		Topic:     f.topic,
		Key:       []byte(event.PersonID),
		Value:     value,
		Timestamp: event.At,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(event.Kind.String())},
		},
	}
	f.producer.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			f.breaker.RecordFailure()
			f.logger.Warn("producing change record failed",
				"topic", r.Topic,
				"kind", event.Kind.String(),
				"person_id", event.PersonID,
				"error", err.Error(),
			)
			return
		}
		f.breaker.RecordSuccess()
	})
}
