package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the sync engine: sessions, protocol
// traffic, cache effectiveness and fan-out health.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionsActive    prometheus.Gauge
	MessagesReceived  *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	BroadcastFailures prometheus.Counter
	CacheLookups      *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
}

// New creates the facestore metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "facestore_sessions_active",
			Help: "Number of currently connected protocol sessions",
		}),
		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facestore_messages_received_total",
			Help: "Inbound protocol messages by type",
		}, []string{"type"}),
		MessagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facestore_messages_dropped_total",
			Help: "Inbound protocol messages dropped before dispatch, by reason",
		}, []string{"reason"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "facestore_request_duration_seconds",
			Help:    "Duration of dispatched client requests",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"type", "outcome"}),
		BroadcastFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "facestore_broadcast_send_failures_total",
			Help: "Per-session broadcast write failures and queue overflows",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facestore_cache_lookups_total",
			Help: "Catalog cache lookups by cache name and result",
		}, []string{"cache", "result"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facestore_events_dropped_total",
			Help: "Change events dropped because a listener lane was full",
		}, []string{"listener"}),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) IncrementReceived(msgType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) IncrementDropped(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// ObserveRequest records the duration of a dispatched request.
// Call with time.Now() at the start of the request.
func (m *Metrics) ObserveRequest(msgType string, failed bool, start time.Time) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.RequestDuration.WithLabelValues(msgType, outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementBroadcastFailures() {
	if m == nil {
		return
	}
	m.BroadcastFailures.Inc()
}

func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(cache, "hit").Inc()
}

func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(cache, "miss").Inc()
}

func (m *Metrics) IncrementEventsDropped(listener string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(listener).Inc()
}
