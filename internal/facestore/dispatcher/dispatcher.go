// Package dispatcher runs the sync protocol: it decodes client requests,
// executes them against the catalog, replies to the requesting session and
// turns catalog change events into broadcasts to every session.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"facestore/internal/facestore/events"
	"facestore/internal/facestore/health"
	"facestore/internal/facestore/metrics"
	"facestore/internal/facestore/models"
	"facestore/internal/facestore/protocol"
	"facestore/internal/facestore/session"
)

const tracerName = "facestore/dispatcher"

// Catalog is the subset of the store facade the protocol needs.
type Catalog interface {
	PersonIDs(ctx context.Context) ([]string, error)
	Person(ctx context.Context, personID string) (models.Person, bool, error)
	FaceIDs(ctx context.Context, personID string) ([]string, error)
	Face(ctx context.Context, personID, faceID string) (models.Face, bool, error)
	SavePerson(ctx context.Context, person models.Person) (models.Person, error)
	SaveFace(ctx context.Context, personID string, face models.Face) (models.Face, error)
	DeletePerson(ctx context.Context, personID string) error
	DeleteFace(ctx context.Context, personID, faceID string) error
}

// Broadcaster delivers a frame to every connected session.
type Broadcaster interface {
	Publish(ctx context.Context, data []byte) int
}

// Recorder receives one entry per completed client request.
type Recorder interface {
	RecordClientMessage(msg health.ClientMessage)
}

// Dispatcher handles inbound frames for all sessions. It is safe for
// concurrent use; each connection calls Handle from its own goroutine.
type Dispatcher struct {
	catalog  Catalog
	sessions Broadcaster
	recorder Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the clock used for timestamps and request timing.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithTracer overrides the tracer; the global provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

// New creates a dispatcher. recorder may be nil.
func New(cat Catalog, sessions Broadcaster, recorder Recorder, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog:  cat,
		sessions: sessions,
		recorder: recorder,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Handle processes one inbound text frame from sess. Heartbeats are ignored.
// Malformed frames are logged and dropped without a reply. A failed request
// gets no CONFIRM.
func (d *Dispatcher) Handle(ctx context.Context, sess *session.Session, text []byte) {
	if protocol.IsHeartbeat(text) {
		return
	}
	req, err := protocol.Decode(text)
	if err != nil {
		d.metrics.IncrementDropped("invalid_message")
		d.logger.WarnContext(ctx, "dropping undecodable message",
			"session_id", sess.ID,
			"remote_addr", sess.RemoteAddr,
			"error", err.Error(),
		)
		return
	}

	kind := string(req.Kind)
	d.metrics.IncrementReceived(kind)
	start := d.now()

	ctx, span := d.tracer.Start(ctx, "facestore.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("facestore.type", kind),
			attribute.String("facestore.token", req.Token),
			attribute.String("facestore.session_id", sess.ID),
		),
	)
	err = d.dispatch(ctx, sess, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.ErrorContext(ctx, "request failed",
			"session_id", sess.ID,
			"remote_addr", sess.RemoteAddr,
			"type", kind,
			"token", req.Token,
			"error", err.Error(),
		)
	}
	span.End()

	end := d.now()
	d.metrics.ObserveRequest(kind, err != nil, start)
	if d.recorder != nil {
		d.recorder.RecordClientMessage(health.ClientMessage{
			Address:   sess.RemoteAddr,
			Type:      kind,
			Token:     req.Token,
			StartTime: start,
			EndTime:   end,
			Failed:    err != nil,
		})
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, sess *session.Session, req protocol.Request) error {
	switch req.Kind {
	case protocol.KindRefresh:
		return d.refresh(ctx, sess, req.Token)
	case protocol.KindPerson:
		if _, err := d.catalog.SavePerson(ctx, req.Person); err != nil {
			return err
		}
	case protocol.KindFace:
		if _, err := d.catalog.SaveFace(ctx, req.PersonID, req.Face); err != nil {
			return err
		}
	case protocol.KindPersonDelete:
		if err := d.catalog.DeletePerson(ctx, req.PersonID); err != nil {
			return err
		}
	case protocol.KindFaceDelete:
		if err := d.catalog.DeleteFace(ctx, req.PersonID, req.FaceID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unhandled request type %s", req.Kind)
	}
	return d.reply(sess, protocol.ServerConfirm, "", protocol.Token(req.Token))
}

// refresh streams the whole catalog to sess: the person id list, then per
// person its record, its face id list and each face, then a CONFIRM. Every
// frame carries the request token.
func (d *Dispatcher) refresh(ctx context.Context, sess *session.Session, token string) error {
	tok := protocol.Token(token)

	personIDs, err := d.catalog.PersonIDs(ctx)
	if err != nil {
		return err
	}
	if err := d.reply(sess, protocol.ServerPersonIDList, personIDs, tok); err != nil {
		return err
	}

	for i, personID := range personIDs {
		person, ok, err := d.catalog.Person(ctx, personID)
		if err != nil {
			return err
		}
		if err := d.reply(sess, protocol.ServerPerson, optional(person, ok), tok,
			protocol.Index(i), protocol.Size(len(personIDs))); err != nil {
			return err
		}

		faceIDs, err := d.catalog.FaceIDs(ctx, personID)
		if err != nil {
			return err
		}
		if err := d.reply(sess, protocol.ServerFaceIDList, faceIDs, tok, protocol.PersonID(personID)); err != nil {
			return err
		}
		for j, faceID := range faceIDs {
			face, ok, err := d.catalog.Face(ctx, personID, faceID)
			if err != nil {
				return err
			}
			if err := d.reply(sess, protocol.ServerFace, optional(face, ok), tok,
				protocol.PersonID(personID), protocol.Index(j), protocol.Size(len(faceIDs))); err != nil {
				return err
			}
		}
	}
	return d.reply(sess, protocol.ServerConfirm, "", tok)
}

func (d *Dispatcher) reply(sess *session.Session, kind protocol.ServerKind, payload any, headers ...protocol.Header) error {
	data, err := protocol.Encode(kind, payload, d.now(), headers...)
	if err != nil {
		return err
	}
	if err := sess.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}

// HandleEvent broadcasts a catalog change to every session. Notifications
// carry no token.
func (d *Dispatcher) HandleEvent(ctx context.Context, event events.Event) {
	data, err := d.notification(event)
	if err != nil {
		d.logger.ErrorContext(ctx, "encoding change notification failed",
			"kind", event.Kind.String(),
			"person_id", event.PersonID,
			"error", err.Error(),
		)
		return
	}
	if failed := d.sessions.Publish(ctx, data); failed > 0 {
		d.logger.WarnContext(ctx, "change notification not delivered to all sessions",
			"kind", event.Kind.String(),
			"person_id", event.PersonID,
			"failed", failed,
		)
	}
}

var errUnknownEvent = errors.New("unknown event kind")

func (d *Dispatcher) notification(event events.Event) ([]byte, error) {
	at := d.now()
	switch event.Kind {
	case events.PersonUpdated:
		return protocol.Encode(protocol.ServerPerson, event.Person, at)
	case events.FaceUpdated:
		return protocol.Encode(protocol.ServerFace, event.Face, at, protocol.PersonID(event.PersonID))
	case events.PersonDeleted:
		return protocol.Encode(protocol.ServerPersonDelete, "", at, protocol.PersonID(event.PersonID))
	case events.FaceDeleted:
		return protocol.Encode(protocol.ServerFaceDelete, "", at,
			protocol.PersonID(event.PersonID), protocol.FaceID(event.FaceID))
	default:
		return nil, fmt.Errorf("%w: %d", errUnknownEvent, event.Kind)
	}
}

// optional encodes an absent record as JSON null. A record removed between
// listing and fetching keeps its slot so index and size stay consistent.
func optional[T any](v T, ok bool) any {
	if !ok {
		return nil
	}
	return v
}
