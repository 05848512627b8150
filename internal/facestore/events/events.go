// Package events carries catalog change notifications from the store facade to
// its listeners. Delivery is asynchronous: Publish only enqueues, so the
// mutating request path never waits on a slow listener.
package events

import (
	"context"
	"time"

	"facestore/internal/facestore/models"
)

// Kind tags a change event.
type Kind uint8

const (
	PersonUpdated Kind = iota + 1
	FaceUpdated
	PersonDeleted
	FaceDeleted
)

func (k Kind) String() string {
	switch k {
	case PersonUpdated:
		return "person_updated"
	case FaceUpdated:
		return "face_updated"
	case PersonDeleted:
		return "person_deleted"
	case FaceDeleted:
		return "face_deleted"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name so serialized events stay readable.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event describes one completed catalog mutation. Person is set for
// PersonUpdated, Face for FaceUpdated; deletes only carry ids.
type Event struct {
	Kind     Kind           `json:"kind"`
	PersonID string         `json:"personId"`
	FaceID   string         `json:"faceId,omitempty"`
	Person   *models.Person `json:"person,omitempty"`
	Face     *models.Face   `json:"face,omitempty"`
	At       time.Time      `json:"at"`
}

func PersonUpdatedEvent(person models.Person, at time.Time) Event {
	return Event{Kind: PersonUpdated, PersonID: person.ID, Person: &person, At: at}
}

func FaceUpdatedEvent(personID string, face models.Face, at time.Time) Event {
	return Event{Kind: FaceUpdated, PersonID: personID, FaceID: face.ID, Face: &face, At: at}
}

func PersonDeletedEvent(personID string, at time.Time) Event {
	return Event{Kind: PersonDeleted, PersonID: personID, At: at}
}

func FaceDeletedEvent(personID, faceID string, at time.Time) Event {
	return Event{Kind: FaceDeleted, PersonID: personID, FaceID: faceID, At: at}
}

// Listener receives change events. Implementations must be safe for
// concurrent use: events for different persons may arrive in parallel.
type Listener interface {
	HandleEvent(ctx context.Context, event Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, event Event)

func (f ListenerFunc) HandleEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

// Publisher accepts events for fan-out.
type Publisher interface {
	Publish(event Event)
}
