package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"facestore/internal/facestore/models"
	"facestore/pkg/platform/sentinel"
)

// InMemoryStore implements Store with process-local maps. Insertion order is
// tracked explicitly so id lists are stable across calls.
type InMemoryStore struct {
	mu      sync.RWMutex
	persons map[string]*personEntry
	order   []string
	now     func() time.Time
}

type personEntry struct {
	person    models.Person
	faces     map[string]models.Face
	faceOrder []string
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithClock overrides the clock used for record timestamps.
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

// NewInMemory creates an empty in-memory store.
func NewInMemory(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		persons: make(map[string]*personEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *InMemoryStore) PersonIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneIDs(s.order), nil
}

func (s *InMemoryStore) Person(_ context.Context, personID string) (models.Person, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.persons[personID]
	if !ok {
		return models.Person{}, false, nil
	}
	return entry.person, true, nil
}

func (s *InMemoryStore) SavePerson(_ context.Context, person models.Person) (models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savePersonLocked(person), nil
}

func (s *InMemoryStore) savePersonLocked(person models.Person) models.Person {
	now := s.now()
	entry, ok := s.persons[person.ID]
	if !ok {
		person.CreatedAt = now
		person.UpdatedAt = now
		s.persons[person.ID] = &personEntry{person: person, faces: make(map[string]models.Face)}
		s.order = append(s.order, person.ID)
		return person
	}
	if entry.person.SameContent(person) {
		return entry.person
	}
	person.CreatedAt = entry.person.CreatedAt
	person.UpdatedAt = now
	entry.person = person
	return person
}

func (s *InMemoryStore) DeletePerson(_ context.Context, personID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.persons[personID]; !ok {
		return nil
	}
	delete(s.persons, personID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == personID })
	return nil
}

func (s *InMemoryStore) FaceIDs(_ context.Context, personID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.persons[personID]
	if !ok {
		return []string{}, nil
	}
	return cloneIDs(entry.faceOrder), nil
}

func (s *InMemoryStore) Face(_ context.Context, personID, faceID string) (models.Face, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.persons[personID]
	if !ok {
		return models.Face{}, false, nil
	}
	face, ok := entry.faces[faceID]
	return face, ok, nil
}

func (s *InMemoryStore) SaveFace(_ context.Context, personID string, face models.Face) (models.Face, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveFaceLocked(personID, face)
}

func (s *InMemoryStore) saveFaceLocked(personID string, face models.Face) (models.Face, error) {
	entry, ok := s.persons[personID]
	if !ok {
		return models.Face{}, fmt.Errorf("save face %s: person %s: %w", face.ID, personID, sentinel.ErrNotFound)
	}
	now := s.now()
	existing, ok := entry.faces[face.ID]
	switch {
	case !ok:
		face.CreatedAt = now
		face.UpdatedAt = now
		entry.faceOrder = append(entry.faceOrder, face.ID)
	case existing.SameContent(face):
		return existing, nil
	default:
		face.CreatedAt = existing.CreatedAt
		face.UpdatedAt = now
	}
	entry.faces[face.ID] = face
	return face, nil
}

func (s *InMemoryStore) DeleteFace(_ context.Context, personID, faceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.persons[personID]
	if !ok {
		return nil
	}
	if _, ok := entry.faces[faceID]; !ok {
		return nil
	}
	delete(entry.faces, faceID)
	entry.faceOrder = slices.DeleteFunc(entry.faceOrder, func(id string) bool { return id == faceID })
	return nil
}

func (s *InMemoryStore) SaveFaceData(_ context.Context, data models.FaceData) (models.FaceData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := models.FaceData{
		Person: s.savePersonLocked(data.Person),
		Faces:  make([]models.Face, 0, len(data.Faces)),
	}
	for _, face := range data.Faces {
		f, err := s.saveFaceLocked(data.Person.ID, face)
		if err != nil {
			return models.FaceData{}, err
		}
		saved.Faces = append(saved.Faces, f)
	}
	return saved, nil
}

// cloneIDs copies ids into a non-nil slice.
func cloneIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
