// Package catalog is the cache-coherent facade in front of the durable store.
//
// Reads are served from the cache when possible and populate it on a miss.
// Writes evict the affected cache entries, write through to the store and, on
// success, publish a change event. Eviction always happens before the store
// call and is never rolled back, so the cache may be emptier than the store
// but never disagrees with it.
//
// Coherence between a read-through miss and a concurrent write is enforced by
// an RW lock: misses load and populate under the read side, writes evict and
// store under the write side. A miss therefore cannot repopulate a key with a
// value loaded before a write that finished after the load started. Hits take
// no lock.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"facestore/internal/facestore/cache"
	"facestore/internal/facestore/events"
	"facestore/internal/facestore/metrics"
	"facestore/internal/facestore/models"
	"facestore/internal/facestore/store"
)

// Catalog implements the read-through, evict-on-write store facade.
type Catalog struct {
	store   store.Store
	cache   cache.Cache
	events  events.Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	coherence sync.RWMutex
	loads     singleflight.Group
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithClock overrides the clock used to stamp published events.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		c.now = now
	}
}

// New wires the facade. A nil publisher discards change events.
func New(st store.Store, c cache.Cache, pub events.Publisher, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Catalog {
	if pub == nil {
		pub = discard{}
	}
	cat := &Catalog{
		store:   st,
		cache:   c,
		events:  pub,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cat)
		}
	}
	return cat
}

// PersonIDs returns every person id in store order. Never nil.
func (c *Catalog) PersonIDs(ctx context.Context) ([]string, error) {
	ids, err := readThrough(ctx, c, cache.PersonIDListKey(), c.store.PersonIDs)
	if err != nil {
		return nil, fmt.Errorf("person ids: %w", err)
	}
	return nonNil(ids), nil
}

// Person returns the person, or ok=false when it does not exist.
func (c *Catalog) Person(ctx context.Context, personID string) (models.Person, bool, error) {
	p, err := readThrough(ctx, c, cache.PersonKey(personID), func(ctx context.Context) (*models.Person, error) {
		person, ok, err := c.store.Person(ctx, personID)
		if err != nil || !ok {
			return nil, err
		}
		return &person, nil
	})
	if err != nil {
		return models.Person{}, false, fmt.Errorf("person %s: %w", personID, err)
	}
	if p == nil {
		return models.Person{}, false, nil
	}
	return *p, true, nil
}

// FaceIDs returns the face ids of a person in store order. Never nil.
func (c *Catalog) FaceIDs(ctx context.Context, personID string) ([]string, error) {
	ids, err := readThrough(ctx, c, cache.FaceIDListKey(personID), func(ctx context.Context) ([]string, error) {
		return c.store.FaceIDs(ctx, personID)
	})
	if err != nil {
		return nil, fmt.Errorf("face ids of %s: %w", personID, err)
	}
	return nonNil(ids), nil
}

// Face returns one face of a person, or ok=false when it does not exist.
func (c *Catalog) Face(ctx context.Context, personID, faceID string) (models.Face, bool, error) {
	f, err := readThrough(ctx, c, cache.FaceKey(personID, faceID), func(ctx context.Context) (*models.Face, error) {
		face, ok, err := c.store.Face(ctx, personID, faceID)
		if err != nil || !ok {
			return nil, err
		}
		return &face, nil
	})
	if err != nil {
		return models.Face{}, false, fmt.Errorf("face %s/%s: %w", personID, faceID, err)
	}
	if f == nil {
		return models.Face{}, false, nil
	}
	return *f, true, nil
}

// SavePerson upserts a person and announces the stored record.
func (c *Catalog) SavePerson(ctx context.Context, person models.Person) (models.Person, error) {
	c.coherence.Lock()
	defer c.coherence.Unlock()

	if err := c.evict(ctx, savePersonEvictions(person.ID)); err != nil {
		return models.Person{}, fmt.Errorf("save person %s: %w", person.ID, err)
	}
	saved, err := c.store.SavePerson(ctx, person)
	if err != nil {
		return models.Person{}, fmt.Errorf("save person %s: %w", person.ID, err)
	}
	c.events.Publish(events.PersonUpdatedEvent(saved, c.now()))
	return saved, nil
}

// SaveFace upserts a face under an existing person and announces the stored
// record.
func (c *Catalog) SaveFace(ctx context.Context, personID string, face models.Face) (models.Face, error) {
	c.coherence.Lock()
	defer c.coherence.Unlock()

	if err := c.evict(ctx, saveFaceEvictions(personID, face.ID)); err != nil {
		return models.Face{}, fmt.Errorf("save face %s/%s: %w", personID, face.ID, err)
	}
	saved, err := c.store.SaveFace(ctx, personID, face)
	if err != nil {
		return models.Face{}, fmt.Errorf("save face %s/%s: %w", personID, face.ID, err)
	}
	c.events.Publish(events.FaceUpdatedEvent(personID, saved, c.now()))
	return saved, nil
}

// DeletePerson removes a person with all of its faces.
func (c *Catalog) DeletePerson(ctx context.Context, personID string) error {
	c.coherence.Lock()
	defer c.coherence.Unlock()

	faceIDs, err := c.store.FaceIDs(ctx, personID)
	if err != nil {
		return fmt.Errorf("delete person %s: list faces: %w", personID, err)
	}
	if err := c.evict(ctx, deletePersonEvictions(personID, faceIDs)); err != nil {
		return fmt.Errorf("delete person %s: %w", personID, err)
	}
	if err := c.store.DeletePerson(ctx, personID); err != nil {
		return fmt.Errorf("delete person %s: %w", personID, err)
	}
	c.events.Publish(events.PersonDeletedEvent(personID, c.now()))
	return nil
}

// DeleteFace removes one face of a person.
func (c *Catalog) DeleteFace(ctx context.Context, personID, faceID string) error {
	c.coherence.Lock()
	defer c.coherence.Unlock()

	if err := c.evict(ctx, deleteFaceEvictions(personID, faceID)); err != nil {
		return fmt.Errorf("delete face %s/%s: %w", personID, faceID, err)
	}
	if err := c.store.DeleteFace(ctx, personID, faceID); err != nil {
		return fmt.Errorf("delete face %s/%s: %w", personID, faceID, err)
	}
	c.events.Publish(events.FaceDeletedEvent(personID, faceID, c.now()))
	return nil
}

// SaveFaceData upserts a person and its faces as one store call. It evicts and
// announces exactly what SavePerson followed by SaveFace per face would.
func (c *Catalog) SaveFaceData(ctx context.Context, data models.FaceData) (models.FaceData, error) {
	c.coherence.Lock()
	defer c.coherence.Unlock()

	personID := data.Person.ID
	faceIDs := make([]string, 0, len(data.Faces))
	for _, face := range data.Faces {
		faceIDs = append(faceIDs, face.ID)
	}
	if err := c.evict(ctx, saveFaceDataEvictions(personID, faceIDs)); err != nil {
		return models.FaceData{}, fmt.Errorf("save face data %s: %w", personID, err)
	}
	saved, err := c.store.SaveFaceData(ctx, data)
	if err != nil {
		return models.FaceData{}, fmt.Errorf("save face data %s: %w", personID, err)
	}
	at := c.now()
	c.events.Publish(events.PersonUpdatedEvent(saved.Person, at))
	for _, face := range saved.Faces {
		c.events.Publish(events.FaceUpdatedEvent(saved.Person.ID, face, at))
	}
	return saved, nil
}

func (c *Catalog) evict(ctx context.Context, keys []cache.Key) error {
	if err := c.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("evict cache: %w", err)
	}
	return nil
}

// readThrough serves key from the cache or loads, encodes and caches it.
// Concurrent misses on one key share a single load. Every caller decodes its
// own copy, so callers never alias each other's slices.
func readThrough[T any](ctx context.Context, c *Catalog, key cache.Key, load func(context.Context) (T, error)) (T, error) {
	var zero T
	name := key.Kind.String()

	if raw, ok := c.lookup(ctx, key); ok {
		var value T
		if err := json.Unmarshal(raw, &value); err == nil {
			c.metrics.RecordCacheHit(name)
			return value, nil
		}
		c.logger.Warn("discarding undecodable cache entry", "key", key.String())
	}
	c.metrics.RecordCacheMiss(name)

	c.coherence.RLock()
	defer c.coherence.RUnlock()

	shared, err, _ := c.loads.Do(key.String(), func() (any, error) {
		if raw, ok := c.lookup(ctx, key); ok {
			return raw, nil
		}
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		if err := c.cache.Set(ctx, key, raw); err != nil {
			c.logger.Warn("cache populate failed", "key", key.String(), "error", err.Error())
		}
		return raw, nil
	})
	if err != nil {
		return zero, err
	}

	var value T
	if err := json.Unmarshal(shared.([]byte), &value); err != nil {
		return zero, fmt.Errorf("decode %s: %w", key, err)
	}
	return value, nil
}

// lookup treats cache failures as misses; the store stays authoritative.
func (c *Catalog) lookup(ctx context.Context, key cache.Key) ([]byte, bool) {
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache lookup failed", "key", key.String(), "error", err.Error())
		return nil, false
	}
	return raw, ok
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

type discard struct{}

func (discard) Publish(events.Event) {}
