package store

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"

	"facestore/internal/facestore/models"
)

// Store is the durable source of truth for persons and their faces. Record
// timestamps are assigned here: CreatedAt on first save, UpdatedAt whenever the
// client-visible content changes. Saving identical content is a no-op that
// returns the already stored record.
//
// Reads of an absent record return ok=false with a nil error. Id lists are
// ordered by creation and never nil.
type Store interface {
	PersonIDs(ctx context.Context) ([]string, error)
	Person(ctx context.Context, personID string) (models.Person, bool, error)
	SavePerson(ctx context.Context, person models.Person) (models.Person, error)
	// DeletePerson removes the person and all of its faces. Deleting an
	// unknown person is not an error.
	DeletePerson(ctx context.Context, personID string) error

	FaceIDs(ctx context.Context, personID string) ([]string, error)
	Face(ctx context.Context, personID, faceID string) (models.Face, bool, error)
	// SaveFace returns an error wrapping sentinel.ErrNotFound when the owning
	// person does not exist.
	SaveFace(ctx context.Context, personID string, face models.Face) (models.Face, error)
	DeleteFace(ctx context.Context, personID, faceID string) error

	// SaveFaceData saves the person and then each face as one unit.
	SaveFaceData(ctx context.Context, data models.FaceData) (models.FaceData, error)
}
