package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"facestore/internal/facestore/models"
	"facestore/pkg/platform/sentinel"
	"facestore/pkg/platform/tx"
)

// foreignKeyViolation is the SQLSTATE raised when a face references a missing person.
const foreignKeyViolation = "23503"

// Schema creates the tables PostgresStore reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS persons (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS faces (
	person_id  TEXT NOT NULL REFERENCES persons (id) ON DELETE CASCADE,
	id         TEXT NOT NULL,
	data       JSONB,
	pic        TEXT NOT NULL DEFAULT '',
	version    JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (person_id, id)
);
`

// PostgresStore persists persons and faces in PostgreSQL.
// Timestamps only move forward when the stored content actually changes.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate facestore schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) PersonIDs(ctx context.Context) ([]string, error) {
	ids, err := s.queryIDs(ctx, `SELECT id FROM persons ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list person ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Person(ctx context.Context, personID string) (models.Person, bool, error) {
	query := `SELECT id, name, created_at, updated_at FROM persons WHERE id = $1`
	var p models.Person
	err := tx.Q(ctx, s.db).QueryRowContext(ctx, query, personID).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Person{}, false, nil
	}
	if err != nil {
		return models.Person{}, false, fmt.Errorf("get person: %w", err)
	}
	return p, true, nil
}

func (s *PostgresStore) SavePerson(ctx context.Context, person models.Person) (models.Person, error) {
	query := `
		INSERT INTO persons (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = CASE
				WHEN persons.name IS DISTINCT FROM EXCLUDED.name THEN EXCLUDED.updated_at
				ELSE persons.updated_at
			END
		RETURNING id, name, created_at, updated_at
	`
	var p models.Person
	err := tx.Q(ctx, s.db).QueryRowContext(ctx, query, person.ID, person.Name, s.now()).
		Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return models.Person{}, fmt.Errorf("save person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) DeletePerson(ctx context.Context, personID string) error {
	_, err := tx.Q(ctx, s.db).ExecContext(ctx, `DELETE FROM persons WHERE id = $1`, personID)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	return nil
}

func (s *PostgresStore) FaceIDs(ctx context.Context, personID string) ([]string, error) {
	ids, err := s.queryIDs(ctx, `SELECT id FROM faces WHERE person_id = $1 ORDER BY created_at, id`, personID)
	if err != nil {
		return nil, fmt.Errorf("list face ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Face(ctx context.Context, personID, faceID string) (models.Face, bool, error) {
	query := `
		SELECT id, data, pic, version, created_at, updated_at
		FROM faces
		WHERE person_id = $1 AND id = $2
	`
	f, err := scanFace(tx.Q(ctx, s.db).QueryRowContext(ctx, query, personID, faceID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Face{}, false, nil
	}
	if err != nil {
		return models.Face{}, false, fmt.Errorf("get face: %w", err)
	}
	return f, true, nil
}

func (s *PostgresStore) SaveFace(ctx context.Context, personID string, face models.Face) (models.Face, error) {
	query := `
		INSERT INTO faces (person_id, id, data, pic, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (person_id, id) DO UPDATE SET
			data = EXCLUDED.data,
			pic = EXCLUDED.pic,
			version = EXCLUDED.version,
			updated_at = CASE
				WHEN (faces.data, faces.pic, faces.version) IS DISTINCT FROM (EXCLUDED.data, EXCLUDED.pic, EXCLUDED.version)
				THEN EXCLUDED.updated_at
				ELSE faces.updated_at
			END
		RETURNING id, data, pic, version, created_at, updated_at
	`
	f, err := scanFace(tx.Q(ctx, s.db).QueryRowContext(ctx, query,
		personID,
		face.ID,
		nullableJSON(face.Data),
		face.Picture,
		nullableJSON(face.Version),
		s.now(),
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return models.Face{}, fmt.Errorf("save face %s: person %s: %w", face.ID, personID, sentinel.ErrNotFound)
		}
		return models.Face{}, fmt.Errorf("save face: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) DeleteFace(ctx context.Context, personID, faceID string) error {
	_, err := tx.Q(ctx, s.db).ExecContext(ctx, `DELETE FROM faces WHERE person_id = $1 AND id = $2`, personID, faceID)
	if err != nil {
		return fmt.Errorf("delete face: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveFaceData(ctx context.Context, data models.FaceData) (models.FaceData, error) {
	var saved models.FaceData
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		person, err := s.SavePerson(ctx, data.Person)
		if err != nil {
			return err
		}
		saved = models.FaceData{Person: person, Faces: make([]models.Face, 0, len(data.Faces))}
		for _, face := range data.Faces {
			f, err := s.SaveFace(ctx, person.ID, face)
			if err != nil {
				return err
			}
			saved.Faces = append(saved.Faces, f)
		}
		return nil
	})
	if err != nil {
		return models.FaceData{}, fmt.Errorf("save face data: %w", err)
	}
	return saved, nil
}

// Health checks database connectivity.
func (s *PostgresStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := tx.Q(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanFace(row *sql.Row) (models.Face, error) {
	var (
		f       models.Face
		data    []byte
		version []byte
	)
	if err := row.Scan(&f.ID, &data, &f.Picture, &version, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return models.Face{}, err
	}
	if len(data) > 0 {
		f.Data = json.RawMessage(data)
	}
	if len(version) > 0 {
		f.Version = json.RawMessage(version)
	}
	return f, nil
}

// nullableJSON maps an empty raw message to SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
