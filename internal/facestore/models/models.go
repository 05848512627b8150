// Package models holds the catalog records exchanged between the store, the
// cache facade and the wire protocol.
package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Person is one identity in the catalog. Timestamps are owned by the store.
type Person struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createTime"`
	UpdatedAt time.Time `json:"updateTime"`
}

// SameContent reports whether p and other carry the same client-visible
// fields, ignoring store timestamps.
func (p Person) SameContent(other Person) bool {
	return p.ID == other.ID && p.Name == other.Name
}

// Face is a biometric sample belonging to exactly one Person. Data and Version
// are opaque to the server and stored verbatim.
type Face struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Picture   string          `json:"pic,omitempty"`
	Version   json.RawMessage `json:"version,omitempty"`
	CreatedAt time.Time       `json:"createTime"`
	UpdatedAt time.Time       `json:"updateTime"`
}

// SameContent reports whether f and other carry the same client-visible
// fields, ignoring store timestamps.
func (f Face) SameContent(other Face) bool {
	return f.ID == other.ID &&
		f.Picture == other.Picture &&
		bytes.Equal(f.Data, other.Data) &&
		bytes.Equal(f.Version, other.Version)
}

// FaceData is a person together with its complete set of faces, used for bulk
// upserts.
type FaceData struct {
	Person Person `json:"person"`
	Faces  []Face `json:"faces"`
}
