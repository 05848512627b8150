// Package cache holds the key space and storage backends for the catalog's
// read-through cache. Values are opaque encoded bytes so every backend returns
// an independent copy that callers cannot mutate in place.
package cache

import (
	"context"
	"strings"
)

// Kind names one of the cached catalog queries.
type Kind uint8

const (
	KindPersonIDList Kind = iota + 1
	KindPerson
	KindFaceIDList
	KindFace
)

func (k Kind) String() string {
	switch k {
	case KindPersonIDList:
		return "personIdList"
	case KindPerson:
		return "person"
	case KindFaceIDList:
		return "faceIdList"
	case KindFace:
		return "face"
	default:
		return "unknown"
	}
}

// Key identifies one cached query result.
type Key struct {
	Kind     Kind
	PersonID string
	FaceID   string
}

func PersonIDListKey() Key {
	return Key{Kind: KindPersonIDList}
}

func PersonKey(personID string) Key {
	return Key{Kind: KindPerson, PersonID: personID}
}

func FaceIDListKey(personID string) Key {
	return Key{Kind: KindFaceIDList, PersonID: personID}
}

func FaceKey(personID, faceID string) Key {
	return Key{Kind: KindFace, PersonID: personID, FaceID: faceID}
}

var idEscaper = strings.NewReplacer(`\`, `\\`, `,`, `\,`)

// String renders the key as personIdList, person:<id>, faceIdList:<personId>
// or face:<personId>,<faceId>. Separators inside ids are escaped so distinct
// keys never collide.
func (k Key) String() string {
	switch k.Kind {
	case KindPersonIDList:
		return k.Kind.String()
	case KindPerson, KindFaceIDList:
		return k.Kind.String() + ":" + idEscaper.Replace(k.PersonID)
	case KindFace:
		return k.Kind.String() + ":" + idEscaper.Replace(k.PersonID) + "," + idEscaper.Replace(k.FaceID)
	default:
		return "unknown"
	}
}

// Cache stores encoded query results. Get reports a miss with ok=false and a
// nil error. Delete of an absent key is not an error.
type Cache interface {
	Get(ctx context.Context, key Key) (value []byte, ok bool, err error)
	Set(ctx context.Context, key Key, value []byte) error
	Delete(ctx context.Context, keys ...Key) error
}
