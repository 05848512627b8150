// Package protocol defines the JSON message envelope exchanged with clients
// over the sync socket, and decodes inbound requests.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"facestore/internal/facestore/models"
	"facestore/pkg/platform/sentinel"
)

// Header names.
const (
	HeaderType      = "TYPE_HEADER"
	HeaderToken     = "token"
	HeaderTimestamp = "timestamp"
	HeaderPersonID  = "personId"
	HeaderFaceID    = "faceId"
	HeaderIndex     = "index"
	HeaderSize      = "size"
)

// Heartbeat is sent by clients as a bare text frame and is never decoded.
const Heartbeat = "@heart"

// ClientKind is the type tag of an inbound message.
type ClientKind string

const (
	KindRefresh      ClientKind = "REFRESH"
	KindPerson       ClientKind = "PERSON"
	KindFace         ClientKind = "FACE"
	KindPersonDelete ClientKind = "PERSON_DELETE"
	KindFaceDelete   ClientKind = "FACE_DELETE"
)

// ServerKind is the type tag of an outbound message.
type ServerKind string

const (
	ServerPersonIDList ServerKind = "PERSON_ID_LIST"
	ServerPerson       ServerKind = "PERSON"
	ServerFaceIDList   ServerKind = "FACE_ID_LIST"
	ServerFace         ServerKind = "FACE"
	ServerPersonDelete ServerKind = "PERSON_DELETE"
	ServerFaceDelete   ServerKind = "FACE_DELETE"
	ServerConfirm      ServerKind = "CONFIRM"
)

// Headers carries protocol metadata next to the typed payload.
type Headers map[string]string

// Message is the wire envelope.
type Message[T any] struct {
	Headers Headers `json:"headers"`
	Payload T       `json:"payload"`
}

// Request is a decoded inbound message.
type Request struct {
	Kind     ClientKind
	Token    string
	PersonID string
	FaceID   string
	Person   models.Person
	Face     models.Face
}

// IsHeartbeat reports whether text is the heartbeat sentinel.
func IsHeartbeat(text []byte) bool {
	return string(text) == Heartbeat
}

// Decode parses one inbound text frame. Every failure wraps
// sentinel.ErrInvalidMessage.
func Decode(text []byte) (Request, error) {
	var raw Message[json.RawMessage]
	if err := json.Unmarshal(text, &raw); err != nil {
		return Request{}, fmt.Errorf("%w: malformed envelope: %v", sentinel.ErrInvalidMessage, err)
	}
	kind := ClientKind(raw.Headers[HeaderType])
	req := Request{
		Kind:     kind,
		Token:    raw.Headers[HeaderToken],
		PersonID: raw.Headers[HeaderPersonID],
		FaceID:   raw.Headers[HeaderFaceID],
	}

	switch kind {
	case KindRefresh:
	case KindPerson:
		if err := decodePayload(raw.Payload, &req.Person); err != nil {
			return Request{}, err
		}
		if req.Person.ID == "" {
			return Request{}, fmt.Errorf("%w: person payload without id", sentinel.ErrInvalidMessage)
		}
		req.PersonID = req.Person.ID
	case KindFace:
		if req.PersonID == "" {
			return Request{}, missingHeader(kind, HeaderPersonID)
		}
		if err := decodePayload(raw.Payload, &req.Face); err != nil {
			return Request{}, err
		}
		if req.Face.ID == "" {
			return Request{}, fmt.Errorf("%w: face payload without id", sentinel.ErrInvalidMessage)
		}
		req.FaceID = req.Face.ID
	case KindPersonDelete:
		if req.PersonID == "" {
			return Request{}, missingHeader(kind, HeaderPersonID)
		}
	case KindFaceDelete:
		if req.PersonID == "" {
			return Request{}, missingHeader(kind, HeaderPersonID)
		}
		if req.FaceID == "" {
			return Request{}, missingHeader(kind, HeaderFaceID)
		}
	case "":
		return Request{}, missingHeader(kind, HeaderType)
	default:
		return Request{}, fmt.Errorf("%w: unknown type %q", sentinel.ErrInvalidMessage, string(kind))
	}
	return req, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: missing payload", sentinel.ErrInvalidMessage)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: undecodable payload: %v", sentinel.ErrInvalidMessage, err)
	}
	return nil
}

func missingHeader(kind ClientKind, header string) error {
	if kind == "" {
		return fmt.Errorf("%w: missing %s", sentinel.ErrInvalidMessage, header)
	}
	return fmt.Errorf("%w: %s without %s", sentinel.ErrInvalidMessage, kind, header)
}

// Header is one optional outbound header.
type Header struct {
	Key   string
	Value string
}

// Token echoes a request token. An empty token adds nothing.
func Token(token string) Header { return Header{Key: HeaderToken, Value: token} }

func PersonID(id string) Header { return Header{Key: HeaderPersonID, Value: id} }

func FaceID(id string) Header { return Header{Key: HeaderFaceID, Value: id} }

func Index(i int) Header { return Header{Key: HeaderIndex, Value: strconv.Itoa(i)} }

func Size(n int) Header { return Header{Key: HeaderSize, Value: strconv.Itoa(n)} }

// Encode builds an outbound frame stamped with the type and timestamp headers.
func Encode(kind ServerKind, payload any, at time.Time, headers ...Header) ([]byte, error) {
	msg := Message[any]{
		Headers: Headers{
			HeaderType:      string(kind),
			HeaderTimestamp: FormatTimestamp(at),
		},
		Payload: payload,
	}
	for _, h := range headers {
		if h.Value == "" {
			continue
		}
		msg.Headers[h.Key] = h.Value
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return data, nil
}

// FormatTimestamp renders t as RFC 3339 in UTC with nanosecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
