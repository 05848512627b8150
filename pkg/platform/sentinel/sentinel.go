package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, caches and the protocol
// layer return these (optionally wrapped) so callers can branch with errors.Is.
//
//   - ErrNotFound: a referenced record does not exist (e.g. a face saved under
//     an unknown person). Plain reads of an absent record are not errors.
//   - ErrUnavailable: a backing service (database, cache) could not be reached
//   - ErrInvalidMessage: an inbound protocol message could not be decoded
var (
	ErrNotFound       = errors.New("not found")
	ErrUnavailable    = errors.New("unavailable")
	ErrInvalidMessage = errors.New("invalid message")
)
