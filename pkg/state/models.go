package state

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the authenticated user behind a connection, resolved once at
// connect time. It is immutable for the connection's lifetime; a rename
// mid-session only becomes visible through storage-layer queries.
type Identity struct {
	ID     int64  `json:"intraId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Sender delivers encoded frames to one live connection. Implemented by
// pkg/transport; tests substitute a recorder.
type Sender interface {
	Send(message []byte)
	Close(err error)
}

// Conn is the registry's view of a single transport-layer connection. The
// handle is stable for the connection's lifetime and never reused.
type Conn struct {
	ID        uuid.UUID
	Transport Sender
	Identity  Identity
	CreatedAt time.Time
}
