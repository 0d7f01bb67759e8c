package state

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ConnectionRegistry is the bidirectional map between connection handles and
// authenticated identities. A user may hold many simultaneous connections;
// a connection maps to exactly one identity once registered. The registry
// owns connection lifecycle state exclusively; no operation performs I/O.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*Conn
	users map[int64]map[uuid.UUID]*Conn

	logger *slog.Logger
}

func NewConnectionRegistry(logger *slog.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:  make(map[uuid.UUID]*Conn),
		users:  make(map[int64]map[uuid.UUID]*Conn),
		logger: logger.With(slog.String("component", "connection_registry")),
	}
}

// Register binds a connection to its authenticated identity. Re-registration
// of a live connection is not permitted; callers must unregister first.
func (r *ConnectionRegistry) Register(conn *Conn, identity Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.ID]; exists {
		return ErrAlreadyRegistered
	}
	conn.Identity = identity
	r.conns[conn.ID] = conn

	userConns, ok := r.users[identity.ID]
	if !ok {
		userConns = make(map[uuid.UUID]*Conn)
		r.users[identity.ID] = userConns
	}
	userConns[conn.ID] = conn

	r.logger.Debug("Connection registered",
		slog.String("connID", conn.ID.String()),
		slog.Int64("userID", identity.ID),
	)
	return nil
}

// Unregister removes the mapping. It is a no-op when the connection is
// absent, to tolerate disconnect races. It returns the removed connection,
// or nil when nothing was removed.
func (r *ConnectionRegistry) Unregister(connID uuid.UUID) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)

	if userConns, ok := r.users[conn.Identity.ID]; ok {
		delete(userConns, connID)
		if len(userConns) == 0 {
			delete(r.users, conn.Identity.ID)
		}
	}

	r.logger.Debug("Connection unregistered",
		slog.String("connID", connID.String()),
		slog.Int64("userID", conn.Identity.ID),
	)
	return conn
}

// IdentityOf resolves the identity bound to a connection handle.
func (r *ConnectionRegistry) IdentityOf(connID uuid.UUID) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	if !ok {
		return Identity{}, ErrNotRegistered
	}
	return conn.Identity, nil
}

// Get returns the registered connection for a handle.
func (r *ConnectionRegistry) Get(connID uuid.UUID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	return conn, ok
}

// ConnectionsOf returns the current, possibly empty, set of connections held
// by a user. Used for presence edges and unicast delivery.
func (r *ConnectionRegistry) ConnectionsOf(userID int64) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userConns := r.users[userID]
	conns := make([]*Conn, 0, len(userConns))
	for _, c := range userConns {
		conns = append(conns, c)
	}
	return conns
}

// ConnectionCount reports how many connections a user currently holds.
func (r *ConnectionRegistry) ConnectionCount(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// OldestConnectionOf returns the longest-lived connection of a user, used by
// the connection limiter's cycle mode.
func (r *ConnectionRegistry) OldestConnectionOf(userID int64) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var oldest *Conn
	for _, c := range r.users[userID] {
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) {
			oldest = c
		}
	}
	return oldest, oldest != nil
}

// All returns every registered connection. Used during graceful shutdown.
func (r *ConnectionRegistry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}
