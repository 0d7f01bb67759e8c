package game

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hz-Lin/transcendence/pkg/state"
)

var (
	// ErrDuplicatePending is returned when a pairing between the same pair
	// of users is already pending or active.
	ErrDuplicatePending = errors.New("a game session between these users is already outstanding")

	// ErrRecipientOffline is returned when the invitee holds no deliverable
	// connection.
	ErrRecipientOffline = errors.New("invitee has no active connection")

	// ErrUnknownSession is returned for session identifiers the broker does
	// not hold, including sessions already closed.
	ErrUnknownSession = errors.New("unknown game session")

	// ErrNotPending is returned when accept is attempted on a session that
	// is no longer pending.
	ErrNotPending = errors.New("game session is not pending")
)

// sessionNamespace seeds the deterministic session identifier derivation.
var sessionNamespace = uuid.MustParse("8a1f7e62-3d6b-4a38-9c41-5f0de1b2a977")

// SessionID derives the identifier for the unordered pair of participants.
// The pair is canonically ordered before hashing, so both orderings of the
// same two users yield the same identifier.
func SessionID(a, b int64) uuid.UUID {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return uuid.NewSHA1(sessionNamespace, []byte(fmt.Sprintf("%d:%d", lo, hi)))
}

// Phase is a pairing's lifecycle state. Closed sessions are removed from the
// broker immediately, so only pending and active appear in the live set.
type Phase int

const (
	Pending Phase = iota
	Active
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Session is one pairing between a challenger and an invitee. Participants
// are identified by user id, not connection handle, since connections may
// churn between challenge and accept.
type Session struct {
	ID           uuid.UUID
	ChallengerID int64
	InviteeID    int64
	Phase        Phase
	CreatedAt    time.Time
}

// Involves reports whether the user is one of the two participants.
func (s *Session) Involves(userID int64) bool {
	return s.ChallengerID == userID || s.InviteeID == userID
}

// Opponent returns the other participant's user id.
func (s *Session) Opponent(userID int64) int64 {
	if s.ChallengerID == userID {
		return s.InviteeID
	}
	return s.ChallengerID
}

// Broker holds pending and active game pairings and orchestrates the
// challenge -> accept handshake. Mutations are serialized under one lock.
type Broker struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session

	registry *state.ConnectionRegistry
	logger   *slog.Logger
}

func NewBroker(registry *state.ConnectionRegistry, logger *slog.Logger) *Broker {
	return &Broker{
		sessions: make(map[uuid.UUID]*Session),
		registry: registry,
		logger:   logger.With(slog.String("component", "game_broker")),
	}
}

// Challenge creates a pending pairing for the unordered pair. A second
// challenge while a pairing is pending or active fails with
// ErrDuplicatePending and never creates a second session identifier.
func (b *Broker) Challenge(challengerID, inviteeID int64) (*Session, error) {
	id := SessionID(challengerID, inviteeID)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.sessions[id]; exists {
		return nil, ErrDuplicatePending
	}
	session := &Session{
		ID:           id,
		ChallengerID: challengerID,
		InviteeID:    inviteeID,
		Phase:        Pending,
		CreatedAt:    time.Now(),
	}
	b.sessions[id] = session

	b.logger.Debug("Game session created",
		slog.String("sessionID", id.String()),
		slog.Int64("challengerID", challengerID),
		slog.Int64("inviteeID", inviteeID),
	)
	return session, nil
}

// ResolveInviteeConnection picks one deliverable connection for the invitee.
// The invite is a logical-user-level notification, so any single connection
// belonging to that user is acceptable.
func (b *Broker) ResolveInviteeConnection(inviteeID int64) (*state.Conn, error) {
	conns := b.registry.ConnectionsOf(inviteeID)
	if len(conns) == 0 {
		return nil, ErrRecipientOffline
	}
	return conns[0], nil
}

// Session looks up a live pairing.
func (b *Broker) Session(id uuid.UUID) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return session, nil
}

// Accept transitions a pending pairing to active. Only valid from pending.
func (b *Broker) Accept(id uuid.UUID) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	if session.Phase != Pending {
		return nil, ErrNotPending
	}
	session.Phase = Active

	b.logger.Debug("Game session accepted", slog.String("sessionID", id.String()))
	return session, nil
}

// Decline closes a pairing from any non-terminal state. Idempotent once
// terminal: declining an already-closed session reports ok=false, no error.
func (b *Broker) Decline(id uuid.UUID) (*Session, bool) {
	return b.close(id, "declined")
}

// Close terminates a pairing from any non-terminal state, idempotently.
func (b *Broker) Close(id uuid.UUID) (*Session, bool) {
	return b.close(id, "closed")
}

func (b *Broker) close(id uuid.UUID, reason string) (*Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.sessions[id]
	if !ok {
		return nil, false
	}
	delete(b.sessions, id)

	b.logger.Debug("Game session removed",
		slog.String("sessionID", id.String()),
		slog.String("reason", reason),
	)
	return session, true
}

// CloseAllFor closes every pairing the user participates in and returns the
// closed sessions. Called when a user's last connection disconnects.
func (b *Broker) CloseAllFor(userID int64) []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	var closed []*Session
	for id, session := range b.sessions {
		if session.Involves(userID) {
			delete(b.sessions, id)
			closed = append(closed, session)
		}
	}
	if len(closed) > 0 {
		b.logger.Debug("Closed game sessions for disconnected user",
			slog.Int64("userID", userID),
			slog.Int("count", len(closed)),
		)
	}
	return closed
}
