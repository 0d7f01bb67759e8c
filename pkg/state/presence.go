package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"
)

// StatusWriter is the external collaborator persisting the ONLINE/OFFLINE
// projection of the derived presence state.
type StatusWriter interface {
	SetActivityStatus(ctx context.Context, userID int64, online bool) error
}

// PresenceTracker derives online/offline transitions from registry
// population changes. A user is online iff at least one connection maps to
// them; the persisted flag is flipped only on genuine 0<->1 edges, never on
// every connect/disconnect of a multi-device user.
type PresenceTracker struct {
	registry *ConnectionRegistry
	store    StatusWriter

	mu     sync.Mutex
	online map[int64]struct{}

	logger *slog.Logger
}

func NewPresenceTracker(registry *ConnectionRegistry, store StatusWriter, logger *slog.Logger) *PresenceTracker {
	return &PresenceTracker{
		registry: registry,
		store:    store,
		online:   make(map[int64]struct{}),
		logger:   logger.With(slog.String("component", "presence_tracker")),
	}
}

// OnConnectionChange is called after every register/unregister for the user.
// It reports whether the derived presence flipped, and the new state. The
// edge is detected under the tracker's own lock, so concurrent calls for the
// same user observe it exactly once. The persisted flag is a best-effort
// projection: a failing write is logged and retried briefly, but never rolls
// back the in-memory truth.
func (t *PresenceTracker) OnConnectionChange(ctx context.Context, userID int64) (changed, online bool) {
	derived := t.registry.ConnectionCount(userID) > 0

	t.mu.Lock()
	_, wasOnline := t.online[userID]
	if derived == wasOnline {
		t.mu.Unlock()
		return false, derived
	}
	if derived {
		t.online[userID] = struct{}{}
	} else {
		delete(t.online, userID)
	}
	t.mu.Unlock()

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	err := backoff.Retry(func() error {
		return t.store.SetActivityStatus(ctx, userID, derived)
	}, policy)
	if err != nil {
		t.logger.Warn("Failed to persist activity status",
			slog.Int64("userID", userID),
			slog.Bool("online", derived),
			slog.Any("error", err),
		)
		return true, derived
	}
	t.logger.Debug("Activity status persisted",
		slog.Int64("userID", userID),
		slog.Bool("online", derived),
	)
	return true, derived
}

// Online reports the derived presence of a user.
func (t *PresenceTracker) Online(userID int64) bool {
	return t.registry.ConnectionCount(userID) > 0
}
