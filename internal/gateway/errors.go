package gateway

import (
	"errors"

	"github.com/Hz-Lin/transcendence/internal/store"
	"github.com/Hz-Lin/transcendence/pkg/game"
	"github.com/Hz-Lin/transcendence/pkg/state"
)

var (
	// ErrUnauthorized covers refused moderation actions, muted senders and
	// membership checks that fail. Only the acting connection is notified.
	ErrUnauthorized = errors.New("not allowed")

	// ErrBadPayload is returned when an event payload is missing required
	// fields.
	ErrBadPayload = errors.New("malformed event payload")

	// ErrUnknownEvent is returned for event names the dispatcher does not
	// route.
	ErrUnknownEvent = errors.New("unknown event")
)

// errorCode maps the error taxonomy onto the wire codes carried by the
// outbound error event. Unrecognized errors collapse to a generic failure
// so collaborator internals never leak to clients.
func errorCode(err error) (code, message string) {
	switch {
	case errors.Is(err, ErrBadPayload):
		return "badPayload", "malformed event payload"
	case errors.Is(err, ErrUnknownEvent):
		return "unknownEvent", "unknown event"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized", "not allowed"
	case errors.Is(err, state.ErrNotInChannel), errors.Is(err, store.ErrNoMembership):
		return "notAMember", "not a member of this channel"
	case errors.Is(err, game.ErrDuplicatePending):
		return "duplicatePending", "a game with this user is already outstanding"
	case errors.Is(err, game.ErrRecipientOffline):
		return "recipientOffline", "user is not online"
	case errors.Is(err, game.ErrUnknownSession), errors.Is(err, game.ErrNotPending):
		return "unknownSession", "game session no longer exists"
	default:
		return "internalError", "something went wrong handling the event"
	}
}
