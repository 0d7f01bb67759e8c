package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Hz-Lin/transcendence/internal/metrics"
	"github.com/Hz-Lin/transcendence/internal/store"
	"github.com/Hz-Lin/transcendence/pkg/game"
	"github.com/Hz-Lin/transcendence/pkg/state"
)

// Dispatcher is the orchestration layer: on each inbound event it
// authorizes via the collaborators, mutates the state components, computes
// the exact set of connections that must receive each outbound event, and
// delivers it. One failed event never tears down unrelated state or the
// connection itself.
type Dispatcher struct {
	registry *state.ConnectionRegistry
	channels *state.ChannelMembership
	presence *state.PresenceTracker
	games    *game.Broker
	store    store.Store
	metrics  *metrics.Metrics

	logger *slog.Logger
}

func NewDispatcher(
	registry *state.ConnectionRegistry,
	channels *state.ChannelMembership,
	presence *state.PresenceTracker,
	games *game.Broker,
	st store.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		channels: channels,
		presence: presence,
		games:    games,
		store:    st,
		metrics:  m,
		logger:   logger.With(slog.String("component", "gateway_dispatcher")),
	}
}

// Register binds an authenticated connection to the state components. The
// caller has already verified the identity; a connection that failed
// authentication must never reach this point.
func (d *Dispatcher) Register(ctx context.Context, conn *state.Conn, identity state.Identity) error {
	if err := d.registry.Register(conn, identity); err != nil {
		return err
	}
	d.metrics.ActiveConnections.Inc()

	// The presence tracker serializes edge detection, so concurrent first
	// connections of the same user count the online edge exactly once.
	if changed, online := d.presence.OnConnectionChange(ctx, identity.ID); changed && online {
		d.metrics.OnlineUsers.Inc()
	}
	d.logger.Info("Connection registered",
		slog.String("connID", conn.ID.String()),
		slog.Int64("userID", identity.ID),
	)
	return nil
}

// HandleDisconnect cleans up whatever the connection had claimed. A
// connection that never authenticated has nothing to clean up.
func (d *Dispatcher) HandleDisconnect(ctx context.Context, connID uuid.UUID) {
	conn, ok := d.registry.Get(connID)
	if !ok {
		return
	}

	if channelName, remaining, left := d.channels.Forget(connID); left {
		d.broadcast(remaining, EventUserLeft, conn.Identity)
		d.logger.Debug("Announced departure on disconnect",
			slog.String("connID", connID.String()),
			slog.String("channel", channelName),
		)
	}

	d.registry.Unregister(connID)
	d.metrics.ActiveConnections.Dec()

	// The offline edge fires exactly once per user, so outstanding pairings
	// close once even when several connections drop simultaneously.
	if changed, online := d.presence.OnConnectionChange(ctx, conn.Identity.ID); changed && !online {
		d.metrics.OnlineUsers.Dec()
		for _, session := range d.games.CloseAllFor(conn.Identity.ID) {
			d.notifyUser(session.Opponent(conn.Identity.ID), EventGameDeclined, gameSessionPayload{
				SessionID:    session.ID,
				ChallengerID: session.ChallengerID,
				InviteeID:    session.InviteeID,
			})
		}
	}

	d.logger.Info("Connection cleaned up",
		slog.String("connID", connID.String()),
		slog.Int64("userID", conn.Identity.ID),
	)
}

// HandleMessage decodes one inbound frame and routes it. Satisfies
// transport.MessageHandler; frames from one connection arrive in order.
func (d *Dispatcher) HandleMessage(ctx context.Context, connID uuid.UUID, raw []byte) {
	conn, ok := d.registry.Get(connID)
	if !ok {
		d.logger.Warn("Dropping frame from unregistered connection",
			slog.String("connID", connID.String()))
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.notifyError(conn, "", ErrBadPayload)
		return
	}
	d.metrics.EventsHandled.WithLabelValues(msg.Event).Inc()

	var err error
	switch msg.Event {
	case EventJoinChannel:
		err = d.handleJoinChannel(ctx, conn, msg.Payload)
	case EventLeaveChannel:
		err = d.handleLeaveChannel(ctx, conn, msg.Payload)
	case EventSendMessage:
		err = d.handleSendMessage(ctx, conn, msg.Payload)
	case EventKickUser:
		err = d.handleKickUser(ctx, conn, msg.Payload)
	case EventBanUser:
		err = d.handleBanUser(ctx, conn, msg.Payload)
	case EventMuteUser:
		err = d.handleMuteUser(ctx, conn, msg.Payload)
	case EventGameChallenge:
		err = d.handleGameChallenge(ctx, conn, msg.Payload)
	case EventGameAccept:
		err = d.handleGameAccept(ctx, conn, msg.Payload)
	case EventGameDecline:
		err = d.handleGameDecline(ctx, conn, msg.Payload)
	default:
		err = ErrUnknownEvent
	}

	if err != nil {
		d.metrics.EventErrors.WithLabelValues(msg.Event).Inc()
		d.logger.Warn("Event rejected",
			slog.String("event", msg.Event),
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
		d.notifyError(conn, msg.Event, err)
	}
}

// broadcast delivers one encoded frame to every connection in the set.
func (d *Dispatcher) broadcast(conns []*state.Conn, event string, payload any) {
	if len(conns) == 0 {
		return
	}
	frame := Encode(event, payload)
	for _, c := range conns {
		c.Transport.Send(frame)
	}
}

// unicast delivers to a single connection.
func (d *Dispatcher) unicast(conn *state.Conn, event string, payload any) {
	conn.Transport.Send(Encode(event, payload))
}

// notifyUser delivers to one connection of the user, if any is reachable.
func (d *Dispatcher) notifyUser(userID int64, event string, payload any) {
	conns := d.registry.ConnectionsOf(userID)
	if len(conns) == 0 {
		return
	}
	d.unicast(conns[0], event, payload)
}

// notifyError surfaces a failed event to the acting connection only.
func (d *Dispatcher) notifyError(conn *state.Conn, event string, err error) {
	code, message := errorCode(err)
	d.unicast(conn, EventError, errorPayload{Event: event, Code: code, Message: message})
}
