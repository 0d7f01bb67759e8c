package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/Hz-Lin/transcendence/internal/store"
	"github.com/Hz-Lin/transcendence/pkg/state"
)

func (d *Dispatcher) handleJoinChannel(ctx context.Context, conn *state.Conn, payload json.RawMessage) error {
	channelName := gjson.GetBytes(payload, "channelName").String()
	if channelName == "" {
		return fmt.Errorf("%w: missing channelName", ErrBadPayload)
	}

	// Membership authorization is a hard precondition: no row, no join.
	member, err := d.store.Member(ctx, channelName, conn.Identity.ID)
	if err != nil {
		if errors.Is(err, store.ErrNoMembership) {
			return fmt.Errorf("%w: no membership for %q", ErrUnauthorized, channelName)
		}
		return err
	}
	if member.IsBanned {
		return fmt.Errorf("%w: banned from %q", ErrUnauthorized, channelName)
	}

	result := d.channels.Join(conn, channelName)

	// The implicit departure is announced before the join, so observers of
	// both channels see the transition in order.
	if result.Departed != "" {
		d.broadcast(result.DepartedRemaining, EventUserLeft, conn.Identity)
	}

	// Everyone currently in the channel sees the join, including the
	// joiner's own other connections. Rejoining the active channel changes
	// nothing, so nothing is announced.
	if !result.Rejoined {
		d.broadcast(result.Members, EventUserJoined, member)
	}

	// The joiner alone learns who was already here, collapsed to one entry
	// per user.
	d.unicast(conn, EventOtherJoinedMembers, state.DistinctIdentities(result.AlreadyJoined))
	return nil
}

func (d *Dispatcher) handleLeaveChannel(_ context.Context, conn *state.Conn, payload json.RawMessage) error {
	channelName := gjson.GetBytes(payload, "channelName").String()
	if channelName == "" {
		return fmt.Errorf("%w: missing channelName", ErrBadPayload)
	}

	remaining, err := d.channels.Leave(conn, channelName)
	if err != nil {
		return err
	}
	d.broadcast(remaining, EventUserLeft, conn.Identity)
	return nil
}

func (d *Dispatcher) handleSendMessage(ctx context.Context, conn *state.Conn, payload json.RawMessage) error {
	channelName := gjson.GetBytes(payload, "channelName").String()
	text := gjson.GetBytes(payload, "messageText").String()
	if channelName == "" || text == "" {
		return fmt.Errorf("%w: missing channelName or messageText", ErrBadPayload)
	}

	active, ok := d.channels.ActiveChannelOf(conn.ID)
	if !ok || active != channelName {
		return state.ErrNotInChannel
	}

	member, err := d.store.Member(ctx, channelName, conn.Identity.ID)
	if err != nil {
		return err
	}
	if member.IsMuted {
		return fmt.Errorf("%w: muted in %q", ErrUnauthorized, channelName)
	}

	// Persist first; a message that failed to persist is never broadcast.
	message, err := d.store.SaveMessage(ctx, channelName, conn.Identity.ID, text)
	if err != nil {
		return err
	}

	recipients := d.excludeBlocked(ctx, conn.Identity.ID, d.channels.MembersOf(channelName))
	d.broadcast(recipients, EventMessage, message)
	d.metrics.MessagesDelivered.Add(float64(len(recipients)))
	return nil
}

// excludeBlocked drops every connection belonging to a user who has blocked,
// or been blocked by, the sender. A failed block lookup excludes that user
// and is logged; delivery is never attempted on unknown block state.
func (d *Dispatcher) excludeBlocked(ctx context.Context, senderID int64, conns []*state.Conn) []*state.Conn {
	otherIDs := lo.Uniq(lo.FilterMap(conns, func(c *state.Conn, _ int) (int64, bool) {
		return c.Identity.ID, c.Identity.ID != senderID
	}))

	excluded := make(map[int64]bool, len(otherIDs))
	for _, otherID := range otherIDs {
		blocked, err := d.store.IsBlockedEither(ctx, senderID, otherID)
		if err != nil {
			d.logger.Warn("Block lookup failed, excluding user from delivery",
				slog.Int64("senderID", senderID),
				slog.Int64("otherID", otherID),
				slog.Any("error", err),
			)
			blocked = true
		}
		excluded[otherID] = blocked
	}

	return lo.Filter(conns, func(c *state.Conn, _ int) bool {
		return !excluded[c.Identity.ID]
	})
}

func (d *Dispatcher) handleKickUser(ctx context.Context, conn *state.Conn, payload json.RawMessage) error {
	targetID, channelName, err := moderationPayload(payload)
	if err != nil {
		return err
	}
	if err := d.authorizeModeration(ctx, channelName, conn.Identity.ID, targetID); err != nil {
		return err
	}
	d.evictFromChannel(targetID, channelName)
	return nil
}

func (d *Dispatcher) handleBanUser(ctx context.Context, conn *state.Conn, payload json.RawMessage) error {
	targetID, channelName, err := moderationPayload(payload)
	if err != nil {
		return err
	}
	if err := d.authorizeModeration(ctx, channelName, conn.Identity.ID, targetID); err != nil {
		return err
	}
	// The ban record is written before eviction; if persistence fails the
	// target is not touched.
	if err := d.store.BanMember(ctx, channelName, targetID); err != nil {
		return err
	}
	d.evictFromChannel(targetID, channelName)
	return nil
}

func (d *Dispatcher) handleMuteUser(ctx context.Context, conn *state.Conn, payload json.RawMessage) error {
	targetID, channelName, err := moderationPayload(payload)
	if err != nil {
		return err
	}
	if err := d.authorizeModeration(ctx, channelName, conn.Identity.ID, targetID); err != nil {
		return err
	}
	// Mute is enforced at send time, not by evicting connections.
	return d.store.MuteMember(ctx, channelName, targetID)
}

func moderationPayload(payload json.RawMessage) (targetID int64, channelName string, err error) {
	targetID = gjson.GetBytes(payload, "otherUserId").Int()
	channelName = gjson.GetBytes(payload, "channelName").String()
	if targetID == 0 || channelName == "" {
		return 0, "", fmt.Errorf("%w: missing otherUserId or channelName", ErrBadPayload)
	}
	return targetID, channelName, nil
}

// authorizeModeration refuses the action unless the actor holds moderation
// rights over the target. The refusal is surfaced to the actor only; the
// target never learns about it.
func (d *Dispatcher) authorizeModeration(ctx context.Context, channelName string, actorID, targetID int64) error {
	allowed, err := d.store.CanModerate(ctx, channelName, actorID, targetID)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: no moderation rights over user %d in %q", ErrUnauthorized, targetID, channelName)
	}
	return nil
}

// evictFromChannel instructs every connection of the target currently in
// the channel to leave, and removes them from the member set. Connections
// of the target outside this channel are untouched.
func (d *Dispatcher) evictFromChannel(targetID int64, channelName string) {
	targets := lo.Filter(d.channels.MembersOf(channelName), func(c *state.Conn, _ int) bool {
		return c.Identity.ID == targetID
	})
	for _, target := range targets {
		d.unicast(target, EventLeaveChannel, channelPayload{ChannelName: channelName})
		remaining, err := d.channels.Leave(target, channelName)
		if err != nil {
			continue
		}
		d.broadcast(remaining, EventUserLeft, target.Identity)
	}
}

func (d *Dispatcher) handleGameChallenge(_ context.Context, conn *state.Conn, payload json.RawMessage) error {
	inviteeID := gjson.GetBytes(payload, "otherUserId").Int()
	if inviteeID == 0 || inviteeID == conn.Identity.ID {
		return fmt.Errorf("%w: invalid otherUserId", ErrBadPayload)
	}

	session, err := d.games.Challenge(conn.Identity.ID, inviteeID)
	if err != nil {
		return err
	}

	inviteeConn, err := d.games.ResolveInviteeConnection(inviteeID)
	if err != nil {
		// No pairing persists when the invitee is unreachable; a repeat
		// challenge after they connect must succeed.
		d.games.Close(session.ID)
		return err
	}

	d.unicast(conn, EventCreateGame, gameSessionPayload{
		SessionID:    session.ID,
		ChallengerID: session.ChallengerID,
		InviteeID:    session.InviteeID,
	})
	d.unicast(inviteeConn, EventInviteForGame, gameSessionPayload{
		SessionID:    session.ID,
		ChallengerID: session.ChallengerID,
		InviteeID:    session.InviteeID,
		Challenger:   conn.Identity,
	})
	return nil
}

func (d *Dispatcher) handleGameAccept(_ context.Context, conn *state.Conn, payload json.RawMessage) error {
	sessionID, err := sessionPayload(payload)
	if err != nil {
		return err
	}
	session, err := d.games.Session(sessionID)
	if err != nil {
		return err
	}
	if session.InviteeID != conn.Identity.ID {
		return fmt.Errorf("%w: only the invitee may accept", ErrUnauthorized)
	}
	session, err = d.games.Accept(sessionID)
	if err != nil {
		return err
	}

	started := gameSessionPayload{
		SessionID:    session.ID,
		ChallengerID: session.ChallengerID,
		InviteeID:    session.InviteeID,
	}
	d.notifyUser(session.ChallengerID, EventGameStarted, started)
	d.unicast(conn, EventGameStarted, started)
	return nil
}

func (d *Dispatcher) handleGameDecline(_ context.Context, conn *state.Conn, payload json.RawMessage) error {
	sessionID, err := sessionPayload(payload)
	if err != nil {
		return err
	}
	session, err := d.games.Session(sessionID)
	if err != nil {
		return err
	}
	if !session.Involves(conn.Identity.ID) {
		return fmt.Errorf("%w: not a participant", ErrUnauthorized)
	}
	session, ok := d.games.Decline(sessionID)
	if !ok {
		return nil
	}

	d.notifyUser(session.Opponent(conn.Identity.ID), EventGameDeclined, gameSessionPayload{
		SessionID:    session.ID,
		ChallengerID: session.ChallengerID,
		InviteeID:    session.InviteeID,
	})
	return nil
}

func sessionPayload(payload json.RawMessage) (uuid.UUID, error) {
	raw := gjson.GetBytes(payload, "sessionId").String()
	sessionID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid sessionId", ErrBadPayload)
	}
	return sessionID, nil
}
