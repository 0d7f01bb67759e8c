package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoMembership is returned when the user holds no membership row for
	// the channel.
	ErrNoMembership = errors.New("user is not a member of this channel")

	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Role is a member's standing inside a channel.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Member is a user's membership record for one channel, including the
// display attributes announcements carry.
type Member struct {
	UserID   int64  `json:"intraId"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Role     Role   `json:"role"`
	IsBanned bool   `json:"-"`
	IsMuted  bool   `json:"-"`
}

// Message is the canonical stored record of a channel message, including
// the server timestamp. Only this record is ever broadcast.
type Message struct {
	ID          int64     `json:"id"`
	ChannelName string    `json:"channelName"`
	UserID      int64     `json:"intraId"`
	Name        string    `json:"name"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sentAt"`
}

// Store is the narrow interface through which the presence/session core
// reaches the relational collaborator. Implementations must be safe for
// concurrent use.
type Store interface {
	// Member returns the membership record for a user in a channel, or
	// ErrNoMembership.
	Member(ctx context.Context, channelName string, userID int64) (Member, error)

	// CanModerate reports whether the actor holds moderation rights over
	// the target inside the channel.
	CanModerate(ctx context.Context, channelName string, actorID, targetID int64) (bool, error)

	// SaveMessage persists a channel message and returns the canonical
	// record with the server timestamp assigned.
	SaveMessage(ctx context.Context, channelName string, userID int64, text string) (Message, error)

	// IsBlockedEither reports whether either user has blocked the other.
	IsBlockedEither(ctx context.Context, a, b int64) (bool, error)

	// BanMember marks the target banned from the channel.
	BanMember(ctx context.Context, channelName string, userID int64) error

	// MuteMember marks the target muted in the channel. Enforcement happens
	// at send time, not by evicting connections.
	MuteMember(ctx context.Context, channelName string, userID int64) error

	// SetActivityStatus flips the persisted ONLINE/OFFLINE projection.
	SetActivityStatus(ctx context.Context, userID int64, online bool) error
}
