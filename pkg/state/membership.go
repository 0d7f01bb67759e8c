package state

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// JoinResult is the snapshot a Join hands back so the caller can announce
// the transition. All slices are taken under the membership lock and stay
// consistent with the mutation they describe.
type JoinResult struct {
	// AlreadyJoined holds the target channel's members as they were before
	// the join, excluding the joining connection itself.
	AlreadyJoined []*Conn
	// Members holds the target channel's members after the join.
	Members []*Conn
	// Departed names the channel the connection implicitly left, or "" if
	// it was not active anywhere. Departure announcements must be emitted
	// before join announcements.
	Departed string
	// DepartedRemaining holds the members left behind in the departed
	// channel after the removal.
	DepartedRemaining []*Conn
	// Rejoined is set when the connection was already active in the target
	// channel, making the join a pure snapshot refresh with no state change.
	Rejoined bool
}

// ChannelMembership maps channel names to the set of connections currently
// joined, plus the reverse pointer. A connection is active in at most one
// channel at any instant; joining a second channel first leaves the first.
// Channels are created lazily and removed when their member set empties.
type ChannelMembership struct {
	mu       sync.Mutex
	channels map[string]map[uuid.UUID]*Conn
	active   map[uuid.UUID]string

	logger *slog.Logger
}

func NewChannelMembership(logger *slog.Logger) *ChannelMembership {
	return &ChannelMembership{
		channels: make(map[string]map[uuid.UUID]*Conn),
		active:   make(map[uuid.UUID]string),
		logger:   logger.With(slog.String("component", "channel_membership")),
	}
}

// Join adds the connection to the channel, implicitly leaving any channel it
// was active in. The whole transition is atomic relative to other mutations.
// Joining the channel the connection is already active in is a no-op apart
// from the returned snapshot.
func (m *ChannelMembership) Join(conn *Conn, channelName string) JoinResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result JoinResult
	if prev, ok := m.active[conn.ID]; ok {
		if prev == channelName {
			result.Rejoined = true
		} else {
			result.Departed = prev
			result.DepartedRemaining = m.removeLocked(conn.ID, prev)
		}
	}

	members, ok := m.channels[channelName]
	if !ok {
		members = make(map[uuid.UUID]*Conn)
		m.channels[channelName] = members
	}
	for id, c := range members {
		if id != conn.ID {
			result.AlreadyJoined = append(result.AlreadyJoined, c)
		}
	}
	members[conn.ID] = conn
	m.active[conn.ID] = channelName
	result.Members = lo.Values(members)

	m.logger.Debug("Connection joined channel",
		slog.String("connID", conn.ID.String()),
		slog.String("channel", channelName),
		slog.String("departed", result.Departed),
	)
	return result
}

// Leave removes the connection from the channel and clears the reverse
// pointer. It returns the remaining members so the caller can announce the
// departure. ErrNotInChannel distinguishes absence from success.
func (m *ChannelMembership) Leave(conn *Conn, channelName string) ([]*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active[conn.ID] != channelName {
		return nil, ErrNotInChannel
	}
	if _, ok := m.channels[channelName][conn.ID]; !ok {
		return nil, ErrNotInChannel
	}
	remaining := m.removeLocked(conn.ID, channelName)

	m.logger.Debug("Connection left channel",
		slog.String("connID", conn.ID.String()),
		slog.String("channel", channelName),
	)
	return remaining, nil
}

// Forget clears whatever channel the connection is active in, if any.
// Used on disconnect, where absence is not an error.
func (m *ChannelMembership) Forget(connID uuid.UUID) (channelName string, remaining []*Conn, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	channelName, ok = m.active[connID]
	if !ok {
		return "", nil, false
	}
	remaining = m.removeLocked(connID, channelName)
	return channelName, remaining, true
}

// MembersOf returns the channel's current member set.
func (m *ChannelMembership) MembersOf(channelName string) []*Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Values(m.channels[channelName])
}

// ActiveChannelOf returns the single channel the connection is joined to.
func (m *ChannelMembership) ActiveChannelOf(connID uuid.UUID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	channelName, ok := m.active[connID]
	return channelName, ok
}

// removeLocked drops the connection from a channel's set, removes the
// channel when empty, and returns the remaining members.
func (m *ChannelMembership) removeLocked(connID uuid.UUID, channelName string) []*Conn {
	members := m.channels[channelName]
	delete(members, connID)
	delete(m.active, connID)
	if len(members) == 0 {
		delete(m.channels, channelName)
		return nil
	}
	return lo.Values(members)
}

// DistinctIdentities collapses multiple connections of the same user to one
// logical entry, as join announcements are user-level.
func DistinctIdentities(conns []*Conn) []Identity {
	identities := lo.Map(conns, func(c *Conn, _ int) Identity { return c.Identity })
	return lo.UniqBy(identities, func(id Identity) int64 { return id.ID })
}
