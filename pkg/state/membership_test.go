package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hz-Lin/transcendence/pkg/state"
)

func connFor(userID int64, name string) *state.Conn {
	conn := newConn()
	conn.Identity = state.Identity{ID: userID, Name: name}
	return conn
}

func connIDs(conns []*state.Conn) []string {
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID.String())
	}
	return ids
}

func TestJoinReturnsPriorMembers(t *testing.T) {
	m := state.NewChannelMembership(newTestLogger())
	first := connFor(10, "alice")
	second := connFor(20, "bob")

	result := m.Join(first, "general")
	assert.Empty(t, result.AlreadyJoined)
	assert.Empty(t, result.Departed)
	assert.Len(t, result.Members, 1)

	result = m.Join(second, "general")
	require.Len(t, result.AlreadyJoined, 1)
	assert.Equal(t, first.ID, result.AlreadyJoined[0].ID)
	assert.Len(t, result.Members, 2)
}

func TestJoinSwitchesChannel(t *testing.T) {
	m := state.NewChannelMembership(newTestLogger())
	mover := connFor(10, "alice")
	stayer := connFor(20, "bob")

	m.Join(stayer, "alpha")
	m.Join(mover, "alpha")

	result := m.Join(mover, "beta")
	assert.Equal(t, "alpha", result.Departed)
	require.Len(t, result.DepartedRemaining, 1)
	assert.Equal(t, stayer.ID, result.DepartedRemaining[0].ID)

	assert.NotContains(t, connIDs(m.MembersOf("alpha")), mover.ID.String())
	assert.Contains(t, connIDs(m.MembersOf("beta")), mover.ID.String())

	active, ok := m.ActiveChannelOf(mover.ID)
	require.True(t, ok)
	assert.Equal(t, "beta", active)
}

func TestRejoinSameChannelIsStable(t *testing.T) {
	m := state.NewChannelMembership(newTestLogger())
	conn := connFor(10, "alice")

	first := m.Join(conn, "general")
	result := m.Join(conn, "general")

	assert.False(t, first.Rejoined)
	assert.True(t, result.Rejoined)
	assert.Empty(t, result.Departed)
	assert.Empty(t, result.AlreadyJoined)
	assert.Len(t, m.MembersOf("general"), 1)
}

func TestLeave(t *testing.T) {
	m := state.NewChannelMembership(newTestLogger())
	leaver := connFor(10, "alice")
	stayer := connFor(20, "bob")

	m.Join(leaver, "general")
	m.Join(stayer, "general")

	remaining, err := m.Leave(leaver, "general")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, stayer.ID, remaining[0].ID)

	_, ok := m.ActiveChannelOf(leaver.ID)
	assert.False(t, ok)
}

func TestLeaveNotInChannel(t *testing.T) {
	m := state.NewChannelMembership(newTestLogger())
	conn := connFor(10, "alice")

	_, err := m.Leave(conn, "general")
	assert.ErrorIs(t, err, state.ErrNotInChannel)

	m.Join(conn, "alpha")
	_, err = m.Leave(conn, "general")
	assert.ErrorIs(t, err, state.ErrNotInChannel)
}

func TestEmptyChannelIsDropped(t *testing.T) {
	m := state.NewChannelMembership(newTestLogger())
	conn := connFor(10, "alice")

	m.Join(conn, "general")
	_, err := m.Leave(conn, "general")
	require.NoError(t, err)
	assert.Empty(t, m.MembersOf("general"))
}

func TestForget(t *testing.T) {
	m := state.NewChannelMembership(newTestLogger())
	conn := connFor(10, "alice")
	other := connFor(20, "bob")

	m.Join(conn, "general")
	m.Join(other, "general")

	channelName, remaining, ok := m.Forget(conn.ID)
	require.True(t, ok)
	assert.Equal(t, "general", channelName)
	assert.Len(t, remaining, 1)

	_, _, ok = m.Forget(conn.ID)
	assert.False(t, ok)
}

func TestDistinctIdentities(t *testing.T) {
	first := connFor(10, "alice")
	second := connFor(10, "alice")
	third := connFor(20, "bob")

	identities := state.DistinctIdentities([]*state.Conn{first, second, third})
	assert.Len(t, identities, 2)
}
