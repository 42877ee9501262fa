package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoom_SingleHost(t *testing.T) {
	r := newTestRoom("TEST")

	join(r, "host-1", "First", true)
	require.NotNil(t, r.host)
	assert.Equal(t, "host-1", r.host.SessionID)

	// A second host connection replaces the first outright.
	join(r, "host-2", "Second", true)
	assert.Equal(t, "host-2", r.host.SessionID)
	assert.Empty(t, r.players)
}

func TestRoom_HostReconnectKeepsIdentity(t *testing.T) {
	r := newTestRoom("TEST")

	c1 := join(r, "host-1", "Host", true)
	first := r.host

	r.removeParticipant(c1.channelID)
	assert.False(t, r.host.Connected)

	join(r, "host-1", "Host", true)
	assert.Same(t, first, r.host)
	assert.True(t, r.host.Connected)
}

func TestRoom_EmitToHostWithoutHost(t *testing.T) {
	r := newTestRoom("TEST")
	join(r, "p1", "Alice", false)

	// Must absorb silently, not panic.
	r.emitToHost(evShowQuestion, nil)
}

func TestRoom_JoinNotifiesHostAndRepliesIdentity(t *testing.T) {
	r := newTestRoom("TEST")
	host := join(r, "host-1", "Host", true)
	awaitEvent(t, host, evYourIdentity)

	p1 := join(r, "p1", "Alice", false)

	joined := awaitEvent(t, host, evPlayerJoined)
	participant, ok := joined.Payload.(*Participant)
	require.True(t, ok)
	assert.Equal(t, "p1", participant.SessionID)

	identity := awaitEvent(t, p1, evYourIdentity)
	payload, ok := identity.Payload.(IdentityPayload)
	require.True(t, ok)
	assert.Equal(t, "lobby", payload.Game)
	assert.Equal(t, "p1", payload.Participant.SessionID)
}

func TestRoom_RemoveBeforeStartDropsPlayer(t *testing.T) {
	r := newTestRoom("TEST")
	host := join(r, "host-1", "Host", true)
	p1 := join(r, "p1", "Alice", false)

	r.removeParticipant(p1.channelID)

	assert.Empty(t, r.players)

	left := awaitEvent(t, host, evPlayerLeft)
	assert.Equal(t, "p1", left.Payload)
}

func TestRoom_RemoveAfterStartKeepsEntry(t *testing.T) {
	r := newTestRoom("TEST")
	host := join(r, "host-1", "Host", true)
	p1 := join(r, "p1", "Alice", false)
	r.started = true

	r.removeParticipant(p1.channelID)

	require.Len(t, r.players, 1)
	assert.False(t, r.players[0].Connected)

	left := awaitEvent(t, host, evPlayerLeft)
	assert.Equal(t, "p1", left.Payload)
}

func TestRoom_ReconnectMidGame(t *testing.T) {
	r := newTestRoom("TEST")
	join(r, "host-1", "Host", true)
	c1 := join(r, "abc", "Alice", false)
	r.started = true
	r.players[0].Score = 7

	oldChannel := c1.channelID
	r.removeParticipant(c1.channelID)
	require.False(t, r.players[0].Connected)

	c2 := join(r, "abc", "Alice", false)

	require.Len(t, r.players, 1)
	p := r.players[0]
	assert.True(t, p.Connected)
	assert.Equal(t, 7, p.Score)
	assert.NotEqual(t, oldChannel, p.channelID())
	assert.Equal(t, c2.channelID, p.channelID())
}

func TestRoom_SlowClientDropNotifiesHost(t *testing.T) {
	r := newTestRoom("TEST")
	host := join(r, "host-1", "Host", true)

	// A one-slot buffer: the identity reply on join fills it, so the next
	// emit overflows and drops the connection.
	slow := &Client{
		send:      make(chan any, 1),
		channelID: uuid.NewString(),
		desc:      Descriptor{SessionID: "p1", Name: "Alice", RoomCode: r.code},
	}
	r.addParticipant(slow)

	r.emitToAllPlayers(evShowQuestion, nil)

	left := awaitEvent(t, host, evPlayerLeft)
	assert.Equal(t, "p1", left.Payload)

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.players, 1)
	assert.False(t, r.players[0].Connected)
}

func TestRoom_LoadUnknownGame(t *testing.T) {
	r := newTestRoom("TEST")
	host := join(r, "host-1", "Host", true)
	join(r, "p1", "Alice", false)

	hostEvent(t, r, host, evRequestGame, map[string]string{"name": "chess"})

	msg := awaitEvent(t, host, evError)
	payload, ok := msg.Payload.(errorPayload)
	require.True(t, ok)
	assert.Contains(t, payload.Message, "no game with that name")
	assert.Nil(t, r.game)
}

func TestRoom_LoadGameBroadcasts(t *testing.T) {
	r := newTestRoom("TEST")
	host := join(r, "host-1", "Host", true)
	p1 := join(r, "p1", "Alice", false)

	hostEvent(t, r, host, evRequestGame, map[string]string{"name": "quiz"})

	assert.Equal(t, "quiz", awaitEvent(t, host, evLoadGame).Payload)
	assert.Equal(t, "quiz", awaitEvent(t, p1, evLoadGame).Payload)
	require.NotNil(t, r.game)
	assert.Equal(t, "quiz", r.game.Name())
}

func TestRoom_PlayerCannotDriveHostEvents(t *testing.T) {
	r := newTestRoom("TEST")
	join(r, "host-1", "Host", true)
	p1 := join(r, "p1", "Alice", false)

	hostEvent(t, r, p1, evRequestGame, map[string]string{"name": "quiz"})

	assert.Nil(t, r.game)
}

func TestRegistry_LazyCreateAndReuse(t *testing.T) {
	reg := newRoomRegistry(0)
	cfg := testConfig()

	r1 := reg.getRoom(cfg, "GOLD")
	r2 := reg.getRoom(cfg, "GOLD")
	assert.Same(t, r1, r2)

	code := reg.newRoomCode()
	assert.Len(t, code, 4)
	assert.NotContains(t, reg.rooms, code)
}
