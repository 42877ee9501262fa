package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		messageRate: 16,
		port:        8080,
	}
}

func newTestRoom(code string) *Room {
	return newRoom(testConfig(), code)
}

// join attaches a fake connection: no socket, no pumps, just a buffered
// send channel the test reads directly.
func join(r *Room, sessionID, name string, isHost bool) *Client {
	c := &Client{
		send:      make(chan any, 64),
		channelID: uuid.NewString(),
		desc: Descriptor{
			SessionID: sessionID,
			Name:      name,
			IsHost:    isHost,
			RoomCode:  r.code,
		},
	}
	r.addParticipant(c)
	return c
}

// awaitEvent reads from a client's send channel until a message of the
// given type arrives, discarding everything else.
func awaitEvent(t *testing.T, c *Client, event string) ServerMessage {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case raw, ok := <-c.send:
			require.True(t, ok, "send channel closed while waiting for %q", event)
			msg, ok := raw.(ServerMessage)
			require.True(t, ok, "unexpected message type %T", raw)
			if msg.Type == event {
				return msg
			}
		case <-deadline:
			require.FailNowf(t, "timed out", "no %q message arrived", event)
		}
	}
}

// respond submits a response payload on behalf of a client.
func respond(t *testing.T, r *Room, c *Client, value any) {
	t.Helper()

	data, err := json.Marshal(value)
	require.NoError(t, err)
	r.dispatch(c, ClientMessage{Type: evResponse, Payload: data})
}

// press sends a host keypress.
func press(t *testing.T, r *Room, host *Client, key string) {
	t.Helper()

	data, err := json.Marshal(map[string]string{"key": key})
	require.NoError(t, err)
	r.dispatch(host, ClientMessage{Type: evKeypress, Payload: data})
}

func hostEvent(t *testing.T, r *Room, host *Client, event string, payload any) {
	t.Helper()

	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		data = b
	}
	r.dispatch(host, ClientMessage{Type: event, Payload: data})
}
