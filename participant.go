package main

// Participant is one member of a room. The session ID is stable across
// reconnects; the channel ID changes with every websocket connection.
type Participant struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar,omitempty"`
	IsHost    bool   `json:"isHost"`
	Connected bool   `json:"connected"`
	Score     int    `json:"score"`

	// Night game state. One-shot ability flags are reset whenever a new
	// night game controller is built for the room.
	Alive    bool   `json:"-"`
	Role     string `json:"-"`
	UsedKill bool   `json:"-"`
	UsedSave bool   `json:"-"`

	client *Client
}

func (p *Participant) channelID() string {
	if p.client == nil {
		return ""
	}
	return p.client.channelID
}

func sessionIDs(participants []*Participant) []string {
	out := make([]string, 0, len(participants))
	for _, p := range participants {
		out = append(out, p.SessionID)
	}
	return out
}

// Descriptor is what the identity layer hands the core for every
// connection, before the core sees any traffic on it.
type Descriptor struct {
	SessionID string
	Name      string
	Avatar    string
	IsHost    bool
	RoomCode  string
}
