// Gamenight room broker
//
// One room holds a single host display and any number of players, keyed by a
// short room code. The first connection claiming the host role becomes the
// host; players are identified by a stable session cookie, so a reconnecting
// player re-attaches to their existing entry instead of creating a new one.
//
// The broker owns three primitives the game controllers are built on:
// - emit to the host (a logged no-op when no host is connected)
// - emit to one, some, or all players
// - a single-flight response handler slot, installed by the response
//   collector for the duration of one collection
//
// Game controllers never touch the websocket layer; everything they do goes
// through these primitives.

package main

import (
	"encoding/json"
	"sync"
	"time"
)

type Room struct {
	code string
	cfg  *Config

	mu      sync.Mutex
	host    *Participant
	players []*Participant
	clients map[*Client]struct{}

	game     GameController
	gameName string
	started  bool

	pending *responseHandle

	createdAt  time.Time
	lastActive time.Time
}

func newRoom(cfg *Config, code string) *Room {
	now := time.Now()
	return &Room{
		code:       code,
		cfg:        cfg,
		clients:    make(map[*Client]struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

// sendLocked queues a message for one participant, dropping the connection
// if its buffer is full. Assumes r.mu is held.
func (r *Room) sendLocked(p *Participant, msg ServerMessage) {
	if p == nil || p.client == nil {
		return
	}

	select {
	case p.client.send <- msg:
	default:
		delete(r.clients, p.client)
		close(p.client.send)
		p.client = nil
		p.Connected = false
		logf(r.cfg, "ROOMS: Dropped slow connection of %q in %s", p.Name, r.code)

		// A drop is a departure like any other, so the host hears about
		// it here too, not just on a clean disconnect.
		if p != r.host && r.host != nil {
			r.sendLocked(r.host, ServerMessage{Type: evPlayerLeft, Payload: p.SessionID})
		}
	}
}

// addParticipant registers a connection as host or player. A session ID
// already present in the roster is re-associated in place, never duplicated.
func (r *Room) addParticipant(c *Client) {
	r.mu.Lock()

	r.lastActive = time.Now()
	r.clients[c] = struct{}{}

	var p *Participant

	switch {
	case c.desc.IsHost:
		if r.host != nil && r.host.SessionID == c.desc.SessionID {
			p = r.host
			p.client = c
			p.Connected = true
		} else {
			p = &Participant{
				SessionID: c.desc.SessionID,
				Name:      c.desc.Name,
				IsHost:    true,
				Connected: true,
				client:    c,
			}
			r.host = p
		}

	default:
		for _, existing := range r.players {
			if existing.SessionID == c.desc.SessionID {
				p = existing
				break
			}
		}

		if p != nil {
			p.client = c
			p.Connected = true
		} else {
			p = &Participant{
				SessionID: c.desc.SessionID,
				Name:      c.desc.Name,
				Avatar:    c.desc.Avatar,
				Connected: true,
				Alive:     true,
				client:    c,
			}
			r.players = append(r.players, p)
			logf(r.cfg, "ROOMS: Player %q joined %s", p.Name, r.code)
		}

		if r.host != nil {
			r.sendLocked(r.host, ServerMessage{Type: evPlayerJoined, Payload: p})
		}
	}

	game := r.gameName
	if game == "" {
		game = "lobby"
	}

	r.sendLocked(p, ServerMessage{
		Type:    evYourIdentity,
		Payload: IdentityPayload{Participant: p, Game: game},
	})

	r.mu.Unlock()
}

// removeParticipant handles a closed connection. Before a game has started,
// players are dropped from the roster entirely; once started, they are only
// marked disconnected so indices into score structures stay stable.
func (r *Room) removeParticipant(channelID string) {
	r.mu.Lock()

	r.lastActive = time.Now()

	for c := range r.clients {
		if c.channelID == channelID {
			delete(r.clients, c)
			close(c.send)
			break
		}
	}

	if r.host != nil && r.host.channelID() == channelID {
		r.host.client = nil
		r.host.Connected = false
		r.mu.Unlock()
		return
	}

	var left *Participant

	if r.started {
		for _, p := range r.players {
			if p.channelID() == channelID {
				p.client = nil
				p.Connected = false
				left = p
				break
			}
		}
	} else {
		dst := r.players[:0]
		for _, p := range r.players {
			if p.channelID() == channelID {
				left = p
				continue
			}
			dst = append(dst, p)
		}
		r.players = dst
	}

	if left != nil && r.host != nil {
		r.sendLocked(r.host, ServerMessage{Type: evPlayerLeft, Payload: left.SessionID})
	}

	r.mu.Unlock()
}

func (r *Room) emitToHost(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.host == nil || r.host.client == nil {
		logf(r.cfg, "ROOMS: Dropped %q for %s, no host connected", event, r.code)
		return
	}

	r.sendLocked(r.host, ServerMessage{Type: event, Payload: payload})
}

// emitToPlayers fans a message out to the players with the given session
// IDs. A no-op on an empty recipient set.
func (r *Room) emitToPlayers(ids []string, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.players {
		for _, id := range ids {
			if p.SessionID == id {
				r.sendLocked(p, ServerMessage{Type: event, Payload: payload})
				break
			}
		}
	}
}

func (r *Room) emitToAllPlayers(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.players {
		r.sendLocked(p, ServerMessage{Type: event, Payload: payload})
	}
}

// emitToParticipant reaches a single participant, host included. Used by
// the collector to deliver individualized prompts.
func (r *Room) emitToParticipant(id string, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p := r.participantLocked(id); p != nil {
		r.sendLocked(p, ServerMessage{Type: event, Payload: payload})
	}
}

// participantLocked looks a participant up by session ID, host included.
func (r *Room) participantLocked(id string) *Participant {
	if r.host != nil && r.host.SessionID == id {
		return r.host
	}
	for _, p := range r.players {
		if p.SessionID == id {
			return p
		}
	}
	return nil
}

func (r *Room) broadcastLocked(event string, payload any) {
	if r.host != nil {
		r.sendLocked(r.host, ServerMessage{Type: event, Payload: payload})
	}
	for _, p := range r.players {
		r.sendLocked(p, ServerMessage{Type: event, Payload: payload})
	}
}

// responseHandle is the single pending response handler of a room. Holding
// the only reference to an active registration makes a second concurrent
// collection an error at the registration site instead of a silent
// overwrite.
type responseHandle struct {
	room *Room

	mu       sync.Mutex
	released bool
	fn       func(p *Participant, value any)
}

// registerResponseHandler installs fn as the room's pending handler. It
// fails with errCollectorActive while another handle is still registered.
func (r *Room) registerResponseHandler(fn func(p *Participant, value any)) (*responseHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != nil {
		return nil, errCollectorActive
	}

	h := &responseHandle{room: r, fn: fn}
	r.pending = h

	return h, nil
}

// invoke runs the handler unless the handle has been released. Responses
// that lose the race against release are dropped here.
func (h *responseHandle) invoke(p *Participant, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return
	}

	h.fn(p, value)
}

// release deregisters the handle. After release returns, no further
// handler invocation can observe or record anything.
func (h *responseHandle) release() {
	h.room.mu.Lock()
	if h.room.pending == h {
		h.room.pending = nil
	}
	h.room.mu.Unlock()

	h.mu.Lock()
	h.released = true
	h.mu.Unlock()
}

// dispatch routes one inbound message. Responses go to the pending handler
// if one is installed; everything else is a host-scoped event.
func (r *Room) dispatch(c *Client, msg ClientMessage) {
	r.mu.Lock()
	r.lastActive = time.Now()
	p := r.participantForLocked(c)
	pending := r.pending
	r.mu.Unlock()

	if p == nil {
		return
	}

	switch msg.Type {
	case evResponse:
		if pending == nil {
			logf(r.cfg, "ROOMS: Dropped response from %q in %s, no collection active", p.Name, r.code)
			return
		}
		var value any
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &value); err != nil {
				logf(r.cfg, "ROOMS: Dropped malformed response from %q in %s", p.Name, r.code)
				return
			}
		}
		pending.invoke(p, value)

	case evReady, evRequestGame, evRequestStart, evRequestEnd,
		evRequestNight, evRequestDay, evKeypress:
		if !p.IsHost {
			logf(r.cfg, "ROOMS: Dropped host event %q from player %q in %s", msg.Type, p.Name, r.code)
			return
		}
		r.handleHostEvent(msg)

	default:
		logf(r.cfg, "ROOMS: Dropped unknown event %q in %s", msg.Type, r.code)
	}
}

func (r *Room) participantForLocked(c *Client) *Participant {
	if r.host != nil && r.host.client == c {
		return r.host
	}
	for _, p := range r.players {
		if p.client == c {
			return p
		}
	}
	return nil
}

func (r *Room) handleHostEvent(msg ClientMessage) {
	switch msg.Type {
	case evRequestGame:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			logf(r.cfg, "ROOMS: Dropped malformed request-game in %s", r.code)
			return
		}
		r.loadGame(req.Name)

	case evRequestStart:
		r.mu.Lock()
		g := r.game
		if g != nil {
			r.started = true
		}
		r.mu.Unlock()

		if g == nil {
			logf(r.cfg, "ROOMS: Dropped request-start in %s, no game loaded", r.code)
			return
		}
		go g.Start(msg.Payload)

	case evRequestEnd:
		r.endGame()

	default:
		r.mu.Lock()
		g := r.game
		r.mu.Unlock()

		if g == nil {
			logf(r.cfg, "ROOMS: Dropped %q in %s, no game loaded", msg.Type, r.code)
			return
		}
		g.HandleHostEvent(msg.Type, msg.Payload)
	}
}

// loadGame instantiates a controller by name, validated against the fixed
// factory table. Unknown names are surfaced to the host, not resolved
// dynamically.
func (r *Room) loadGame(name string) {
	factory, ok := gameFactories[name]
	if !ok {
		r.emitToHost(evError, errorPayload{Message: errGameNotFound.Error()})
		return
	}

	r.mu.Lock()
	if r.game != nil {
		r.mu.Unlock()
		logf(r.cfg, "ROOMS: Dropped request-game in %s, a game is already loaded", r.code)
		return
	}
	r.mu.Unlock()

	g := factory(r)

	if err := g.CheckRequirements(); err != nil {
		r.emitToHost(evError, errorPayload{Message: err.Error()})
		return
	}

	r.mu.Lock()
	r.game = g
	r.gameName = name
	r.broadcastLocked(evLoadGame, name)
	r.mu.Unlock()

	logf(r.cfg, "ROOMS: Loaded game %q in %s", name, r.code)

	g.Introduce()
}

func (r *Room) endGame() {
	r.mu.Lock()
	g := r.game
	r.game = nil
	r.gameName = ""
	r.started = false
	r.mu.Unlock()

	if g == nil {
		logf(r.cfg, "ROOMS: Dropped request-end in %s, no game loaded", r.code)
		return
	}

	g.End()

	r.mu.Lock()
	r.broadcastLocked(evLoadGame, "lobby")
	r.mu.Unlock()

	logf(r.cfg, "ROOMS: Ended game in %s", r.code)
}

// connectedPlayersLocked returns the players currently reachable.
func (r *Room) connectedPlayersLocked() []*Participant {
	out := make([]*Participant, 0, len(r.players))
	for _, p := range r.players {
		if p.Connected {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) connectedPlayers() []*Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectedPlayersLocked()
}

func (r *Room) livingPlayers() []*Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Participant, 0, len(r.players))
	for _, p := range r.players {
		if p.Alive {
			out = append(out, p)
		}
	}
	return out
}

// closeAll disconnects every client of this room (used by the reaper).
func (r *Room) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.host != nil {
		r.host.client = nil
		r.host.Connected = false
	}
	for _, p := range r.players {
		p.client = nil
		p.Connected = false
	}

	for c := range r.clients {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		delete(r.clients, c)
	}
}
