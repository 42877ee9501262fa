// Channel layer
//
// Everything below the room broker: websocket upgrade, the stable session
// cookie, per-connection pumps, and the per-room QR share code. The core
// never sees a connection before this layer has attached a full descriptor
// (session ID, name, avatar, role, room code) to it.

package main

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const sessionCookieName = "gamenight_id"

func getOrSetSessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// Client is one websocket connection. Tests construct these directly with
// a nil conn and read the send channel instead of running the pumps.
type Client struct {
	conn      *websocket.Conn
	send      chan any
	channelID string
	desc      Descriptor
}

// serveWS joins a connection to the room named in the path. The role is
// taken from the "role" query parameter; anything but "host" is a player.
func serveWS(cfg *Config, reg *RoomRegistry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := strings.ToUpper(ps.ByName("code"))
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		sessionID := getOrSetSessionID(w, r)
		if sessionID == "" {
			http.Error(w, "unable to assign session id", http.StatusInternalServerError)
			return
		}

		query := r.URL.Query()
		desc := Descriptor{
			SessionID: sessionID,
			Name:      query.Get("name"),
			Avatar:    query.Get("avatar"),
			IsHost:    query.Get("role") == "host",
			RoomCode:  code,
		}
		if desc.Name == "" {
			desc.Name = "Anonymous"
		}

		room := reg.getRoom(cfg, code)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:      conn,
			send:      make(chan any, 16),
			channelID: uuid.NewString(),
			desc:      desc,
		}

		room.addParticipant(client)

		go client.writePump()
		client.readPump(cfg, room)
	}
}

func (c *Client) readPump(cfg *Config, room *Room) {
	defer func() {
		room.removeParticipant(c.channelID)
		_ = c.conn.Close()
	}()

	limiter := rate.NewLimiter(rate.Limit(cfg.messageRate), int(cfg.messageRate)*2)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if !limiter.Allow() {
			logf(cfg, "ROOMS: Rate limited %q in %s", c.desc.Name, room.code)
			continue
		}

		room.dispatch(c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// qrHandler generates a PNG QR code linking to the current room.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /room/:code/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// redirectNewRoom handles GET /room by generating a fresh code (with
// server-side collision detection) and redirecting to /room/:code.
func redirectNewRoom(cfg *Config, path string, reg *RoomRegistry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		code := reg.newRoomCode()
		logf(cfg, "ROOMS: Created room %s", code)
		http.Redirect(w, r, path+"/"+code, http.StatusTemporaryRedirect)
	}
}

// registerRooms sets up routes so that:
//   - $path             → redirects to a new random room (4-letter code)
//   - $path/:code       → HTML landing page for that room
//   - $path/:code/ws    → WebSocket for that room
//   - $path/:code/qr    → PNG QR code for that room URL
func registerRooms(cfg *Config, path string, mux *httprouter.Router) {
	reg := newRoomRegistry(cfg.roomTimeout)

	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, cfg.prefix+path, reg))

	mux.GET(cfg.prefix+path+"/:code", serveRoomPage(cfg))

	mux.GET(cfg.prefix+path+"/:code/ws", serveWS(cfg, reg))

	mux.GET(cfg.prefix+path+"/:code/qr", qrHandler)
}
