package main

import (
	"crypto/rand"
	"sync"
	"time"
)

// RoomRegistry maps short room codes to rooms, creating one lazily on
// first connection and evicting rooms that sit idle past the configured
// timeout.
type RoomRegistry struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	idleTimeout time.Duration
}

func newRoomRegistry(idleTimeout time.Duration) *RoomRegistry {
	reg := &RoomRegistry{
		rooms:       make(map[string]*Room),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go reg.reaperLoop()
	}
	return reg
}

func (reg *RoomRegistry) getRoom(cfg *Config, code string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if room, ok := reg.rooms[code]; ok {
		return room
	}

	room := newRoom(cfg, code)
	reg.rooms[code] = room
	return room
}

// newRoomCode generates a crypto-random room code and ensures it doesn't
// collide with existing rooms.
func (reg *RoomRegistry) newRoomCode() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	for {
		buf := make([]byte, 4)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 4)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		code := string(out)

		reg.mu.Lock()
		_, exists := reg.rooms[code]
		reg.mu.Unlock()

		if !exists {
			return code
		}
	}
}

// reaperLoop periodically removes rooms that have been idle longer than
// idleTimeout.
func (reg *RoomRegistry) reaperLoop() {
	ticker := time.NewTicker(reg.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-reg.idleTimeout)

		reg.mu.Lock()
		for code, room := range reg.rooms {
			room.mu.Lock()
			last := room.lastActive
			room.mu.Unlock()

			if last.Before(cutoff) {
				delete(reg.rooms, code)
				go room.closeAll()
			}
		}
		reg.mu.Unlock()
	}
}
