package main

import "encoding/json"

// GameController is one loadable game. Controllers drive play exclusively
// through the room's emit and collect primitives.
type GameController interface {
	// Name returns the controller's registered name.
	Name() string

	// CheckRequirements reports whether the room can run this game.
	CheckRequirements() error

	// Introduce announces the freshly loaded game to the room.
	Introduce()

	// Start runs the game with the host-supplied config. Blocking; the
	// room invokes it on its own goroutine.
	Start(config json.RawMessage)

	// End stops the game and releases anything it holds.
	End()

	// HandleHostEvent feeds the controller a host action (keypress,
	// request-night, request-day, ready).
	HandleHostEvent(event string, payload json.RawMessage)
}

// gameFactories is the closed set of games a host may request. Lookups go
// through this fixed table only; there is no dynamic resolution from
// client-supplied names.
var gameFactories = map[string]func(r *Room) GameController{
	"quiz":      newQuizGame,
	"nightgame": newNightGame,
}
