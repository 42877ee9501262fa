/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"log"
	"time"
)

// Errors the room and game layers return or surface to the host. A collector
// timeout is a normal outcome, not an error, and has no sentinel here.
var (
	errCollectorActive    = errors.New("a response collection is already pending in this room")
	errDefinitionNotFound = errors.New("no quiz definition with that id")
	errGameNotFound       = errors.New("no game with that name")
	errNoHost             = errors.New("no host connected to this room")
	errNotEnoughPlayers   = errors.New("not enough players to start this game")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}
