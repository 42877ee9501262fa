package main

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// GameDefinition is a quiz document: rounds of type-tagged questions plus
// per-round presentation and scoring cadence.
type GameDefinition struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Rounds []Round `json:"rounds"`
}

type Round struct {
	Title string `json:"title"`

	// Timer is the per-question collection window in seconds; zero means
	// wait for every connected player.
	Timer int `json:"timer"`

	// ShowAnswer and UpdateScores are "question" or "round".
	ShowAnswer   string `json:"showAnswer"`
	UpdateScores string `json:"updateScores"`

	Questions []Question `json:"questions"`
}

type Question struct {
	// Type is one of: text, multiple-choice, true-false, number-exact,
	// number-closest, ordering, matching, hotspot, point-it-out, draw.
	Type string `json:"type"`

	Text    string      `json:"question"`
	Options []string    `json:"options,omitempty"`
	Pairs   [][2]string `json:"pairs,omitempty"`
	Items   []string    `json:"items,omitempty"`
	Answer  any         `json:"answer,omitempty"`
}

//go:embed games/default.json
var defaultDefinition []byte

// loadGameDefinition resolves a quiz document by id, from <games-dir>/<id>.json
// when a games directory is configured, falling back to the embedded default
// for the id "default". Missing ids yield errDefinitionNotFound.
func loadGameDefinition(cfg *Config, id string) (*GameDefinition, error) {
	var data []byte

	switch {
	case cfg.gamesDir != "":
		name := filepath.Join(cfg.gamesDir, filepath.Base(id)+".json")
		b, err := os.ReadFile(name)
		if errors.Is(err, os.ErrNotExist) {
			if id == "default" {
				data = defaultDefinition
				break
			}
			return nil, fmt.Errorf("%w: %q", errDefinitionNotFound, id)
		} else if err != nil {
			return nil, err
		}
		data = b

	case id == "default":
		data = defaultDefinition

	default:
		return nil, fmt.Errorf("%w: %q", errDefinitionNotFound, id)
	}

	def := &GameDefinition{}
	if err := json.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("parsing definition %q: %w", id, err)
	}
	if def.ID == "" {
		def.ID = id
	}

	return def, nil
}
