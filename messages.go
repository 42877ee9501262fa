package main

import "encoding/json"

// Event names, inbound then outbound. Payload shapes live next to the
// code that produces them.
const (
	// from host
	evReady        = "ready"
	evRequestGame  = "request-game"
	evRequestStart = "request-start"
	evRequestEnd   = "request-end"
	evRequestNight = "request-night"
	evRequestDay   = "request-day"
	evKeypress     = "keypress"

	// from host or players
	evResponse = "response"

	// to host
	evPlayerJoined = "player-joined"
	evPlayerLeft   = "player-left"
	evIntroQuiz    = "intro-quiz"
	evIntroRound   = "intro-round"
	evShowQuestion = "show-question"
	evShowAnswer   = "show-answer"
	evUpdateScores = "update-scores"
	evEndQuestion  = "end-question"
	evEndRound     = "end-round"
	evEndQuiz      = "end-quiz"
	evStartTimer   = "start-timer"
	evError        = "error"

	// to players
	evYourIdentity   = "your-identity"
	evRoleAssignment = "role-assignment"

	// to both
	evLoadGame    = "load-game"
	evPrompt      = "request-prompt"
	evNightResult = "night-result"
	evGameOver    = "game-over"
)

// ClientMessage is the inbound wire envelope.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is the outbound wire envelope.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// IdentityPayload answers a join with the participant's own descriptor
// and whatever game the room is currently running.
type IdentityPayload struct {
	Participant *Participant `json:"participant"`
	Game        string       `json:"game"`
}

// PromptPayload is the generic request-prompt body. Type names the
// collection ("question", "wolves", "vote", ...); the rest is per-type.
type PromptPayload struct {
	Type    string      `json:"type"`
	Open    bool        `json:"open,omitempty"`
	Text    string      `json:"text,omitempty"`
	Options []string    `json:"options,omitempty"`
	Items   []string    `json:"items,omitempty"`
	Pairs   [][2]string `json:"pairs,omitempty"`
	Drawing any         `json:"drawing,omitempty"`
	Targets []string    `json:"targets,omitempty"`
	Extra   any         `json:"extra,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}
