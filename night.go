// Night game coordinator
//
// A werewolf-style social deduction game. Each night the host walks a
// fixed chain of role abilities: wolves pick a kill, the healer may save,
// the witch may spend her one-shot kill and save, and the seer inspects a
// player. Deaths are the kill set minus the save set. Days resolve by
// plurality vote (vote.go).
//
// Every step follows the same shape: prompt the host, wait for the host's
// acknowledgement, collect a single target from the living players holding
// the role, then wait for the host to close the step. A failed step aborts
// the rest of the chain and leaves the room awaiting the next host action.

package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"sync"
	"sync/atomic"
)

const (
	roleWolf     = "wolf"
	roleHealer   = "healer"
	roleWitch    = "witch"
	roleSeer     = "seer"
	roleVillager = "villager"
)

// nightState carries the chain's accumulated targets, one immutable value
// passed into and returned from each step. Empty string means no target.
type nightState struct {
	wolfKill   string
	healerSave string
	witchKill  string
	witchSave  string
}

type nightGame struct {
	room   *Room
	ctx    context.Context
	cancel context.CancelFunc

	chainMu sync.Mutex

	// started is read on the dispatch goroutine while Start runs on its
	// own, so it needs to be atomic.
	started atomic.Bool
}

func newNightGame(r *Room) GameController {
	ctx, cancel := context.WithCancel(context.Background())
	return &nightGame{
		room:   r,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (n *nightGame) Name() string { return "nightgame" }

func (n *nightGame) CheckRequirements() error {
	if len(n.room.connectedPlayers()) < 4 {
		return errNotEnoughPlayers
	}
	return nil
}

func (n *nightGame) Introduce() {
	n.room.emitToHost(evPrompt, PromptPayload{Type: "configure", Open: true})
}

func (n *nightGame) End() {
	n.cancel()
}

func (n *nightGame) HandleHostEvent(event string, payload json.RawMessage) {
	switch event {
	case evRequestNight:
		if !n.started.Load() {
			logf(n.room.cfg, "NIGHT: Dropped request-night in %s, game not started", n.room.code)
			return
		}
		go n.runNight()

	case evRequestDay:
		if !n.started.Load() {
			logf(n.room.cfg, "NIGHT: Dropped request-day in %s, game not started", n.room.code)
			return
		}
		var req struct {
			Strategy string `json:"strategy"`
		}
		_ = json.Unmarshal(payload, &req)
		go n.runDay(req.Strategy)

	case evReady, evKeypress:
		// Presentation hints from the host display; nothing to coordinate.

	default:
		logf(n.room.cfg, "NIGHT: Dropped host event %q in %s", event, n.room.code)
	}
}

// Start deals roles and waits for the host to call nights and days.
func (n *nightGame) Start(config json.RawMessage) {
	n.assignRoles()
	n.started.Store(true)
	logf(n.room.cfg, "NIGHT: Started in %s", n.room.code)
}

// assignRoles shuffles the roster and deals from a deck sized to it: one
// wolf per four players (minimum one), then healer, witch, and seer while
// players remain, villagers after that. One-shot flags reset with every
// deal, so a room reused for a second game starts clean.
func (n *nightGame) assignRoles() {
	n.room.mu.Lock()

	players := make([]*Participant, len(n.room.players))
	copy(players, n.room.players)

	// Fisher-Yates shuffle using crypto/rand
	for i := len(players) - 1; i > 0; i-- {
		j := randIntn(i + 1)
		players[i], players[j] = players[j], players[i]
	}

	deck := make([]string, 0, len(players))
	for w := 0; w < max(1, len(players)/4); w++ {
		deck = append(deck, roleWolf)
	}
	deck = append(deck, roleHealer, roleWitch, roleSeer)

	for i, p := range players {
		role := roleVillager
		if i < len(deck) {
			role = deck[i]
		}
		p.Role = role
		p.Alive = true
		p.UsedKill = false
		p.UsedSave = false
	}

	roster := make([]rolePayload, 0, len(n.room.players))
	for _, p := range n.room.players {
		roster = append(roster, rolePayload{
			SessionID: p.SessionID,
			Name:      p.Name,
			Role:      p.Role,
		})
		n.sendLocked(p)
	}
	host := n.room.host

	n.room.mu.Unlock()

	if host != nil {
		n.room.emitToHost(evRoleAssignment, roster)
	}
}

// randIntn returns a uniform value in [0, n) for n <= 256, rejecting the
// biased tail of the byte range.
func randIntn(n int) int {
	limit := 256 - 256%n
	var b [1]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		if int(b[0]) < limit {
			return int(b[0]) % n
		}
	}
}

func (n *nightGame) sendLocked(p *Participant) {
	n.room.sendLocked(p, ServerMessage{
		Type:    evRoleAssignment,
		Payload: rolePayload{SessionID: p.SessionID, Name: p.Name, Role: p.Role},
	})
}

type rolePayload struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Role      string `json:"role"`
}

// runNight walks the ability chain. Steps with no living actor are skipped
// entirely; a step error aborts the remainder with only a log line, per
// the room's no-crash rule.
func (n *nightGame) runNight() {
	if !n.chainMu.TryLock() {
		logf(n.room.cfg, "NIGHT: Dropped request-night in %s, a phase is already running", n.room.code)
		return
	}
	defer n.chainMu.Unlock()

	st := nightState{}
	var err error

	steps := []func(nightState) (nightState, error){
		n.wolfStep,
		n.healerStep,
		n.witchKillStep,
		n.witchSaveStep,
		n.seerStep,
	}
	for _, step := range steps {
		if st, err = step(st); err != nil {
			logf(n.room.cfg, "NIGHT: Chain aborted in %s: %v", n.room.code, err)
			return
		}
	}

	n.resolveNight(st)
}

// abilityStep is the shared open/ack/collect/close/ack shape. It returns
// the single collected target, or "" when the step was skipped or the
// actors declined.
func (n *nightGame) abilityStep(actors []*Participant, prompt PromptPayload) (string, error) {
	if len(actors) == 0 {
		return "", nil
	}

	n.room.mu.Lock()
	host := n.room.host
	n.room.mu.Unlock()
	if host == nil {
		return "", errNoHost
	}

	open := prompt
	open.Open = true
	if _, err := n.room.collectOne(n.ctx, host.SessionID, evPrompt, open); err != nil {
		return "", err
	}

	res, err := n.room.collect(n.ctx, sessionIDs(actors), evPrompt, prompt, CollectStrategy{
		EndCondition: func(responses Responses) bool {
			return len(responses) > 0
		},
	})
	if err != nil {
		return "", err
	}

	target := ""
	for _, rec := range res {
		target = asText(rec.Value)
	}
	if target == "skip" {
		target = ""
	}

	closed := prompt
	closed.Open = false
	if _, err := n.room.collectOne(n.ctx, host.SessionID, evPrompt, closed); err != nil {
		return "", err
	}

	return target, nil
}

func (n *nightGame) livingWithRole(role string) []*Participant {
	out := []*Participant{}
	for _, p := range n.room.livingPlayers() {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// wolfStep collects the wolves' kill target through one collector shared
// by every living wolf; the first submitted target stands.
func (n *nightGame) wolfStep(st nightState) (nightState, error) {
	target, err := n.abilityStep(n.livingWithRole(roleWolf), PromptPayload{
		Type:    "wolves",
		Targets: sessionIDs(n.room.livingPlayers()),
	})
	if err != nil {
		return st, err
	}
	out := st
	out.wolfKill = target
	return out, nil
}

func (n *nightGame) healerStep(st nightState) (nightState, error) {
	target, err := n.abilityStep(n.livingWithRole(roleHealer), PromptPayload{
		Type:    "healer",
		Targets: sessionIDs(n.room.livingPlayers()),
	})
	if err != nil {
		return st, err
	}
	out := st
	out.healerSave = target
	return out, nil
}

// witchKillStep and witchSaveStep are one-shot: once a witch spends an
// ability, the step is skipped on later nights.
func (n *nightGame) witchKillStep(st nightState) (nightState, error) {
	witches := []*Participant{}
	for _, p := range n.livingWithRole(roleWitch) {
		if !p.UsedKill {
			witches = append(witches, p)
		}
	}

	target, err := n.abilityStep(witches, PromptPayload{
		Type:    "witch-kill",
		Targets: sessionIDs(n.room.livingPlayers()),
	})
	if err != nil {
		return st, err
	}

	out := st
	if target != "" {
		out.witchKill = target
		n.room.mu.Lock()
		for _, w := range witches {
			w.UsedKill = true
		}
		n.room.mu.Unlock()
	}
	return out, nil
}

// The witch's save prompt includes the wolves' target, so she knows who
// needs rescuing.
func (n *nightGame) witchSaveStep(st nightState) (nightState, error) {
	witches := []*Participant{}
	for _, p := range n.livingWithRole(roleWitch) {
		if !p.UsedSave {
			witches = append(witches, p)
		}
	}

	targets := sessionIDs(n.room.livingPlayers())
	target, err := n.abilityStep(witches, PromptPayload{
		Type:    "witch-save",
		Targets: targets,
		Extra:   st.wolfKill,
	})
	if err != nil {
		return st, err
	}

	out := st
	if target != "" {
		out.witchSave = target
		n.room.mu.Lock()
		for _, w := range witches {
			w.UsedSave = true
		}
		n.room.mu.Unlock()
	}
	return out, nil
}

// seerStep privately tells the seer whether the inspected player runs with
// the wolves.
func (n *nightGame) seerStep(st nightState) (nightState, error) {
	seers := n.livingWithRole(roleSeer)

	target, err := n.abilityStep(seers, PromptPayload{
		Type:    "seer",
		Targets: sessionIDs(n.room.livingPlayers()),
	})
	if err != nil {
		return st, err
	}

	if target != "" {
		n.room.mu.Lock()
		inspected := n.room.participantLocked(target)
		isWolf := inspected != nil && inspected.Role == roleWolf
		n.room.mu.Unlock()

		for _, s := range seers {
			n.room.emitToPlayers([]string{s.SessionID}, evPrompt, PromptPayload{
				Type:    "seer-result",
				Targets: []string{target},
				Extra:   isWolf,
			})
		}
	}

	return st, nil
}

// resolveNight computes (wolfKill ∪ witchKill) − (healerSave ∪ witchSave),
// applies the deaths, and reports them to everyone.
func (n *nightGame) resolveNight(st nightState) {
	kills := map[string]bool{}
	if st.wolfKill != "" {
		kills[st.wolfKill] = true
	}
	if st.witchKill != "" {
		kills[st.witchKill] = true
	}
	delete(kills, st.healerSave)
	delete(kills, st.witchSave)

	deaths := []rolePayload{}

	n.room.mu.Lock()
	for _, p := range n.room.players {
		if p.Alive && kills[p.SessionID] {
			p.Alive = false
			deaths = append(deaths, rolePayload{
				SessionID: p.SessionID,
				Name:      p.Name,
				Role:      p.Role,
			})
		}
	}
	n.room.mu.Unlock()

	payload := nightResultPayload{Phase: "night", Deaths: deaths}
	n.room.emitToHost(evNightResult, payload)
	n.room.emitToAllPlayers(evNightResult, payload)

	logf(n.room.cfg, "NIGHT: Night resolved in %s, %d death(s)", n.room.code, len(deaths))

	n.checkWin()
}

type nightResultPayload struct {
	Phase  string        `json:"phase"`
	Deaths []rolePayload `json:"deaths"`
}

// checkWin reports a finished game: villagers win when no wolf lives,
// wolves win at parity.
func (n *nightGame) checkWin() {
	wolves, others := 0, 0
	for _, p := range n.room.livingPlayers() {
		if p.Role == roleWolf {
			wolves++
		} else {
			others++
		}
	}

	winner := ""
	switch {
	case wolves == 0:
		winner = "villagers"
	case wolves >= others:
		winner = "wolves"
	default:
		return
	}

	payload := map[string]string{"winner": winner}
	n.room.emitToHost(evGameOver, payload)
	n.room.emitToAllPlayers(evGameOver, payload)

	logf(n.room.cfg, "NIGHT: Game over in %s, %s win", n.room.code, winner)
}
