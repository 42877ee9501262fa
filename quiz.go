// Quiz coordinator
//
// A deterministic state machine over rounds and questions. The host drives
// navigation one keypress at a time; between pauses the machine advances on
// its own. Rounds configured with showAnswer "round" get a second pass over
// their questions in answer mode before moving on.

package main

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

type quizState int

const (
	stateInit quizState = iota
	stateIntroQuiz
	stateNextRound
	statePreviousRound
	stateIntroRound
	stateNextQuestion
	statePreviousQuestion
	stateQuestion
	stateCollectAnswers
	stateShowAnswer
	stateUpdateScores
	stateEndQuestion
	stateEndRound
	stateEndQuiz
)

const (
	keyNext     = "ArrowRight"
	keyPrevious = "ArrowLeft"
)

const modeAsk, modeAnswer = "ask", "answer"

type quizGame struct {
	room   *Room
	ctx    context.Context
	cancel context.CancelFunc
	keys   chan string

	def       *GameDefinition
	mode      string
	round     int
	question  int
	collected map[questionKey]Responses
}

func newQuizGame(r *Room) GameController {
	ctx, cancel := context.WithCancel(context.Background())
	return &quizGame{
		room:      r,
		ctx:       ctx,
		cancel:    cancel,
		keys:      make(chan string, 8),
		collected: make(map[questionKey]Responses),
	}
}

func (q *quizGame) Name() string { return "quiz" }

func (q *quizGame) CheckRequirements() error {
	if len(q.room.connectedPlayers()) < 1 {
		return errNotEnoughPlayers
	}
	return nil
}

func (q *quizGame) Introduce() {
	q.room.emitToHost(evPrompt, PromptPayload{Type: "configure", Open: true})
}

func (q *quizGame) End() {
	q.cancel()
}

func (q *quizGame) HandleHostEvent(event string, payload json.RawMessage) {
	switch event {
	case evKeypress:
		var req struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return
		}
		select {
		case q.keys <- req.Key:
		default:
			logf(q.room.cfg, "QUIZ: Dropped keypress %q in %s, buffer full", req.Key, q.room.code)
		}

	case evReady:
		// The host display announcing it has rendered; nothing to do.

	default:
		logf(q.room.cfg, "QUIZ: Dropped host event %q in %s", event, q.room.code)
	}
}

// Start loads the requested definition and runs the machine to completion.
func (q *quizGame) Start(config json.RawMessage) {
	var req struct {
		Game string `json:"game"`
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &req); err != nil {
			q.room.emitToHost(evError, errorPayload{Message: "malformed start config"})
			return
		}
	}
	if req.Game == "" {
		req.Game = "default"
	}

	def, err := loadGameDefinition(q.room.cfg, req.Game)
	if err != nil {
		q.room.emitToHost(evError, errorPayload{Message: err.Error()})
		return
	}
	q.def = def

	logf(q.room.cfg, "QUIZ: Starting %q in %s", def.ID, q.room.code)

	st := stateInit
	for st != stateEndQuiz {
		next, err := q.step(st)
		if err != nil {
			logf(q.room.cfg, "QUIZ: Halted in %s: %v", q.room.code, err)
			return
		}
		st = next
	}
	_, _ = q.step(stateEndQuiz)
}

func (q *quizGame) currentRound() *Round {
	return &q.def.Rounds[q.round]
}

// step performs one transition. Pause states block on the next host
// keypress; ArrowLeft rewinds, ArrowRight advances.
func (q *quizGame) step(st quizState) (quizState, error) {
	switch st {
	case stateInit:
		q.mode = modeAsk
		q.round = -1
		q.question = -1
		return stateIntroQuiz, nil

	case stateIntroQuiz:
		q.mode = modeAsk
		q.round = -1
		q.question = -1
		q.room.emitToHost(evIntroQuiz, quizIntroPayload{
			Title:  q.def.Title,
			Rounds: len(q.def.Rounds),
		})
		key, err := q.awaitKey()
		if err != nil {
			return st, err
		}
		if key == keyPrevious {
			return stateIntroQuiz, nil
		}
		return stateNextRound, nil

	case stateNextRound:
		q.mode = modeAsk
		q.round++
		q.question = -1
		if q.round < len(q.def.Rounds) {
			return stateIntroRound, nil
		}
		return stateEndQuiz, nil

	case statePreviousRound:
		q.round--
		if q.round < 0 {
			return stateIntroQuiz, nil
		}
		q.question = len(q.currentRound().Questions) - 1
		return stateQuestion, nil

	case stateIntroRound:
		round := q.currentRound()
		q.room.emitToHost(evIntroRound, roundIntroPayload{
			Title:     round.Title,
			Index:     q.round,
			Questions: len(round.Questions),
		})
		key, err := q.awaitKey()
		if err != nil {
			return st, err
		}
		if key == keyPrevious {
			return statePreviousRound, nil
		}
		return stateNextQuestion, nil

	case stateNextQuestion:
		q.question++
		if q.question < len(q.currentRound().Questions) {
			return stateQuestion, nil
		}
		return stateEndRound, nil

	case statePreviousQuestion:
		q.question--
		if q.question >= 0 {
			return stateQuestion, nil
		}
		return statePreviousRound, nil

	case stateQuestion:
		question := &q.currentRound().Questions[q.question]
		q.room.emitToHost(evShowQuestion, questionPayload{
			Round:    q.round,
			Question: q.question,
			Type:     question.Type,
			Text:     question.Text,
			Options:  question.Options,
			Items:    question.Items,
			Pairs:    question.Pairs,
		})
		if q.mode == modeAsk {
			return stateCollectAnswers, nil
		}
		return stateShowAnswer, nil

	case stateCollectAnswers:
		if err := q.collectAnswers(); err != nil {
			return st, err
		}
		return stateEndQuestion, nil

	case stateEndQuestion:
		q.room.emitToHost(evEndQuestion, nil)
		q.room.emitToAllPlayers(evEndQuestion, nil)
		if q.currentRound().ShowAnswer == "question" {
			return stateShowAnswer, nil
		}
		return stateNextQuestion, nil

	case stateShowAnswer:
		question := &q.currentRound().Questions[q.question]
		q.room.emitToHost(evShowAnswer, answerPayload{
			Round:    q.round,
			Question: q.question,
			Answer:   question.Answer,
		})
		key, err := q.awaitKey()
		if err != nil {
			return st, err
		}
		if key == keyPrevious {
			return statePreviousQuestion, nil
		}
		if q.currentRound().UpdateScores == "question" {
			return stateUpdateScores, nil
		}
		return stateNextQuestion, nil

	case stateUpdateScores:
		q.applyScores()
		key, err := q.awaitKey()
		if err != nil {
			return st, err
		}
		if key == keyPrevious {
			return statePreviousQuestion, nil
		}
		if q.currentRound().UpdateScores == "question" {
			return stateNextQuestion, nil
		}
		return stateNextRound, nil

	case stateEndRound:
		round := q.currentRound()

		// Rounds that reveal answers at the end get a full second pass
		// over their questions in answer mode.
		if q.mode == modeAsk && round.ShowAnswer == "round" {
			q.mode = modeAnswer
			q.question = -1
			return stateNextQuestion, nil
		}

		q.room.emitToHost(evEndRound, roundIntroPayload{
			Title:     round.Title,
			Index:     q.round,
			Questions: len(round.Questions),
		})
		key, err := q.awaitKey()
		if err != nil {
			return st, err
		}
		if key == keyPrevious {
			return statePreviousQuestion, nil
		}
		if round.UpdateScores == "round" {
			return stateUpdateScores, nil
		}
		return stateNextRound, nil

	case stateEndQuiz:
		totals := scoreUpTo(q.def, q.collected, len(q.def.Rounds)-1, 1<<30)
		summary := q.scoreboard(totals)
		q.room.emitToHost(evEndQuiz, summary)
		q.room.emitToAllPlayers(evEndQuiz, summary)
		logf(q.room.cfg, "QUIZ: Finished %q in %s", q.def.ID, q.room.code)
		return stateEndQuiz, nil
	}

	return st, nil
}

func (q *quizGame) awaitKey() (string, error) {
	for {
		select {
		case key := <-q.keys:
			if key == keyNext || key == keyPrevious {
				return key, nil
			}
			// other keys are presentation hints for the host display
		case <-q.ctx.Done():
			return "", q.ctx.Err()
		}
	}
}

// collectAnswers runs the response collection for the current question,
// bounded by the round timer when one is set. Draw questions are followed
// by a peer-grading pass.
func (q *quizGame) collectAnswers() error {
	round := q.currentRound()
	question := &round.Questions[q.question]

	players := q.room.connectedPlayers()
	ids := sessionIDs(players)

	key := questionKey{round: q.round, question: q.question}

	if len(ids) == 0 {
		q.collected[key] = make(Responses)
		return nil
	}

	timeout := time.Duration(round.Timer) * time.Second
	if timeout > 0 {
		q.room.emitToHost(evStartTimer, round.Timer)
	}

	res, err := q.room.collect(q.ctx, ids, evPrompt, PromptPayload{
		Type:    "question",
		Text:    question.Text,
		Options: question.Options,
		Items:   question.Items,
		Pairs:   question.Pairs,
	}, CollectStrategy{
		EndCondition: func(responses Responses) bool {
			return len(responses) >= len(ids)
		},
		Timeout: timeout,
	})
	if err != nil {
		return err
	}

	if question.Type == "draw" {
		if err := q.peerGrade(res, timeout); err != nil {
			return err
		}
	}

	q.collected[key] = res
	return nil
}

// peerGrade hands each responder the next responder's drawing, by
// submission order, and writes the returned grade onto that record. With a
// single responder this grades their own drawing.
func (q *quizGame) peerGrade(res Responses, timeout time.Duration) error {
	ids := make([]string, 0, len(res))
	for id := range res {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Slice(ids, func(i, j int) bool {
		return res[ids[i]].Order < res[ids[j]].Order
	})

	target := make(map[string]string, len(ids))
	for i, id := range ids {
		target[id] = ids[(i+1)%len(ids)]
	}

	grades, err := q.room.collect(q.ctx, ids, evPrompt, nil, CollectStrategy{
		PromptFor: func(id string) any {
			return PromptPayload{Type: "grade", Drawing: res[target[id]].Value}
		},
		EndCondition: func(responses Responses) bool {
			return len(responses) >= len(ids)
		},
		Timeout: timeout,
	})
	if err != nil {
		return err
	}

	for grader, rec := range grades {
		if g, ok := asFloat(rec.Value); ok {
			res[target[grader]].Score = int(g)
		}
	}
	return nil
}

// applyScores recomputes totals up to the cursor, writes them onto the
// roster, and publishes the scoreboard.
func (q *quizGame) applyScores() {
	totals := scoreUpTo(q.def, q.collected, q.round, q.question)

	q.room.mu.Lock()
	for _, p := range q.room.players {
		p.Score = totals[p.SessionID]
	}
	q.room.mu.Unlock()

	q.room.emitToHost(evUpdateScores, q.scoreboard(totals))
}

type scoreEntry struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
}

func (q *quizGame) scoreboard(totals map[string]int) []scoreEntry {
	q.room.mu.Lock()
	entries := make([]scoreEntry, 0, len(q.room.players))
	for _, p := range q.room.players {
		entries = append(entries, scoreEntry{
			SessionID: p.SessionID,
			Name:      p.Name,
			Score:     totals[p.SessionID],
		})
	}
	q.room.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}

type quizIntroPayload struct {
	Title  string `json:"title"`
	Rounds int    `json:"rounds"`
}

type roundIntroPayload struct {
	Title     string `json:"title"`
	Index     int    `json:"index"`
	Questions int    `json:"questions"`
}

type questionPayload struct {
	Round    int         `json:"round"`
	Question int         `json:"question"`
	Type     string      `json:"type"`
	Text     string      `json:"text"`
	Options  []string    `json:"options,omitempty"`
	Items    []string    `json:"items,omitempty"`
	Pairs    [][2]string `json:"pairs,omitempty"`
}

type answerPayload struct {
	Round    int `json:"round"`
	Question int `json:"question"`
	Answer   any `json:"answer"`
}
