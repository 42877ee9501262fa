// Response collector
//
// The one generic request/collect primitive every game phase is built on:
// send a prompt to some participants, accumulate their responses keyed by
// session ID, and return when a pluggable end condition holds or a timeout
// elapses, whichever comes first. The caller resumes exactly once; the
// losing branch of the condition/timeout race is made inert by releasing
// the room's handler slot before returning.

package main

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Response is one participant's recorded answer. A responder may overwrite
// their own answer until the collection resolves, but is counted once;
// Order is the position of their first submission and survives overwrites.
// Score is written by the draw peer-grading pass and read by the scorer.
type Response struct {
	Value any
	Order int
	Score int
}

// Responses maps responder session IDs to their latest answer.
type Responses map[string]*Response

// CollectStrategy parametrizes one collection.
type CollectStrategy struct {
	// EndCondition is evaluated after every recorded response; returning
	// true concludes the collection.
	EndCondition func(responses Responses) bool

	// OnResponse, if set, runs for each recorded response.
	OnResponse func(sessionID string, value any)

	// PromptFor, if set, overrides the broadcast prompt with a
	// per-recipient payload.
	PromptFor func(sessionID string) any

	// Timeout concludes the collection with whatever has been recorded.
	// Zero means no timeout.
	Timeout time.Duration
}

// collect broadcasts prompt to the recipients under the given event and
// blocks until the strategy's end condition holds, the timeout elapses, or
// ctx is cancelled. Timeout is a normal outcome and returns a nil error
// alongside the partial responses; cancellation returns ctx's error.
//
// Only one collection may be pending per room; overlapping calls fail with
// errCollectorActive.
func (r *Room) collect(ctx context.Context, recipients []string, event string, prompt any, strat CollectStrategy) (Responses, error) {
	responses := make(Responses)

	done := make(chan struct{})
	var once sync.Once
	conclude := func() { once.Do(func() { close(done) }) }

	handle, err := r.registerResponseHandler(func(p *Participant, value any) {
		allowed := false
		for _, id := range recipients {
			if p.SessionID == id {
				allowed = true
				break
			}
		}
		if !allowed {
			logf(r.cfg, "ROOMS: Dropped response from %q in %s, not a recipient", p.Name, r.code)
			return
		}

		if rec, ok := responses[p.SessionID]; ok {
			rec.Value = value
		} else {
			responses[p.SessionID] = &Response{Value: value, Order: len(responses)}
		}

		if strat.OnResponse != nil {
			strat.OnResponse(p.SessionID, value)
		}

		if strat.EndCondition != nil && strat.EndCondition(responses) {
			conclude()
		}
	})
	if err != nil {
		return nil, err
	}
	defer handle.release()

	for _, id := range recipients {
		payload := prompt
		if strat.PromptFor != nil {
			payload = strat.PromptFor(id)
		}
		r.emitToParticipant(id, event, payload)
	}

	if strat.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, strat.Timeout)
		defer cancel()
	}

	select {
	case <-done:
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ctx.Err()
		}
	}

	// Release before reading: invoke serializes against release, so no
	// late response can be recording while the caller holds the map.
	handle.release()

	return responses, nil
}

// collectOne gathers a single response from one participant, typically a
// host acknowledgement.
func (r *Room) collectOne(ctx context.Context, recipient string, event string, prompt any) (any, error) {
	res, err := r.collect(ctx, []string{recipient}, event, prompt, CollectStrategy{
		EndCondition: func(responses Responses) bool {
			return len(responses) > 0
		},
	})
	if err != nil {
		return nil, err
	}
	if rec, ok := res[recipient]; ok {
		return rec.Value, nil
	}
	return nil, nil
}
