package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_EndConditionConcludes(t *testing.T) {
	r := newTestRoom("TEST")
	p1 := join(r, "p1", "Alice", false)
	p2 := join(r, "p2", "Bob", false)

	type outcome struct {
		res Responses
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		res, err := r.collect(context.Background(), []string{"p1", "p2"}, evPrompt, "pick", CollectStrategy{
			EndCondition: func(responses Responses) bool {
				return len(responses) >= 2
			},
			Timeout: 5 * time.Second,
		})
		done <- outcome{res: res, err: err}
	}()

	awaitEvent(t, p1, evPrompt)
	awaitEvent(t, p2, evPrompt)

	respond(t, r, p1, "a")
	respond(t, r, p2, "b")

	out := <-done
	require.NoError(t, out.err)
	require.Len(t, out.res, 2)
	assert.Equal(t, "a", out.res["p1"].Value)
	assert.Equal(t, "b", out.res["p2"].Value)
}

func TestCollector_LastWriteWinsCountedOnce(t *testing.T) {
	r := newTestRoom("TEST")
	p1 := join(r, "p1", "Alice", false)
	p2 := join(r, "p2", "Bob", false)

	done := make(chan Responses, 1)

	go func() {
		res, _ := r.collect(context.Background(), []string{"p1", "p2"}, evPrompt, nil, CollectStrategy{
			EndCondition: func(responses Responses) bool {
				return len(responses) >= 2
			},
		})
		done <- res
	}()

	awaitEvent(t, p1, evPrompt)
	respond(t, r, p1, "first")
	respond(t, r, p1, "changed")
	respond(t, r, p2, "b")

	res := <-done
	require.Len(t, res, 2)
	assert.Equal(t, "changed", res["p1"].Value)
	assert.Equal(t, 0, res["p1"].Order)
	assert.Equal(t, 1, res["p2"].Order)
}

func TestCollector_TimeoutDeliversPartial(t *testing.T) {
	r := newTestRoom("TEST")
	p1 := join(r, "p1", "Alice", false)
	join(r, "p2", "Bob", false)

	done := make(chan Responses, 1)

	go func() {
		res, err := r.collect(context.Background(), []string{"p1", "p2"}, evPrompt, nil, CollectStrategy{
			EndCondition: func(responses Responses) bool {
				return len(responses) >= 2
			},
			Timeout: 100 * time.Millisecond,
		})
		assert.NoError(t, err)
		done <- res
	}()

	awaitEvent(t, p1, evPrompt)
	respond(t, r, p1, "only me")

	res := <-done
	require.Len(t, res, 1)
	assert.Equal(t, "only me", res["p1"].Value)
}

func TestCollector_LateResponseIsInert(t *testing.T) {
	r := newTestRoom("TEST")
	p1 := join(r, "p1", "Alice", false)
	p2 := join(r, "p2", "Bob", false)

	done := make(chan Responses, 1)

	go func() {
		res, _ := r.collect(context.Background(), []string{"p1", "p2"}, evPrompt, nil, CollectStrategy{
			EndCondition: func(responses Responses) bool {
				return len(responses) >= 1
			},
		})
		done <- res
	}()

	awaitEvent(t, p1, evPrompt)
	respond(t, r, p1, "a")

	res := <-done
	require.Len(t, res, 1)

	// The collection has resolved; a straggler must not be recorded.
	respond(t, r, p2, "too late")
	assert.Len(t, res, 1)
	assert.Nil(t, r.pending)
}

func TestCollector_SingleFlight(t *testing.T) {
	r := newTestRoom("TEST")

	h1, err := r.registerResponseHandler(func(p *Participant, value any) {})
	require.NoError(t, err)

	_, err = r.registerResponseHandler(func(p *Participant, value any) {})
	assert.ErrorIs(t, err, errCollectorActive)

	h1.release()

	h2, err := r.registerResponseHandler(func(p *Participant, value any) {})
	require.NoError(t, err)
	h2.release()
}

func TestCollector_CancelAborts(t *testing.T) {
	r := newTestRoom("TEST")
	join(r, "p1", "Alice", false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		_, err := r.collect(ctx, []string{"p1"}, evPrompt, nil, CollectStrategy{
			EndCondition: func(responses Responses) bool {
				return len(responses) >= 1
			},
		})
		done <- err
	}()

	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, r.pending)
}

func TestCollector_NonRecipientIgnored(t *testing.T) {
	r := newTestRoom("TEST")
	p1 := join(r, "p1", "Alice", false)
	p2 := join(r, "p2", "Bob", false)

	done := make(chan Responses, 1)

	go func() {
		res, _ := r.collect(context.Background(), []string{"p1"}, evPrompt, nil, CollectStrategy{
			EndCondition: func(responses Responses) bool {
				return len(responses) >= 1
			},
		})
		done <- res
	}()

	awaitEvent(t, p1, evPrompt)
	respond(t, r, p2, "not invited")
	respond(t, r, p1, "invited")

	res := <-done
	require.Len(t, res, 1)
	assert.Contains(t, res, "p1")
}
