// Day vote
//
// Living players vote for a living candidate. Two end conditions: every
// voter votes, or a single distinguished voter decides. Ties re-run the
// vote among only the tied candidates with the same voter set, recursively,
// until one candidate remains.

package main

const (
	voteEveryone  = "everyone"
	voteAuthority = "authority"
)

// runDay runs one day phase: a plurality vote among the living, the
// elimination of the chosen player, and a win check.
func (n *nightGame) runDay(strategy string) {
	if !n.chainMu.TryLock() {
		logf(n.room.cfg, "NIGHT: Dropped request-day in %s, a phase is already running", n.room.code)
		return
	}
	defer n.chainMu.Unlock()

	voters := n.room.livingPlayers()
	if len(voters) == 0 {
		logf(n.room.cfg, "NIGHT: Dropped request-day in %s, nobody left to vote", n.room.code)
		return
	}

	eliminated, err := n.runVote(voters, voters, strategy)
	if err != nil {
		logf(n.room.cfg, "NIGHT: Vote aborted in %s: %v", n.room.code, err)
		return
	}

	n.room.mu.Lock()
	eliminated.Alive = false
	n.room.mu.Unlock()

	payload := nightResultPayload{
		Phase: "day",
		Deaths: []rolePayload{{
			SessionID: eliminated.SessionID,
			Name:      eliminated.Name,
			Role:      eliminated.Role,
		}},
	}
	n.room.emitToHost(evNightResult, payload)
	n.room.emitToAllPlayers(evNightResult, payload)

	logf(n.room.cfg, "NIGHT: Day vote in %s eliminated %q", n.room.code, eliminated.Name)

	n.checkWin()
}

// runVote collects one ballot from the voters and tallies it over the
// candidate set. Zero leaders restarts the same vote, one leader wins, and
// several recurse over only the tied candidates.
func (n *nightGame) runVote(voters, candidates []*Participant, strategy string) (*Participant, error) {
	end := func(responses Responses) bool {
		return len(responses) >= len(voters)
	}
	if strategy == voteAuthority {
		// A single distinguished voter's choice is final: the very first
		// response concludes the ballot.
		end = func(responses Responses) bool {
			return len(responses) > 0
		}
	}

	res, err := n.room.collect(n.ctx, sessionIDs(voters), evPrompt, PromptPayload{
		Type:    "vote",
		Targets: sessionIDs(candidates),
	}, CollectStrategy{EndCondition: end})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(candidates))
	for _, rec := range res {
		vote := asText(rec.Value)
		for _, c := range candidates {
			if c.SessionID == vote {
				counts[vote]++
				break
			}
		}
	}

	most := 0
	for _, count := range counts {
		if count > most {
			most = count
		}
	}

	leaders := []*Participant{}
	for _, c := range candidates {
		if counts[c.SessionID] == most && most > 0 {
			leaders = append(leaders, c)
		}
	}

	switch len(leaders) {
	case 0:
		return n.runVote(voters, candidates, strategy)
	case 1:
		return leaders[0], nil
	default:
		return n.runVote(voters, leaders, strategy)
	}
}
