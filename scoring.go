// Scoring engine
//
// Pure per-question-type functions over a collection's results. Scores are
// recomputed from scratch up to the quiz cursor on every update rather than
// kept as running totals.

package main

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
)

var textStrip = regexp.MustCompile(`[^a-z0-9\-_:.]+`)

// normalizeText lowercases and strips everything outside [a-z0-9\-_:.],
// whitespace included.
func normalizeText(s string) string {
	return textStrip.ReplaceAllString(strings.ToLower(s), "")
}

func asText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asStrings(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			out = append(out, asText(e))
		}
		return out
	default:
		return nil
	}
}

type point struct {
	x, y float64
}

func asPoint(v any) (point, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return point{}, false
	}
	x, okX := asFloat(m["x"])
	y, okY := asFloat(m["y"])
	return point{x: x, y: y}, okX && okY
}

// scoreQuestion computes per-responder points for one question.
func scoreQuestion(q *Question, results Responses) map[string]int {
	scores := make(map[string]int, len(results))

	switch q.Type {
	case "text":
		answer := normalizeText(asText(q.Answer))
		for id, rec := range results {
			if levenshtein.ComputeDistance(answer, normalizeText(asText(rec.Value))) < 3 {
				scores[id] = 1
			}
		}

	case "multiple-choice", "true-false":
		answer := normalizeText(asText(q.Answer))
		for id, rec := range results {
			if normalizeText(asText(rec.Value)) == answer {
				scores[id] = 1
			}
		}

	case "number-exact":
		answer, ok := asFloat(q.Answer)
		if !ok {
			return scores
		}
		for id, rec := range results {
			if n, ok := asFloat(rec.Value); ok && n == answer {
				scores[id] = 1
			}
		}

	case "number-closest":
		scoreNumberClosest(q, results, scores)

	case "ordering", "matching":
		answer := asStrings(q.Answer)
		for id, rec := range results {
			resp := asStrings(rec.Value)
			matched := 0
			for i, want := range answer {
				if i < len(resp) && resp[i] == want {
					matched++
				}
			}
			// A fully correct sequence implies its final slot, which is
			// not separately rewarded.
			if matched == len(answer) && matched > 0 {
				matched--
			}
			scores[id] = matched
		}

	case "hotspot":
		scoreHotspot(q, results, scores)

	case "point-it-out":
		m, ok := q.Answer.(map[string]any)
		if !ok {
			return scores
		}
		start, okS := asPoint(m["start"])
		end, okE := asPoint(m["end"])
		if !okS || !okE {
			return scores
		}
		for id, rec := range results {
			p, ok := asPoint(rec.Value)
			if !ok {
				continue
			}
			if p.x >= start.x && p.x <= end.x && p.y >= start.y && p.y <= end.y {
				scores[id] = 1
			}
		}

	case "draw":
		// Points were written onto the records by the peer-grading pass.
		for id, rec := range results {
			scores[id] = rec.Score
		}
	}

	return scores
}

// scoreNumberClosest awards 2 points to the responder(s) at minimum
// distance from the answer. If exactly one responder held the minimum, the
// responder(s) at the next distance share 1 point; a tied minimum awards
// no second-place points.
func scoreNumberClosest(q *Question, results Responses, scores map[string]int) {
	answer, ok := asFloat(q.Answer)
	if !ok {
		return
	}

	dist := make(map[string]float64, len(results))
	for id, rec := range results {
		if n, ok := asFloat(rec.Value); ok {
			dist[id] = math.Abs(n - answer)
		}
	}
	if len(dist) == 0 {
		return
	}

	min := math.Inf(1)
	for _, d := range dist {
		if d < min {
			min = d
		}
	}

	winners := 0
	for id, d := range dist {
		if d == min {
			scores[id] = 2
			winners++
		}
	}
	if winners != 1 {
		return
	}

	second := math.Inf(1)
	for _, d := range dist {
		if d > min && d < second {
			second = d
		}
	}
	for id, d := range dist {
		if d == second {
			scores[id] = 1
		}
	}
}

// scoreHotspot awards 2 points to the single closest responder and 1 to
// the single second-closest, breaking ties by response order.
func scoreHotspot(q *Question, results Responses, scores map[string]int) {
	answer, ok := asPoint(q.Answer)
	if !ok {
		return
	}

	type entry struct {
		id    string
		d     float64
		order int
	}

	entries := make([]entry, 0, len(results))
	for id, rec := range results {
		p, ok := asPoint(rec.Value)
		if !ok {
			continue
		}
		entries = append(entries, entry{
			id:    id,
			d:     math.Hypot(p.x-answer.x, p.y-answer.y),
			order: rec.Order,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].d != entries[j].d {
			return entries[i].d < entries[j].d
		}
		return entries[i].order < entries[j].order
	})

	if len(entries) > 0 {
		scores[entries[0].id] = 2
	}
	if len(entries) > 1 {
		scores[entries[1].id] = 1
	}
}

type questionKey struct {
	round, question int
}

// scoreUpTo recomputes totals over every collected question up to and
// including the cursor.
func scoreUpTo(def *GameDefinition, collected map[questionKey]Responses, round, question int) map[string]int {
	totals := make(map[string]int)

	for r := 0; r <= round && r < len(def.Rounds); r++ {
		last := len(def.Rounds[r].Questions) - 1
		if r == round && question < last {
			last = question
		}
		for q := 0; q <= last; q++ {
			results, ok := collected[questionKey{round: r, question: q}]
			if !ok {
				continue
			}
			for id, pts := range scoreQuestion(&def.Rounds[r].Questions[q], results) {
				totals[id] += pts
			}
		}
	}

	return totals
}
