// Package discussion implements the round engine: the shared context every
// participant reads, the scheduler that runs rounds and applies operator
// interventions at checkpoints, the aggregator that produces the final
// decision, and the quality scorer.
package discussion

import (
	"fmt"
	"sync"
)

// noHistoryLine is the digest sentinel before anyone has spoken.
const noHistoryLine = "No prior discussion."

type ctxEntry struct {
	participant string
	text        string
}

type ctxRound struct {
	label   string
	entries []ctxEntry
}

// SharedContext accumulates contributions and case notes, and renders the
// bounded digest participants see. It is safe for concurrent use.
type SharedContext struct {
	mu     sync.Mutex
	window int
	budget int
	rounds []*ctxRound
	count  int
}

// NewSharedContext builds a context whose digest covers the last window
// rounds with each entry truncated to budget characters.
func NewSharedContext(window, budget int) *SharedContext {
	if window < 1 {
		window = 1
	}
	if budget < 1 {
		budget = 150
	}
	return &SharedContext{window: window, budget: budget}
}

// Record appends one contribution under a round label. Consecutive records
// with the same label land in the same round; a new label opens a new one.
func (c *SharedContext) Record(roundLabel, participant, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(roundLabel, participant, text)
}

func (c *SharedContext) record(roundLabel, participant, text string) {
	n := len(c.rounds)
	if n == 0 || c.rounds[n-1].label != roundLabel {
		c.rounds = append(c.rounds, &ctxRound{label: roundLabel})
		n++
	}
	r := c.rounds[n-1]
	r.entries = append(r.entries, ctxEntry{participant: participant, text: text})
	c.count++
}

// AddCaseNote injects operator-supplied case information into the current
// round, so every later digest carries it.
func (c *SharedContext) AddCaseNote(note string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	label := "case update"
	if n := len(c.rounds); n > 0 {
		label = c.rounds[n-1].label
	}
	c.record(label, "moderator", "Case update: "+note)
}

// Digest renders the recent-discussion lines, oldest first. Entries longer
// than the budget are truncated with a trailing ellipsis. An empty context
// yields a single sentinel line.
func (c *SharedContext) Digest() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		return []string{noHistoryLine}
	}

	start := len(c.rounds) - c.window
	if start < 0 {
		start = 0
	}
	var lines []string
	for _, r := range c.rounds[start:] {
		for _, e := range r.entries {
			text := e.text
			if runes := []rune(text); len(runes) > c.budget {
				text = string(runes[:c.budget]) + "..."
			}
			lines = append(lines, fmt.Sprintf("[%s] %s: %s", r.label, e.participant, text))
		}
	}
	return lines
}

// Len reports the total number of recorded entries.
func (c *SharedContext) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
