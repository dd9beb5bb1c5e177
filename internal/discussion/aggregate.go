package discussion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/szaher/mdtboard/internal/participant"
)

// Aggregator turns a finished discussion into the final decision text.
// When the decision participant fails, a deterministic local summary is
// produced instead so a completed discussion always carries a decision.
type Aggregator struct {
	decision participant.Participant
	logger   *slog.Logger
}

// NewAggregator builds an aggregator around the decision participant.
func NewAggregator(decision participant.Participant, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{decision: decision, logger: logger}
}

// Aggregate produces the decision for the record. It is idempotent over the
// record contents and never returns an empty decision for a discussion with
// at least one successful contribution.
func (a *Aggregator) Aggregate(ctx context.Context, rec *Record) string {
	opinions := opinionLines(rec)
	if len(opinions) == 0 {
		return "No contributions were produced, so no recommendation can be made."
	}

	text, err := a.decision.Generate(ctx, participant.GenerateRequest{
		CaseText: rec.CaseText,
		Digest:   opinions,
		Question: rec.Question,
	})
	if err == nil && text != "" {
		return text
	}
	if err != nil {
		a.logger.Warn("decision synthesis failed, using fallback summary",
			"discussion", rec.ID, "error", err)
	}
	return fallbackSummary(rec)
}

// opinionLines flattens every successful contribution, oldest first.
func opinionLines(rec *Record) []string {
	var lines []string
	for _, round := range rec.Rounds {
		for _, c := range round.Contributions {
			if !c.Succeeded {
				continue
			}
			lines = append(lines, fmt.Sprintf("[%s] %s: %s", round.Label, c.Participant, c.Text))
		}
	}
	return lines
}

// fallbackSummary concatenates each participant's latest successful
// contribution in a fixed order.
func fallbackSummary(rec *Record) string {
	latest := map[string]string{}
	for _, round := range rec.Rounds {
		for _, c := range round.Contributions {
			if c.Succeeded {
				latest[c.Participant] = c.Text
			}
		}
	}

	var b strings.Builder
	b.WriteString("Automated summary of final positions (synthesis unavailable):\n")
	for _, name := range rec.Participants {
		text, ok := latest[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n%s\n", name, text)
	}
	return strings.TrimRight(b.String(), "\n")
}
