package discussion

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultQualityFormula weighs the structural sub-scores into the overall
// score. Operators may replace it through configuration.
const DefaultQualityFormula = "0.4 * depth + 0.3 * diversity + 0.3 * consistency"

// Scorer computes structural quality scores for a finished discussion.
// Scoring is deterministic: the same record always yields the same scores.
type Scorer struct {
	program *vm.Program
}

// NewScorer compiles the overall-score formula. The formula sees depth,
// diversity, and consistency as floats in [0,10] and must yield a float.
func NewScorer(formula string) (*Scorer, error) {
	if formula == "" {
		formula = DefaultQualityFormula
	}
	program, err := expr.Compile(formula,
		expr.Env(map[string]any{
			"depth":       float64(0),
			"diversity":   float64(0),
			"consistency": float64(0),
		}),
		expr.AsFloat64(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile quality formula: %w", err)
	}
	return &Scorer{program: program}, nil
}

// Score evaluates the record. Broadcast rounds count toward depth and
// diversity like scheduled rounds; failed contributions count as issues.
func (s *Scorer) Score(rec *Record) (*Quality, error) {
	total := 0
	seen := map[string]bool{}
	var issues []string

	for _, round := range rec.Rounds {
		if len(round.Contributions) == 0 {
			issues = append(issues, fmt.Sprintf("round %s produced no contributions", round.Label))
			continue
		}
		for _, c := range round.Contributions {
			if !c.Succeeded {
				issues = append(issues, fmt.Sprintf("%s failed in round %s", c.Participant, round.Label))
				continue
			}
			total++
			seen[c.Participant] = true
		}
	}

	numParticipants := len(rec.Participants)
	if numParticipants == 0 {
		numParticipants = 1
	}

	q := &Quality{
		DiscussionDepth:      clampScore(float64(total) / float64(numParticipants)),
		PerspectiveDiversity: clampScore(float64(len(seen)) * 2),
		LogicConsistency:     clampScore(10 - float64(len(issues))),
		Issues:               issues,
	}

	overall, err := expr.Run(s.program, map[string]any{
		"depth":       q.DiscussionDepth,
		"diversity":   q.PerspectiveDiversity,
		"consistency": q.LogicConsistency,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate quality formula: %w", err)
	}
	q.Overall = clampScore(overall.(float64))
	return q, nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
