// Package participant defines the discussion members: specialists and
// custom experts that contribute opinions each round, and the decision
// participant that synthesizes the final recommendation.
package participant

import (
	"context"
)

// GenerateRequest is the input for one contribution or answer.
type GenerateRequest struct {
	// CaseText is the full case under discussion.
	CaseText string
	// Digest holds the recent-discussion digest lines, oldest first.
	Digest []string
	// Directive is an optional extra instruction for this call.
	Directive string
	// Question is a direct operator question. When set, the participant
	// answers it instead of contributing a round opinion.
	Question string
}

// Participant produces text contributions for a discussion.
type Participant interface {
	// Name returns the unique participant name, e.g. "cardiology".
	Name() string
	// Role returns the human-readable role description.
	Role() string
	// Generate produces one contribution for the request.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
