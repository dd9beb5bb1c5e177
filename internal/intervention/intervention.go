// Package intervention decouples operator actions from the discussion loop:
// a FIFO queue plus status table through which an operator submits typed
// interventions and the round scheduler, as the single consumer, resolves
// them at checkpoints.
package intervention

import (
	"fmt"
	"time"
)

// Kind is the closed set of intervention types.
type Kind string

const (
	QuestionToParticipant Kind = "question_to_participant"
	BroadcastQuestion     Kind = "broadcast_question"
	AddInformation        Kind = "add_information"
	SkipRound             Kind = "skip_round"
	Terminate             Kind = "terminate"
)

// Kinds lists every valid intervention kind.
func Kinds() []Kind {
	return []Kind{QuestionToParticipant, BroadcastQuestion, AddInformation, SkipRound, Terminate}
}

// ParseKind validates a kind string from an external surface.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case QuestionToParticipant, BroadcastQuestion, AddInformation, SkipRound, Terminate:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown intervention kind %q", s)
	}
}

// Status is the intervention lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payload carries the kind-specific intervention data.
type Payload struct {
	// Target names the participant for QuestionToParticipant.
	Target string `json:"target,omitempty"`
	// Question is the operator question for the question kinds.
	Question string `json:"question,omitempty"`
	// Information is the case-context addition for AddInformation.
	Information string `json:"information,omitempty"`
}

// Intervention is one operator action moving through the broker.
type Intervention struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	Kind        Kind      `json:"kind"`
	Payload     Payload   `json:"payload"`
	Status      Status    `json:"status"`
	Response    string    `json:"response,omitempty"`
	Err         string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	ResolvedAt  time.Time `json:"resolved_at,omitzero"`
}
