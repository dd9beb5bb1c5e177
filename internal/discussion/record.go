package discussion

import (
	"time"

	"github.com/szaher/mdtboard/internal/intervention"
)

// State is the discussion lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateInterrupted State = "interrupted"
	StateErrored     State = "errored"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateInterrupted || s == StateErrored
}

// RoundKind distinguishes scheduled rounds from intervention-driven ones.
type RoundKind string

const (
	RoundNormal    RoundKind = "normal"
	RoundBroadcast RoundKind = "broadcast"
)

// Contribution is one participant's output in one round.
type Contribution struct {
	Participant string    `json:"participant"`
	Text        string    `json:"text,omitempty"`
	Succeeded   bool      `json:"succeeded"`
	Err         string    `json:"error,omitempty"`
	ProducedAt  time.Time `json:"produced_at"`
}

// Round groups the contributions produced under one label.
type Round struct {
	Index         int            `json:"index"`
	Label         string         `json:"label"`
	Kind          RoundKind      `json:"kind"`
	StartedAt     time.Time      `json:"started_at"`
	Contributions []Contribution `json:"contributions"`
}

// Quality holds the structural quality scores for a finished discussion,
// each on a 0 to 10 scale.
type Quality struct {
	DiscussionDepth      float64  `json:"discussion_depth"`
	PerspectiveDiversity float64  `json:"perspective_diversity"`
	LogicConsistency     float64  `json:"logic_consistency"`
	Overall              float64  `json:"overall"`
	Issues               []string `json:"issues,omitempty"`
}

// Record is the complete account of one discussion.
type Record struct {
	ID              string                       `json:"id"`
	SessionID       string                       `json:"session_id"`
	OwnerID         string                       `json:"owner_id"`
	State           State                        `json:"state"`
	CaseText        string                       `json:"case_text"`
	Question        string                       `json:"question,omitempty"`
	Participants    []string                     `json:"participants"`
	Rounds          []Round                      `json:"rounds"`
	Interventions   []*intervention.Intervention `json:"interventions,omitempty"`
	Decision        string                       `json:"decision,omitempty"`
	Quality         *Quality                     `json:"quality,omitempty"`
	StartedAt       time.Time                    `json:"started_at"`
	FinishedAt      time.Time                    `json:"finished_at,omitzero"`
	RoundsCompleted int                          `json:"rounds_completed"`
	LastError       string                       `json:"last_error,omitempty"`
}
