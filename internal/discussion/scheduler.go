package discussion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/szaher/mdtboard/internal/intervention"
	"github.com/szaher/mdtboard/internal/participant"
	"github.com/szaher/mdtboard/internal/telemetry"
)

// SchedulerOptions bound one discussion run.
type SchedulerOptions struct {
	// MaxRounds is the number of scheduled rounds, at least 1.
	MaxRounds int
	// InterventionsEnabled turns on checkpoint polling of the broker.
	InterventionsEnabled bool
	// PerCallTimeout bounds each participant generate call. Zero means no
	// per-call bound beyond the run context.
	PerCallTimeout time.Duration
}

// Snapshot is a point-in-time view of a running scheduler.
type Snapshot struct {
	State                State    `json:"state"`
	CurrentRound         int      `json:"current_round"`
	MaxRounds            int      `json:"max_rounds"`
	ActiveParticipants   []string `json:"active_participants"`
	InterventionCount    int      `json:"intervention_count"`
	PendingInterventions int      `json:"pending_interventions"`
}

// Scheduler runs the rounds of a single discussion. It is the broker's only
// consumer: interventions are applied at the checkpoint after each
// contribution, never mid-call.
type Scheduler struct {
	mu           sync.Mutex
	state        State
	rec          *Record
	shared       *SharedContext
	participants []participant.Participant
	broker       *intervention.Broker
	opts         SchedulerOptions
	logger       *slog.Logger
	metrics      *telemetry.Metrics

	currentRound  int
	broadcastSeq  int
	skipRemaining bool
	terminated    bool
}

// NewScheduler wires a scheduler to its record, shared context, and broker.
func NewScheduler(rec *Record, shared *SharedContext, participants []participant.Participant,
	broker *intervention.Broker, opts SchedulerOptions, logger *slog.Logger, metrics *telemetry.Metrics) *Scheduler {
	if opts.MaxRounds < 1 {
		opts.MaxRounds = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		state:        StateIdle,
		rec:          rec,
		shared:       shared,
		participants: participants,
		broker:       broker,
		opts:         opts,
		logger:       logger,
		metrics:      metrics,
	}
}

// Run executes the discussion rounds. It returns once the discussion reaches
// a terminal state; the record's State field carries the outcome. The only
// error returned is a run-context failure, which also marks the record
// Errored.
func (s *Scheduler) Run(ctx context.Context) error {
	s.setState(StateRunning)

	for round := 1; round <= s.opts.MaxRounds; round++ {
		s.mu.Lock()
		s.currentRound = round
		s.skipRemaining = false
		s.mu.Unlock()

		if err := s.runRound(ctx, round); err != nil {
			s.fail(err)
			return err
		}
		if s.isTerminated() {
			s.finish(StateInterrupted)
			return nil
		}
		s.mu.Lock()
		s.rec.RoundsCompleted = round
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordRound()
		}
	}

	s.finish(StateCompleted)
	return nil
}

func (s *Scheduler) runRound(ctx context.Context, round int) error {
	label := fmt.Sprintf("round %d", round)
	s.logger.Info("round started", "round", round)

	s.mu.Lock()
	s.rec.Rounds = append(s.rec.Rounds, Round{
		Index:     round,
		Label:     label,
		Kind:      RoundNormal,
		StartedAt: time.Now(),
	})
	idx := len(s.rec.Rounds) - 1
	s.mu.Unlock()

	for _, p := range s.participants {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.shouldSkipRemaining() {
			s.logger.Info("skipping remaining participants", "round", round)
			break
		}

		contribution := s.generate(ctx, p, participant.GenerateRequest{
			CaseText: s.caseText(),
			Digest:   s.shared.Digest(),
		})

		s.mu.Lock()
		s.rec.Rounds[idx].Contributions = append(s.rec.Rounds[idx].Contributions, contribution)
		s.mu.Unlock()
		if contribution.Succeeded {
			s.shared.Record(label, p.Name(), contribution.Text)
		}

		if s.opts.InterventionsEnabled {
			if err := s.checkpoint(ctx, round); err != nil {
				return err
			}
			if s.isTerminated() {
				return nil
			}
		}
	}
	return nil
}

// generate runs one participant call under the per-call timeout. A failed
// call yields a failed contribution; it never aborts the round.
func (s *Scheduler) generate(ctx context.Context, p participant.Participant, req participant.GenerateRequest) Contribution {
	callCtx := ctx
	if s.opts.PerCallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.PerCallTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := p.Generate(callCtx, req)
	elapsed := time.Since(start)

	c := Contribution{Participant: p.Name(), ProducedAt: time.Now()}
	if err != nil {
		c.Err = err.Error()
		s.logger.Warn("contribution failed", "participant", p.Name(), "error", err)
	} else {
		c.Succeeded = true
		c.Text = text
	}
	if s.metrics != nil {
		s.metrics.RecordContribution(p.Name(), c.Succeeded, elapsed)
	}
	return c
}

// checkpoint drains the broker, applying every pending intervention in
// submission order.
func (s *Scheduler) checkpoint(ctx context.Context, round int) error {
	handlers := s.handlers(round)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		claimed := s.broker.Next()
		if claimed == nil {
			return nil
		}
		resolved, err := s.broker.Resolve(ctx, claimed.ID, handlers)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.rec.Interventions = append(s.rec.Interventions, resolved)
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordIntervention(string(resolved.Kind), string(resolved.Status))
		}
		if resolved.Kind == intervention.Terminate && resolved.Status == intervention.StatusCompleted {
			return nil
		}
	}
}

func (s *Scheduler) handlers(round int) intervention.HandlerTable {
	return intervention.HandlerTable{
		intervention.QuestionToParticipant: func(ctx context.Context, iv *intervention.Intervention) (string, error) {
			p := s.findParticipant(iv.Payload.Target)
			if p == nil {
				return "", fmt.Errorf("no participant named %q", iv.Payload.Target)
			}
			answer := s.generate(ctx, p, participant.GenerateRequest{
				CaseText: s.caseText(),
				Digest:   s.shared.Digest(),
				Question: iv.Payload.Question,
			})
			if !answer.Succeeded {
				return "", errors.New(answer.Err)
			}
			return answer.Text, nil
		},
		intervention.BroadcastQuestion: func(ctx context.Context, iv *intervention.Intervention) (string, error) {
			return s.broadcast(ctx, iv.Payload.Question)
		},
		intervention.AddInformation: func(ctx context.Context, iv *intervention.Intervention) (string, error) {
			// case text carries the information permanently; the digest
			// entry only surfaces it for the next few prompts
			s.mu.Lock()
			s.rec.CaseText += "\n\nAdditional information: " + iv.Payload.Information
			s.mu.Unlock()
			s.shared.AddCaseNote(iv.Payload.Information)
			return "case information added", nil
		},
		intervention.SkipRound: func(ctx context.Context, iv *intervention.Intervention) (string, error) {
			s.mu.Lock()
			s.skipRemaining = true
			s.mu.Unlock()
			return fmt.Sprintf("remaining participants skipped for round %d", round), nil
		},
		intervention.Terminate: func(ctx context.Context, iv *intervention.Intervention) (string, error) {
			s.mu.Lock()
			s.terminated = true
			s.mu.Unlock()
			return "discussion terminated by operator", nil
		},
	}
}

// broadcast puts one question to every participant and records the answers
// as a synthetic round.
func (s *Scheduler) broadcast(ctx context.Context, question string) (string, error) {
	s.mu.Lock()
	s.broadcastSeq++
	label := fmt.Sprintf("broadcast %d", s.broadcastSeq)
	s.rec.Rounds = append(s.rec.Rounds, Round{
		Index:     s.currentRound,
		Label:     label,
		Kind:      RoundBroadcast,
		StartedAt: time.Now(),
	})
	idx := len(s.rec.Rounds) - 1
	s.mu.Unlock()

	answered := 0
	for _, p := range s.participants {
		contribution := s.generate(ctx, p, participant.GenerateRequest{
			CaseText: s.caseText(),
			Digest:   s.shared.Digest(),
			Question: question,
		})
		s.mu.Lock()
		s.rec.Rounds[idx].Contributions = append(s.rec.Rounds[idx].Contributions, contribution)
		s.mu.Unlock()
		if contribution.Succeeded {
			s.shared.Record(label, p.Name(), contribution.Text)
			answered++
		}
	}
	return fmt.Sprintf("%d of %d participants answered", answered, len(s.participants)), nil
}

func (s *Scheduler) findParticipant(name string) participant.Participant {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range s.participants {
		if strings.ToLower(p.Name()) == name {
			return p
		}
	}
	return nil
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.participants))
	for i, p := range s.participants {
		names[i] = p.Name()
	}
	return Snapshot{
		State:                s.state,
		CurrentRound:         s.currentRound,
		MaxRounds:            s.opts.MaxRounds,
		ActiveParticipants:   names,
		InterventionCount:    len(s.rec.Interventions),
		PendingInterventions: s.broker.Pending(),
	}
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.rec.State = st
	s.mu.Unlock()
}

func (s *Scheduler) finish(st State) {
	s.mu.Lock()
	s.state = st
	s.rec.State = st
	s.rec.FinishedAt = time.Now()
	s.mu.Unlock()
	s.logger.Info("discussion finished", "state", string(st))
}

func (s *Scheduler) fail(err error) {
	s.mu.Lock()
	s.state = StateErrored
	s.rec.State = StateErrored
	s.rec.LastError = err.Error()
	s.rec.FinishedAt = time.Now()
	s.mu.Unlock()
	s.logger.Error("discussion errored", "error", err)
}

// caseText reads the case text under the lock; AddInformation appends to it
// between contributions.
func (s *Scheduler) caseText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.CaseText
}

func (s *Scheduler) shouldSkipRemaining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipRemaining
}

func (s *Scheduler) isTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}
