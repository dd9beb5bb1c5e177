package discussion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/szaher/mdtboard/internal/intervention"
	"github.com/szaher/mdtboard/internal/participant"
)

// fake is a scripted participant. Its onGenerate hook runs before each call
// and is how tests submit interventions at deterministic points.
type fake struct {
	mu         sync.Mutex
	name       string
	text       string
	err        error
	onGenerate func(req participant.GenerateRequest)
	digests    [][]string
	cases      []string
	deadlines  []bool
	calls      int
}

func (f *fake) Name() string { return f.name }
func (f *fake) Role() string { return f.name }

func (f *fake) Generate(ctx context.Context, req participant.GenerateRequest) (string, error) {
	_, bounded := ctx.Deadline()
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.digests = append(f.digests, append([]string(nil), req.Digest...))
	f.cases = append(f.cases, req.CaseText)
	f.deadlines = append(f.deadlines, bounded)
	f.mu.Unlock()

	if f.onGenerate != nil {
		f.onGenerate(req)
	}
	if f.err != nil {
		return "", f.err
	}
	if req.Question != "" {
		return fmt.Sprintf("%s answers: %s", f.name, req.Question), nil
	}
	return fmt.Sprintf("%s opinion %d: %s", f.name, n, f.text), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRun(participants []participant.Participant, opts SchedulerOptions) (*Record, *Scheduler, *intervention.Broker) {
	names := make([]string, len(participants))
	for i, p := range participants {
		names[i] = p.Name()
	}
	rec := &Record{
		ID:           "d1",
		SessionID:    "s1",
		State:        StateIdle,
		CaseText:     "test case",
		Participants: names,
		StartedAt:    time.Now(),
	}
	broker := intervention.NewBroker(intervention.WithLogger(quietLogger()))
	shared := NewSharedContext(3, 150)
	sched := NewScheduler(rec, shared, participants, broker, opts, quietLogger(), nil)
	return rec, sched, broker
}

func TestRunCompletesAllRounds(t *testing.T) {
	a := &fake{name: "surgery", text: "resect"}
	b := &fake{name: "oncology", text: "stage"}
	c := &fake{name: "pharmacy", text: "dose"}
	rec, sched, _ := newRun([]participant.Participant{a, b, c}, SchedulerOptions{MaxRounds: 2})

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.State != StateCompleted {
		t.Fatalf("state = %s, want completed", rec.State)
	}
	if rec.RoundsCompleted != 2 {
		t.Errorf("RoundsCompleted = %d, want 2", rec.RoundsCompleted)
	}
	if len(rec.Rounds) != 2 {
		t.Fatalf("rounds = %d, want 2", len(rec.Rounds))
	}
	total := 0
	for _, r := range rec.Rounds {
		if len(r.Contributions) != 3 {
			t.Errorf("round %s has %d contributions, want 3", r.Label, len(r.Contributions))
		}
		total += len(r.Contributions)
	}
	if total != 6 {
		t.Errorf("total contributions = %d, want 6", total)
	}
	if rec.FinishedAt.IsZero() {
		t.Error("FinishedAt not set")
	}
}

func TestFailedParticipantStillRecorded(t *testing.T) {
	a := &fake{name: "surgery", text: "resect"}
	b := &fake{name: "oncology", err: errors.New("model unavailable")}
	c := &fake{name: "pharmacy", text: "dose"}
	rec, sched, _ := newRun([]participant.Participant{a, b, c}, SchedulerOptions{MaxRounds: 1})

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.State != StateCompleted {
		t.Fatalf("state = %s, want completed", rec.State)
	}
	contributions := rec.Rounds[0].Contributions
	if len(contributions) != 3 {
		t.Fatalf("contributions = %d, want 3", len(contributions))
	}
	failed := contributions[1]
	if failed.Succeeded || failed.Err == "" || failed.Participant != "oncology" {
		t.Errorf("failed contribution not recorded: %+v", failed)
	}
	// the failure must not leak into later digests
	last := c.digests[0]
	for _, line := range last {
		if strings.Contains(line, "oncology") {
			t.Errorf("failed contribution leaked into digest: %q", line)
		}
	}
}

func TestDigestFlowsBetweenParticipants(t *testing.T) {
	a := &fake{name: "surgery", text: "resect"}
	b := &fake{name: "oncology", text: "stage"}
	_, sched, _ := newRun([]participant.Participant{a, b}, SchedulerOptions{MaxRounds: 1})

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := a.digests[0]; len(got) != 1 || got[0] != noHistoryLine {
		t.Errorf("first participant digest = %v, want sentinel", got)
	}
	if got := b.digests[0]; len(got) != 1 || !strings.Contains(got[0], "surgery opinion 1") {
		t.Errorf("second participant digest = %v", got)
	}
}

func TestTerminateInterruptsMidRound(t *testing.T) {
	a := &fake{name: "surgery", text: "resect"}
	c := &fake{name: "pharmacy", text: "dose"}
	b := &fake{name: "oncology", text: "stage"}
	rec, sched, broker := newRun([]participant.Participant{a, b, c},
		SchedulerOptions{MaxRounds: 3, InterventionsEnabled: true})

	// submitted while participant 2 is generating, applied at its checkpoint
	b.onGenerate = func(participant.GenerateRequest) {
		if _, err := broker.Submit("s1", intervention.Terminate, intervention.Payload{}); err != nil {
			t.Errorf("Submit: %v", err)
		}
	}

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.State != StateInterrupted {
		t.Fatalf("state = %s, want interrupted", rec.State)
	}
	if got := len(rec.Rounds[0].Contributions); got != 2 {
		t.Errorf("contributions before terminate = %d, want 2", got)
	}
	if c.calls != 0 {
		t.Errorf("participant after terminate was still called %d times", c.calls)
	}
	if len(rec.Interventions) != 1 || rec.Interventions[0].Status != intervention.StatusCompleted {
		t.Errorf("intervention record = %+v", rec.Interventions)
	}
	if rec.RoundsCompleted != 0 {
		t.Errorf("RoundsCompleted = %d, want 0", rec.RoundsCompleted)
	}
}

func TestSkipRoundDropsRemainingParticipants(t *testing.T) {
	a := &fake{name: "surgery", text: "resect"}
	b := &fake{name: "oncology", text: "stage"}
	c := &fake{name: "pharmacy", text: "dose"}
	rec, sched, broker := newRun([]participant.Participant{a, b, c},
		SchedulerOptions{MaxRounds: 2, InterventionsEnabled: true})

	a.onGenerate = func(participant.GenerateRequest) {
		if a.calls == 1 {
			broker.Submit("s1", intervention.SkipRound, intervention.Payload{})
		}
	}

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.State != StateCompleted {
		t.Fatalf("state = %s, want completed", rec.State)
	}
	if got := len(rec.Rounds[0].Contributions); got != 1 {
		t.Errorf("round 1 contributions = %d, want 1", got)
	}
	// round 2 runs in full; the skip does not carry over
	if got := len(rec.Rounds[1].Contributions); got != 3 {
		t.Errorf("round 2 contributions = %d, want 3", got)
	}
}

func TestAddInformationVisibleToNextParticipant(t *testing.T) {
	a := &fake{name: "surgery", text: "resect"}
	b := &fake{name: "oncology", text: "stage"}
	_, sched, broker := newRun([]participant.Participant{a, b},
		SchedulerOptions{MaxRounds: 1, InterventionsEnabled: true})

	a.onGenerate = func(participant.GenerateRequest) {
		broker.Submit("s1", intervention.AddInformation,
			intervention.Payload{Information: "patient is pregnant"})
	}

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	found := false
	for _, line := range b.digests[0] {
		if strings.Contains(line, "patient is pregnant") {
			found = true
		}
	}
	if !found {
		t.Errorf("case note not visible to next participant: %v", b.digests[0])
	}
}

func TestAddInformationOutlivesDigestWindow(t *testing.T) {
	a := &fake{name: "surgery", text: "resect"}
	_, sched, broker := newRun([]participant.Participant{a},
		SchedulerOptions{MaxRounds: 5, InterventionsEnabled: true})

	a.onGenerate = func(participant.GenerateRequest) {
		if a.calls == 1 {
			broker.Submit("s1", intervention.AddInformation,
				intervention.Payload{Information: "patient is pregnant"})
		}
	}

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(a.cases[0], "patient is pregnant") {
		t.Errorf("round 1 prompt already carries the information: %q", a.cases[0])
	}
	for i, caseText := range a.cases[1:] {
		if !strings.Contains(caseText, "patient is pregnant") {
			t.Errorf("round %d prompt lost the information: %q", i+2, caseText)
		}
	}
	// by round 5 the case note has aged out of the three-round digest; the
	// case text is what keeps it in the prompt
	last := a.digests[len(a.digests)-1]
	for _, line := range last {
		if strings.Contains(line, "patient is pregnant") {
			t.Errorf("case note still in the digest at round 5: %q", line)
		}
	}
}

func TestQuestionToParticipant(t *testing.T) {
	a := &fake{name: "surgery", text: "resect"}
	b := &fake{name: "oncology", text: "stage"}
	rec, sched, broker := newRun([]participant.Participant{a, b},
		SchedulerOptions{MaxRounds: 1, InterventionsEnabled: true})

	a.onGenerate = func(participant.GenerateRequest) {
		broker.Submit("s1", intervention.QuestionToParticipant,
			intervention.Payload{Target: "Oncology", Question: "what stage?"})
	}

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.Interventions) != 1 {
		t.Fatalf("interventions = %d, want 1", len(rec.Interventions))
	}
	iv := rec.Interventions[0]
	if iv.Status != intervention.StatusCompleted {
		t.Fatalf("status = %s: %s", iv.Status, iv.Err)
	}
	if iv.Response != "oncology answers: what stage?" {
		t.Errorf("response = %q", iv.Response)
	}
	// oncology answers the question and still contributes to the round
	if b.calls != 2 {
		t.Errorf("oncology calls = %d, want 2", b.calls)
	}
}

func TestQuestionAnswerBoundedByCallTimeout(t *testing.T) {
	a := &fake{name: "surgery", text: "resect"}
	b := &fake{name: "oncology", text: "stage"}
	_, sched, broker := newRun([]participant.Participant{a, b},
		SchedulerOptions{MaxRounds: 1, InterventionsEnabled: true, PerCallTimeout: time.Minute})

	a.onGenerate = func(participant.GenerateRequest) {
		broker.Submit("s1", intervention.QuestionToParticipant,
			intervention.Payload{Target: "oncology", Question: "what stage?"})
	}

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if b.calls != 2 {
		t.Fatalf("oncology calls = %d, want 2", b.calls)
	}
	// the question answer and the round contribution both run under the
	// per-call deadline
	for i, bounded := range b.deadlines {
		if !bounded {
			t.Errorf("call %d ran without a deadline", i+1)
		}
	}
}

func TestQuestionToUnknownParticipantFails(t *testing.T) {
	a := &fake{name: "surgery", text: "resect"}
	rec, sched, broker := newRun([]participant.Participant{a},
		SchedulerOptions{MaxRounds: 1, InterventionsEnabled: true})

	a.onGenerate = func(participant.GenerateRequest) {
		broker.Submit("s1", intervention.QuestionToParticipant,
			intervention.Payload{Target: "dermatology", Question: "rash?"})
	}

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.State != StateCompleted {
		t.Fatalf("state = %s, want completed", rec.State)
	}
	if len(rec.Interventions) != 1 || rec.Interventions[0].Status != intervention.StatusFailed {
		t.Errorf("intervention = %+v", rec.Interventions)
	}
}

func TestBroadcastRecordsSyntheticRound(t *testing.T) {
	a := &fake{name: "surgery", text: "resect"}
	b := &fake{name: "oncology", text: "stage"}
	rec, sched, broker := newRun([]participant.Participant{a, b},
		SchedulerOptions{MaxRounds: 1, InterventionsEnabled: true})

	a.onGenerate = func(participant.GenerateRequest) {
		if a.calls == 1 {
			broker.Submit("s1", intervention.BroadcastQuestion,
				intervention.Payload{Question: "any contraindications?"})
		}
	}

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var synthetic *Round
	for i := range rec.Rounds {
		if rec.Rounds[i].Kind == RoundBroadcast {
			synthetic = &rec.Rounds[i]
		}
	}
	if synthetic == nil {
		t.Fatalf("no broadcast round recorded: %+v", rec.Rounds)
	}
	if synthetic.Label != "broadcast 1" {
		t.Errorf("label = %q", synthetic.Label)
	}
	if len(synthetic.Contributions) != 2 {
		t.Errorf("broadcast contributions = %d, want 2", len(synthetic.Contributions))
	}
	if rec.Interventions[0].Response != "2 of 2 participants answered" {
		t.Errorf("response = %q", rec.Interventions[0].Response)
	}
}

func TestRunErrorsOnCanceledContext(t *testing.T) {
	a := &fake{name: "surgery", text: "resect"}
	rec, sched, _ := newRun([]participant.Participant{a}, SchedulerOptions{MaxRounds: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sched.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if rec.State != StateErrored || rec.LastError == "" {
		t.Errorf("state = %s, lastError = %q", rec.State, rec.LastError)
	}
}

func TestStatusSnapshot(t *testing.T) {
	a := &fake{name: "surgery", text: "resect"}
	b := &fake{name: "oncology", text: "stage"}
	_, sched, _ := newRun([]participant.Participant{a, b}, SchedulerOptions{MaxRounds: 2})

	snap := sched.Status()
	if snap.State != StateIdle || snap.MaxRounds != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap = sched.Status()
	if snap.State != StateCompleted || snap.CurrentRound != 2 {
		t.Errorf("snapshot after run = %+v", snap)
	}
	if len(snap.ActiveParticipants) != 2 {
		t.Errorf("participants = %v", snap.ActiveParticipants)
	}
}

func TestAggregateUsesDecisionParticipant(t *testing.T) {
	decision := &fake{name: "chair", text: "final plan"}
	rec := &Record{
		ID:           "d1",
		CaseText:     "case",
		Participants: []string{"surgery", "oncology"},
		Rounds: []Round{{
			Index: 1, Label: "round 1", Kind: RoundNormal,
			Contributions: []Contribution{
				{Participant: "surgery", Text: "resect", Succeeded: true},
				{Participant: "oncology", Text: "stage", Succeeded: true},
			},
		}},
	}

	agg := NewAggregator(decision, quietLogger())
	got := agg.Aggregate(context.Background(), rec)
	if !strings.HasPrefix(got, "chair opinion 1") {
		t.Errorf("Aggregate = %q", got)
	}
	if len(decision.digests[0]) != 2 {
		t.Errorf("decision saw %d opinions, want 2", len(decision.digests[0]))
	}
}

func TestAggregateFallsBackDeterministically(t *testing.T) {
	decision := &fake{name: "chair", err: errors.New("model unavailable")}
	rec := &Record{
		ID:           "d1",
		CaseText:     "case",
		Participants: []string{"surgery", "oncology"},
		Rounds: []Round{
			{
				Index: 1, Label: "round 1",
				Contributions: []Contribution{
					{Participant: "surgery", Text: "early opinion", Succeeded: true},
					{Participant: "oncology", Text: "stage", Succeeded: true},
				},
			},
			{
				Index: 2, Label: "round 2",
				Contributions: []Contribution{
					{Participant: "surgery", Text: "final position", Succeeded: true},
				},
			},
		},
	}

	agg := NewAggregator(decision, quietLogger())
	first := agg.Aggregate(context.Background(), rec)
	second := agg.Aggregate(context.Background(), rec)
	if first != second {
		t.Errorf("fallback not deterministic")
	}
	if !strings.Contains(first, "final position") {
		t.Errorf("fallback must use the latest contribution: %q", first)
	}
	if strings.Contains(first, "early opinion") {
		t.Errorf("fallback must not include superseded contributions: %q", first)
	}
	// fixed participant order
	if strings.Index(first, "surgery") > strings.Index(first, "oncology") {
		t.Errorf("fallback order wrong: %q", first)
	}
}

func TestAggregateEmptyDiscussion(t *testing.T) {
	decision := &fake{name: "chair", text: "plan"}
	agg := NewAggregator(decision, quietLogger())
	got := agg.Aggregate(context.Background(), &Record{ID: "d1", CaseText: "case"})
	if !strings.Contains(got, "No contributions") {
		t.Errorf("Aggregate = %q", got)
	}
	if decision.calls != 0 {
		t.Errorf("decision participant called for empty discussion")
	}
}
