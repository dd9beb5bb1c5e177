package discussion

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/szaher/mdtboard/internal/intervention"
	"github.com/szaher/mdtboard/internal/participant"
	"github.com/szaher/mdtboard/internal/session"
	"github.com/szaher/mdtboard/internal/telemetry"
)

var (
	// ErrUnknownDiscussion means no discussion with that id exists.
	ErrUnknownDiscussion = errors.New("unknown discussion")
	// ErrUnknownIntervention means no intervention with that id exists.
	ErrUnknownIntervention = errors.New("unknown intervention")
	// ErrInvalidSession means the session is missing or expired.
	ErrInvalidSession = errors.New("invalid or expired session")
	// ErrSessionBusy means the session already has a running discussion.
	ErrSessionBusy = errors.New("session already has an active discussion")
	// ErrNotRunning means the discussion no longer accepts interventions.
	ErrNotRunning = errors.New("discussion is not running")
	// ErrShuttingDown means the engine no longer accepts new discussions.
	ErrShuttingDown = errors.New("engine is shutting down")
)

const activeDiscussionKey = "active_discussion"

// EngineOptions configure discussion execution.
type EngineOptions struct {
	Scheduler              SchedulerOptions
	DigestWindow           int
	ContributionCharBudget int
}

// StartRequest describes one discussion to run.
type StartRequest struct {
	SessionID    string
	CaseText     string
	Question     string
	Participants []participant.Participant
}

type instance struct {
	rec    *Record
	sched  *Scheduler
	broker *intervention.Broker
	done   chan struct{} // closed after aggregation, scoring, and archive
}

// Engine runs discussions in the background and is the entry point the
// server and CLI share: start, observe, intervene, and fetch records.
type Engine struct {
	store      *session.Store
	aggregator *Aggregator
	scorer     *Scorer
	archiver   Archiver
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	opts       EngineOptions

	mu            sync.Mutex
	discussions   map[string]*instance
	interventions map[string]string // intervention id -> discussion id
	closed        bool

	group   *errgroup.Group
	runCtx  context.Context
	cancel  context.CancelFunc
	entropy *ulid.MonotonicEntropy
}

// Archiver persists finished discussion records. A nil archiver disables
// persistence.
type Archiver interface {
	Save(ctx context.Context, rec *Record) error
}

// NewEngine builds an engine. Background discussions run until Shutdown.
func NewEngine(store *session.Store, aggregator *Aggregator, scorer *Scorer,
	archiver Archiver, metrics *telemetry.Metrics, logger *slog.Logger, opts EngineOptions) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	group, runCtx := errgroup.WithContext(runCtx)
	return &Engine{
		store:         store,
		aggregator:    aggregator,
		scorer:        scorer,
		archiver:      archiver,
		metrics:       metrics,
		logger:        logger,
		opts:          opts,
		discussions:   make(map[string]*instance),
		interventions: make(map[string]string),
		group:         group,
		runCtx:        runCtx,
		cancel:        cancel,
		entropy:       ulid.Monotonic(rand.Reader, 0),
	}
}

// Start validates the session, registers a new discussion, and runs it in
// the background. It returns the discussion id immediately.
func (e *Engine) Start(req StartRequest) (string, error) {
	if req.CaseText == "" {
		return "", errors.New("case text is required")
	}
	if len(req.Participants) == 0 {
		return "", errors.New("at least one participant is required")
	}
	ok, handle := e.store.Validate(req.SessionID)
	if !ok {
		return "", ErrInvalidSession
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrShuttingDown
	}
	id := ulid.MustNew(ulid.Timestamp(time.Now()), e.entropy).String()
	e.mu.Unlock()

	// one atomic claim per session; two racing Starts cannot both pass
	if !e.store.AttachIfAbsent(req.SessionID, activeDiscussionKey, id) {
		return "", ErrSessionBusy
	}

	names := make([]string, len(req.Participants))
	for i, p := range req.Participants {
		names[i] = p.Name()
	}
	rec := &Record{
		ID:           id,
		SessionID:    req.SessionID,
		OwnerID:      handle.OwnerID,
		State:        StateIdle,
		CaseText:     req.CaseText,
		Question:     req.Question,
		Participants: names,
		StartedAt:    time.Now(),
	}

	broker := intervention.NewBroker(intervention.WithLogger(e.logger))
	shared := NewSharedContext(e.opts.DigestWindow, e.opts.ContributionCharBudget)
	logger := telemetry.DiscussionLogger(e.logger, e.runCtx, req.SessionID, id)
	sched := NewScheduler(rec, shared, req.Participants, broker, e.opts.Scheduler, logger, e.metrics)

	inst := &instance{rec: rec, sched: sched, broker: broker, done: make(chan struct{})}

	// the closed re-check and group.Go share the lock so Shutdown cannot
	// slip between them and miss the new goroutine
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.store.Detach(req.SessionID, activeDiscussionKey)
		return "", ErrShuttingDown
	}
	e.discussions[id] = inst
	e.group.Go(func() error {
		defer e.store.Detach(req.SessionID, activeDiscussionKey)
		e.run(inst)
		return nil
	})
	e.mu.Unlock()

	logger.Info("discussion started", "participants", names)
	return id, nil
}

// run drives one discussion to its terminal state, then aggregates, scores,
// and archives it. Failures past the rounds never un-finish the record.
func (e *Engine) run(inst *instance) {
	defer close(inst.done)
	err := inst.sched.Run(e.runCtx)

	rec := inst.rec
	if err == nil && rec.State != StateErrored {
		decision := e.aggregator.Aggregate(e.runCtx, rec)
		quality, qerr := e.scorer.Score(rec)
		if qerr != nil {
			e.logger.Warn("quality scoring failed", "discussion", rec.ID, "error", qerr)
		}
		inst.sched.mu.Lock()
		rec.Decision = decision
		rec.Quality = quality
		inst.sched.mu.Unlock()
	}
	if e.metrics != nil {
		e.metrics.RecordDiscussion(string(rec.State))
	}

	if e.archiver != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if aerr := e.archiver.Save(saveCtx, rec); aerr != nil {
			e.logger.Warn("archive failed", "discussion", rec.ID, "error", aerr)
		}
	}
}

// Wait blocks until the discussion is fully finished, decision and quality
// included, then returns its record.
func (e *Engine) Wait(ctx context.Context, id string) (*Record, error) {
	inst, err := e.instance(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-inst.done:
	}
	return e.Record(id)
}

// Status returns the scheduler snapshot of a discussion.
func (e *Engine) Status(id string) (Snapshot, error) {
	inst, err := e.instance(id)
	if err != nil {
		return Snapshot{}, err
	}
	return inst.sched.Status(), nil
}

// Record returns a deep copy of the discussion record as it stands.
func (e *Engine) Record(id string) (*Record, error) {
	inst, err := e.instance(id)
	if err != nil {
		return nil, err
	}
	inst.sched.mu.Lock()
	defer inst.sched.mu.Unlock()
	return cloneRecord(inst.rec), nil
}

// Intervene submits an operator intervention against a running discussion.
func (e *Engine) Intervene(id string, kind intervention.Kind, payload intervention.Payload) (*intervention.Intervention, error) {
	inst, err := e.instance(id)
	if err != nil {
		return nil, err
	}
	if inst.sched.Status().State.Terminal() {
		return nil, ErrNotRunning
	}
	iv, err := inst.broker.Submit(inst.rec.SessionID, kind, payload)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.interventions[iv.ID] = id
	e.mu.Unlock()
	return iv, nil
}

// InterventionStatus looks an intervention up across all discussions.
func (e *Engine) InterventionStatus(ivID string) (*intervention.Intervention, error) {
	e.mu.Lock()
	discID, ok := e.interventions[ivID]
	inst := e.discussions[discID]
	e.mu.Unlock()
	if !ok || inst == nil {
		return nil, ErrUnknownIntervention
	}
	return inst.broker.Status(ivID)
}

func (e *Engine) instance(id string) (*instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.discussions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDiscussion, id)
	}
	return inst, nil
}

// Shutdown stops accepting discussions, cancels the running ones, and waits
// for their goroutines within the bound of ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()

	done := make(chan error, 1)
	go func() { done <- e.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cloneRecord(rec *Record) *Record {
	cp := *rec
	cp.Participants = append([]string(nil), rec.Participants...)
	cp.Rounds = make([]Round, len(rec.Rounds))
	for i, r := range rec.Rounds {
		cp.Rounds[i] = r
		cp.Rounds[i].Contributions = append([]Contribution(nil), r.Contributions...)
	}
	cp.Interventions = make([]*intervention.Intervention, len(rec.Interventions))
	for i, iv := range rec.Interventions {
		dup := *iv
		cp.Interventions[i] = &dup
	}
	if rec.Quality != nil {
		q := *rec.Quality
		q.Issues = append([]string(nil), rec.Quality.Issues...)
		cp.Quality = &q
	}
	return &cp
}
