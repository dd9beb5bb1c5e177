package intervention

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound means no intervention with that id is known.
	ErrNotFound = errors.New("intervention not found")
	// ErrAlreadyClaimed means the intervention is not in a claimable state.
	ErrAlreadyClaimed = errors.New("intervention already claimed")
	// ErrNoHandler means the handler table has no entry for the kind.
	ErrNoHandler = errors.New("no handler for intervention kind")
)

// Handler executes one claimed intervention and produces its response text.
type Handler func(ctx context.Context, iv *Intervention) (string, error)

// HandlerTable maps each kind to its handler.
type HandlerTable map[Kind]Handler

// Broker is the single hand-off point between operators and a discussion.
// Operators Submit; exactly one consumer polls Next and Resolves at its
// checkpoints. Submit and Next never block.
type Broker struct {
	mu      sync.Mutex
	queue   []string
	table   map[string]*Intervention
	order   []string
	entropy *ulid.MonotonicEntropy
	logger  *slog.Logger
	now     func() time.Time
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithLogger sets the broker logger.
func WithLogger(l *slog.Logger) BrokerOption {
	return func(b *Broker) { b.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) { b.now = now }
}

// NewBroker returns an empty broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		table:   make(map[string]*Intervention),
		entropy: ulid.Monotonic(rand.Reader, 0),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Submit enqueues an intervention and returns its assigned id.
// It validates the kind-specific payload and never blocks on the consumer.
func (b *Broker) Submit(sessionID string, kind Kind, payload Payload) (*Intervention, error) {
	if err := validatePayload(kind, payload); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	iv := &Intervention{
		ID:          ulid.MustNew(ulid.Timestamp(now), b.entropy).String(),
		SessionID:   sessionID,
		Kind:        kind,
		Payload:     payload,
		Status:      StatusPending,
		SubmittedAt: now,
	}
	b.table[iv.ID] = iv
	b.queue = append(b.queue, iv.ID)
	b.order = append(b.order, iv.ID)

	b.logger.Info("intervention submitted",
		"intervention", iv.ID, "kind", string(kind), "session", sessionID)
	return snapshot(iv), nil
}

func validatePayload(kind Kind, p Payload) error {
	switch kind {
	case QuestionToParticipant:
		if p.Target == "" || p.Question == "" {
			return fmt.Errorf("%s requires target and question", kind)
		}
	case BroadcastQuestion:
		if p.Question == "" {
			return fmt.Errorf("%s requires question", kind)
		}
	case AddInformation:
		if p.Information == "" {
			return fmt.Errorf("%s requires information", kind)
		}
	case SkipRound, Terminate:
		// no payload
	default:
		return fmt.Errorf("unknown intervention kind %q", kind)
	}
	return nil
}

// Next claims the oldest pending intervention and marks it Processing.
// It returns nil when the queue is empty.
func (b *Broker) Next() *Intervention {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil
	}
	id := b.queue[0]
	b.queue = b.queue[1:]
	iv := b.table[id]
	iv.Status = StatusProcessing
	return snapshot(iv)
}

// Resolve runs the handler for a claimed intervention and records the
// terminal outcome. Handler panics are contained and count as failures.
// Resolving anything not in Processing returns ErrAlreadyClaimed.
func (b *Broker) Resolve(ctx context.Context, id string, handlers HandlerTable) (*Intervention, error) {
	b.mu.Lock()
	iv, ok := b.table[id]
	if !ok {
		b.mu.Unlock()
		return nil, ErrNotFound
	}
	if iv.Status != StatusProcessing {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyClaimed, id, iv.Status)
	}
	h, ok := handlers[iv.Kind]
	claimed := *iv
	b.mu.Unlock()

	if !ok {
		return b.finish(id, "", fmt.Errorf("%w: %s", ErrNoHandler, claimed.Kind))
	}

	response, err := runHandler(ctx, h, &claimed)
	return b.finish(id, response, err)
}

func runHandler(ctx context.Context, h Handler, iv *Intervention) (response string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("intervention handler panicked: %v", r)
		}
	}()
	return h(ctx, iv)
}

func (b *Broker) finish(id, response string, err error) (*Intervention, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	iv := b.table[id]
	iv.ResolvedAt = b.now()
	iv.Response = response
	if err != nil {
		iv.Status = StatusFailed
		iv.Err = err.Error()
		b.logger.Warn("intervention failed",
			"intervention", id, "kind", string(iv.Kind), "error", err)
	} else {
		iv.Status = StatusCompleted
		b.logger.Info("intervention completed",
			"intervention", id, "kind", string(iv.Kind))
	}
	return snapshot(iv), nil
}

// Status returns the current state of one intervention.
func (b *Broker) Status(id string) (*Intervention, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	iv, ok := b.table[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(iv), nil
}

// History returns resolved interventions in submission order. A non-empty
// sessionID filters to that session.
func (b *Broker) History(sessionID string) []*Intervention {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*Intervention
	for _, id := range b.order {
		iv := b.table[id]
		if !iv.Status.Terminal() {
			continue
		}
		if sessionID != "" && iv.SessionID != sessionID {
			continue
		}
		out = append(out, snapshot(iv))
	}
	return out
}

// Pending reports how many interventions await a consumer.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func snapshot(iv *Intervention) *Intervention {
	cp := *iv
	return &cp
}
