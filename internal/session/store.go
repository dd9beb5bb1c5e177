package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Store is an in-memory session store with sliding expiration. One mutex
// guards the whole map: session counts are small and contention is not a
// design target here.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*sessionData
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	cron    *cron.Cron
	sweepID cron.EntryID
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides the time source; used by expiry boundary tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a session store with the given idle timeout.
func NewStore(timeout time.Duration, opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]*sessionData),
		timeout:  timeout,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new session for the owner and returns its ID.
func (s *Store) Create(ownerID string, preferences map[string]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := generateSecureID()
	now := s.now()
	prefs := make(map[string]string, len(preferences))
	for k, v := range preferences {
		prefs[k] = v
	}
	s.sessions[id] = &sessionData{
		id:           id,
		ownerID:      ownerID,
		createdAt:    now,
		lastActivity: now,
		preferences:  prefs,
		attached:     make(map[string]any),
	}

	s.logger.Info("session created", "session", id, "owner", ownerID)
	return id
}

// Validate reports whether the session exists and has not expired. On
// success it refreshes the activity timestamp: every read extends the lease.
// Unknown or expired IDs are not errors; they yield (false, nil).
func (s *Store) Validate(id string) (bool, *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false, nil
	}

	now := s.now()
	if now.Sub(sess.lastActivity) > s.timeout {
		delete(s.sessions, id)
		s.logger.Info("session expired", "session", id, "owner", sess.ownerID)
		return false, nil
	}

	sess.lastActivity = now
	return true, sess.handle()
}

// Touch refreshes the activity timestamp without returning a handle.
func (s *Store) Touch(id string) bool {
	ok, _ := s.Validate(id)
	return ok
}

// Destroy removes a session. Returns false for unknown IDs.
func (s *Store) Destroy(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	s.logger.Info("session destroyed", "session", id, "owner", sess.ownerID)
	return true
}

// Attach stores a value in the session's attached-state map.
func (s *Store) Attach(id, key string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.attached[key] = value
	return true
}

// AttachIfAbsent stores a value only when the key has no current value, with
// check and store under one lock. It reports whether the value was stored;
// unknown sessions report false.
func (s *Store) AttachIfAbsent(id, key string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	if _, taken := sess.attached[key]; taken {
		return false
	}
	sess.attached[key] = value
	return true
}

// Detach removes a value from the session's attached-state map.
func (s *Store) Detach(id, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		delete(sess.attached, key)
	}
}

// Attached returns a value from the session's attached-state map.
func (s *Store) Attached(id, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	v, ok := sess.attached[key]
	return v, ok
}

// OwnerSessions returns the IDs of an owner's live sessions.
func (s *Store) OwnerSessions(ownerID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, sess := range s.sessions {
		if sess.ownerID == ownerID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Stats returns session counts and the mean session age.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Count:    len(s.sessions),
		PerOwner: make(map[string]int),
	}

	now := s.now()
	var total time.Duration
	for _, sess := range s.sessions {
		stats.PerOwner[sess.ownerID]++
		total += now.Sub(sess.createdAt)
	}
	if stats.Count > 0 {
		stats.MeanAge = total / time.Duration(stats.Count)
	}
	stats.OwnerUniq = len(stats.PerOwner)
	return stats
}

// sweep removes every session whose lease has lapsed. Races with Validate
// are resolved by the mutex: a session can be validated and then reaped
// only if its lease has in fact expired in between.
func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastActivity) > s.timeout {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("session sweep", "removed", removed, "remaining", len(s.sessions))
	}
}

// StartSweeper begins evicting expired sessions on a fixed interval.
func (s *Store) StartSweeper(interval time.Duration) error {
	c := cron.New()
	id, err := c.AddFunc("@every "+interval.String(), s.sweep)
	if err != nil {
		return err
	}
	s.cron = c
	s.sweepID = id
	c.Start()
	s.logger.Info("session sweeper started", "interval", interval, "timeout", s.timeout)
	return nil
}

// StopSweeper stops the sweep schedule and waits, bounded by ctx, for an
// in-flight sweep to finish.
func (s *Store) StopSweeper(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
