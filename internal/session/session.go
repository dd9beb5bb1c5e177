// Package session manages bounded-lifetime discussion sessions: creation,
// sliding-expiration validation, destruction, and TTL-based eviction.
package session

import (
	"time"
)

// Handle is a read-only snapshot of a session at validation time. A handle
// does not keep the session alive: the store is the single source of truth,
// and a session absent from it is nonexistent regardless of cached handles.
type Handle struct {
	ID           string            `json:"id"`
	OwnerID      string            `json:"owner_id"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	Preferences  map[string]string `json:"preferences,omitempty"`
}

// Stats summarizes the live sessions held by a store.
type Stats struct {
	Count     int            `json:"count"`
	PerOwner  map[string]int `json:"per_owner"`
	MeanAge   time.Duration  `json:"mean_age"`
	OwnerUniq int            `json:"unique_owners"`
}

type sessionData struct {
	id           string
	ownerID      string
	createdAt    time.Time
	lastActivity time.Time
	preferences  map[string]string
	attached     map[string]any
}

func (s *sessionData) handle() *Handle {
	prefs := make(map[string]string, len(s.preferences))
	for k, v := range s.preferences {
		prefs[k] = v
	}
	return &Handle{
		ID:           s.id,
		OwnerID:      s.ownerID,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		Preferences:  prefs,
	}
}
