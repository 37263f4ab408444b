// Package session tracks per-conversation state carried across turns.
package session

import (
	"sync"
	"time"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
)

// State is the accumulated memory for one conversation. All fields are
// optional; a missing entry behaves as the zero State.
type State struct {
	LastWorkflow models.Workflow
	RepoSummary  *models.RepoSummary
	ConfigRef    string
}

// EvictionPolicy decides whether an idle conversation entry should be
// dropped. The zero-config default keeps entries for the process lifetime.
type EvictionPolicy interface {
	Expired(lastTouched, now time.Time) bool
}

// NoExpiry keeps session state for the process lifetime.
type NoExpiry struct{}

func (NoExpiry) Expired(time.Time, time.Time) bool { return false }

// TTL evicts entries idle for longer than the given duration.
type TTL time.Duration

func (t TTL) Expired(lastTouched, now time.Time) bool {
	return now.Sub(lastTouched) > time.Duration(t)
}

type entry struct {
	mu      sync.Mutex
	state   State
	touched time.Time // guarded by Store.mu, not entry.mu
}

// Store is a keyed session-state store with per-conversation locking.
// A turn's classify-then-update and a detached job's terminal update both
// run under the conversation's entry lock, so neither can observe a
// partial state view.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	policy  EvictionPolicy
	clock   func() time.Time
}

// NewStore creates a session store with the given eviction policy.
// A nil policy means NoExpiry.
func NewStore(policy EvictionPolicy) *Store {
	if policy == nil {
		policy = NoExpiry{}
	}
	return &Store{
		entries: make(map[string]*entry),
		policy:  policy,
		clock:   time.Now,
	}
}

// get returns the entry for a conversation, creating it if absent and
// dropping it first if expired. The idle timestamp is refreshed here,
// under the store mutex; it is never written under the entry mutex alone,
// so Sweep can read it safely.
func (s *Store) get(conversationID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	e, ok := s.entries[conversationID]
	if ok && s.policy.Expired(e.touched, now) {
		delete(s.entries, conversationID)
		ok = false
	}
	if !ok {
		e = &entry{}
		s.entries[conversationID] = e
	}
	e.touched = now
	return e
}

// Update runs fn with exclusive access to the conversation's state.
// The entry is created on first use.
func (s *Store) Update(conversationID string, fn func(*State)) {
	e := s.get(conversationID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
}

// Snapshot returns a copy of the conversation's current state. Missing
// state reads as the zero State.
func (s *Store) Snapshot(conversationID string) State {
	s.mu.Lock()
	e, ok := s.entries[conversationID]
	if ok && s.policy.Expired(e.touched, s.clock()) {
		delete(s.entries, conversationID)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return State{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Sweep drops all expired entries and reports how many were removed.
// The server runs this on a ticker when a TTL policy is configured.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	removed := 0
	for id, e := range s.entries {
		if s.policy.Expired(e.touched, now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
