// Package session tracks per-conversation history and serializes queries
// within a conversation so turn ordering stays deterministic.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"medrag/internal/domain"
)

// ExpiredPolicy decides what happens when a query hits a session past
// its idle timeout.
type ExpiredPolicy string

const (
	// PolicyRollover transparently restarts the session under the same
	// ID with empty history. The default.
	PolicyRollover ExpiredPolicy = "rollover"
	// PolicyError rejects the query with domain.ErrSessionExpired.
	PolicyError ExpiredPolicy = "error"
)

// ParsePolicy validates a configured policy name. Empty defaults to
// rollover.
func ParsePolicy(name string) (ExpiredPolicy, error) {
	switch ExpiredPolicy(name) {
	case "", PolicyRollover:
		return PolicyRollover, nil
	case PolicyError:
		return PolicyError, nil
	default:
		return "", fmt.Errorf("%w: unknown session expiry policy %q", domain.ErrConfig, name)
	}
}

// Answerer runs the query path for a single turn given the session's
// prior history. Implemented by the pipeline service.
type Answerer interface {
	Answer(ctx context.Context, query string, history []domain.Turn) (domain.Answer, []string, error)
}

// Config tunes the session manager.
type Config struct {
	// IdleTimeout expires a session this long after its last turn.
	// Zero disables expiry.
	IdleTimeout time.Duration
	// Policy selects the behavior on expired sessions.
	Policy ExpiredPolicy
	// SweepInterval is how often the janitor evicts expired sessions.
	// Defaults to half the idle timeout.
	SweepInterval time.Duration
}

type state struct {
	mu       sync.Mutex
	turns    []domain.Turn
	lastSeen time.Time
}

// Manager owns the session store. Queries within one session run in
// submission order under the session lock; different sessions run fully
// in parallel.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*state
	answerer Answerer
	idle     time.Duration
	policy   ExpiredPolicy
	now      func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates the session manager and, when expiry is enabled,
// starts a background janitor that evicts idle sessions.
func NewManager(answerer Answerer, cfg Config) *Manager {
	if cfg.Policy == "" {
		cfg.Policy = PolicyRollover
	}
	m := &Manager{
		sessions: make(map[string]*state),
		answerer: answerer,
		idle:     cfg.IdleTimeout,
		policy:   cfg.Policy,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	if m.idle > 0 {
		interval := cfg.SweepInterval
		if interval <= 0 {
			interval = m.idle / 2
		}
		go m.janitor(interval)
	}
	return m
}

// NewID mints a fresh session identifier.
func NewID() string { return uuid.NewString() }

// Query answers one turn within the session and appends it to the
// history. The session is created on first use.
func (m *Manager) Query(ctx context.Context, sessionID, text string) (domain.Answer, error) {
	st, err := m.checkout(sessionID)
	if err != nil {
		return domain.Answer{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	history := make([]domain.Turn, len(st.turns))
	copy(history, st.turns)

	answer, chunkIDs, err := m.answerer.Answer(ctx, text, history)
	if err != nil {
		return domain.Answer{}, err
	}
	now := m.now()
	st.turns = append(st.turns, domain.Turn{
		Query:    text,
		Answer:   answer.Text,
		ChunkIDs: chunkIDs,
		At:       now,
	})
	m.touch(st, now)
	return answer, nil
}

// touch refreshes the idle clock. lastSeen is guarded by the manager
// lock so the janitor and checkout never race a finishing turn.
func (m *Manager) touch(st *state, now time.Time) {
	m.mu.Lock()
	st.lastSeen = now
	m.mu.Unlock()
}

// History returns a copy of the session's recorded turns.
func (m *Manager) History(sessionID string) []domain.Turn {
	m.mu.Lock()
	st, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]domain.Turn, len(st.turns))
	copy(out, st.turns)
	return out
}

// ActiveSessions reports how many sessions are currently stored.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the janitor.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// checkout finds or creates the session state, applying the expiry
// policy under the manager lock.
func (m *Manager) checkout(sessionID string) (*state, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	st, ok := m.sessions[sessionID]
	if ok && m.expired(st, now) {
		if m.policy == PolicyError {
			return nil, fmt.Errorf("%w: session %s idle past %s", domain.ErrSessionExpired, sessionID, m.idle)
		}
		ok = false
	}
	if !ok {
		st = &state{lastSeen: now}
		m.sessions[sessionID] = st
	}
	return st, nil
}

// expired must be called with the manager lock held.
func (m *Manager) expired(st *state, now time.Time) bool {
	return m.idle > 0 && now.Sub(st.lastSeen) > m.idle
}

func (m *Manager) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep drops sessions idle past the timeout.
func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, st := range m.sessions {
		if m.expired(st, now) {
			delete(m.sessions, id)
		}
	}
}
