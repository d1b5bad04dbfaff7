// Package sessionmgr implements the Session Manager (spec.md §4.9): a
// registry of concurrent analysis sessions bounded by maxSessions, with
// an idle-timeout sweeper and a completed-session cache TTL so finished
// sessions stay retrievable for a while before being reclaimed. Grounded
// on the teacher's pkg/guardrails.Manager (GetOrCreate/Remove/cleanupLoop).
package sessionmgr

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/harvestcore/harvest/internal/errs"
	"github.com/harvestcore/harvest/internal/llm"
	"github.com/harvestcore/harvest/internal/session"
	"github.com/harvestcore/harvest/internal/trust"
	"github.com/harvestcore/harvest/internal/vault"
)

// Options configures a Manager's capacity and sweep cadence.
type Options struct {
	MaxSessions              int
	IdleTimeout              time.Duration
	CompletedSessionCacheTTL time.Duration
	CleanupInterval          time.Duration
	ChainKey                 []byte
	Tracer                   trace.Tracer
	Vault                    *vault.Client
}

type entry struct {
	sess        *session.Session
	completedAt time.Time
	isCompleted bool
}

// Manager owns the set of live sessions and their lifecycle.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	opts     Options

	stop chan struct{}
	done chan struct{}
}

// New constructs a Manager and starts its background sweeper.
func New(opts Options) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 100
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.CompletedSessionCacheTTL <= 0 {
		opts.CompletedSessionCacheTTL = 60 * time.Minute
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 5 * time.Minute
	}
	m := &Manager{
		sessions: map[string]*entry{},
		opts:     opts,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Create registers a new session under id, evicting the least-recently
// active session first if the registry is already at MaxSessions.
func (m *Manager) Create(id, prompt string, provider llm.Provider) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return nil, errs.New(errs.KindSessionAlreadyInit, "session %s already exists", id)
	}

	if len(m.sessions) >= m.opts.MaxSessions {
		if !m.evictOldestLocked() {
			return nil, errs.New(errs.KindSessionAtCapacity, "session manager at capacity (%d)", m.opts.MaxSessions)
		}
	}

	sess := session.New(id, prompt, provider, m.opts.Tracer, m.opts.ChainKey, m.opts.Vault)
	m.sessions[id] = &entry{sess: sess}
	return sess, nil
}

// evictOldestLocked removes the least-recently-active non-terminal
// session to make room for a new one. It never evicts a session that
// has already reached a terminal state (those are reclaimed by the
// completed-session TTL sweep instead). Returns false if nothing was
// evicted.
func (m *Manager) evictOldestLocked() bool {
	var oldestID string
	var oldestAt time.Time
	for id, e := range m.sessions {
		if e.isCompleted {
			continue
		}
		last := e.sess.Progress().LastActivityAt
		if oldestID == "" || last.Before(oldestAt) {
			oldestID = id
			oldestAt = last
		}
	}
	if oldestID == "" {
		return false
	}
	delete(m.sessions, oldestID)
	return true
}

// Get returns the session registered under id.
func (m *Manager) Get(id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, errs.New(errs.KindSessionNotFound, "session %s not found", id)
	}
	return e.sess, nil
}

// MarkCompleted records id as having reached a terminal state at t, so
// the sweeper can expire it via CompletedSessionCacheTTL rather than
// IdleTimeout. Callers invoke this right after a transition into
// codeGenerated, failed, or cancelled.
func (m *Manager) MarkCompleted(id string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok {
		e.isCompleted = true
		e.completedAt = t
	}
}

// List returns every registered session id in deterministic (sorted) order.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Delete removes a session immediately, regardless of its state.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return errs.New(errs.KindSessionNotFound, "session %s not found", id)
	}
	delete(m.sessions, id)
	return nil
}

// ClearAll removes every registered session.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = map[string]*entry{}
}

// Len reports the number of currently registered sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Evidence exports the signed audit-chain bundle for id.
func (m *Manager) Evidence(id string) (trust.SessionEvidence, error) {
	sess, err := m.Get(id)
	if err != nil {
		return trust.SessionEvidence{}, err
	}
	return sess.Evidence(), nil
}

// Stop halts the background sweeper and waits for it to exit.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Manager) sweepLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.opts.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

// sweep removes sessions idle longer than IdleTimeout and completed
// sessions older than CompletedSessionCacheTTL.
func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.sessions {
		if e.isCompleted {
			if now.Sub(e.completedAt) > m.opts.CompletedSessionCacheTTL {
				delete(m.sessions, id)
			}
			continue
		}
		if now.Sub(e.sess.Progress().LastActivityAt) > m.opts.IdleTimeout {
			delete(m.sessions, id)
		}
	}
}

// EvictIdle implements monitor.Cleaner: an out-of-band eviction pass the
// memory monitor triggers on sustained heap growth, independent of the
// sweeper's own ticker. Reuses the same idle/completed thresholds as
// sweep, returning the number of sessions removed.
func (m *Manager) EvictIdle() int {
	before := m.Len()
	m.sweep(time.Now())
	return before - m.Len()
}

// RunWithContext blocks sweeping until ctx is done, for callers wiring
// the manager's lifetime to process shutdown instead of calling Stop
// directly.
func RunWithContext(ctx context.Context, m *Manager) {
	<-ctx.Done()
	m.Stop()
}
