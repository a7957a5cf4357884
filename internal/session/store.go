// Package session provides the keyed per-session state store that every
// other orchestration component reads and mutates.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoDefaultConfig is returned by Get when a session would need to be
// created but the store was constructed without a default configuration.
var ErrNoDefaultConfig = errors.New("session store has no default configuration")

// Config controls how new sessions are initialized.
type Config struct {
	// MaxToolHistory bounds State.ToolHistory (default: 100).
	MaxToolHistory int `koanf:"max_tool_history"`

	// InitialPhase is the phase new sessions start in (default: idle).
	InitialPhase Phase `koanf:"initial_phase"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxToolHistory: 100,
		InitialPhase:   PhaseIdle,
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.MaxToolHistory <= 0 {
		return fmt.Errorf("max_tool_history must be > 0, got %d", c.MaxToolHistory)
	}
	if !c.InitialPhase.Valid() {
		return fmt.Errorf("initial_phase %q is not a known phase", c.InitialPhase)
	}
	return nil
}

// Store is the keyed container of per-session state.
//
// Mutation helpers are deliberately no-ops (not errors) when the session
// does not exist, so callers never need existence checks before firing
// telemetry-style updates.
type Store struct {
	mu       sync.RWMutex
	config   *Config
	logger   *zap.Logger
	sessions map[string]*State
}

// NewStore creates a store. A nil config is allowed; Get then fails with
// ErrNoDefaultConfig instead of lazily creating sessions.
func NewStore(cfg *Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		config:   cfg,
		logger:   logger,
		sessions: make(map[string]*State),
	}
}

// Get returns the session state for id, lazily creating it from the
// default configuration.
func (s *Store) Get(id string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.sessions[id]; ok {
		return st, nil
	}
	if s.config == nil {
		return nil, ErrNoDefaultConfig
	}

	now := time.Now()
	st := &State{
		ID:             id,
		CreatedAt:      now,
		LastActivityAt: now,
		Phase:          s.config.InitialPhase,
		Workflow: WorkflowState{
			CurrentPhase: s.config.InitialPhase,
			StartedAt:    now,
		},
		Metadata: make(map[string]any),
	}
	s.sessions[id] = st
	s.logger.Debug("session created", zap.String("session_id", id))
	return st, nil
}

// Lookup returns the session state for id without creating it.
func (s *Store) Lookup(id string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	return st, ok
}

// Delete removes a session. Idempotent.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SetMetadata stores a scoped key-value pair on an existing session.
// No-op when the session does not exist.
func (s *Store) SetMetadata(id, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return
	}
	if st.Metadata == nil {
		st.Metadata = make(map[string]any)
	}
	st.Metadata[key] = value
	st.LastActivityAt = time.Now()
}

// GetMetadata returns a metadata value for an existing session.
func (s *Store) GetMetadata(id, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	v, ok := st.Metadata[key]
	return v, ok
}

// IncrementErrorCount bumps the strike counter and returns the new value.
// Returns 0 without creating anything when the session does not exist.
func (s *Store) IncrementErrorCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return 0
	}
	st.ErrorCount++
	st.LastActivityAt = time.Now()
	return st.ErrorCount
}

// ResetErrorCount zeroes the strike counter. No-op when missing.
func (s *Store) ResetErrorCount(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return
	}
	st.ErrorCount = 0
	st.LastActivityAt = time.Now()
}

// SetPhase updates the fast-access phase mirror. Workflow history is the
// phase engine's responsibility; this only keeps the mirror in sync.
func (s *Store) SetPhase(id string, phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return
	}
	st.Phase = phase
	st.Workflow.CurrentPhase = phase
	st.LastActivityAt = time.Now()
}

// CurrentPhase returns an existing session's phase under the store's
// lock. Callers must not read Phase through the pointer from Lookup when
// other goroutines may be transitioning the session.
func (s *Store) CurrentPhase(id string) (Phase, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return "", false
	}
	return st.Phase, true
}

// TryTransition records a workflow transition and updates the current
// phase, but only while the session's phase still equals tr.From. A
// concurrent transition that got there first makes this a no-op. Reports
// whether tr was applied.
func (s *Store) TryTransition(id string, tr PhaseTransition) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok || st.Phase != tr.From {
		return false
	}
	st.Workflow.PhaseHistory = append(st.Workflow.PhaseHistory, tr)
	st.Workflow.CurrentPhase = tr.To
	st.Phase = tr.To
	if tr.To == PhaseIdle && tr.From == PhaseVerification {
		st.Workflow.Completed = true
	}
	st.LastActivityAt = tr.Timestamp
	return true
}

// SetIntent records the classified intent for a session. No-op when missing.
func (s *Store) SetIntent(id, intent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return
	}
	st.Workflow.Intent = intent
	st.LastActivityAt = time.Now()
}

// AddToolExecution appends to the bounded tool history, evicting the
// oldest entry past the cap. No-op when missing.
func (s *Store) AddToolExecution(id string, exec ToolExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return
	}
	st.ToolHistory = append(st.ToolHistory, exec)
	max := 100
	if s.config != nil && s.config.MaxToolHistory > 0 {
		max = s.config.MaxToolHistory
	}
	if len(st.ToolHistory) > max {
		st.ToolHistory = st.ToolHistory[len(st.ToolHistory)-max:]
	}
	st.LastActivityAt = time.Now()
}

// UpdateTodos syncs the denormalized todo counters. No-op when missing.
func (s *Store) UpdateTodos(id string, total, completed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return
	}
	st.TodoCount = total
	st.TodosCompleted = completed
	st.LastActivityAt = time.Now()
}

// Snapshot returns a deep copy of a session's state, suitable for
// read-only inspection outside the store's lock.
func (s *Store) Snapshot(id string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	cp := *st
	cp.ToolHistory = append([]ToolExecution(nil), st.ToolHistory...)
	cp.Workflow.PhaseHistory = append([]PhaseTransition(nil), st.Workflow.PhaseHistory...)
	cp.Metadata = make(map[string]any, len(st.Metadata))
	for k, v := range st.Metadata {
		cp.Metadata[k] = v
	}
	return &cp, true
}
