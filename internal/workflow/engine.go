// Package workflow drives the per-session workflow phase state machine
// from tool-usage heuristics.
package workflow

import (
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/atreides/internal/session"
)

// transitions is the fixed phase transition table. A requested transition
// absent from the current phase's set is silently rejected.
var transitions = map[session.Phase][]session.Phase{
	session.PhaseIdle:           {session.PhaseIntent},
	session.PhaseIntent:         {session.PhaseAssessment, session.PhaseExploration},
	session.PhaseAssessment:     {session.PhaseExploration, session.PhaseImplementation},
	session.PhaseExploration:    {session.PhaseImplementation, session.PhaseAssessment},
	session.PhaseImplementation: {session.PhaseVerification, session.PhaseExploration},
	session.PhaseVerification:   {session.PhaseIntent, session.PhaseImplementation, session.PhaseIdle},
}

// Engine owns phase transitions for all sessions in a store.
type Engine struct {
	store   *session.Store
	logger  *zap.Logger
	metrics *Metrics
}

// NewEngine creates a phase engine over the given store.
func NewEngine(store *session.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		logger:  logger.Named("workflow"),
		metrics: NewMetrics(),
	}
}

// Allowed reports whether from→to is present in the transition table.
func Allowed(from, to session.Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Transition attempts to move a session to a new phase. Returns true if
// the transition was accepted. Rejections are debug-logged, never errors.
func (e *Engine) Transition(sessionID string, to session.Phase, triggeredBy string) bool {
	from, ok := e.store.CurrentPhase(sessionID)
	if !ok || from == to {
		return false
	}
	if !Allowed(from, to) {
		e.logger.Debug("phase transition rejected",
			zap.String("session_id", sessionID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("triggered_by", triggeredBy))
		return false
	}

	// The store re-checks From under its own lock; a concurrent hook may
	// have moved the session between the read above and this call.
	if !e.store.TryTransition(sessionID, session.PhaseTransition{
		From:        from,
		To:          to,
		Timestamp:   time.Now(),
		TriggeredBy: triggeredBy,
	}) {
		return false
	}
	e.metrics.RecordTransition(from, to)
	e.logger.Debug("phase transition accepted",
		zap.String("session_id", sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("triggered_by", triggeredBy))
	return true
}

// ObserveTool inspects an executed tool and the current phase, and
// transitions the session when the tool suggests a reachable phase.
func (e *Engine) ObserveTool(sessionID, tool, commandText string) {
	phase, ok := e.store.CurrentPhase(sessionID)
	if !ok {
		return
	}
	suggested, ok := SuggestPhase(tool, commandText, phase)
	if !ok {
		return
	}
	e.Transition(sessionID, suggested, tool)
}

// ClassifyPrompt classifies free-text user intent, records it on the
// session, and enters the intent phase from idle.
func (e *Engine) ClassifyPrompt(sessionID, text string) string {
	intent := ClassifyIntent(text)
	if intent != IntentUnknown {
		e.store.SetIntent(sessionID, intent)
	}
	e.Transition(sessionID, session.PhaseIntent, "prompt")
	return intent
}
