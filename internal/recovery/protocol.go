package recovery

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/atreides/internal/logging"
	"github.com/fyrsmithlabs/atreides/internal/session"
)

// maxErrorOutputLen bounds error output carried in escalation messages
// and preserved state.
const maxErrorOutputLen = 500

// Action is the protocol's response to a detected failure.
type Action string

const (
	// ActionNone means the execution was failure-free.
	ActionNone Action = "none"
	// ActionLogged means first strike, log only.
	ActionLogged Action = "logged"
	// ActionSuggested means second strike, surface recovery suggestions.
	ActionSuggested Action = "suggested"
	// ActionEscalated means third strike or beyond.
	ActionEscalated Action = "escalated"
)

// escalationThreshold is the strike count at which a session escalates.
const escalationThreshold = 3

// State is the per-session recovery side-table entry. It lives here,
// not in the session metadata bag, so the shape is statically checked.
type State struct {
	Escalated    bool
	EscalationID string
	EscalatedAt  time.Time
	TriggerTool  string
	ResolvedAt   time.Time
	LastError    string
	LastCategory Category
}

// Outcome is the result of checking one tool execution.
type Outcome struct {
	Action   Action
	Strikes  int
	Category Category
	// Message is the user-facing text for suggested/escalated actions.
	Message string
	// Resolved is set on the first failure-free execution after an
	// escalation.
	Resolved bool
}

// Protocol tracks strikes per session and decides the response.
type Protocol struct {
	store   *session.Store
	logger  *zap.Logger
	metrics *Metrics

	mu     sync.Mutex
	states map[string]*State
}

// NewProtocol creates a recovery protocol over the given store.
func NewProtocol(store *session.Store, logger *zap.Logger) *Protocol {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Protocol{
		store:   store,
		logger:  logger.Named("recovery"),
		metrics: NewMetrics(),
		states:  make(map[string]*State),
	}
}

// Check inspects a tool's output, updates the strike counter, and
// returns the action to take. The counter resets to zero on the first
// failure-free execution; an escalated session is then marked resolved
// while its escalation audit fields are retained.
func (p *Protocol) Check(sessionID, tool string, output map[string]any) Outcome {
	det := Detect(output)

	if !det.Failed {
		return p.recordSuccess(sessionID)
	}
	return p.recordFailure(sessionID, tool, det)
}

func (p *Protocol) recordSuccess(sessionID string) Outcome {
	p.store.ResetErrorCount(sessionID)

	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.states[sessionID]
	if !ok || !st.Escalated {
		return Outcome{Action: ActionNone}
	}

	st.Escalated = false
	st.ResolvedAt = time.Now()
	p.metrics.RecordResolution()
	p.logger.Info("escalation resolved",
		zap.String("session_id", sessionID),
		zap.String("escalation_id", st.EscalationID),
		zap.String("trigger_tool", st.TriggerTool))
	return Outcome{Action: ActionNone, Resolved: true}
}

func (p *Protocol) recordFailure(sessionID, tool string, det Detection) Outcome {
	strikes := p.store.IncrementErrorCount(sessionID)
	if strikes == 0 {
		// Unknown session: nothing to track.
		return Outcome{Action: ActionNone}
	}

	truncated := logging.Truncate(det.Output, maxErrorOutputLen)

	p.mu.Lock()
	st, ok := p.states[sessionID]
	if !ok {
		st = &State{}
		p.states[sessionID] = st
	}
	st.LastError = truncated
	st.LastCategory = det.Category
	p.mu.Unlock()

	p.metrics.RecordStrike(det.Category)

	switch {
	case strikes == 1:
		p.logger.Info("tool failure detected",
			zap.String("session_id", sessionID),
			zap.String("tool", tool),
			zap.String("indicator", det.Indicator),
			zap.String("category", string(det.Category)))
		return Outcome{Action: ActionLogged, Strikes: strikes, Category: det.Category}

	case strikes == 2:
		msg := suggestionMessage(det.Category)
		p.logger.Warn("second consecutive tool failure",
			zap.String("session_id", sessionID),
			zap.String("tool", tool),
			zap.String("category", string(det.Category)))
		return Outcome{Action: ActionSuggested, Strikes: strikes, Category: det.Category, Message: msg}

	default:
		p.mu.Lock()
		if !st.Escalated {
			st.Escalated = true
			st.EscalationID = uuid.NewString()
			st.EscalatedAt = time.Now()
			st.TriggerTool = tool
			st.ResolvedAt = time.Time{}
			p.metrics.RecordEscalation(det.Category)
		}
		escalationID := st.EscalationID
		p.mu.Unlock()

		msg := escalationMessage(det.Category, truncated)
		p.logger.Error("session escalated after repeated failures",
			zap.String("session_id", sessionID),
			zap.String("escalation_id", escalationID),
			zap.String("tool", tool),
			zap.Int("strikes", strikes),
			zap.String("category", string(det.Category)))
		return Outcome{Action: ActionEscalated, Strikes: strikes, Category: det.Category, Message: msg}
	}
}

// StateFor returns a copy of the recovery side-table entry for a session.
func (p *Protocol) StateFor(sessionID string) (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.states[sessionID]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Restore applies preserved escalation state onto a session, used after
// context compaction.
func (p *Protocol) Restore(sessionID string, escalated bool, escalatedAt time.Time, triggerTool, lastError string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.states[sessionID]
	if !ok {
		st = &State{}
		p.states[sessionID] = st
	}
	st.Escalated = escalated
	if escalated && st.EscalationID == "" {
		st.EscalationID = uuid.NewString()
	}
	st.EscalatedAt = escalatedAt
	st.TriggerTool = triggerTool
	st.LastError = lastError
}

// Sweep removes the side-table entry for a session.
func (p *Protocol) Sweep(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.states, sessionID)
}

func suggestionMessage(category Category) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Two consecutive tool failures (%s). Before retrying:\n", category)
	for _, s := range SuggestionsFor(category) {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	return strings.TrimRight(b.String(), "\n")
}

func escalationMessage(category Category, lastError string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ESCALATION: %d+ consecutive tool failures (%s). Stop and reassess the approach with the user.\n", escalationThreshold, category)
	if lastError != "" {
		fmt.Fprintf(&b, "\nLast error output:\n%s\n", lastError)
	}
	b.WriteString("\nSuggestions:\n")
	for _, s := range SuggestionsFor(category) {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	return strings.TrimRight(b.String(), "\n")
}
