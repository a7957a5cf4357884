package session

import (
	"time"
)

// Phase is a named stage in the workflow state machine.
type Phase string

const (
	// PhaseIdle is the initial phase before any intent is known.
	PhaseIdle Phase = "idle"

	// PhaseIntent is entered once the user's goal has been classified.
	PhaseIntent Phase = "intent"

	// PhaseAssessment covers scoping and planning activity.
	PhaseAssessment Phase = "assessment"

	// PhaseExploration covers read-only codebase inspection.
	PhaseExploration Phase = "exploration"

	// PhaseImplementation covers state-mutating work.
	PhaseImplementation Phase = "implementation"

	// PhaseVerification covers tests, builds, and lint runs.
	PhaseVerification Phase = "verification"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseIdle, PhaseIntent, PhaseAssessment, PhaseExploration,
		PhaseImplementation, PhaseVerification:
		return true
	}
	return false
}

// PhaseTransition records one accepted workflow transition.
type PhaseTransition struct {
	From        Phase     `json:"from"`
	To          Phase     `json:"to"`
	Timestamp   time.Time `json:"timestamp"`
	TriggeredBy string    `json:"triggered_by,omitempty"`
}

// WorkflowState tracks workflow progress for a session.
type WorkflowState struct {
	CurrentPhase Phase             `json:"current_phase"`
	PhaseHistory []PhaseTransition `json:"phase_history"`
	Intent       string            `json:"intent,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	Completed    bool              `json:"completed"`
}

// ToolExecution is one entry in a session's bounded tool history.
type ToolExecution struct {
	Tool       string    `json:"tool"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// State holds all per-session orchestration state. It is owned
// exclusively by the Store; callers mutate it through Store methods.
type State struct {
	// ID is the opaque session identifier supplied by the host.
	ID string `json:"id"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	// Phase mirrors Workflow.CurrentPhase for fast access.
	Phase Phase `json:"phase"`

	Workflow WorkflowState `json:"workflow"`

	// ErrorCount is the consecutive-failure strike counter.
	ErrorCount int `json:"error_count"`

	// ToolHistory is bounded; the oldest entry is evicted past the cap.
	ToolHistory []ToolExecution `json:"tool_history"`

	TodoCount      int `json:"todo_count"`
	TodosCompleted int `json:"todos_completed"`

	// Metadata is host-supplied scratch data (display label, transcript
	// path). Component state lives in typed side-tables, not here.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RecentTools returns up to n of the most recent tool executions,
// oldest first.
func (s *State) RecentTools(n int) []ToolExecution {
	if n <= 0 || len(s.ToolHistory) == 0 {
		return nil
	}
	start := len(s.ToolHistory) - n
	if start < 0 {
		start = 0
	}
	out := make([]ToolExecution, len(s.ToolHistory)-start)
	copy(out, s.ToolHistory[start:])
	return out
}
