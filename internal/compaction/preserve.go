// Package compaction serializes critical session state into a sentinel-
// delimited text block that survives destructive summarization of the
// conversation history, and parses it back.
package compaction

import (
	"strings"

	"github.com/fyrsmithlabs/atreides/internal/recovery"
	"github.com/fyrsmithlabs/atreides/internal/session"
	"github.com/fyrsmithlabs/atreides/internal/todo"
)

// recentToolCount is how many tool-history entries survive compaction.
const recentToolCount = 10

// maxErrorLen bounds the preserved last-error output.
const maxErrorLen = 500

// TodoEntry is one pending item in a snapshot.
type TodoEntry struct {
	ID          string
	Description string
	Status      todo.Status
}

// ToolMark is one recent-tool-history entry: name and success only.
type ToolMark struct {
	Tool    string
	Success bool
}

// PreservedState is the snapshot serialized across compaction. It is a
// pure function of session, todo, and recovery state; recomputed on
// demand, never stored.
type PreservedState struct {
	Phase         session.Phase
	Intent        string
	Agent         string
	Strikes       int
	Escalated     bool
	EscalatedAt   string // RFC3339, empty when not escalated
	TriggerTool   string
	LastError     string
	TodoTotal     int
	TodoCompleted int
	PendingTodos  []TodoEntry
	RecentTools   []ToolMark
}

// Extract computes a snapshot from the session's current state.
func Extract(st *session.State, items []todo.Item, rec recovery.State) *PreservedState {
	ps := &PreservedState{
		Phase:         st.Phase,
		Intent:        st.Workflow.Intent,
		Strikes:       st.ErrorCount,
		Escalated:     rec.Escalated,
		TriggerTool:   rec.TriggerTool,
		LastError:     flatten(rec.LastError, maxErrorLen),
		TodoTotal:     st.TodoCount,
		TodoCompleted: st.TodosCompleted,
	}

	if label, ok := st.Metadata["agent_label"].(string); ok {
		ps.Agent = label
	}
	if rec.Escalated && !rec.EscalatedAt.IsZero() {
		ps.EscalatedAt = rec.EscalatedAt.UTC().Format(timeLayout)
	}

	for _, item := range items {
		if item.Status == todo.StatusCompleted {
			continue
		}
		ps.PendingTodos = append(ps.PendingTodos, TodoEntry{
			ID:          item.ID,
			Description: item.Description,
			Status:      item.Status,
		})
	}

	for _, exec := range st.RecentTools(recentToolCount) {
		ps.RecentTools = append(ps.RecentTools, ToolMark{
			Tool:    exec.Tool,
			Success: exec.Success,
		})
	}
	return ps
}

// flatten collapses a possibly multi-line error into one bounded line so
// it fits the single-line field format.
func flatten(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}
