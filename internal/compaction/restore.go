package compaction

import (
	"time"

	"github.com/fyrsmithlabs/atreides/internal/recovery"
	"github.com/fyrsmithlabs/atreides/internal/session"
	"github.com/fyrsmithlabs/atreides/internal/todo"
)

// Restore applies a parsed snapshot back onto an existing session,
// additively: identity and metadata not covered by the snapshot are
// preserved. The todo tracker and recovery protocol receive their own
// slices of the state.
func Restore(ps *PreservedState, sessionID string, store *session.Store, tracker *todo.Tracker, protocol *recovery.Protocol) error {
	if ps == nil {
		return nil
	}
	st, err := store.Get(sessionID)
	if err != nil {
		return err
	}

	// Phase is restored directly: the snapshot phase was reached through
	// legal transitions before compaction, replaying them adds nothing.
	if ps.Phase.Valid() {
		store.SetPhase(sessionID, ps.Phase)
	}
	if ps.Intent != "" {
		store.SetIntent(sessionID, ps.Intent)
	}
	if ps.Agent != "" {
		store.SetMetadata(sessionID, "agent_label", ps.Agent)
	}

	store.ResetErrorCount(sessionID)
	for i := 0; i < ps.Strikes; i++ {
		store.IncrementErrorCount(sessionID)
	}

	for _, mark := range ps.RecentTools {
		store.AddToolExecution(sessionID, session.ToolExecution{
			Tool:      mark.Tool,
			Timestamp: st.CreatedAt,
			Success:   mark.Success,
		})
	}

	if tracker != nil {
		items := make([]todo.Item, 0, len(ps.PendingTodos))
		for _, entry := range ps.PendingTodos {
			items = append(items, todo.Item{
				ID:          entry.ID,
				Description: entry.Description,
				Status:      entry.Status,
			})
		}
		tracker.Restore(sessionID, items)
	}
	// Counters from the snapshot win over what Restore recomputed: the
	// completed portion has no surviving items to count.
	store.UpdateTodos(sessionID, ps.TodoTotal, ps.TodoCompleted)

	if protocol != nil && (ps.Escalated || ps.LastError != "") {
		escalatedAt := time.Time{}
		if ps.EscalatedAt != "" {
			if t, err := time.Parse(timeLayout, ps.EscalatedAt); err == nil {
				escalatedAt = t
			}
		}
		protocol.Restore(sessionID, ps.Escalated, escalatedAt, ps.TriggerTool, ps.LastError)
	}
	return nil
}
