package compaction

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/atreides/internal/recovery"
	"github.com/fyrsmithlabs/atreides/internal/session"
	"github.com/fyrsmithlabs/atreides/internal/todo"
)

func sampleState() *PreservedState {
	return &PreservedState{
		Phase:         session.PhaseImplementation,
		Intent:        "bugfix",
		Agent:         "reviewer",
		Strikes:       2,
		Escalated:     true,
		EscalatedAt:   "2026-08-30T12:00:00Z",
		TriggerTool:   "bash",
		LastError:     "go: build failed",
		TodoTotal:     3,
		TodoCompleted: 1,
		PendingTodos: []TodoEntry{
			{ID: todo.ItemID("Add login form"), Description: "Add login form", Status: todo.StatusPending},
			{ID: todo.ItemID("Wire up the router"), Description: "Wire up the router", Status: todo.StatusInProgress},
		},
		RecentTools: []ToolMark{
			{Tool: "read", Success: true},
			{Tool: "bash", Success: false},
		},
	}
}

func TestFormat(t *testing.T) {
	block := Format(sampleState())

	assert.True(t, strings.HasPrefix(block, BeginSentinel+"\n"))
	assert.True(t, strings.HasSuffix(block, EndSentinel))
	assert.Contains(t, block, "**Workflow Phase:** implementation")
	assert.Contains(t, block, "**Intent:** bugfix")
	assert.Contains(t, block, "**Agent:** reviewer")
	assert.Contains(t, block, "**Error Recovery:** 2 strikes")
	assert.Contains(t, block, "**Escalation Status:** ACTIVE")
	assert.Contains(t, block, "**Escalated At:** 2026-08-30T12:00:00Z")
	assert.Contains(t, block, "**Trigger Tool:** bash")
	assert.Contains(t, block, "**Last Error:** go: build failed")
	assert.Contains(t, block, "**Todo Progress:** 1/3")
	assert.Contains(t, block, "- [ ] Add login form")
	assert.Contains(t, block, "- [-] Wire up the router")
	assert.Contains(t, block, "- ✓ read")
	assert.Contains(t, block, "- ✗ bash")
}

func TestFormat_OmitsOptionalFields(t *testing.T) {
	block := Format(&PreservedState{Phase: session.PhaseIdle})

	assert.Contains(t, block, "**Workflow Phase:** idle")
	assert.Contains(t, block, "**Error Recovery:** 0 strikes")
	assert.Contains(t, block, "**Todo Progress:** 0/0")
	assert.NotContains(t, block, "**Intent:**")
	assert.NotContains(t, block, "**Agent:**")
	assert.NotContains(t, block, "**Escalation Status:**")
	assert.NotContains(t, block, "**Last Error:**")
	assert.NotContains(t, block, "Pending tasks:")
	assert.NotContains(t, block, "Recent tools:")
}

func TestRoundTrip(t *testing.T) {
	original := sampleState()
	parsed := Parse(Format(original))
	require.NotNil(t, parsed)
	assert.Equal(t, original, parsed)
}

func TestRoundTrip_Minimal(t *testing.T) {
	original := &PreservedState{Phase: session.PhaseIdle}
	parsed := Parse(Format(original))
	require.NotNil(t, parsed)
	assert.Equal(t, original, parsed)
}

func TestParse_BlockEmbeddedInLargerDocument(t *testing.T) {
	doc := "Conversation summary goes here.\n\n" +
		Format(sampleState()) +
		"\n\nMore summary text after the block."

	parsed := Parse(doc)
	require.NotNil(t, parsed)
	assert.Equal(t, session.PhaseImplementation, parsed.Phase)
	assert.Equal(t, 2, parsed.Strikes)
	assert.Len(t, parsed.PendingTodos, 2)
}

func TestParse_NoBlock(t *testing.T) {
	assert.Nil(t, Parse("just a normal prompt"))
	assert.Nil(t, Parse(""))
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing end sentinel", BeginSentinel + "\n**Workflow Phase:** idle\n"},
		{"missing phase", BeginSentinel + "\n**Error Recovery:** 0 strikes\n" + EndSentinel},
		{"invalid phase", BeginSentinel + "\n**Workflow Phase:** warp\n" + EndSentinel},
		{"garbage strikes", BeginSentinel + "\n**Workflow Phase:** idle\n**Error Recovery:** many strikes\n" + EndSentinel},
		{"garbage progress", BeginSentinel + "\n**Workflow Phase:** idle\n**Todo Progress:** lots\n" + EndSentinel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Parse(tt.doc))
		})
	}
}

func TestParse_UnknownLinesIgnored(t *testing.T) {
	doc := BeginSentinel + "\n" +
		"**Workflow Phase:** exploration\n" +
		"**Mystery Field:** whatever\n" +
		"random prose line\n" +
		EndSentinel

	parsed := Parse(doc)
	require.NotNil(t, parsed)
	assert.Equal(t, session.PhaseExploration, parsed.Phase)
}

func TestParse_TodoIDsRecomputed(t *testing.T) {
	parsed := Parse(Format(sampleState()))
	require.NotNil(t, parsed)
	require.Len(t, parsed.PendingTodos, 2)
	assert.Equal(t, todo.ItemID("Add login form"), parsed.PendingTodos[0].ID)
}

func TestExtract(t *testing.T) {
	store := session.NewStore(session.DefaultConfig(), nil)
	st, err := store.Get("sess-1")
	require.NoError(t, err)

	store.SetPhase("sess-1", session.PhaseImplementation)
	store.SetIntent("sess-1", "feature")
	store.SetMetadata("sess-1", "agent_label", "reviewer")
	store.IncrementErrorCount("sess-1")
	store.UpdateTodos("sess-1", 2, 1)
	for i := 0; i < 12; i++ {
		store.AddToolExecution("sess-1", session.ToolExecution{Tool: "read", Success: true})
	}

	items := []todo.Item{
		{ID: todo.ItemID("Add login form"), Description: "Add login form", Status: todo.StatusPending},
		{ID: todo.ItemID("done already"), Description: "done already", Status: todo.StatusCompleted},
	}
	rec := recovery.State{
		Escalated:   true,
		EscalatedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		TriggerTool: "bash",
		LastError:   "line one\nline two",
	}

	ps := Extract(st, items, rec)
	assert.Equal(t, session.PhaseImplementation, ps.Phase)
	assert.Equal(t, "feature", ps.Intent)
	assert.Equal(t, "reviewer", ps.Agent)
	assert.Equal(t, 1, ps.Strikes)
	assert.True(t, ps.Escalated)
	assert.Equal(t, "2026-08-30T12:00:00Z", ps.EscalatedAt)
	assert.Equal(t, "line one line two", ps.LastError, "multi-line error flattens to one line")
	assert.Equal(t, 2, ps.TodoTotal)
	assert.Equal(t, 1, ps.TodoCompleted)
	require.Len(t, ps.PendingTodos, 1, "completed items are excluded")
	assert.Len(t, ps.RecentTools, recentToolCount)
}

func TestExtractFormatParse_RoundTrip(t *testing.T) {
	store := session.NewStore(session.DefaultConfig(), nil)
	st, err := store.Get("sess-1")
	require.NoError(t, err)
	store.SetPhase("sess-1", session.PhaseVerification)
	store.IncrementErrorCount("sess-1")
	store.IncrementErrorCount("sess-1")
	store.UpdateTodos("sess-1", 1, 0)

	items := []todo.Item{
		{ID: todo.ItemID("Add login form"), Description: "Add login form", Status: todo.StatusPending},
	}

	ps := Extract(st, items, recovery.State{})
	parsed := Parse(Format(ps))
	require.NotNil(t, parsed)
	assert.Equal(t, ps, parsed)
}

func TestRestore(t *testing.T) {
	store := session.NewStore(session.DefaultConfig(), nil)
	tracker := todo.NewTracker(store, nil)
	protocol := recovery.NewProtocol(store, nil)

	ps := sampleState()
	require.NoError(t, Restore(ps, "sess-1", store, tracker, protocol))

	st, ok := store.Lookup("sess-1")
	require.True(t, ok)
	assert.Equal(t, session.PhaseImplementation, st.Phase)
	assert.Equal(t, "bugfix", st.Workflow.Intent)
	assert.Equal(t, "reviewer", st.Metadata["agent_label"])
	assert.Equal(t, 2, st.ErrorCount)
	assert.Equal(t, 3, st.TodoCount)
	assert.Equal(t, 1, st.TodosCompleted)
	assert.Len(t, st.ToolHistory, 2)

	pending := tracker.Pending("sess-1")
	assert.Len(t, pending, 2)

	rec, ok := protocol.StateFor("sess-1")
	require.True(t, ok)
	assert.True(t, rec.Escalated)
	assert.Equal(t, "bash", rec.TriggerTool)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), rec.EscalatedAt.UTC())
	assert.Equal(t, "go: build failed", rec.LastError)
}

func TestRestore_NilSnapshotIsNoop(t *testing.T) {
	store := session.NewStore(session.DefaultConfig(), nil)
	require.NoError(t, Restore(nil, "sess-1", store, nil, nil))
	assert.Equal(t, 0, store.Len())
}

func TestRestore_NoDefaultConfig(t *testing.T) {
	store := session.NewStore(nil, nil)
	err := Restore(sampleState(), "sess-1", store, nil, nil)
	assert.Error(t, err)
}
