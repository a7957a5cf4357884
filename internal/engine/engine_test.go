package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/atreides/internal/compaction"
	"github.com/fyrsmithlabs/atreides/internal/policy"
	"github.com/fyrsmithlabs/atreides/internal/session"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := session.NewStore(session.DefaultConfig(), nil)
	validator, err := policy.NewValidator(policy.DefaultConfig(), nil)
	require.NoError(t, err)
	e, err := New(store, validator, nil)
	require.NoError(t, err)
	return e
}

func TestNew_RequiresDependencies(t *testing.T) {
	validator, err := policy.NewValidator(policy.DefaultConfig(), nil)
	require.NoError(t, err)

	_, err = New(nil, validator, nil)
	assert.Error(t, err)

	_, err = New(session.NewStore(session.DefaultConfig(), nil), nil, nil)
	assert.Error(t, err)
}

func TestBeforeTool_AllowsCleanCommand(t *testing.T) {
	e := newTestEngine(t)

	d := e.BeforeTool(context.Background(), "Bash", map[string]any{"command": "ls -la"}, "sess-1")
	assert.Equal(t, policy.ActionAllow, d.Action)

	// The session was lazily created.
	_, ok := e.Store().Lookup("sess-1")
	assert.True(t, ok)
}

func TestBeforeTool_DeniesObfuscatedCommand(t *testing.T) {
	e := newTestEngine(t)

	d := e.BeforeTool(context.Background(), "Bash", map[string]any{"command": "rm%20-rf%20%2F"}, "sess-1")
	assert.Equal(t, policy.ActionDeny, d.Action)
	assert.Equal(t, "rm-root", d.MatchedPattern)
}

func TestBeforeTool_ValidatesPaths(t *testing.T) {
	e := newTestEngine(t)

	d := e.BeforeTool(context.Background(), "Write", map[string]any{"file_path": "/etc/hosts"}, "sess-1")
	assert.Equal(t, policy.ActionDeny, d.Action)

	d = e.BeforeTool(context.Background(), "Write", map[string]any{"file_path": "internal/server/server.go"}, "sess-1")
	assert.Equal(t, policy.ActionAllow, d.Action)
}

func TestBeforeTool_NoValidatableInput(t *testing.T) {
	e := newTestEngine(t)

	d := e.BeforeTool(context.Background(), "Glob", map[string]any{"pattern": "**/*.go"}, "sess-1")
	assert.Equal(t, policy.ActionAllow, d.Action)

	d = e.BeforeTool(context.Background(), "Read", nil, "sess-1")
	assert.Equal(t, policy.ActionAllow, d.Action)
}

func TestBeforeTool_FailsClosedWithoutStoreDefaults(t *testing.T) {
	validator, err := policy.NewValidator(policy.DefaultConfig(), nil)
	require.NoError(t, err)
	e, err := New(session.NewStore(nil, nil), validator, nil)
	require.NoError(t, err)

	d := e.BeforeTool(context.Background(), "Bash", map[string]any{"command": "ls"}, "sess-1")
	assert.Equal(t, policy.ActionDeny, d.Action)
	assert.Equal(t, "session initialization failed", d.Reason)
}

func TestAfterTool_RecordsExecution(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.BeforeTool(ctx, "Bash", map[string]any{"command": "ls"}, "sess-1")
	e.AfterTool(ctx, "Bash", map[string]any{"command": "ls"}, map[string]any{"stdout": "main.go", "exitCode": 0}, "sess-1")

	st, ok := e.Store().Lookup("sess-1")
	require.True(t, ok)
	require.Len(t, st.ToolHistory, 1)
	assert.Equal(t, "Bash", st.ToolHistory[0].Tool)
	assert.True(t, st.ToolHistory[0].Success)
	assert.GreaterOrEqual(t, st.ToolHistory[0].DurationMS, int64(0))
}

func TestAfterTool_UnknownSessionIsIgnored(t *testing.T) {
	e := newTestEngine(t)

	e.AfterTool(context.Background(), "Bash", nil, map[string]any{"stdout": "x"}, "ghost")
	assert.Equal(t, 0, e.Store().Len())
}

func TestAfterTool_ThreeFailuresEscalate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.BeforeTool(ctx, "Bash", map[string]any{"command": "go test ./..."}, "sess-1")
	for i := 0; i < 3; i++ {
		e.AfterTool(ctx, "Bash", nil, map[string]any{"exitCode": 1, "stderr": "--- FAIL: TestX"}, "sess-1")
	}

	st, _ := e.Store().Lookup("sess-1")
	assert.Equal(t, 3, st.ErrorCount)

	msg, ok := e.Store().GetMetadata("sess-1", "recovery_message")
	require.True(t, ok)
	assert.Contains(t, msg.(string), "ESCALATION")

	// Every failed execution is marked unsuccessful in history.
	for _, exec := range st.ToolHistory {
		assert.False(t, exec.Success)
		assert.NotEmpty(t, exec.Error)
	}
}

func TestAfterTool_DrivesPhaseFromCommand(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.ObservePrompt(ctx, "sess-1", "fix the failing build")
	e.AfterTool(ctx, "Bash", map[string]any{"command": "cat main.go"}, map[string]any{"stdout": "package main"}, "sess-1")

	st, _ := e.Store().Lookup("sess-1")
	assert.Equal(t, session.PhaseExploration, st.Phase)
}

func TestAfterTool_CommandRidesInToolInput(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.ObservePrompt(ctx, "sess-1", "fix the failing build")
	e.AfterTool(ctx, "Read", nil, map[string]any{"file": "main.go"}, "sess-1")
	e.AfterTool(ctx, "Write", nil, map[string]any{}, "sess-1")
	st, _ := e.Store().Lookup("sess-1")
	require.Equal(t, session.PhaseImplementation, st.Phase)

	// Real hosts put the bash command in tool_input; the response has none.
	e.AfterTool(ctx, "Bash", map[string]any{"command": "go test ./..."}, map[string]any{"stdout": "ok"}, "sess-1")
	st, _ = e.Store().Lookup("sess-1")
	assert.Equal(t, session.PhaseVerification, st.Phase)
}

func TestAfterTool_DetectsTodos(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.BeforeTool(ctx, "Bash", map[string]any{"command": "echo plan"}, "sess-1")
	e.AfterTool(ctx, "Bash", nil, map[string]any{
		"stdout": "- [ ] Add login form\n- [ ] Write docs",
	}, "sess-1")

	st, _ := e.Store().Lookup("sess-1")
	assert.Equal(t, 2, st.TodoCount)
}

func TestObservePrompt_ClassifiesIntent(t *testing.T) {
	e := newTestEngine(t)

	e.ObservePrompt(context.Background(), "sess-1", "fix the crash in the parser")

	st, ok := e.Store().Lookup("sess-1")
	require.True(t, ok)
	assert.Equal(t, session.PhaseIntent, st.Phase)
	assert.Equal(t, "bugfix", st.Workflow.Intent)
}

func TestObservePrompt_RestoresCompactionBlock(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	block := compaction.Format(&compaction.PreservedState{
		Phase:         session.PhaseImplementation,
		Intent:        "feature",
		Strikes:       2,
		TodoTotal:     2,
		TodoCompleted: 1,
		PendingTodos: []compaction.TodoEntry{
			{Description: "Add login form", Status: "pending"},
		},
	})
	e.ObservePrompt(ctx, "sess-1", "Summary of prior work.\n\n"+block)

	st, ok := e.Store().Lookup("sess-1")
	require.True(t, ok)
	assert.Equal(t, session.PhaseImplementation, st.Phase)
	assert.Equal(t, "feature", st.Workflow.Intent)
	assert.Equal(t, 2, st.ErrorCount)
	assert.Equal(t, 2, st.TodoCount)
	assert.Len(t, e.Todos().Pending("sess-1"), 1)
}

func TestOnStop_GatesOnPendingTodos(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// No session, no todos: allow.
	d := e.OnStop(ctx, "sess-1")
	assert.True(t, d.Allow)

	e.BeforeTool(ctx, "Bash", map[string]any{"command": "echo plan"}, "sess-1")
	e.AfterTool(ctx, "Bash", nil, map[string]any{"stdout": "- [ ] Add login form"}, "sess-1")

	d = e.OnStop(ctx, "sess-1")
	assert.False(t, d.Allow)
	assert.Contains(t, d.Reason, "Add login form")

	e.AfterTool(ctx, "Bash", nil, map[string]any{"stdout": "- [x] Add login form"}, "sess-1")
	d = e.OnStop(ctx, "sess-1")
	assert.True(t, d.Allow)
}

func TestOnCompact_RoundTrips(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.ObservePrompt(ctx, "sess-1", "fix the crash")
	e.BeforeTool(ctx, "Bash", map[string]any{"command": "echo plan"}, "sess-1")
	e.AfterTool(ctx, "Bash", nil, map[string]any{"stdout": "- [ ] Add login form"}, "sess-1")

	block := e.OnCompact(ctx, "sess-1")
	require.NotEmpty(t, block)

	ps := compaction.Parse(block)
	require.NotNil(t, ps)
	// The after-hook carried no command text, so the bash execution
	// defaulted the session from intent into exploration.
	assert.Equal(t, session.PhaseExploration, ps.Phase)
	assert.Equal(t, "bugfix", ps.Intent)
	require.Len(t, ps.PendingTodos, 1)
	assert.Equal(t, "Add login form", ps.PendingTodos[0].Description)
}

func TestOnCompact_UnknownSession(t *testing.T) {
	e := newTestEngine(t)
	assert.Empty(t, e.OnCompact(context.Background(), "ghost"))
}

func TestOnSessionEnd_SweepsEverything(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.BeforeTool(ctx, "Bash", map[string]any{"command": "echo plan"}, "sess-1")
	e.AfterTool(ctx, "Bash", nil, map[string]any{"stdout": "- [ ] Add login form", "exitCode": 1}, "sess-1")

	e.OnSessionEnd(ctx, "sess-1")

	assert.Equal(t, 0, e.Store().Len())
	assert.Empty(t, e.Todos().Items("sess-1"))
	e.mu.Lock()
	assert.Empty(t, e.inflight)
	e.mu.Unlock()

	// A fresh session with the same id starts clean.
	d := e.BeforeTool(ctx, "Bash", map[string]any{"command": "ls"}, "sess-1")
	assert.Equal(t, policy.ActionAllow, d.Action)
	st, _ := e.Store().Lookup("sess-1")
	assert.Equal(t, 0, st.ErrorCount)
	assert.Equal(t, session.PhaseIdle, st.Phase)
}

func TestInflightTracking(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.BeforeTool(ctx, "Bash", map[string]any{"command": "ls"}, "sess-1")
	e.mu.Lock()
	assert.Len(t, e.inflight["sess-1"], 1)
	e.mu.Unlock()

	e.AfterTool(ctx, "Bash", nil, map[string]any{"stdout": "ok"}, "sess-1")
	e.mu.Lock()
	assert.Empty(t, e.inflight)
	e.mu.Unlock()

	// After without a matching before is fine.
	e.AfterTool(ctx, "Bash", nil, map[string]any{"stdout": "ok"}, "sess-1")
}

func TestStringField(t *testing.T) {
	_, ok := stringField(nil, "command")
	assert.False(t, ok)

	_, ok = stringField(map[string]any{"command": 42}, "command")
	assert.False(t, ok)

	_, ok = stringField(map[string]any{"command": ""}, "command")
	assert.False(t, ok)

	s, ok := stringField(map[string]any{"command": "ls"}, "command")
	assert.True(t, ok)
	assert.Equal(t, "ls", s)
}

func TestAssistantText(t *testing.T) {
	text := assistantText(map[string]any{
		"stdout": "out",
		"text":   "first",
	})
	assert.Equal(t, "first\nout", text)

	assert.Empty(t, assistantText(nil))
}
