// Package engine wires the orchestration components behind the five
// narrow host contracts: before-tool, after-tool, stop, compact, and
// session-end.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/atreides/internal/compaction"
	"github.com/fyrsmithlabs/atreides/internal/policy"
	"github.com/fyrsmithlabs/atreides/internal/recovery"
	"github.com/fyrsmithlabs/atreides/internal/session"
	"github.com/fyrsmithlabs/atreides/internal/todo"
	"github.com/fyrsmithlabs/atreides/internal/workflow"
)

const instrumentationName = "github.com/fyrsmithlabs/atreides/internal/engine"

// Decision is returned to the host from BeforeTool.
type Decision struct {
	Action         policy.Action `json:"action"`
	Reason         string        `json:"reason,omitempty"`
	MatchedPattern string        `json:"matched_pattern,omitempty"`
}

// StopDecision is returned to the host from OnStop.
type StopDecision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// Engine is the per-process orchestration core. Construct one per host
// process and pass it down; there are no package-level instances.
type Engine struct {
	logger    *zap.Logger
	store     *session.Store
	validator *policy.Validator
	phases    *workflow.Engine
	recovery  *recovery.Protocol
	todos     *todo.Tracker
	metrics   *Metrics

	tracer trace.Tracer
	meter  metric.Meter
	hooks  metric.Int64Counter

	mu       sync.Mutex
	inflight map[string]map[string]time.Time // session id → tool → start
}

// New creates an engine. All dependencies are required except logger.
func New(store *session.Store, validator *policy.Validator, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		logger:    logger.Named("engine"),
		store:     store,
		validator: validator,
		phases:    workflow.NewEngine(store, logger),
		recovery:  recovery.NewProtocol(store, logger),
		todos:     todo.NewTracker(store, logger),
		metrics:   NewMetrics(),
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
		inflight:  make(map[string]map[string]time.Time),
	}

	var err error
	e.hooks, err = e.meter.Int64Counter(
		"atreides.engine.hooks_total",
		metric.WithDescription("Host hook invocations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		e.logger.Warn("failed to create hooks counter", zap.Error(err))
	}

	return e, nil
}

// Store exposes the session store for read-only surfaces (debug API).
func (e *Engine) Store() *session.Store { return e.store }

// Todos exposes the task tracker.
func (e *Engine) Todos() *todo.Tracker { return e.todos }

// Validator exposes the validation pipeline.
func (e *Engine) Validator() *policy.Validator { return e.validator }

// BeforeTool validates a tool invocation before the host executes it.
// This is the security hook: any internal failure fails closed (deny).
func (e *Engine) BeforeTool(ctx context.Context, tool string, input map[string]any, sessionID string) (decision Decision) {
	ctx, span := e.tracer.Start(ctx, "engine.BeforeTool",
		trace.WithAttributes(attribute.String("tool", tool)))
	defer span.End()
	e.countHook(ctx, "before_tool")

	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordPanic("before_tool")
			e.logger.Error("before-tool hook panicked, failing closed",
				zap.Any("panic", r),
				zap.String("tool", tool),
				zap.String("session_id", sessionID))
			decision = Decision{Action: policy.ActionDeny, Reason: "internal orchestration error"}
		}
	}()

	if _, err := e.store.Get(sessionID); err != nil {
		// Store misconfiguration must not silently permit anything.
		return Decision{Action: policy.ActionDeny, Reason: "session initialization failed"}
	}
	e.trackStart(sessionID, tool)

	if command, ok := stringField(input, "command"); ok {
		res := e.validator.ValidateCommand(command)
		return Decision{Action: res.Action, Reason: res.Reason, MatchedPattern: res.MatchedPattern}
	}
	for _, key := range []string{"file_path", "path", "notebook_path"} {
		if p, ok := stringField(input, key); ok {
			res := e.validator.ValidatePath(p)
			return Decision{Action: res.Action, Reason: res.Reason, MatchedPattern: res.MatchedPattern}
		}
	}
	return Decision{Action: policy.ActionAllow}
}

// AfterTool records a completed tool execution: history, phase, error
// strikes, and task detection. The host carries the bash command in the
// tool input, not the response, so both maps come through. It never
// propagates an error to the host; tracking failures fail open.
func (e *Engine) AfterTool(ctx context.Context, tool string, input, output map[string]any, sessionID string) {
	ctx, span := e.tracer.Start(ctx, "engine.AfterTool",
		trace.WithAttributes(attribute.String("tool", tool)))
	defer span.End()
	e.countHook(ctx, "after_tool")

	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordPanic("after_tool")
			e.logger.Error("after-tool hook panicked, skipping tracking",
				zap.Any("panic", r),
				zap.String("tool", tool),
				zap.String("session_id", sessionID))
		}
	}()

	if _, ok := e.store.Lookup(sessionID); !ok {
		// After without before and without a session: nothing to track.
		return
	}

	outcome := e.recovery.Check(sessionID, tool, output)

	exec := session.ToolExecution{
		Tool:      tool,
		Timestamp: time.Now(),
		Success:   outcome.Action == recovery.ActionNone,
	}
	if start, ok := e.trackEnd(sessionID, tool); ok {
		exec.DurationMS = time.Since(start).Milliseconds()
	}
	if rec, ok := e.recovery.StateFor(sessionID); ok && !exec.Success {
		exec.Error = rec.LastError
	}
	e.store.AddToolExecution(sessionID, exec)

	commandText, ok := stringField(input, "command")
	if !ok {
		commandText, _ = stringField(output, "command")
	}
	e.phases.ObserveTool(sessionID, tool, commandText)

	if text := assistantText(output); text != "" {
		e.todos.Detect(sessionID, text)
	}

	if outcome.Message != "" {
		e.store.SetMetadata(sessionID, "recovery_message", outcome.Message)
	}
}

// ObservePrompt classifies user intent from prompt text, enters the
// intent phase, and restores preserved state when the prompt carries a
// compaction block.
func (e *Engine) ObservePrompt(ctx context.Context, sessionID, prompt string) {
	_, span := e.tracer.Start(ctx, "engine.ObservePrompt")
	defer span.End()
	e.countHook(ctx, "prompt")

	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordPanic("prompt")
			e.logger.Error("prompt hook panicked", zap.Any("panic", r))
		}
	}()

	if _, err := e.store.Get(sessionID); err != nil {
		return
	}
	if ps := compaction.Parse(prompt); ps != nil {
		if err := compaction.Restore(ps, sessionID, e.store, e.todos, e.recovery); err != nil {
			e.logger.Warn("preserved-state restore failed",
				zap.String("session_id", sessionID), zap.Error(err))
		} else {
			e.logger.Info("preserved state restored",
				zap.String("session_id", sessionID),
				zap.String("phase", string(ps.Phase)))
			return
		}
	}
	e.phases.ClassifyPrompt(sessionID, prompt)
}

// OnStop gates session termination on outstanding tasks. Fails open.
func (e *Engine) OnStop(ctx context.Context, sessionID string) (decision StopDecision) {
	_, span := e.tracer.Start(ctx, "engine.OnStop")
	defer span.End()
	e.countHook(ctx, "stop")

	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordPanic("stop")
			e.logger.Error("stop hook panicked, failing open",
				zap.Any("panic", r),
				zap.String("session_id", sessionID))
			decision = StopDecision{Allow: true}
		}
	}()

	gate := e.todos.CheckPending(sessionID)
	return StopDecision{Allow: gate.Allow, Reason: gate.Reason}
}

// OnCompact produces the preserved-state text block to inject into the
// compacted summary. Fails open with an empty block.
func (e *Engine) OnCompact(ctx context.Context, sessionID string) (block string) {
	_, span := e.tracer.Start(ctx, "engine.OnCompact")
	defer span.End()
	e.countHook(ctx, "compact")

	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordPanic("compact")
			e.logger.Error("compact hook panicked",
				zap.Any("panic", r),
				zap.String("session_id", sessionID))
			block = ""
		}
	}()

	st, ok := e.store.Snapshot(sessionID)
	if !ok {
		return ""
	}
	rec, _ := e.recovery.StateFor(sessionID)
	ps := compaction.Extract(st, e.todos.Items(sessionID), rec)
	return compaction.Format(ps)
}

// OnSessionEnd sweeps every per-session auxiliary structure. The
// validation result cache is global and deliberately not swept.
func (e *Engine) OnSessionEnd(ctx context.Context, sessionID string) {
	_, span := e.tracer.Start(ctx, "engine.OnSessionEnd")
	defer span.End()
	e.countHook(ctx, "session_end")

	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordPanic("session_end")
			e.logger.Error("session-end hook panicked",
				zap.Any("panic", r),
				zap.String("session_id", sessionID))
		}
	}()

	e.todos.Sweep(sessionID)
	e.recovery.Sweep(sessionID)
	e.sweepInflight(sessionID)
	e.store.Delete(sessionID)
	e.logger.Debug("session swept", zap.String("session_id", sessionID))
}

// trackStart records an in-flight execution start for duration tracking.
func (e *Engine) trackStart(sessionID, tool string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.inflight[sessionID]
	if !ok {
		m = make(map[string]time.Time)
		e.inflight[sessionID] = m
	}
	m[tool] = time.Now()
}

// trackEnd consumes an in-flight start. The host may fire after-hooks
// without a matching before, so absence is not an error.
func (e *Engine) trackEnd(sessionID, tool string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.inflight[sessionID]
	if !ok {
		return time.Time{}, false
	}
	start, ok := m[tool]
	if ok {
		delete(m, tool)
	}
	if len(m) == 0 {
		delete(e.inflight, sessionID)
	}
	return start, ok
}

// sweepInflight drops dangling duration trackers for a session. The
// host's before/after pairing is not guaranteed; this is the bound on
// leakage.
func (e *Engine) sweepInflight(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, sessionID)
}

func (e *Engine) countHook(ctx context.Context, hook string) {
	e.metrics.RecordHook(hook)
	if e.hooks != nil {
		e.hooks.Add(ctx, 1, metric.WithAttributes(attribute.String("hook", hook)))
	}
}

func stringField(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// assistantText pulls display text out of a tool result for task
// detection: checkbox lists and completion phrases ride in these fields.
func assistantText(output map[string]any) string {
	var parts []string
	for _, key := range []string{"text", "content", "output", "stdout", "message"} {
		if s, ok := stringField(output, key); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// String implements fmt.Stringer for debug logging.
func (e *Engine) String() string {
	return fmt.Sprintf("engine(sessions=%d)", e.store.Len())
}
