package hooks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/atreides/internal/engine"
	"github.com/fyrsmithlabs/atreides/internal/policy"
)

// Dispatcher routes parsed hook events to engine entry points and
// translates engine decisions into hook responses.
type Dispatcher struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher for the given engine.
func NewDispatcher(eng *engine.Engine, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		engine: eng,
		logger: logger.Named("hooks"),
	}
}

// Dispatch handles one hook event and returns the response to emit.
// Transport-level problems (unknown event, missing session id) never
// block the host: the response is a plain allow.
func (d *Dispatcher) Dispatch(ctx context.Context, hookType Type, event *Event) *Response {
	if event == nil || event.SessionID == "" {
		d.logger.Warn("hook event missing session id",
			zap.String("hook", string(hookType)))
		return Allow()
	}

	switch hookType {
	case TypePreToolUse:
		decision := d.engine.BeforeTool(ctx, event.ToolName, event.ToolInput, event.SessionID)
		switch decision.Action {
		case policy.ActionDeny:
			return Block(decision.Reason)
		case policy.ActionAsk:
			return &Response{
				Decision: "ask",
				Reason:   decision.Reason,
			}
		}
		return Allow()

	case TypePostToolUse:
		d.engine.AfterTool(ctx, event.ToolName, event.ToolInput, event.ToolResponse, event.SessionID)
		return Allow()

	case TypeUserPromptSubmit:
		d.engine.ObservePrompt(ctx, event.SessionID, event.Prompt)
		return Allow()

	case TypeStop:
		stop := d.engine.OnStop(ctx, event.SessionID)
		if !stop.Allow {
			return Block(stop.Reason)
		}
		return Allow()

	case TypePreCompact:
		block := d.engine.OnCompact(ctx, event.SessionID)
		if block == "" {
			return Allow()
		}
		return &Response{AdditionalContext: block}

	case TypeSessionEnd:
		d.engine.OnSessionEnd(ctx, event.SessionID)
		return Allow()
	}

	d.logger.Warn("unhandled hook event", zap.String("hook", string(hookType)))
	return Allow()
}

// Validate checks that the event carries what its hook type needs.
func Validate(hookType Type, event *Event) error {
	if event.SessionID == "" {
		return fmt.Errorf("%s: session_id is required", hookType)
	}
	switch hookType {
	case TypePreToolUse, TypePostToolUse:
		if event.ToolName == "" {
			return fmt.Errorf("%s: tool_name is required", hookType)
		}
	}
	return nil
}
