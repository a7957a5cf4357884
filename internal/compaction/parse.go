package compaction

import (
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/atreides/internal/session"
	"github.com/fyrsmithlabs/atreides/internal/todo"
)

// Parse extracts a preserved block located anywhere in doc. Missing
// optional fields parse to their zero values. A malformed or truncated
// block yields nil; Parse never panics.
func Parse(doc string) (ps *PreservedState) {
	defer func() {
		if r := recover(); r != nil {
			ps = nil
		}
	}()

	start := strings.Index(doc, BeginSentinel)
	if start < 0 {
		return nil
	}
	rest := doc[start+len(BeginSentinel):]
	end := strings.Index(rest, EndSentinel)
	if end < 0 {
		return nil
	}
	block := rest[:end]

	ps = &PreservedState{}
	seenPhase := false
	var section string

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, labelPhase):
			phase := session.Phase(strings.TrimSpace(strings.TrimPrefix(line, labelPhase)))
			if !phase.Valid() {
				return nil
			}
			ps.Phase = phase
			seenPhase = true
		case strings.HasPrefix(line, labelIntent):
			ps.Intent = strings.TrimSpace(strings.TrimPrefix(line, labelIntent))
		case strings.HasPrefix(line, labelAgent):
			ps.Agent = strings.TrimSpace(strings.TrimPrefix(line, labelAgent))
		case strings.HasPrefix(line, labelRecovery):
			val := strings.TrimSpace(strings.TrimPrefix(line, labelRecovery))
			val = strings.TrimSuffix(val, " strikes")
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return nil
			}
			ps.Strikes = n
		case strings.HasPrefix(line, labelEscalation):
			ps.Escalated = strings.TrimSpace(strings.TrimPrefix(line, labelEscalation)) == "ACTIVE"
		case strings.HasPrefix(line, labelEscalatedAt):
			ps.EscalatedAt = strings.TrimSpace(strings.TrimPrefix(line, labelEscalatedAt))
		case strings.HasPrefix(line, labelTrigger):
			ps.TriggerTool = strings.TrimSpace(strings.TrimPrefix(line, labelTrigger))
		case strings.HasPrefix(line, labelLastError):
			ps.LastError = strings.TrimSpace(strings.TrimPrefix(line, labelLastError))
		case strings.HasPrefix(line, labelTodos):
			completed, total, ok := parseProgress(strings.TrimSpace(strings.TrimPrefix(line, labelTodos)))
			if !ok {
				return nil
			}
			ps.TodoCompleted, ps.TodoTotal = completed, total
		case line == "Pending tasks:":
			section = "todos"
		case line == "Recent tools:":
			section = "tools"
		case strings.HasPrefix(line, "- "):
			switch section {
			case "todos":
				if entry, ok := parseTodoLine(line); ok {
					ps.PendingTodos = append(ps.PendingTodos, entry)
				}
			case "tools":
				if mark, ok := parseToolLine(line); ok {
					ps.RecentTools = append(ps.RecentTools, mark)
				}
			}
		}
	}

	if !seenPhase {
		return nil
	}
	return ps
}

func parseProgress(s string) (completed, total int, ok bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	completed, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	total, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return completed, total, true
}

func parseTodoLine(line string) (TodoEntry, bool) {
	body := strings.TrimPrefix(line, "- ")
	var status todo.Status
	switch {
	case strings.HasPrefix(body, "[ ] "):
		status = todo.StatusPending
	case strings.HasPrefix(body, "[-] "), strings.HasPrefix(body, "[~] "):
		status = todo.StatusInProgress
	default:
		return TodoEntry{}, false
	}
	desc := strings.TrimSpace(body[4:])
	if desc == "" {
		return TodoEntry{}, false
	}
	return TodoEntry{
		ID:          todo.ItemID(desc),
		Description: desc,
		Status:      status,
	}, true
}

func parseToolLine(line string) (ToolMark, bool) {
	body := strings.TrimPrefix(line, "- ")
	switch {
	case strings.HasPrefix(body, "✓ "):
		return ToolMark{Tool: strings.TrimSpace(strings.TrimPrefix(body, "✓ ")), Success: true}, true
	case strings.HasPrefix(body, "✗ "):
		return ToolMark{Tool: strings.TrimSpace(strings.TrimPrefix(body, "✗ "))}, true
	}
	return ToolMark{}, false
}
