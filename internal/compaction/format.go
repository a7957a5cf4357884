package compaction

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/atreides/internal/todo"
)

// Sentinels delimiting the preserved block inside a larger document.
// The exact labels and field order below are a compatibility surface:
// anything consuming preserved sessions parses this format byte-for-byte.
const (
	BeginSentinel = "<!-- ATREIDES STATE -->"
	EndSentinel   = "<!-- END ATREIDES STATE -->"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// Field labels, in emission order.
const (
	labelPhase       = "**Workflow Phase:**"
	labelIntent      = "**Intent:**"
	labelAgent       = "**Agent:**"
	labelRecovery    = "**Error Recovery:**"
	labelEscalation  = "**Escalation Status:**"
	labelEscalatedAt = "**Escalated At:**"
	labelTrigger     = "**Trigger Tool:**"
	labelLastError   = "**Last Error:**"
	labelTodos       = "**Todo Progress:**"
)

// Format serializes a snapshot into the sentinel-delimited text block.
func Format(ps *PreservedState) string {
	var b strings.Builder
	b.WriteString(BeginSentinel)
	b.WriteByte('\n')

	fmt.Fprintf(&b, "%s %s\n", labelPhase, ps.Phase)
	if ps.Intent != "" {
		fmt.Fprintf(&b, "%s %s\n", labelIntent, ps.Intent)
	}
	if ps.Agent != "" {
		fmt.Fprintf(&b, "%s %s\n", labelAgent, ps.Agent)
	}
	fmt.Fprintf(&b, "%s %d strikes\n", labelRecovery, ps.Strikes)
	if ps.Escalated {
		fmt.Fprintf(&b, "%s ACTIVE\n", labelEscalation)
		if ps.EscalatedAt != "" {
			fmt.Fprintf(&b, "%s %s\n", labelEscalatedAt, ps.EscalatedAt)
		}
		if ps.TriggerTool != "" {
			fmt.Fprintf(&b, "%s %s\n", labelTrigger, ps.TriggerTool)
		}
	}
	if ps.LastError != "" {
		fmt.Fprintf(&b, "%s %s\n", labelLastError, ps.LastError)
	}
	fmt.Fprintf(&b, "%s %d/%d\n", labelTodos, ps.TodoCompleted, ps.TodoTotal)

	if len(ps.PendingTodos) > 0 {
		b.WriteByte('\n')
		b.WriteString("Pending tasks:\n")
		for _, entry := range ps.PendingTodos {
			cell := " "
			if entry.Status == todo.StatusInProgress {
				cell = "-"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", cell, entry.Description)
		}
	}

	if len(ps.RecentTools) > 0 {
		b.WriteByte('\n')
		b.WriteString("Recent tools:\n")
		for _, mark := range ps.RecentTools {
			glyph := "✓"
			if !mark.Success {
				glyph = "✗"
			}
			fmt.Fprintf(&b, "- %s %s\n", glyph, mark.Tool)
		}
	}

	b.WriteString(EndSentinel)
	return b.String()
}
