package workflow

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/atreides/internal/session"
)

// toolPhases maps tool names (lower-cased) to their candidate phases.
// Tools with exactly one candidate suggest it directly; multi-candidate
// tools are disambiguated from their command text.
var toolPhases = map[string][]session.Phase{
	"read":         {session.PhaseExploration},
	"glob":         {session.PhaseExploration},
	"grep":         {session.PhaseExploration},
	"ls":           {session.PhaseExploration},
	"websearch":    {session.PhaseExploration},
	"webfetch":     {session.PhaseExploration},
	"notebookread": {session.PhaseExploration},
	"task":         {session.PhaseAssessment},
	"write":        {session.PhaseImplementation},
	"edit":         {session.PhaseImplementation},
	"multiedit":    {session.PhaseImplementation},
	"notebookedit": {session.PhaseImplementation},
	"bash": {
		session.PhaseImplementation,
		session.PhaseVerification,
		session.PhaseExploration,
	},
}

// commandGroup pairs a predicate with the phase it implies. Groups are
// evaluated in order: state-mutating commands must be checked before
// read-only ones, since many mutating invocations embed read-only verbs.
type commandGroup struct {
	name    string
	pattern *regexp.Regexp
	phase   session.Phase
}

var commandGroups = []commandGroup{
	{
		name: "mutating",
		pattern: regexp.MustCompile(`(?i)\b(git\s+(add|commit|push|merge|rebase|checkout|switch|cherry-pick|stash|apply)|npm\s+(install|uninstall|update|ci)|yarn\s+(add|remove|install)|pnpm\s+(add|remove|install)|pip3?\s+(install|uninstall)|go\s+(get|mod)|cargo\s+(add|install)|apt(-get)?\s+install|brew\s+install|rm|mv|cp|mkdir|rmdir|touch|ln|chmod|chown|sed\s+-i|tee|truncate)\b`),
		phase: session.PhaseImplementation,
	},
	{
		name: "verifying",
		pattern: regexp.MustCompile(`(?i)\b(go\s+(test|vet|build)|npm\s+(test|run\s+(test|build|lint|typecheck))|yarn\s+(test|build|lint)|pnpm\s+(test|build|lint)|pytest|jest|vitest|mocha|cargo\s+(test|build|check|clippy)|make(\s+(test|build|check|lint))?|mvn\s+(test|verify|package)|gradle\s+(test|build)|tsc|eslint|ruff|golangci-lint|flake8|mypy|rubocop)\b`),
		phase: session.PhaseVerification,
	},
	{
		name: "inspecting",
		pattern: regexp.MustCompile(`(?i)\b(ls|cat|head|tail|less|more|find|grep|rg|ag|tree|file|stat|du|df|wc|which|whereis|type|env|printenv|pwd|ps|git\s+(status|log|diff|show|blame|branch|remote)|docker\s+(ps|images|logs)|kubectl\s+(get|describe|logs))\b`),
		phase: session.PhaseExploration,
	},
}

// earlyPhases are phases in which an unclassified shell command still
// defaults to exploration.
var earlyPhases = map[session.Phase]bool{
	session.PhaseIdle:       true,
	session.PhaseIntent:     true,
	session.PhaseAssessment: true,
}

// SuggestPhase returns the phase a tool execution suggests, or ok=false
// when the session should stay in its current phase.
func SuggestPhase(tool, commandText string, current session.Phase) (session.Phase, bool) {
	candidates, known := toolPhases[normalizeToolName(tool)]
	if !known {
		return "", false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return disambiguateCommand(commandText, current)
}

// disambiguateCommand resolves a multi-phase tool from its command text
// using the ordered command groups, first match wins.
func disambiguateCommand(commandText string, current session.Phase) (session.Phase, bool) {
	for _, group := range commandGroups {
		if group.pattern.MatchString(commandText) {
			return group.phase, true
		}
	}
	if earlyPhases[current] {
		return session.PhaseExploration, true
	}
	return "", false
}

func normalizeToolName(tool string) string {
	return strings.ToLower(strings.TrimSpace(tool))
}
