package workflow

import (
	"strings"
)

// Intent categories returned by ClassifyIntent.
const (
	IntentFeature       = "feature"
	IntentBugfix        = "bugfix"
	IntentRefactor      = "refactor"
	IntentExploration   = "exploration"
	IntentDocumentation = "documentation"
	IntentTest          = "test"
	IntentConfig        = "config"
	IntentUnknown       = "unknown"
)

// intentKeywords is the fixed keyword table scored by substring count.
var intentKeywords = map[string][]string{
	IntentFeature: {
		"add ", "implement", "create", "build", "new feature",
		"support for", "introduce",
	},
	IntentBugfix: {
		"fix", "bug", "broken", "crash", "error", "doesn't work",
		"does not work", "failing", "regression", "wrong",
	},
	IntentRefactor: {
		"refactor", "clean up", "cleanup", "restructure", "rename",
		"extract", "simplify", "reorganize", "deduplicate",
	},
	IntentExploration: {
		"how does", "what is", "where is", "explain", "understand",
		"find", "look at", "show me", "investigate",
	},
	IntentDocumentation: {
		"document", "readme", "docs", "comment", "changelog",
		"docstring",
	},
	IntentTest: {
		"test", "coverage", "unit test", "integration test", "spec",
		"assertion",
	},
	IntentConfig: {
		"config", "configure", "setting", "environment variable",
		"yaml", "toml", "dotfile", "setup",
	},
}

// ClassifyIntent scores the keyword table against text by substring
// count and returns the highest-scoring category, or IntentUnknown when
// everything ties at zero.
func ClassifyIntent(text string) string {
	lower := strings.ToLower(text)

	best := IntentUnknown
	bestScore := 0
	for _, category := range []string{
		IntentFeature, IntentBugfix, IntentRefactor, IntentExploration,
		IntentDocumentation, IntentTest, IntentConfig,
	} {
		score := 0
		for _, kw := range intentKeywords[category] {
			score += strings.Count(lower, kw)
		}
		if score > bestScore {
			bestScore = score
			best = category
		}
	}
	return best
}
