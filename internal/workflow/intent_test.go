package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"implement a new feature for user auth", IntentFeature},
		{"fix the crash when the config file is missing", IntentBugfix},
		{"the build is broken and failing on CI", IntentBugfix},
		{"refactor the store to extract a cache layer", IntentRefactor},
		{"how does the validator pipeline work?", IntentExploration},
		{"update the readme and changelog", IntentDocumentation},
		{"improve unit test coverage for the tracker", IntentTest},
		{"configure the environment variable for the port", IntentConfig},
		{"", IntentUnknown},
		{"xyzzy plugh", IntentUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyIntent(tt.text), "text %q", tt.text)
	}
}

func TestClassifyIntent_HighestCountWins(t *testing.T) {
	// Two bugfix keywords against one refactor keyword.
	got := ClassifyIntent("fix the broken rename logic")
	assert.Equal(t, IntentBugfix, got)
}

func TestClassifyIntent_CaseInsensitive(t *testing.T) {
	assert.Equal(t, IntentBugfix, ClassifyIntent("FIX THE BUG"))
}
