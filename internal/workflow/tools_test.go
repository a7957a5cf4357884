package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/atreides/internal/session"
)

func TestSuggestPhase_SingleCandidateTools(t *testing.T) {
	tests := []struct {
		tool string
		want session.Phase
	}{
		{"Read", session.PhaseExploration},
		{"Glob", session.PhaseExploration},
		{"Grep", session.PhaseExploration},
		{"WebSearch", session.PhaseExploration},
		{"Task", session.PhaseAssessment},
		{"Write", session.PhaseImplementation},
		{"Edit", session.PhaseImplementation},
		{"MultiEdit", session.PhaseImplementation},
		{"NotebookEdit", session.PhaseImplementation},
	}

	for _, tt := range tests {
		got, ok := SuggestPhase(tt.tool, "", session.PhaseIntent)
		assert.True(t, ok, "tool %s", tt.tool)
		assert.Equal(t, tt.want, got, "tool %s", tt.tool)
	}
}

func TestSuggestPhase_UnknownTool(t *testing.T) {
	_, ok := SuggestPhase("SomethingElse", "", session.PhaseIntent)
	assert.False(t, ok)
}

func TestSuggestPhase_BashDisambiguation(t *testing.T) {
	tests := []struct {
		command string
		want    session.Phase
	}{
		{"git add -A && git commit -m 'wip'", session.PhaseImplementation},
		{"npm install lodash", session.PhaseImplementation},
		{"rm -rf build/", session.PhaseImplementation},
		{"mkdir -p out", session.PhaseImplementation},
		{"sed -i 's/a/b/' file.txt", session.PhaseImplementation},
		{"go test ./...", session.PhaseVerification},
		{"npm test", session.PhaseVerification},
		{"pytest tests/", session.PhaseVerification},
		{"cargo clippy", session.PhaseVerification},
		{"make lint", session.PhaseVerification},
		{"golangci-lint run", session.PhaseVerification},
		{"ls -la", session.PhaseExploration},
		{"cat main.go", session.PhaseExploration},
		{"git status", session.PhaseExploration},
		{"grep -r TODO .", session.PhaseExploration},
		{"docker ps", session.PhaseExploration},
	}

	for _, tt := range tests {
		got, ok := SuggestPhase("Bash", tt.command, session.PhaseImplementation)
		assert.True(t, ok, "command %q", tt.command)
		assert.Equal(t, tt.want, got, "command %q", tt.command)
	}
}

func TestSuggestPhase_MutatingBeatsInspecting(t *testing.T) {
	// "git add" embeds no inspecting verb, but "cp" commands often
	// mention paths matching inspecting patterns; ordered groups must
	// classify the mutating verb first.
	got, ok := SuggestPhase("Bash", "cat notes.txt | tee /tmp/copy.txt", session.PhaseImplementation)
	assert.True(t, ok)
	assert.Equal(t, session.PhaseImplementation, got)

	got, ok = SuggestPhase("Bash", "git status && git add -A", session.PhaseImplementation)
	assert.True(t, ok)
	assert.Equal(t, session.PhaseImplementation, got)
}

func TestSuggestPhase_UnclassifiedCommand(t *testing.T) {
	// In early phases an unknown command defaults to exploration.
	for _, phase := range []session.Phase{
		session.PhaseIdle, session.PhaseIntent, session.PhaseAssessment,
	} {
		got, ok := SuggestPhase("Bash", "frobnicate --wobble", phase)
		assert.True(t, ok, "phase %s", phase)
		assert.Equal(t, session.PhaseExploration, got, "phase %s", phase)
	}

	// In later phases it suggests nothing.
	for _, phase := range []session.Phase{
		session.PhaseExploration, session.PhaseImplementation, session.PhaseVerification,
	} {
		_, ok := SuggestPhase("Bash", "frobnicate --wobble", phase)
		assert.False(t, ok, "phase %s", phase)
	}
}

func TestNormalizeToolName(t *testing.T) {
	assert.Equal(t, "read", normalizeToolName("  Read "))
	assert.Equal(t, "multiedit", normalizeToolName("MultiEdit"))
}
