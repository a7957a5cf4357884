package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOverrides(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadOverrides(t *testing.T) {
	path := writeOverrides(t, `
blocked:
  - name: no-prod-deploy
    pattern: '(?i)\bdeploy\s+--prod\b'
warning:
  - name: db-migrate
    pattern: '(?i)\bmigrate\b'
`)

	blocked, warning, err := LoadOverrides(path)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	require.Len(t, warning, 1)
	assert.Equal(t, "no-prod-deploy", blocked[0].Name)
	assert.True(t, blocked[0].Pattern.MatchString("deploy --prod"))
	assert.Equal(t, "db-migrate", warning[0].Name)
}

func TestLoadOverrides_Empty(t *testing.T) {
	path := writeOverrides(t, "")

	blocked, warning, err := LoadOverrides(path)
	require.NoError(t, err)
	assert.Empty(t, blocked)
	assert.Empty(t, warning)
}

func TestLoadOverrides_MissingFile(t *testing.T) {
	_, _, err := LoadOverrides(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadOverrides_InvalidRegexp(t *testing.T) {
	path := writeOverrides(t, `
blocked:
  - name: broken
    pattern: '(unclosed'
`)

	_, _, err := LoadOverrides(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestLoadOverrides_UnnamedPattern(t *testing.T) {
	path := writeOverrides(t, `
blocked:
  - pattern: 'x'
`)

	_, _, err := LoadOverrides(path)
	assert.Error(t, err)
}

func TestLoadOverrides_PatternTooLong(t *testing.T) {
	long := make([]byte, 501)
	for i := range long {
		long[i] = 'a'
	}
	path := writeOverrides(t, "blocked:\n  - name: long\n    pattern: '"+string(long)+"'\n")

	_, _, err := LoadOverrides(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too long")
}

func TestNewValidator_WithOverridesFile(t *testing.T) {
	path := writeOverrides(t, `
blocked:
  - name: no-prod-deploy
    pattern: '(?i)\bdeploy\s+--prod\b'
`)

	v, err := NewValidator(&Config{CacheSize: 10, OverridesPath: path}, nil)
	require.NoError(t, err)

	result := v.ValidateCommand("deploy --prod")
	assert.Equal(t, ActionDeny, result.Action)
	assert.Equal(t, "no-prod-deploy", result.MatchedPattern)
}

func TestNewValidator_BadOverridesFile(t *testing.T) {
	_, err := NewValidator(&Config{CacheSize: 10, OverridesPath: "/does/not/exist.yaml"}, nil)
	assert.Error(t, err)
}
