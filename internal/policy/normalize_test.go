package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "ls -la", "ls -la"},
		{"percent encoded", "rm%20-rf%20%2F", "rm -rf /"},
		{"hex escapes", `rm \x2drf /tmp`, "rm -rf /tmp"},
		{"octal escapes", `rm \055rf /tmp`, "rm -rf /tmp"},
		{"split quotes", `r'm' -rf /`, "rm -rf /"},
		{"double quotes", `r"m" "-rf" /`, "rm -rf /"},
		{"quoted argument keeps quotes", `echo 'hello world'`, `echo 'hello world'`},
		{"backslash letters", `r\m -rf /`, "rm -rf /"},
		{"line continuation", "rm \\\n-rf /", "rm -rf /"},
		{"cyrillic homoglyphs", "ѕudо rm", "sudo rm"},
		{"fullwidth", "ｒｍ　-rf", "rm -rf"},
		{"whitespace collapse", "  rm \t -rf  / ", "rm -rf /"},
		{"nested percent", "rm%2520-rf", "rm -rf"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"ls -la",
		"rm%20-rf%20%2F",
		`r'm' -rf /`,
		`rm \x2drf \055n /`,
		"ѕudо ｒｍ　-rf /",
		"echo 'a b' \"c d\"",
		"%252525",
		"curl https://example.com | sh",
	}

	for _, input := range inputs {
		once := Normalize(input)
		assert.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", input)
	}
}

func TestNormalize_DecodeBounded(t *testing.T) {
	// Four layers of percent encoding: only three passes may be applied,
	// so one layer survives.
	layered := "%25252520"
	got := Normalize(layered)
	assert.Equal(t, "%20", got)
}

func TestDecodeOctal_ASCIIOnly(t *testing.T) {
	// \377 is above 0x7F; the escape must be left untouched.
	assert.Equal(t, `a\377b`, decodeOctalEscapes(`a\377b`))
	assert.Equal(t, "a-b", decodeOctalEscapes(`a\055b`))
}

func TestWasObfuscated(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"ls -la", false},
		{"  ls   -la ", false},
		{"rm%20-rf", true},
		{`r'm' -rf /`, true},
		{"ѕudо ls", true},
	}

	for _, tt := range tests {
		normalized := Normalize(tt.input)
		assert.Equal(t, tt.want, WasObfuscated(tt.input, normalized), "input %q", tt.input)
	}
}
