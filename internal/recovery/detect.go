// Package recovery implements the three-strike error detection and
// escalation protocol.
package recovery

import (
	"fmt"
	"regexp"
	"strings"
)

// Category groups failure indicators for suggestion lookup.
type Category string

const (
	CategoryShell    Category = "shell"
	CategoryModule   Category = "module"
	CategoryBuild    Category = "build"
	CategoryTest     Category = "test"
	CategoryRuntime  Category = "runtime"
	CategoryNetwork  Category = "network"
	CategoryResource Category = "resource"
	CategoryGeneric  Category = "generic"
)

// indicator is one entry in the ordered failure catalogue. Exclude
// suppresses a match; RE2 has no lookaheads, so benign uses of "error"
// are filtered with a second pattern instead.
type indicator struct {
	name     string
	pattern  *regexp.Regexp
	exclude  *regexp.Regexp
	category Category
}

// indicators is evaluated in order, first match wins. Specific shapes
// come before the generic "error:" markers.
var indicators = []indicator{
	// Shell errors
	{"command-not-found", regexp.MustCompile(`(?i)command not found|not recognized as an internal or external command`), nil, CategoryShell},
	{"permission-denied", regexp.MustCompile(`(?i)permission denied|operation not permitted`), nil, CategoryShell},
	{"no-such-file", regexp.MustCompile(`(?i)no such file or directory`), nil, CategoryShell},
	{"syntax-error-shell", regexp.MustCompile(`(?i)syntax error near unexpected token`), nil, CategoryShell},
	{"broken-pipe", regexp.MustCompile(`(?i)broken pipe`), nil, CategoryShell},

	// Module/import errors
	{"module-not-found", regexp.MustCompile(`(?i)cannot find module|module not found|no module named`), nil, CategoryModule},
	{"import-error", regexp.MustCompile(`(?i)importerror|cannot find package|package .+ is not in`), nil, CategoryModule},
	{"unresolved-import", regexp.MustCompile(`(?i)unresolved import|could not resolve (import|dependency|module)`), nil, CategoryModule},

	// Compiler/build errors
	{"compile-error", regexp.MustCompile(`(?i)compilation failed|compile error|cannot compile`), nil, CategoryBuild},
	{"syntax-error", regexp.MustCompile(`(?i)syntaxerror|syntax error`), nil, CategoryBuild},
	{"type-error-build", regexp.MustCompile(`(?i)type error|type mismatch|incompatible types|cannot use .+ as .+ value`), nil, CategoryBuild},
	{"undefined-symbol", regexp.MustCompile(`(?i)undefined: |undeclared identifier|undefined reference to`), nil, CategoryBuild},
	{"build-failed", regexp.MustCompile(`(?i)build failed|make: \*\*\* .+ error`), nil, CategoryBuild},

	// Test failures
	{"test-fail-marker", regexp.MustCompile(`(?i)--- FAIL|\bFAIL\b.*\(.*s\)|tests? failed`), nil, CategoryTest},
	{"assertion-failed", regexp.MustCompile(`(?i)assertionerror|assertion failed|expected .+ (but )?got`), nil, CategoryTest},
	{"test-summary-fail", regexp.MustCompile(`(?i)\d+ (failing|failed)(,| tests?|\b)`), nil, CategoryTest},

	// Language runtime exceptions
	{"panic", regexp.MustCompile(`panic: |runtime error: |goroutine \d+ \[`), nil, CategoryRuntime},
	{"traceback", regexp.MustCompile(`(?i)traceback \(most recent call last\)`), nil, CategoryRuntime},
	{"null-reference", regexp.MustCompile(`(?i)nullpointerexception|nil pointer dereference|undefined is not a function|cannot read propert(y|ies) of (null|undefined)`), nil, CategoryRuntime},
	{"uncaught-exception", regexp.MustCompile(`(?i)uncaught (exception|typeerror|referenceerror)|unhandled (exception|rejection)`), nil, CategoryRuntime},

	// Network errors
	{"connection-refused", regexp.MustCompile(`(?i)connection refused|connection reset|connection timed out`), nil, CategoryNetwork},
	{"dns-failure", regexp.MustCompile(`(?i)could not resolve host|no such host|name or service not known`), nil, CategoryNetwork},
	{"http-error", regexp.MustCompile(`(?i)\b(4\d\d|5\d\d)\s+(bad request|unauthorized|forbidden|not found|internal server error|bad gateway|service unavailable)`), nil, CategoryNetwork},

	// Resource exhaustion
	{"out-of-memory", regexp.MustCompile(`(?i)out of memory|cannot allocate memory|oom-?kill`), nil, CategoryResource},
	{"disk-full", regexp.MustCompile(`(?i)no space left on device|disk quota exceeded`), nil, CategoryResource},
	{"too-many-files", regexp.MustCompile(`(?i)too many open files`), nil, CategoryResource},

	// Generic markers, guarded against non-error uses of the word.
	{"generic-error-colon", regexp.MustCompile(`(?i)\berror:\s`),
		regexp.MustCompile(`(?i)\b(0|no|zero|without)\s+errors?\b`), CategoryGeneric},
	{"generic-error-word", regexp.MustCompile(`\bError\b`),
		regexp.MustCompile(`(?i)\b(0|no|zero|without)\s+errors?\b|error handling|error-free|errors?=0`), CategoryGeneric},
}

// Detection is the result of inspecting one tool output.
type Detection struct {
	Failed    bool
	Indicator string
	Category  Category
	Output    string
}

// textFields is the priority order for extracting output text.
var textFields = []string{"stdout", "stderr", "output", "message", "error_message", "errorMessage", "error_stack", "errorStack"}

// Detect inspects a tool result for failure signals. Structural checks
// run first: a truthy error field or non-zero exit code counts as a
// failure regardless of text.
func Detect(output map[string]any) Detection {
	if output == nil {
		return Detection{}
	}

	text := extractText(output)

	if errVal, ok := output["error"]; ok && truthy(errVal) {
		d := Detection{Failed: true, Indicator: "error-field", Category: CategoryGeneric, Output: text}
		if d.Output == "" {
			d.Output = fmt.Sprintf("%v", errVal)
		}
		if name, cat, ok := matchIndicators(d.Output); ok {
			d.Indicator, d.Category = name, cat
		}
		return d
	}
	for _, key := range []string{"exitCode", "exit_code", "code", "status"} {
		if v, ok := output[key]; ok {
			if n, isNum := asNumber(v); isNum && n != 0 {
				d := Detection{Failed: true, Indicator: "exit-code", Category: CategoryShell, Output: text}
				if name, cat, ok := matchIndicators(text); ok {
					d.Indicator, d.Category = name, cat
				}
				return d
			}
		}
	}

	if name, cat, ok := matchIndicators(text); ok {
		return Detection{Failed: true, Indicator: name, Category: cat, Output: text}
	}
	return Detection{Output: text}
}

func matchIndicators(text string) (string, Category, bool) {
	if text == "" {
		return "", "", false
	}
	for _, ind := range indicators {
		if !ind.pattern.MatchString(text) {
			continue
		}
		if ind.exclude != nil && ind.exclude.MatchString(text) {
			continue
		}
		return ind.name, ind.category, true
	}
	return "", "", false
}

// extractText concatenates known output fields in priority order.
func extractText(output map[string]any) string {
	var parts []string
	for _, key := range textFields {
		if v, ok := output[key]; ok {
			if s, isStr := v.(string); isStr && s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false"
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	}
	return 0, false
}
