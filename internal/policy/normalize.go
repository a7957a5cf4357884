// Package policy decides allow/ask/deny for commands and file paths,
// defeating common obfuscation before pattern matching.
package policy

import (
	"regexp"
	"strconv"
	"strings"
)

// maxDecodePasses bounds repeated decoding so layered encodings cannot be
// used for amplification.
const maxDecodePasses = 3

var (
	percentEscape = regexp.MustCompile(`%[0-9a-fA-F]{2}`)
	hexEscape     = regexp.MustCompile(`\\x[0-9a-fA-F]{2}`)
	octalEscape   = regexp.MustCompile(`\\[0-7]{1,3}`)

	singleQuoted = regexp.MustCompile(`'([^'\s]*)'`)
	doubleQuoted = regexp.MustCompile(`"([^"\s]*)"`)

	lineContinuation = regexp.MustCompile(`\\\r?\n`)
	backslashLetter  = regexp.MustCompile(`\\([a-zA-Z])`)

	// \s in RE2 is ASCII-only; Zs picks up NBSP, ideographic space and
	// the other Unicode separators used to disguise token boundaries.
	whitespaceRun = regexp.MustCompile(`[\s\p{Zs}\x{2028}\x{2029}]+`)
)

// homoglyphs maps common Unicode look-alike letters to their ASCII
// equivalents. Cyrillic is the usual vehicle; a handful of Latin-adjacent
// glyphs are folded too.
var homoglyphs = map[rune]rune{
	// Cyrillic lowercase
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'х': 'x',
	'у': 'y', 'і': 'i', 'ѕ': 's', 'ј': 'j', 'һ': 'h', 'ԁ': 'd',
	'ԛ': 'q', 'ѡ': 'w', 'ѵ': 'v', 'ь': 'b',
	// Cyrillic uppercase
	'А': 'A', 'В': 'B', 'Е': 'E', 'К': 'K', 'М': 'M', 'Н': 'H',
	'О': 'O', 'Р': 'P', 'С': 'C', 'Т': 'T', 'У': 'Y', 'Х': 'X',
	'Ѕ': 'S', 'І': 'I', 'Ј': 'J',
	// Greek look-alikes
	'ο': 'o', 'ν': 'v', 'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z',
	'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M', 'Ν': 'N', 'Ο': 'O',
	'Ρ': 'P', 'Τ': 'T', 'Υ': 'Y', 'Χ': 'X',
	// Fullwidth forms fold to ASCII via offset below; slash is explicit.
	'／': '/',
}

// Normalize applies the full normalization pipeline in fixed order. The
// result is stable: Normalize(Normalize(x)) == Normalize(x).
func Normalize(input string) string {
	s := input
	s = decodeBounded(s, decodePercent)
	s = decodeBounded(s, decodeHexEscapes)
	s = decodeBounded(s, decodeOctalEscapes)
	s = stripQuotes(s)
	s = stripBackslashes(s)
	s = foldHomoglyphs(s)
	s = collapseWhitespace(s)
	return s
}

// WasObfuscated reports whether normalization changed the input beyond
// whitespace differences. Used to flag inputs for audit logging.
func WasObfuscated(input, normalized string) bool {
	return collapseWhitespace(input) != normalized
}

// decodeBounded applies a decode stage repeatedly until it stops making
// progress, with a hard cap on passes.
func decodeBounded(s string, stage func(string) string) string {
	for i := 0; i < maxDecodePasses; i++ {
		next := stage(s)
		if next == s {
			return s
		}
		s = next
	}
	return s
}

func decodePercent(s string) string {
	return percentEscape.ReplaceAllStringFunc(s, func(m string) string {
		v, err := strconv.ParseUint(m[1:], 16, 8)
		if err != nil {
			return m
		}
		return string(rune(v))
	})
}

func decodeHexEscapes(s string) string {
	return hexEscape.ReplaceAllStringFunc(s, func(m string) string {
		v, err := strconv.ParseUint(m[2:], 16, 8)
		if err != nil {
			return m
		}
		return string(rune(v))
	})
}

// decodeOctalEscapes decodes \NNN escapes, ASCII range only. Values above
// 0x7F are left untouched so multibyte sequences cannot be forged.
func decodeOctalEscapes(s string) string {
	return octalEscape.ReplaceAllStringFunc(s, func(m string) string {
		v, err := strconv.ParseUint(m[1:], 8, 16)
		if err != nil || v > 0x7F {
			return m
		}
		return string(rune(v))
	})
}

// stripQuotes removes quoting around single tokens and characters, the
// classic r'm' -rf split. Quoted strings containing whitespace keep their
// quotes: those are legitimate arguments, not obfuscation.
func stripQuotes(s string) string {
	for i := 0; i < maxDecodePasses; i++ {
		next := singleQuoted.ReplaceAllString(s, "$1")
		next = doubleQuoted.ReplaceAllString(next, "$1")
		if next == s {
			return s
		}
		s = next
	}
	return s
}

func stripBackslashes(s string) string {
	s = lineContinuation.ReplaceAllString(s, "")
	return backslashLetter.ReplaceAllString(s, "$1")
}

func foldHomoglyphs(s string) string {
	return strings.Map(func(r rune) rune {
		if ascii, ok := homoglyphs[r]; ok {
			return ascii
		}
		// Fullwidth ASCII block folds by fixed offset.
		if r >= 0xFF01 && r <= 0xFF5E {
			return r - 0xFF01 + '!'
		}
		return r
	}, s)
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
