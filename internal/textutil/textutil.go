// Package textutil normalises scanner payloads and catalog strings before
// they are compared.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeCode cleans a raw decoded payload: NFKC normalisation, control
// characters removed (GS1 group separators, trailing CR/LF from keyboard-wedge
// scanners) and surrounding whitespace trimmed.
func NormalizeCode(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// Fold returns the Unicode case-folded form of s for case-insensitive
// comparison. A Caser is stateful, so a fresh one is used per call.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// FoldKey returns the NFKC-normalised, case-folded form of s. Strings that
// differ only in composition, width or case have equal keys.
func FoldKey(s string) string {
	return Fold(norm.NFKC.String(s))
}

// ContainsFold reports whether substr occurs in s, ignoring case.
// An empty substr never matches.
func ContainsFold(s, substr string) bool {
	if substr == "" {
		return false
	}
	return strings.Contains(Fold(s), Fold(substr))
}

// ContainsAnyFold reports whether s contains any of the given needles,
// ignoring case.
func ContainsAnyFold(s string, needles ...string) bool {
	folded := Fold(s)
	for _, n := range needles {
		if n != "" && strings.Contains(folded, Fold(n)) {
			return true
		}
	}
	return false
}
