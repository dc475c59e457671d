// Package sanitize validates untrusted symbol and numeric input before it
// reaches exchange APIs or persisted settings.
package sanitize

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// MaxSymbolLength is the longest accepted instrument symbol.
const MaxSymbolLength = 20

// Symbol upper-cases the input and strips every non-alphanumeric rune.
// It returns false for an empty or over-length result. The operation is
// idempotent: Symbol(Symbol(x)) == Symbol(x).
func Symbol(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if r > unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	s := b.String()
	if s == "" || len(s) > MaxSymbolLength {
		return "", false
	}
	return s, true
}

// Symbols sanitizes a set of symbols, dropping entries that fail validation
// and de-duplicating the survivors while preserving order.
func Symbols(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		s, ok := Symbol(r)
		if !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Number parses a user-supplied numeric string, tolerating thousands
// separators and surrounding whitespace. NaN and infinities are rejected,
// as are values outside [min, max].
func Number(raw string, min, max float64) (float64, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	if n < min || n > max {
		return 0, false
	}
	return n, true
}

// Integer parses a user-supplied integer string within [min, max].
func Integer(raw string, min, max int) (int, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, false
	}
	if n < min || n > max {
		return 0, false
	}
	return n, true
}
