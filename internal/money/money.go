// Package money parses dollar amounts as they appear in correspondence:
// "$450,000", "$13.45M", "1.5 million", "$85k". Amounts are returned as
// plain float64 dollars; the engine stores raw candidate strings and
// parses at apply time so a bad parse is reviewable, not silent.
package money

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// multipliers for suffix forms, checked longest-first so "million"
// doesn't match the bare "m" rule on its prefix.
var suffixMultipliers = []struct {
	suffix string
	factor float64
}{
	{"billion", 1e9},
	{"million", 1e6},
	{"thousand", 1e3},
	{"bn", 1e9},
	{"b", 1e9},
	{"mm", 1e6},
	{"m", 1e6},
	{"k", 1e3},
}

// amountToken matches a currency-shaped span: optional "$", digits with
// comma grouping and an optional decimal part, and an optional magnitude
// suffix.
var amountToken = regexp.MustCompile(`(?i)\$?\d[\d,]*(?:\.\d+)?(?:\s*(?:billion|million|thousand|bn|mm|k|m|b))?`)

// Parse converts a detected amount string to dollars. It accepts an
// optional leading "$", comma grouping, and magnitude suffixes in either
// symbol ("M", "k") or word ("million") form. Detection spans often carry
// surrounding prose ("$50,000 found"); when the whole string does not
// parse, the first currency token in it is tried before giving up.
func Parse(raw string) (float64, error) {
	v, err := parseExact(raw)
	if err == nil {
		return v, nil
	}
	tok := extractToken(raw)
	if tok == "" {
		return 0, err
	}
	v, tokErr := parseExact(tok)
	if tokErr != nil {
		return 0, err
	}
	return v, nil
}

// extractToken returns the first currency token in raw that sits on its
// own word boundaries. Tokens embedded in a larger run ("1e9", the "5" in
// "$12.5.3") are skipped so malformed amounts stay rejected.
func extractToken(raw string) string {
	for _, loc := range amountToken.FindAllStringIndex(raw, -1) {
		if loc[0] > 0 && breaksBefore(raw[loc[0]-1]) {
			continue
		}
		if loc[1] < len(raw) && breaksAfter(raw[loc[1]:]) {
			continue
		}
		return raw[loc[0]:loc[1]]
	}
	return ""
}

func breaksBefore(c byte) bool {
	return isAlnum(c) || c == '.' || c == ','
}

// breaksAfter rejects a trailing letter or digit, and a "." or "," that
// continues into more digits ("$12.5.3"). A plain sentence-ending dot is
// fine.
func breaksAfter(rest string) bool {
	if isAlnum(rest[0]) {
		return true
	}
	if (rest[0] == '.' || rest[0] == ',') && len(rest) > 1 && rest[1] >= '0' && rest[1] <= '9' {
		return true
	}
	return false
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func parseExact(raw string) (float64, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "usd")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, eris.Errorf("money: empty amount %q", raw)
	}

	factor := 1.0
	for _, m := range suffixMultipliers {
		if strings.HasSuffix(s, m.suffix) {
			factor = m.factor
			s = strings.TrimSpace(strings.TrimSuffix(s, m.suffix))
			break
		}
	}
	if s == "" {
		return 0, eris.Errorf("money: no digits in %q", raw)
	}

	n, err := parseDecimal(s)
	if err != nil {
		return 0, eris.Wrapf(err, "money: parse %q", raw)
	}
	return n * factor, nil
}

// ParseFirst returns the first parseable amount from a list of raw
// candidates, in order. Detection often yields several spans for one
// sentence; the earliest well-formed one wins.
func ParseFirst(candidates []string) (float64, string, error) {
	for _, c := range candidates {
		if v, err := Parse(c); err == nil {
			return v, c, nil
		}
	}
	return 0, "", eris.Errorf("money: no parseable amount in %v", candidates)
}

// parseDecimal is strconv.ParseFloat restricted to plain decimal forms.
// Exponents and hex floats never appear in fee text; rejecting them keeps
// garbage like "1e9" out of proposal values.
func parseDecimal(s string) (float64, error) {
	seenDot := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !seenDot:
			seenDot = true
		default:
			return 0, eris.Errorf("unexpected character %q", r)
		}
	}
	return strconv.ParseFloat(s, 64)
}
