// Package normalizers provides field normalization for matching and ingestion.
package normalizers

import (
	"strings"
	"unicode"
)

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeOrgName normalizes an organization name for matching
// - Lowercase
// - Collapse whitespace runs
// - Drop common legal suffixes (inc, llc, ltd, corp, lp)
// - Remove punctuation
func NormalizeOrgName(s string) string {
	s = strings.ToLower(s)

	suffixes := []string{" inc.", " inc", " llc", " l.l.c.", " ltd.", " ltd", " corp.", " corp", " lp", " l.p.", " co.", " co"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	}

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}
