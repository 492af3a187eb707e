// Package fuzzy scores how close two strings are on a 0 to 100 scale.
package fuzzy

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Ratio returns the normalized Levenshtein similarity of a and b, compared
// case-insensitively after trimming. Identical strings score 100; two empty
// strings also score 100 and an empty string against a non-empty one scores 0.
func Ratio(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)
	if a == b {
		return 100
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	dist := levenshtein.ComputeDistance(a, b)
	score := 100 * (1 - float64(dist)/float64(maxLen))
	if score < 0 {
		return 0
	}
	return score
}

// Best returns the highest Ratio between search and any candidate, and the
// candidate that produced it. Empty candidates are skipped.
func Best(search string, candidates ...string) (float64, string) {
	best, bestValue := 0.0, ""
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if s := Ratio(search, c); s > best {
			best, bestValue = s, c
		}
	}
	return best, bestValue
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
