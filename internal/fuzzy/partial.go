// Package fuzzy implements substring-aware string similarity on a 0-100 scale.
package fuzzy

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Ratio scores the Levenshtein similarity of two strings on a 0-100 scale,
// normalised by the longer input.
func Ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n := max(len(ra), len(rb))
	if n == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return scale(d, n)
}

// PartialRatio slides the shorter string across the longer one and returns the
// best Ratio over all equally sized windows, so "please summarize our talk"
// scores 100 against "summarize our talk". Comparison is case-insensitive.
func PartialRatio(a, b string) int {
	ra := []rune(strings.ToLower(strings.TrimSpace(a)))
	rb := []rune(strings.ToLower(strings.TrimSpace(b)))
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	short, long := ra, rb
	if len(short) > len(long) {
		short, long = long, short
	}

	n := len(short)
	needle := string(short)
	best := 0
	for i := 0; i+n <= len(long); i++ {
		d := levenshtein.ComputeDistance(needle, string(long[i:i+n]))
		if score := scale(d, n); score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

// BestPartialRatio returns the highest PartialRatio of text against candidates
// along with the candidate that produced it.
func BestPartialRatio(text string, candidates []string) (int, string) {
	best, match := 0, ""
	for _, c := range candidates {
		if score := PartialRatio(text, c); score > best {
			best, match = score, c
		}
	}
	return best, match
}

// MatchesAny reports whether text scores at least threshold against any candidate.
func MatchesAny(text string, candidates []string, threshold int) bool {
	for _, c := range candidates {
		if PartialRatio(text, c) >= threshold {
			return true
		}
	}
	return false
}

func scale(distance, length int) int {
	if distance >= length {
		return 0
	}
	return int(math.Round(100 * (1 - float64(distance)/float64(length))))
}
