// Package similarity scores how alike two pieces of code are, either
// structurally (two syntax nodes) or textually (two strings).
//
// Every function here is pure and every score is in [0,1].
package similarity

import (
	"strings"
	"unicode/utf8"
)

// MaxEditInput caps the bytes of each input considered by Levenshtein.
// Longer inputs are truncated at a rune boundary.
const MaxEditInput = 4096

// Jaccard returns |A∩B| / |A∪B| over the whitespace-separated token sets of
// a and b. Two inputs without tokens score 0.
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return clamp(float64(inter) / float64(union))
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(s)
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// Levenshtein returns the edit distance between a and b in runes.
func Levenshtein(a, b string) int {
	ra := []rune(truncate(a))
	rb := []rune(truncate(b))
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Normalized returns 1 - distance/maxLen. Two empty strings score 1.
func Normalized(a, b string) float64 {
	a, b = truncate(a), truncate(b)
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	return clamp(1 - float64(Levenshtein(a, b))/float64(maxLen))
}

func truncate(s string) string {
	if len(s) <= MaxEditInput {
		return s
	}
	cut := MaxEditInput
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
