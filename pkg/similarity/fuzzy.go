package similarity

import (
	"sort"
	"strings"
	"unicode"

	"github.com/bastiangx/codeserve/internal/utils"
)

// Constants for scoring
const (
	firstCharMatchBonus            = 15
	adjacentMatchBonus             = 10
	separatorMatchBonus            = 12
	camelCaseMatchBonus            = 12
	unmatchedLeadingCharPenalty    = -3
	maxUnmatchedLeadingCharPenalty = -9
)

// minFuzzyLen is the shortest typed token that may fuzzy-match a trigger.
const minFuzzyLen = 3

// Match represents a matched string with score
type Match struct {
	Str            string
	Score          int
	MatchedIndexes []int
}

// Fuzzy reports whether every rune of pattern appears in candidate in order
// (case-insensitively) and scores the match. Matches at the start of the
// candidate, after separators, on camelCase humps and in adjacent runs
// score higher; unmatched leading runes cost a little.
func Fuzzy(pattern, candidate string) (Match, bool) {
	match := Match{Str: candidate}
	patternRunes := []rune(pattern)
	if len(patternRunes) == 0 {
		return match, false
	}
	candidateRunes := []rune(candidate)

	var last rune
	var currAdjacentMatchBonus int
	patternIndex := 0

	for i, curr := range candidateRunes {
		if patternIndex >= len(patternRunes) {
			break
		}
		if !utils.EqualFold(curr, patternRunes[patternIndex]) {
			last = curr
			continue
		}

		score := 0
		if i == 0 {
			score += firstCharMatchBonus
		}
		if i > 0 && unicode.IsLower(last) && unicode.IsUpper(curr) {
			score += camelCaseMatchBonus
		}
		if i > 0 && utils.IsSeparator(last) {
			score += separatorMatchBonus
		}
		if n := len(match.MatchedIndexes); n > 0 && match.MatchedIndexes[n-1] == i-1 {
			currAdjacentMatchBonus = currAdjacentMatchBonus*2 + adjacentMatchBonus
			score += currAdjacentMatchBonus
		} else {
			currAdjacentMatchBonus = 0
		}
		if len(match.MatchedIndexes) == 0 {
			score += max(i*unmatchedLeadingCharPenalty, maxUnmatchedLeadingCharPenalty)
		}

		match.Score += score
		match.MatchedIndexes = append(match.MatchedIndexes, i)
		patternIndex++
		last = curr
	}

	if patternIndex < len(patternRunes) {
		return match, false
	}
	match.Score += len(match.MatchedIndexes) - len(candidateRunes)
	return match, true
}

// Matches returns candidates fuzzy-matching pattern, best first. Candidates
// whose first rune differs from the pattern's are skipped for patterns
// longer than one rune.
func Matches(pattern string, candidates []string) []Match {
	if pattern == "" {
		return nil
	}
	lower := strings.ToLower(pattern)
	var out []Match
	for _, c := range candidates {
		cl := strings.ToLower(c)
		if len(lower) > 1 && cl != "" && lower[0] != cl[0] {
			continue
		}
		if m, ok := Fuzzy(pattern, c); ok {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// TriggerOverlap returns the fraction of triggers found among tokens.
// A trigger counts when a token equals it ignoring case, or when a token
// of at least three runes sharing its first letter fuzzy-matches it, so
// partially typed identifiers still count.
func TriggerOverlap(triggers, tokens []string) float64 {
	if len(triggers) == 0 || len(tokens) == 0 {
		return 0
	}
	hits := 0
	for _, trig := range triggers {
		for _, tok := range tokens {
			if strings.EqualFold(trig, tok) {
				hits++
				break
			}
			if len(tok) >= minFuzzyLen && len(tok) < len(trig) &&
				strings.EqualFold(tok[:1], trig[:1]) {
				if _, ok := Fuzzy(tok, trig); ok {
					hits++
					break
				}
			}
		}
	}
	return clamp(float64(hits) / float64(len(triggers)))
}
