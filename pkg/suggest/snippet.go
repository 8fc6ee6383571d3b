// Package suggest defines the suggestion record every engine surface
// returns (completion, hover, snippet matching) and helpers to order and
// trim lists of them.
package suggest

import (
	"cmp"
	"slices"

	"github.com/bastiangx/codeserve/internal/utils"
)

// Snippet is one suggested insertion.
type Snippet struct {
	Title       string `msgpack:"title" yaml:"title"`
	Description string `msgpack:"description" yaml:"description"`
	Language    string `msgpack:"language" yaml:"language"`
	Code        string `msgpack:"code" yaml:"code"`
	// Pattern is the learned pattern id or edit kind the snippet came from.
	Pattern string `msgpack:"pattern,omitempty" yaml:"pattern,omitempty"`
	// Similarity is the score the snippet was ranked by, in [0,1].
	Similarity float64 `msgpack:"similarity,omitempty" yaml:"similarity,omitempty"`
}

// Suggester is implemented by every engine surface that can produce
// snippets for a line of code.
type Suggester interface {
	Suggest(line, context, language string, limit int) []Snippet
}

// SortBySimilarity orders snippets by descending similarity, keeping the
// input order between equal scores.
func SortBySimilarity(s []Snippet) {
	slices.SortStableFunc(s, func(a, b Snippet) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
}

// Dedupe drops snippets whose code repeats an earlier one, or the text the
// user already typed, ignoring whitespace differences.
func Dedupe(s []Snippet, typed string) []Snippet {
	filter := utils.NewSuggestionFilter(typed)
	out := s[:0]
	for _, sn := range s {
		if filter.ShouldInclude(sn.Code) {
			out = append(out, sn)
		}
	}
	return out
}

// Limit truncates s to at most n entries. n <= 0 means no limit.
func Limit(s []Snippet, n int) []Snippet {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

// Describe renders the standard description suffix, e.g. "72% relevance".
func Describe(label string, score float64) string {
	return utils.FormatPercent(score) + " " + label
}
