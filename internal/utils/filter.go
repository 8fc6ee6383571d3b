package utils

// SuggestionFilter drops suggestions whose code was already emitted.
// Code is compared after whitespace normalization so reformatted copies of
// the same pattern collapse into one entry.
type SuggestionFilter struct {
	seen map[string]bool
}

// NewSuggestionFilter creates a filter that also excludes the text the user
// already typed.
func NewSuggestionFilter(typed string) *SuggestionFilter {
	seen := make(map[string]bool)
	if n := NormalizeWhitespace(typed); n != "" {
		seen[n] = true
	}
	return &SuggestionFilter{seen: seen}
}

// ShouldInclude reports whether code is new and records it.
func (f *SuggestionFilter) ShouldInclude(code string) bool {
	n := NormalizeWhitespace(code)
	if n == "" || f.seen[n] {
		return false
	}
	f.seen[n] = true
	return true
}
