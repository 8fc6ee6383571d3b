package predict

import (
	"cmp"
	"slices"
	"strings"

	"github.com/bastiangx/codeserve/internal/utils"
	"github.com/bastiangx/codeserve/pkg/patterns"
	"github.com/bastiangx/codeserve/pkg/similarity"
	"github.com/bastiangx/codeserve/pkg/suggest"
)

// MinRelevance is the score a pattern must exceed to be a candidate.
const MinRelevance = 0.3

// Ranked is a stored pattern scored against a typing context.
type Ranked struct {
	Pattern   *patterns.Pattern
	Relevance float64
}

// Relevance scores p against the request: language match, confidence,
// capped frequency and trigger overlap with the typed tokens.
func Relevance(p *patterns.Pattern, language string, tokens []string) float64 {
	score := 0.0
	if p.Language == language {
		score += 0.2
	}
	score += 0.3 * p.Confidence
	score += min(float64(p.Frequency)/10, 1) * 0.2
	score += 0.3 * similarity.TriggerOverlap(p.Triggers, tokens)
	return score
}

func requestTokens(req Request) []string {
	return utils.Identifiers(req.Line + "\n" + req.Context)
}

// Rank scores every stored pattern and returns the candidates above
// MinRelevance, best first, at most max_results of them.
func (e *Engine) Rank(req Request) []Ranked {
	tokens := requestTokens(req)
	var out []Ranked
	for _, p := range e.store.All() {
		if r := Relevance(p, req.Language, tokens); r > MinRelevance {
			out = append(out, Ranked{Pattern: p, Relevance: r})
		}
	}
	slices.SortFunc(out, func(a, b Ranked) int {
		if c := cmp.Compare(b.Relevance, a.Relevance); c != 0 {
			return c
		}
		return cmp.Compare(a.Pattern.Seq, b.Pattern.Seq)
	})
	if n := e.cfg.MaxResults; n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Complete returns the snippets for the current line: the quick
// prediction, ranked patterns, and patterns whose triggers start with the
// identifier under the cursor.
func (e *Engine) Complete(req Request) []suggest.Snippet {
	var out []suggest.Snippet

	if p := e.Predict(req); p != nil {
		out = append(out, suggest.Snippet{
			Title:       "Predicted " + strings.ReplaceAll(string(p.Kind), "_", " "),
			Description: suggest.Describe("confidence", p.Confidence),
			Language:    req.Language,
			Code:        p.Code,
			Pattern:     string(p.Kind),
			Similarity:  p.Confidence,
		})
	}

	seen := make(map[string]bool)
	for _, r := range e.Rank(req) {
		seen[r.Pattern.ID] = true
		out = append(out, patternSnippet(r.Pattern, r.Relevance, "relevance"))
	}

	for _, p := range e.prefixCandidates(lastIdentifier(req.Line)) {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, patternSnippet(p, p.Confidence*0.5, "match"))
	}

	out = suggest.Dedupe(out, strings.TrimSpace(req.Line))
	suggest.SortBySimilarity(out)
	return suggest.Limit(out, e.cfg.MaxResults)
}

// prefixCandidates looks the word up in the trigger index, falling back to
// fuzzy matching over all triggers when no trigger has it as a prefix.
func (e *Engine) prefixCandidates(word string) []*patterns.Pattern {
	if len(word) < 2 {
		return nil
	}
	if found := e.store.ByTriggerPrefix(word); len(found) > 0 {
		return found
	}
	var out []*patterns.Pattern
	for _, m := range similarity.Matches(strings.ToLower(word), e.store.TriggerWords()) {
		out = append(out, e.store.ByTriggerPrefix(m.Str)...)
		if len(out) >= e.cfg.MaxResults {
			break
		}
	}
	return out
}

// Suggest implements suggest.Suggester.
func (e *Engine) Suggest(line, context, language string, limit int) []suggest.Snippet {
	out := e.Complete(Request{Line: line, Context: context, Language: language})
	return suggest.Limit(out, limit)
}

func patternSnippet(p *patterns.Pattern, score float64, label string) suggest.Snippet {
	return suggest.Snippet{
		Title:       "Learned " + string(p.Kind) + " pattern",
		Description: suggest.Describe(label, score) + ", used " + utils.FormatWithCommas(p.Frequency) + "x",
		Language:    p.Language,
		Code:        p.Code,
		Pattern:     p.ID,
		Similarity:  min(score, 1),
	}
}

func lastIdentifier(line string) string {
	ids := utils.Identifiers(line)
	if len(ids) == 0 {
		return ""
	}
	last := ids[len(ids)-1]
	if !strings.HasSuffix(strings.TrimRight(line, " \t"), last) {
		return ""
	}
	return last
}
