// Package patterns is the engine's long-lived memory of recurring code
// shapes: learned patterns keyed by a content hash, reinforced on repeat
// sightings, evicted by value when over capacity, and persisted as one
// msgpack blob.
package patterns

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bastiangx/codeserve/internal/utils"
	"github.com/bastiangx/codeserve/pkg/fragment"
	"github.com/cespare/xxhash/v2"
)

// Pattern is one learned pattern. Confidence and Triggers are fixed when the
// pattern is created; Frequency, LastUsed and Variants change on
// reinforcement.
type Pattern struct {
	ID         string        `msgpack:"id"`
	Code       string        `msgpack:"code"`
	Context    string        `msgpack:"context"`
	Kind       fragment.Kind `msgpack:"kind"`
	Frequency  int           `msgpack:"frequency"`
	LastUsed   time.Time     `msgpack:"lastUsed"`
	Triggers   []string      `msgpack:"triggers"`
	Language   string        `msgpack:"fileLanguage"`
	Confidence float64       `msgpack:"confidence"`
	Variants   []string      `msgpack:"variants"`
	// Seq is the insertion order, used as the eviction tie-break.
	Seq       uint64    `msgpack:"seq"`
	CreatedAt time.Time `msgpack:"createdAt"`
}

// Score is the eviction value: frequency × confidence.
func (p *Pattern) Score() float64 {
	return float64(p.Frequency) * p.Confidence
}

func (p *Pattern) clone() *Pattern {
	c := *p
	c.Triggers = slices.Clone(p.Triggers)
	c.Variants = slices.Clone(p.Variants)
	return &c
}

// ID derives the pattern id of content: "p_" followed by the hex xxhash64 of
// the whitespace-normalized text.
func ID(content string) string {
	sum := xxhash.Sum64String(utils.NormalizeWhitespace(content))
	return "p_" + strconv.FormatUint(sum, 16)
}

const (
	maxIdentifierTriggers = 5
	maxContextTriggers    = 3
	minIdentifierLen      = 3
	minContextWordLen     = 4
)

// triggerKeywords are the control and declaration keywords recorded as
// triggers when present.
var triggerKeywords = []string{
	"function", "class", "const", "let", "var", "if", "else", "for",
	"while", "do", "switch", "try", "catch", "return", "import", "export",
	"async", "await", "new",
}

// Triggers computes the trigger set of a fragment: keywords present in the
// content, then up to five identifiers, then up to three context words.
func Triggers(content, context string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(tok string) bool {
		if seen[tok] {
			return false
		}
		seen[tok] = true
		out = append(out, tok)
		return true
	}

	tokens := utils.Identifiers(content)
	present := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		present[tok] = true
	}
	for _, kw := range triggerKeywords {
		if present[kw] {
			add(kw)
		}
	}

	idents := 0
	for _, tok := range tokens {
		if idents == maxIdentifierTriggers {
			break
		}
		if len(tok) < minIdentifierLen || utils.IsKeyword(tok) {
			continue
		}
		if add(tok) {
			idents++
		}
	}

	words := 0
	for _, tok := range utils.Identifiers(context) {
		if words == maxContextTriggers {
			break
		}
		if len(tok) < minContextWordLen || utils.IsKeyword(tok) {
			continue
		}
		if add(tok) {
			words++
		}
	}
	return out
}

var kindBonus = map[fragment.Kind]float64{
	fragment.KindFunction: 0.2,
	fragment.KindClass:    0.25,
	fragment.KindImport:   0.15,
}

// Confidence computes the initial confidence of a fragment, in [0,1].
func Confidence(f fragment.Fragment) float64 {
	c := 0.5
	c += min(f.Complexity/10, 1) * 0.3
	c += kindBonus[f.Kind]
	if strings.Count(f.Content, "{") == strings.Count(f.Content, "}") {
		c += 0.1
	}
	return max(0, min(c, 1))
}
