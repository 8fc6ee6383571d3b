// Package fragment turns a parsed document into candidate code fragments
// for the pattern store.
package fragment

import (
	"strings"

	"github.com/bastiangx/codeserve/internal/utils"
	"github.com/bastiangx/codeserve/pkg/syntax"
)

// Kind of a fragment.
type Kind string

const (
	KindFunction    Kind = "function"
	KindClass       Kind = "class"
	KindVariable    Kind = "variable"
	KindBlock       Kind = "block"
	KindImport      Kind = "import"
	KindLoop        Kind = "loop"
	KindConditional Kind = "conditional"
)

// ImportContext is the context label every import fragment carries.
const ImportContext = "import statement"

const (
	// MaxBlockLines bounds loop, conditional and try fragments.
	MaxBlockLines = 40
	// ContextRadius is the number of lines kept on each side of a fragment start.
	ContextRadius = 3
	// DefaultMinLength is the default minimum block content length.
	DefaultMinLength = 20
)

// Fragment is a transient candidate produced by one extraction pass.
type Fragment struct {
	Content    string
	Kind       Kind
	Context    string
	LineCount  int
	Complexity float64
	// Node is the syntax node the fragment was cut from.
	Node syntax.Node
}

// Extractor walks trees and cuts fragments out of the owning text.
type Extractor struct {
	minLength int
}

// New creates an Extractor. minLength applies to loop, conditional and try
// blocks; values <= 0 select DefaultMinLength.
func New(minLength int) *Extractor {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Extractor{minLength: minLength}
}

// Extract returns the fragments found in tree. A nil tree yields none.
func (e *Extractor) Extract(tree *syntax.Tree, text string) []Fragment {
	if tree == nil || tree.Root == nil {
		return nil
	}
	lines := utils.Lines(text)

	var out []Fragment
	syntax.Walk(tree.Root, func(n syntax.Node) bool {
		if f, ok := e.fragmentFor(n, lines); ok {
			out = append(out, f)
		}
		return true
	})
	return out
}

func (e *Extractor) fragmentFor(n syntax.Node, lines []string) (Fragment, bool) {
	var kind Kind
	switch node := n.(type) {
	case *syntax.Function:
		if node.Name() == "" {
			return Fragment{}, false
		}
		kind = KindFunction
	case *syntax.Class:
		if node.Name() == "" {
			return Fragment{}, false
		}
		kind = KindClass
	case *syntax.Variable:
		if !interestingInit(node) {
			return Fragment{}, false
		}
		kind = KindVariable
	case *syntax.Import:
		content := Slice(lines, n.Span())
		return Fragment{
			Content:    content,
			Kind:       KindImport,
			Context:    ImportContext,
			LineCount:  n.Span().Lines(),
			Complexity: Complexity(content),
			Node:       n,
		}, true
	case *syntax.Loop:
		kind = KindLoop
	case *syntax.Conditional:
		kind = KindConditional
	case *syntax.Try:
		kind = KindBlock
	default:
		return Fragment{}, false
	}

	content := Slice(lines, n.Span())
	if kind == KindLoop || kind == KindConditional || kind == KindBlock {
		if n.Span().Lines() > MaxBlockLines || len(content) < e.minLength {
			return Fragment{}, false
		}
	}
	return Fragment{
		Content:    content,
		Kind:       kind,
		Context:    ContextWindow(lines, n.Span().StartLine),
		LineCount:  n.Span().Lines(),
		Complexity: Complexity(content),
		Node:       n,
	}, true
}

func interestingInit(v *syntax.Variable) bool {
	for _, d := range v.Declarators {
		switch d.Init {
		case "object", "array", "arrow_function", "function":
			return true
		}
	}
	return false
}

// Slice returns the document lines covered by span, clipped to the text.
// Fragment content is always cut this way.
func Slice(lines []string, span syntax.Span) string {
	start := span.StartLine - 1
	end := span.EndLine
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

// ContextWindow returns the lines within ContextRadius of the 1-indexed
// start line, clipped to the document bounds.
func ContextWindow(lines []string, start int) string {
	return Slice(lines, syntax.Span{
		StartLine: start - ContextRadius,
		EndLine:   start + ContextRadius,
	})
}

var controlKeywords = []string{"if", "else", "for", "while", "switch", "try", "catch"}

// Complexity scores content: 1 plus control keyword occurrences, plus
// function-introducing tokens, plus half the number of brace and bracket
// openers. The result is always >= 1.
func Complexity(content string) float64 {
	score := 1.0
	for _, tok := range utils.Identifiers(content) {
		for _, kw := range controlKeywords {
			if tok == kw {
				score++
				break
			}
		}
		if tok == "function" {
			score++
		}
	}
	score += float64(strings.Count(content, "=>"))
	score += 0.5 * float64(strings.Count(content, "{")+strings.Count(content, "["))
	return score
}
