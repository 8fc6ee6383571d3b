package predict

import (
	"context"

	"github.com/bastiangx/codeserve/internal/utils"
	"github.com/bastiangx/codeserve/pkg/fragment"
	"github.com/bastiangx/codeserve/pkg/patterns"
	"github.com/bastiangx/codeserve/pkg/similarity"
	"github.com/bastiangx/codeserve/pkg/suggest"
	"github.com/bastiangx/codeserve/pkg/syntax"
)

const (
	// HoverThreshold is the structural similarity a learned pattern needs
	// to be offered on hover.
	HoverThreshold = 0.5
	maxNodeCache   = 2048
)

// Hover finds the declaration enclosing line (1-indexed) in text and
// returns the learned pattern most structurally similar to it, or nil.
// The declaration's own pattern is never offered.
func (e *Engine) Hover(ctx context.Context, text, language string, line int) *suggest.Snippet {
	tree, err := e.parser.Parse(ctx, text, language)
	if err != nil || tree == nil {
		if err != nil {
			e.log.Debug("hover parse failed", "error", err)
		}
		return nil
	}
	decl := syntax.Find(tree.Root, line)
	if decl == nil {
		return nil
	}
	self := patterns.ID(fragment.Slice(utils.Lines(text), decl.Span()))

	var (
		best  *patterns.Pattern
		score float64
	)
	for _, p := range e.store.All() {
		if p.ID == self {
			continue
		}
		node := e.patternNode(ctx, p)
		if node == nil {
			continue
		}
		if s := similarity.Structural(decl, node); s > score {
			best, score = p, s
		}
	}
	if best == nil || score < HoverThreshold {
		return nil
	}
	sn := patternSnippet(best, score, "similar")
	return &sn
}

// patternNode parses the code of p once and caches its first declaration,
// nil for block and import patterns.
func (e *Engine) patternNode(ctx context.Context, p *patterns.Pattern) syntax.Node {
	e.mu.Lock()
	n, ok := e.nodes[p.ID]
	e.mu.Unlock()
	if ok {
		return n
	}

	tree, err := e.parser.Parse(ctx, p.Code, p.Language)
	if err != nil || tree == nil {
		return nil
	}
	n = syntax.First(tree.Root)

	e.mu.Lock()
	if len(e.nodes) >= maxNodeCache {
		e.nodes = make(map[string]syntax.Node)
	}
	e.nodes[p.ID] = n
	e.mu.Unlock()
	return n
}
