// Package report scans a workspace and summarizes the size and shape of
// its declarations, flagging refactor candidates against configured limits.
package report

import (
	"cmp"
	"context"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/bastiangx/codeserve/internal/logger"
	"github.com/bastiangx/codeserve/internal/utils"
	"github.com/bastiangx/codeserve/pkg/config"
	"github.com/bastiangx/codeserve/pkg/fragment"
	"github.com/bastiangx/codeserve/pkg/syntax"
	"github.com/bastiangx/codeserve/pkg/workspace"
	"golang.org/x/sync/errgroup"
)

// Candidate reasons.
const (
	ReasonLongFunction   = "long_function"
	ReasonLongClass      = "long_class"
	ReasonManyMethods    = "many_methods"
	ReasonManyParameters = "many_parameters"
	ReasonHighComplexity = "high_complexity"
)

// largestCount is how many of the largest declarations a report lists.
const largestCount = 10

// Item is one function or class found in the workspace.
type Item struct {
	Path       string  `yaml:"path" msgpack:"path"`
	Name       string  `yaml:"name" msgpack:"name"`
	Kind       string  `yaml:"kind" msgpack:"kind"`
	Line       int     `yaml:"line" msgpack:"line"`
	Lines      int     `yaml:"lines" msgpack:"lines"`
	Params     int     `yaml:"params,omitempty" msgpack:"params,omitempty"`
	Methods    int     `yaml:"methods,omitempty" msgpack:"methods,omitempty"`
	Complexity float64 `yaml:"complexity" msgpack:"complexity"`
}

// Candidate is a declaration exceeding one of the limits.
type Candidate struct {
	Item   `yaml:",inline" msgpack:",inline"`
	Reason string  `yaml:"reason" msgpack:"reason"`
	Value  float64 `yaml:"value" msgpack:"value"`
	Limit  float64 `yaml:"limit" msgpack:"limit"`
}

// Report is the result of a workspace scan.
type Report struct {
	Root          string      `yaml:"root" msgpack:"root"`
	GeneratedAt   time.Time   `yaml:"generated_at" msgpack:"generatedAt"`
	Files         int         `yaml:"files" msgpack:"files"`
	Lines         int         `yaml:"lines" msgpack:"lines"`
	Functions     int         `yaml:"functions" msgpack:"functions"`
	Classes       int         `yaml:"classes" msgpack:"classes"`
	ParseFailures int         `yaml:"parse_failures" msgpack:"parseFailures"`
	Largest       []Item      `yaml:"largest" msgpack:"largest"`
	Candidates    []Candidate `yaml:"candidates" msgpack:"candidates"`
}

type fileResult struct {
	lines  int
	failed bool
	items  []Item
}

// Scan parses every supported file under root, in parallel, and builds a
// report. Unreadable or unparsable files are counted, not fatal.
func Scan(ctx context.Context, root string, parser *syntax.Parser, limits config.ReportConfig) (*Report, error) {
	log := logger.New("report")
	files, err := workspace.Scan(root)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results = make(map[string]fileResult, len(files))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := scanFile(gctx, parser, path)
			mu.Lock()
			results[path] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &Report{Root: root, GeneratedAt: time.Now().UTC(), Files: len(files)}
	var items []Item
	for _, path := range files {
		res := results[path]
		r.Lines += res.lines
		if res.failed {
			r.ParseFailures++
		}
		items = append(items, res.items...)
	}
	for _, it := range items {
		switch it.Kind {
		case "function":
			r.Functions++
		case "class":
			r.Classes++
		}
		r.Candidates = append(r.Candidates, candidates(it, limits)...)
	}

	r.Largest = slices.Clone(items)
	slices.SortStableFunc(r.Largest, func(a, b Item) int { return cmp.Compare(b.Lines, a.Lines) })
	if len(r.Largest) > largestCount {
		r.Largest = r.Largest[:largestCount]
	}
	log.Debug("workspace scanned", "root", root, "files", r.Files, "candidates", len(r.Candidates))
	return r, nil
}

func scanFile(ctx context.Context, parser *syntax.Parser, path string) fileResult {
	text, err := utils.ReadTextFile(path, syntax.MaxTextSize)
	if err != nil {
		return fileResult{failed: true}
	}
	res := fileResult{lines: len(utils.Lines(text))}
	tree, err := parser.Parse(ctx, text, workspace.LanguageForPath(path))
	if err != nil || tree == nil {
		res.failed = true
		return res
	}
	for _, n := range syntax.Declarations(tree.Root, syntax.KindFunction, syntax.KindClass) {
		it := Item{
			Path:       path,
			Name:       n.Name(),
			Kind:       n.Kind().String(),
			Line:       n.Span().StartLine,
			Lines:      n.Span().Lines(),
			Complexity: fragment.Complexity(n.Text()),
		}
		switch d := n.(type) {
		case *syntax.Function:
			it.Params = len(d.Params)
		case *syntax.Class:
			it.Methods = d.Methods
		}
		if it.Name == "" {
			it.Name = "(anonymous)"
		}
		res.items = append(res.items, it)
	}
	return res
}

func candidates(it Item, limits config.ReportConfig) []Candidate {
	var out []Candidate
	flag := func(reason string, value, limit float64) {
		if value > limit {
			out = append(out, Candidate{Item: it, Reason: reason, Value: value, Limit: limit})
		}
	}
	switch it.Kind {
	case "function":
		flag(ReasonLongFunction, float64(it.Lines), float64(limits.MaxFunctionLines))
		flag(ReasonManyParameters, float64(it.Params), float64(limits.MaxParams))
		flag(ReasonHighComplexity, it.Complexity, limits.MaxComplexity)
	case "class":
		flag(ReasonLongClass, float64(it.Lines), float64(limits.MaxClassLines))
		flag(ReasonManyMethods, float64(it.Methods), float64(limits.MaxClassMethods))
	}
	return out
}
