package predict

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bastiangx/codeserve/internal/logger"
	"github.com/bastiangx/codeserve/internal/utils"
	"github.com/bastiangx/codeserve/pkg/config"
	"github.com/bastiangx/codeserve/pkg/fragment"
	"github.com/bastiangx/codeserve/pkg/metrics"
	"github.com/bastiangx/codeserve/pkg/patterns"
	"github.com/bastiangx/codeserve/pkg/syntax"
	"github.com/charmbracelet/log"
)

// TemplateConfidence is the fixed confidence of conditional and loop
// templates.
const TemplateConfidence = 0.6

// Request is the typing context of one prediction.
type Request struct {
	// Line is the current line as typed, indentation included.
	Line string
	// Context is the text surrounding the line.
	Context  string
	Language string
}

// Prediction is a literal insertion for the end of the current line.
type Prediction struct {
	Kind       Kind
	Code       string
	Confidence float64
	// PatternID is set when the body came from a learned pattern.
	PatternID string
}

// Engine answers prediction, completion and hover requests from a pattern
// store. It never mutates the store.
type Engine struct {
	store  *patterns.Store
	parser *syntax.Parser
	cfg    config.EngineConfig
	log    *log.Logger

	mu    sync.Mutex
	nodes map[string]syntax.Node
}

// New creates an Engine reading store.
func New(store *patterns.Store, parser *syntax.Parser, cfg config.EngineConfig) *Engine {
	return &Engine{
		store:  store,
		parser: parser,
		cfg:    cfg,
		log:    logger.New("predict"),
		nodes:  make(map[string]syntax.Node),
	}
}

// Predict is the stateless quick path: classify the line and synthesize an
// insertion. It returns nil when nothing is recognized or the result falls
// below the minimum confidence.
func (e *Engine) Predict(req Request) (p *Prediction) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("prediction failed", "panic", r)
			p = nil
		}
	}()

	kind := Classify(req.Line, req.Context)
	if kind == KindNone {
		return nil
	}

	trimmed := strings.TrimSpace(req.Line)
	indent := utils.LeadingIndent(req.Line)

	var pred *Prediction
	switch kind {
	case KindFunction:
		pred = e.predictDeclaration(req, trimmed, indent, fragment.KindFunction, "\n"+indent+"  \n"+indent+"}")
	case KindClass:
		pred = e.predictDeclaration(req, trimmed, indent, fragment.KindClass,
			"\n"+indent+"  constructor() {\n"+indent+"  }\n"+indent+"}")
	case KindVariable:
		pred = e.predictVariable(req, trimmed)
	case KindConditional, KindLoop:
		pred = template(kind, trimmed, indent)
	case KindMethodCall:
		pred = predictMethodCall(req, trimmed)
	case KindReturn:
		pred = predictReturn(req, trimmed)
	case KindBlock:
		pred = &Prediction{Code: "\n" + indent + "  \n" + indent + "}", Confidence: 0.5}
	}

	if pred == nil || pred.Confidence < e.cfg.MinConfidence {
		return nil
	}
	pred.Kind = kind
	metrics.Predictions.WithLabelValues(string(kind)).Inc()
	return pred
}

// predictDeclaration completes function and class headers. Once the header
// opens its body, the best contextual pattern of the same kind supplies it.
func (e *Engine) predictDeclaration(req Request, trimmed, indent string, kind fragment.Kind, fallback string) *Prediction {
	switch {
	case strings.HasSuffix(trimmed, "{"):
		if best := e.bestOfKind(req, kind); best != nil {
			if body := e.bodyOf(best.Pattern); body != "" {
				return &Prediction{
					Code:       body,
					Confidence: best.Relevance,
					PatternID:  best.Pattern.ID,
				}
			}
		}
		return &Prediction{Code: fallback, Confidence: 0.45}
	case strings.HasSuffix(trimmed, ")"):
		return &Prediction{Code: " {" + fallback, Confidence: 0.5}
	case kind == fragment.KindFunction && !strings.Contains(trimmed, "("):
		return &Prediction{Code: "() {" + fallback, Confidence: 0.4}
	case kind == fragment.KindClass && !strings.Contains(trimmed, "{"):
		return &Prediction{Code: " {" + fallback, Confidence: 0.5}
	}
	return nil
}

// bodyOf returns the body of a learned declaration after its opening
// brace, closing brace included. Functions use the parsed body; other
// declarations are cut at the first brace outside any parentheses.
func (e *Engine) bodyOf(p *patterns.Pattern) string {
	if fn, ok := e.patternNode(context.Background(), p).(*syntax.Function); ok {
		if body, found := strings.CutPrefix(strings.TrimSpace(fn.Body), "{"); found {
			return strings.TrimRight(body, " \t\n")
		}
	}
	return headerBody(p.Code)
}

func headerBody(code string) string {
	if !strings.HasSuffix(strings.TrimSpace(code), "}") {
		return ""
	}
	depth := 0
	for i, r := range code {
		switch r {
		case '(':
			depth++
		case ')':
			depth = max(depth-1, 0)
		case '{':
			if depth == 0 {
				return strings.TrimRight(code[i+1:], " \t\n")
			}
		}
	}
	return ""
}

func (e *Engine) bestOfKind(req Request, kind fragment.Kind) *Ranked {
	for _, r := range e.Rank(req) {
		if r.Pattern.Kind == kind {
			return &r
		}
	}
	return nil
}

var (
	objectInitRe = regexp.MustCompile(`=\s*\{`)
	arrayInitRe  = regexp.MustCompile(`=\s*\[`)
	stringInitRe = regexp.MustCompile("=\\s*[\"'`]")
)

// predictVariable proposes an initializer matching the shape of recent
// declarations in the context.
func (e *Engine) predictVariable(req Request, trimmed string) *Prediction {
	if strings.Contains(strings.TrimSuffix(trimmed, "="), "=") {
		return nil
	}
	counts := map[string]int{
		" {};": len(objectInitRe.FindAllString(req.Context, -1)),
		" [];": len(arrayInitRe.FindAllString(req.Context, -1)),
		` "";`: len(stringInitRe.FindAllString(req.Context, -1)),
	}
	shells := make([]string, 0, len(counts))
	for shell := range counts {
		shells = append(shells, shell)
	}
	sort.Slice(shells, func(i, j int) bool {
		if counts[shells[i]] != counts[shells[j]] {
			return counts[shells[i]] > counts[shells[j]]
		}
		return shells[i] < shells[j]
	})

	best := shells[0]
	if counts[best] == 0 {
		if best := e.bestOfKind(req, fragment.KindVariable); best != nil {
			if i := strings.Index(best.Pattern.Code, "="); i >= 0 {
				code := strings.TrimSpace(best.Pattern.Code[i+1:])
				if !strings.HasSuffix(trimmed, "=") {
					code = " = " + code
				} else {
					code = " " + code
				}
				return &Prediction{Code: code, Confidence: best.Relevance, PatternID: best.Pattern.ID}
			}
		}
		best = " {};"
	}
	conf := 0.45 + 0.05*float64(min(counts[best], 3))
	if !strings.HasSuffix(trimmed, "=") {
		best = " =" + best
		conf -= 0.1
	}
	return &Prediction{Code: best, Confidence: conf}
}

// template returns the fixed block template for conditionals and loops.
func template(kind Kind, trimmed, indent string) *Prediction {
	body := "\n" + indent + "  \n" + indent + "}"
	switch {
	case strings.HasSuffix(trimmed, "{"):
		return &Prediction{Code: body, Confidence: TemplateConfidence}
	case kind == KindConditional && strings.HasPrefix(trimmed, "switch") && strings.HasSuffix(trimmed, ")"):
		return &Prediction{
			Code: " {\n" + indent + "  case :\n" + indent + "    break;\n" +
				indent + "  default:\n" + indent + "    break;\n" + indent + "}",
			Confidence: TemplateConfidence,
		}
	case trimmed == "if" || trimmed == "while" || trimmed == "switch":
		return &Prediction{Code: " () {" + body, Confidence: TemplateConfidence}
	case trimmed == "for":
		return &Prediction{Code: " (let i = 0; i < length; i++) {" + body, Confidence: TemplateConfidence}
	case trimmed == "do":
		return &Prediction{Code: " {" + body + " while ();", Confidence: TemplateConfidence}
	default:
		return &Prediction{Code: " {" + body, Confidence: TemplateConfidence}
	}
}

var calledMethodRe = regexp.MustCompile(`\.([A-Za-z_$][\w$]*)\(`)

// predictMethodCall proposes the method most often called in the context
// after a trailing dot, or closes an open call.
func predictMethodCall(req Request, trimmed string) *Prediction {
	if strings.HasSuffix(trimmed, ".") {
		counts := make(map[string]int)
		var order []string
		for _, m := range calledMethodRe.FindAllStringSubmatch(req.Context, -1) {
			if counts[m[1]] == 0 {
				order = append(order, m[1])
			}
			counts[m[1]]++
		}
		if len(order) == 0 {
			return nil
		}
		best := order[0]
		for _, name := range order[1:] {
			if counts[name] > counts[best] {
				best = name
			}
		}
		return &Prediction{Code: best + "()", Confidence: 0.35 + 0.05*float64(min(counts[best], 5))}
	}
	if open := strings.Count(trimmed, "(") - strings.Count(trimmed, ")"); open > 0 {
		return &Prediction{Code: strings.Repeat(")", open) + ";", Confidence: 0.35}
	}
	return nil
}

var declaredRe = regexp.MustCompile(`\b(?:const|let|var)\s+([A-Za-z_$][\w$]*)`)

// predictReturn returns the most recently declared name, or terminates the
// statement.
func predictReturn(req Request, trimmed string) *Prediction {
	if trimmed == "return" {
		names := declaredRe.FindAllStringSubmatch(req.Context, -1)
		if len(names) == 0 {
			return nil
		}
		return &Prediction{Code: " " + names[len(names)-1][1] + ";", Confidence: 0.4}
	}
	if !strings.HasSuffix(trimmed, ";") && !strings.HasSuffix(trimmed, "{") {
		return &Prediction{Code: ";", Confidence: 0.35}
	}
	return nil
}
