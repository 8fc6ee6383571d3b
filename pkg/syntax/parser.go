// Package syntax turns JavaScript/TypeScript source into the engine's
// closed node model using tree-sitter.
//
// Parsing is error tolerant: tree-sitter recovers from most malformed input
// and the resulting tree is still returned, with HasErrors set. Only input
// that yields no tree at all is reported as ErrParseFailure. Languages
// outside the JS/TS family short-circuit to a nil tree without parsing.
package syntax

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bastiangx/codeserve/internal/logger"
	"github.com/charmbracelet/log"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// MaxTextSize is the default upper bound on parsed document size.
const MaxTextSize = 1 << 20

// maxDepth bounds recursion on pathological nesting.
const maxDepth = 512

var (
	// ErrParseFailure is returned when no tree could be produced.
	ErrParseFailure = errors.New("parse failure")
	// ErrTooLarge is returned for documents above the size limit.
	ErrTooLarge = errors.New("document too large")
)

// Supports reports whether languageID belongs to the JS/TS family.
func Supports(languageID string) bool {
	return grammarFor(languageID) != nil
}

func grammarFor(languageID string) *sitter.Language {
	switch languageID {
	case "javascript", "javascriptreact":
		return javascript.GetLanguage()
	case "typescript":
		return typescript.GetLanguage()
	case "typescriptreact":
		return tsx.GetLanguage()
	default:
		return nil
	}
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxSize sets the maximum document size in bytes.
func WithMaxSize(bytes int) Option {
	return func(p *Parser) {
		if bytes > 0 {
			p.maxSize = bytes
		}
	}
}

// Parser is safe for concurrent use; every Parse call creates its own
// tree-sitter parser.
type Parser struct {
	maxSize int
	log     *log.Logger
}

// NewParser creates a Parser with the default size limit.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		maxSize: MaxTextSize,
		log:     logger.New("syntax"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses text written in languageID.
// It returns (nil, nil) for unsupported languages.
func (p *Parser) Parse(ctx context.Context, text, languageID string) (*Tree, error) {
	grammar := grammarFor(languageID)
	if grammar == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled: %w", err)
	}
	if len(text) > p.maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(text), p.maxSize)
	}
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrParseFailure)
	}

	src := []byte(text)
	parser := sitter.NewParser()
	parser.SetLanguage(grammar)

	tsTree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	defer tsTree.Close()

	root := tsTree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("%w: nil root node", ErrParseFailure)
	}

	tree := &Tree{
		Root:     convert(root, src, 0),
		Language: languageID,
	}
	if root.HasError() {
		tree.HasErrors = true
		tree.ErrorCount = countErrors(root, 0)
		p.log.Debug("source contains syntax errors", "language", languageID, "errors", tree.ErrorCount)
	}
	return tree, nil
}

const maxErrors = 50

func countErrors(n *sitter.Node, depth int) int {
	if n == nil || depth > maxDepth {
		return 0
	}
	count := 0
	if n.IsError() || n.IsMissing() {
		count++
	}
	for i := 0; i < int(n.ChildCount()) && count < maxErrors; i++ {
		count += countErrors(n.Child(i), depth+1)
	}
	return count
}

func newBase(n *sitter.Node, src []byte) base {
	start := int(n.StartPoint().Row) + 1
	end := int(n.EndPoint().Row) + 1
	// A node ending at column 0 finished on the previous line.
	if n.EndPoint().Column == 0 && end > start {
		end--
	}
	return base{
		typ:  n.Type(),
		text: n.Content(src),
		span: Span{StartLine: start, EndLine: end},
	}
}

func fieldText(n *sitter.Node, field string, src []byte) string {
	if c := n.ChildByFieldName(field); c != nil {
		return c.Content(src)
	}
	return ""
}

func convertChildren(n *sitter.Node, src []byte, depth int) []Node {
	if depth >= maxDepth {
		return nil
	}
	count := int(n.NamedChildCount())
	if count == 0 {
		return nil
	}
	children := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		if c := n.NamedChild(i); c != nil {
			children = append(children, convert(c, src, depth+1))
		}
	}
	return children
}

func convert(n *sitter.Node, src []byte, depth int) Node {
	b := newBase(n, src)
	b.children = convertChildren(n, src, depth)

	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
		b.name = fieldText(n, "name", src)
		fn := &Function{
			base:   b,
			Params: params(n.ChildByFieldName("parameters"), src),
			Body:   fieldText(n, "body", src),
		}
		fn.Async = strings.HasPrefix(strings.TrimSpace(b.text), "async")
		return fn
	case "class_declaration", "abstract_class_declaration":
		b.name = fieldText(n, "name", src)
		return classNode(n, b, src)
	case "lexical_declaration", "variable_declaration":
		return variableNode(n, b, src)
	case "import_statement":
		b.name = strings.Trim(fieldText(n, "source", src), "'\"`")
		return &Import{base: b, Source: b.name}
	case "for_statement", "for_in_statement", "while_statement", "do_statement":
		return &Loop{base: b}
	case "if_statement", "switch_statement":
		return &Conditional{base: b}
	case "try_statement":
		return &Try{
			base:       b,
			HasCatch:   n.ChildByFieldName("handler") != nil,
			HasFinally: n.ChildByFieldName("finalizer") != nil,
		}
	default:
		return &Other{base: b}
	}
}

func params(n *sitter.Node, src []byte) []Param {
	if n == nil {
		return nil
	}
	var out []Param
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "required_parameter", "optional_parameter":
			out = append(out, Param{
				Name: fieldText(c, "pattern", src),
				Type: strings.TrimSpace(strings.TrimPrefix(fieldText(c, "type", src), ":")),
			})
		case "assignment_pattern":
			out = append(out, Param{Name: fieldText(c, "left", src)})
		case "comment":
		default:
			out = append(out, Param{Name: c.Content(src)})
		}
	}
	return out
}

func classNode(n *sitter.Node, b base, src []byte) *Class {
	cls := &Class{base: b}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil && c.Type() == "class_heritage" {
			heritage := strings.TrimSpace(c.Content(src))
			heritage = strings.TrimSpace(strings.TrimPrefix(heritage, "extends"))
			if idx := strings.Index(heritage, " implements"); idx >= 0 {
				heritage = heritage[:idx]
			}
			if strings.HasPrefix(heritage, "implements") {
				heritage = ""
			}
			cls.Superclass = heritage
		}
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		return cls
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		if member == nil {
			continue
		}
		switch member.Type() {
		case "method_definition", "abstract_method_signature", "method_signature":
			cls.Methods++
			if fieldText(member, "name", src) == "constructor" {
				cls.HasConstructor = true
			}
		case "field_definition", "public_field_definition":
			cls.Properties++
		}
	}
	return cls
}

func variableNode(n *sitter.Node, b base, src []byte) *Variable {
	v := &Variable{base: b, DeclKind: "var"}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || c.IsNamed() {
			continue
		}
		if t := c.Type(); t == "const" || t == "let" || t == "var" {
			v.DeclKind = t
			break
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() != "variable_declarator" {
			continue
		}
		d := Declarator{Name: fieldText(c, "name", src)}
		if value := c.ChildByFieldName("value"); value != nil {
			d.Init = initKind(value.Type())
		}
		v.Declarators = append(v.Declarators, d)
	}
	if len(v.Declarators) > 0 {
		v.name = v.Declarators[0].Name
	}
	return v
}

func initKind(grammarType string) string {
	switch grammarType {
	case "function", "function_expression", "generator_function":
		return "function"
	case "string", "template_string":
		return "string"
	case "call_expression", "await_expression":
		return "call"
	case "new_expression":
		return "new"
	default:
		return grammarType
	}
}
