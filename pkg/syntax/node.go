package syntax

// Kind tags the node variants the engine consumes.
type Kind int

const (
	KindOther Kind = iota
	KindFunction
	KindClass
	KindVariable
	KindImport
	KindLoop
	KindConditional
	KindTry
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	case KindVariable:
		return "variable"
	case KindImport:
		return "import"
	case KindLoop:
		return "loop"
	case KindConditional:
		return "conditional"
	case KindTry:
		return "try"
	default:
		return "other"
	}
}

// Span is a 1-indexed inclusive line range. EndLine >= StartLine.
type Span struct {
	StartLine int
	EndLine   int
}

// Lines returns the number of lines covered by the span.
func (s Span) Lines() int {
	return s.EndLine - s.StartLine + 1
}

// Contains reports whether line falls inside the span.
func (s Span) Contains(line int) bool {
	return line >= s.StartLine && line <= s.EndLine
}

// Node is a closed set of syntax node variants. Consumers type-switch on the
// concrete variant (*Function, *Class, ...) instead of probing fields.
type Node interface {
	Kind() Kind
	// Type is the grammar node type, e.g. "for_in_statement".
	Type() string
	Name() string
	Span() Span
	Text() string
	Children() []Node
	sealed()
}

type base struct {
	typ      string
	name     string
	text     string
	span     Span
	children []Node
}

func (b *base) Type() string     { return b.typ }
func (b *base) Name() string     { return b.name }
func (b *base) Span() Span       { return b.span }
func (b *base) Text() string     { return b.text }
func (b *base) Children() []Node { return b.children }
func (b *base) sealed()          {}

// Param is one formal parameter. Type is the annotation text without the
// leading colon, empty in plain JavaScript.
type Param struct {
	Name string
	Type string
}

// Function is a function declaration (plain, async or generator).
type Function struct {
	base
	Params []Param
	Body   string
	Async  bool
}

func (*Function) Kind() Kind { return KindFunction }

// Class is a class declaration.
type Class struct {
	base
	Methods        int
	Properties     int
	HasConstructor bool
	Superclass     string
}

func (*Class) Kind() Kind { return KindClass }

// Declarator is one binding of a variable declaration. Init is the
// normalized initializer kind: "object", "array", "arrow_function",
// "function", "string", "number", "call", "new", another grammar type, or
// empty when there is no initializer.
type Declarator struct {
	Name string
	Init string
}

// Variable is a const/let/var declaration.
type Variable struct {
	base
	DeclKind    string
	Declarators []Declarator
}

func (*Variable) Kind() Kind { return KindVariable }

// Import is an ES module import statement.
type Import struct {
	base
	Source string
}

func (*Import) Kind() Kind { return KindImport }

// Loop covers for, for-in/of, while and do-while statements.
type Loop struct {
	base
}

func (*Loop) Kind() Kind { return KindLoop }

// Conditional covers if and switch statements.
type Conditional struct {
	base
}

func (*Conditional) Kind() Kind { return KindConditional }

// Try is a try statement.
type Try struct {
	base
	HasCatch   bool
	HasFinally bool
}

func (*Try) Kind() Kind { return KindTry }

// Other is any node the engine does not interpret.
type Other struct {
	base
}

func (*Other) Kind() Kind { return KindOther }

// Tree is the result of one parse.
type Tree struct {
	Root       Node
	Language   string
	HasErrors  bool
	ErrorCount int
}
