package syntax

import (
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

func parse(t *testing.T, src, lang string) *Tree {
	t.Helper()
	tree, err := NewParser().Parse(context.Background(), src, lang)
	require.NoError(t, err)
	require.NotNil(t, tree)
	return tree
}

func TestParseUnsupportedLanguage(t *testing.T) {
	for _, lang := range []string{"python", "markdown", "", "go"} {
		tree, err := NewParser().Parse(context.Background(), "def f(): pass", lang)
		assert.NoError(t, err, lang)
		assert.Nil(t, tree, lang)
		assert.False(t, Supports(lang), lang)
	}
	for _, lang := range []string{"javascript", "javascriptreact", "typescript", "typescriptreact"} {
		assert.True(t, Supports(lang), lang)
	}
}

func TestParseFunction(t *testing.T) {
	src := "function validateEmail(email) {\n  const regex = /^\\S+@\\S+$/;\n  return regex.test(email);\n}\n"
	tree := parse(t, src, "javascript")
	assert.False(t, tree.HasErrors)

	fns := Declarations(tree.Root, KindFunction)
	require.Len(t, fns, 1)
	fn := fns[0].(*Function)
	assert.Equal(t, "validateEmail", fn.Name())
	assert.Equal(t, Span{StartLine: 1, EndLine: 4}, fn.Span())
	require.Len(t, fn.Params, 1)
	assert.Equal(t, "email", fn.Params[0].Name)
	assert.Contains(t, fn.Body, "regex.test(email)")
	assert.False(t, fn.Async)
}

func TestParseTypedParams(t *testing.T) {
	src := "async function load(id: string, retries?: number): Promise<void> {}\n"
	tree := parse(t, src, "typescript")

	fn := First(tree.Root).(*Function)
	assert.True(t, fn.Async)
	require.Len(t, fn.Params, 2)
	assert.Equal(t, Param{Name: "id", Type: "string"}, fn.Params[0])
	assert.Equal(t, Param{Name: "retries", Type: "number"}, fn.Params[1])
}

func TestParseClass(t *testing.T) {
	src := `class UserService extends BaseService {
  cache = new Map();
  constructor(db) {
    super();
    this.db = db;
  }
  getUser(id) { return this.db.find(id); }
  deleteUser(id) { return this.db.remove(id); }
}
`
	tree := parse(t, src, "javascript")
	classes := Declarations(tree.Root, KindClass)
	require.Len(t, classes, 1)
	cls := classes[0].(*Class)
	assert.Equal(t, "UserService", cls.Name())
	assert.Equal(t, 3, cls.Methods)
	assert.Equal(t, 1, cls.Properties)
	assert.True(t, cls.HasConstructor)
	assert.Equal(t, "BaseService", cls.Superclass)
}

func TestParseVariables(t *testing.T) {
	src := "const config = { port: 8080 };\nlet items = [], count = 0;\nvar handler = function () {};\nconst add = (a, b) => a + b;\n"
	tree := parse(t, src, "javascript")
	vars := Declarations(tree.Root, KindVariable)
	require.Len(t, vars, 4)

	first := vars[0].(*Variable)
	assert.Equal(t, "const", first.DeclKind)
	assert.Equal(t, "config", first.Name())
	assert.Equal(t, []Declarator{{Name: "config", Init: "object"}}, first.Declarators)

	second := vars[1].(*Variable)
	assert.Equal(t, "let", second.DeclKind)
	assert.Equal(t, []Declarator{{Name: "items", Init: "array"}, {Name: "count", Init: "number"}}, second.Declarators)

	third := vars[2].(*Variable)
	assert.Equal(t, "var", third.DeclKind)
	assert.Equal(t, "function", third.Declarators[0].Init)

	assert.Equal(t, "arrow_function", vars[3].(*Variable).Declarators[0].Init)
}

func TestParseBlocksAndImports(t *testing.T) {
	src := `import { readFile } from "fs";
for (const x of xs) {
  if (x) { console.log(x); } else { skip(); }
}
while (running) { tick(); }
try { risky(); } catch (err) { report(err); } finally { done(); }
switch (mode) { case 1: break; }
`
	tree := parse(t, src, "javascript")

	imports := Declarations(tree.Root, KindImport)
	require.Len(t, imports, 1)
	assert.Equal(t, "fs", imports[0].(*Import).Source)

	assert.Len(t, Declarations(tree.Root, KindLoop), 2)
	assert.Len(t, Declarations(tree.Root, KindConditional), 2)

	tries := Declarations(tree.Root, KindTry)
	require.Len(t, tries, 1)
	try := tries[0].(*Try)
	assert.True(t, try.HasCatch)
	assert.True(t, try.HasFinally)
}

func TestParseMalformedIsTolerant(t *testing.T) {
	tree := parse(t, "function test( { // malformed", "javascript")
	assert.True(t, tree.HasErrors)
	assert.Positive(t, tree.ErrorCount)
}

func TestParseTooLarge(t *testing.T) {
	p := NewParser(WithMaxSize(16))
	_, err := p.Parse(context.Background(), strings.Repeat("x", 32), "javascript")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestParseCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewParser().Parse(ctx, "const a = 1;", "javascript")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindInnermostDeclaration(t *testing.T) {
	src := `class Cart {
  total() {
    return 1;
  }
}

function outer() {
  function inner() {
    return 2;
  }
}
`
	tree := parse(t, src, "javascript")

	n := Find(tree.Root, 3)
	require.NotNil(t, n)
	assert.Equal(t, KindClass, n.Kind())

	n = Find(tree.Root, 9)
	require.NotNil(t, n)
	assert.Equal(t, "inner", n.Name())

	assert.Nil(t, Find(tree.Root, 6))
}

func TestSpansAreOrdered(t *testing.T) {
	tree := parse(t, "function a() {}\nclass B {}\nconst c = [1,\n 2];\n", "typescript")
	Walk(tree.Root, func(n Node) bool {
		s := n.Span()
		assert.GreaterOrEqual(t, s.StartLine, 1)
		assert.GreaterOrEqual(t, s.EndLine, s.StartLine)
		return true
	})
}
