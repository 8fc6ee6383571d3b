package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bastiangx/codeserve/pkg/config"
	"github.com/bastiangx/codeserve/pkg/syntax"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

const source = `function many(a, b, c, d) {
  return a + b + c + d;
}
function long() {
  let x = 1;
  x++;
  x++;
  return x;
}
class Zoo {
  a() {}
  b() {}
  c() {}
}
`

var limits = config.ReportConfig{
	MaxFunctionLines: 3,
	MaxClassLines:    100,
	MaxClassMethods:  2,
	MaxParams:        3,
	MaxComplexity:    100,
}

func workspaceFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.js"), []byte(source), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.ts"), []byte{'l', 'e', 't', ' ', 0xff, 0xfe}, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "dep.js"), []byte(source), 0o644))
	return root
}

func TestScan(t *testing.T) {
	root := workspaceFixture(t)
	r, err := Scan(context.Background(), root, syntax.NewParser(), limits)
	require.NoError(t, err)

	assert.Equal(t, 2, r.Files)
	assert.Equal(t, 1, r.ParseFailures)
	assert.Equal(t, 2, r.Functions)
	assert.Equal(t, 1, r.Classes)

	require.NotEmpty(t, r.Largest)
	assert.Equal(t, "long", r.Largest[0].Name)

	reasons := make(map[string]string)
	for _, c := range r.Candidates {
		reasons[c.Name] = c.Reason
	}
	assert.Equal(t, map[string]string{
		"many": ReasonManyParameters,
		"long": ReasonLongFunction,
		"Zoo":  ReasonManyMethods,
	}, reasons)
}

func TestScanMissingRoot(t *testing.T) {
	_, err := Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), syntax.NewParser(), limits)
	assert.Error(t, err)
}

func TestScanCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Scan(ctx, workspaceFixture(t), syntax.NewParser(), limits)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRender(t *testing.T) {
	r, err := Scan(context.Background(), workspaceFixture(t), syntax.NewParser(), limits)
	require.NoError(t, err)

	md := Markdown(r)
	assert.Contains(t, md, "## Refactor candidates")
	assert.Contains(t, md, "many parameters")
	assert.Contains(t, md, "a.js:4")
	assert.Contains(t, md, "| Parse failures | 1 |")

	out, err := YAML(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), "parse_failures: 1")
	assert.Contains(t, string(out), "reason: many_methods")

	empty := Markdown(&Report{Root: "/x"})
	assert.Contains(t, empty, "None.")
}
