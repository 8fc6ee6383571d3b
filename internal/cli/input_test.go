package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bastiangx/codeserve/pkg/config"
	"github.com/bastiangx/codeserve/pkg/learning"
	"github.com/bastiangx/codeserve/pkg/patterns"
	"github.com/bastiangx/codeserve/pkg/predict"
	"github.com/bastiangx/codeserve/pkg/syntax"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

func newHandler(contextLines int) *InputHandler {
	cfg := config.DefaultConfig().Engine
	parser := syntax.NewParser()
	store := patterns.New(nil)
	return NewInputHandler(
		predict.New(store, parser, cfg),
		learning.New(cfg, parser, store),
		"javascript",
		contextLines,
	)
}

func TestEvaluateUsesHistoryAsContext(t *testing.T) {
	h := newHandler(5)

	res := h.Evaluate("const a = [];")
	assert.Equal(t, predict.KindVariable, res.Kind)

	res = h.Evaluate("const b =")
	require.NotNil(t, res.Prediction)
	assert.Equal(t, " [];", res.Prediction.Code)

	res = h.Evaluate("// just a comment")
	assert.Equal(t, predict.KindNone, res.Kind)
	assert.Nil(t, res.Prediction)
}

func TestHistoryIsBounded(t *testing.T) {
	h := newHandler(2)
	for _, l := range []string{"a", "b", "c"} {
		h.Evaluate(l)
	}
	assert.Equal(t, []string{"b", "c"}, h.history)
}

func TestLearnFile(t *testing.T) {
	h := newHandler(5)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "util.js")
	require.NoError(t, os.WriteFile(path, []byte("function twice(x) { const y = x * 2; return y + 0; }"), 0o644))

	pass, err := h.LearnFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, pass.Inserted)

	_, err = h.LearnFile(ctx, filepath.Join(t.TempDir(), "notes.md"))
	assert.Error(t, err)
}

func TestRunCommands(t *testing.T) {
	h := newHandler(5)
	in := strings.NewReader(":lang typescript\n:lang cobol\nlet x = 1;\n:reset\n:stats\n:bogus")
	require.NoError(t, h.Run(context.Background(), in))
	assert.Equal(t, "typescript", h.language)
	assert.Empty(t, h.history)
}
