package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bastiangx/codeserve/pkg/learning"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

func TestLanguageForPath(t *testing.T) {
	tests := map[string]string{
		"src/app.js":       "javascript",
		"src/app.mjs":      "javascript",
		"src/App.jsx":      "javascriptreact",
		"src/api.ts":       "typescript",
		"src/View.TSX":     "typescriptreact",
		"types/index.d.ts": "",
		"README.md":        "",
		"main.go":          "",
	}
	for path, want := range tests {
		assert.Equal(t, want, LanguageForPath(path), path)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanSkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.js"), "let a = 1;")
	writeFile(t, filepath.Join(root, "src", "b.ts"), "let b = 2;")
	writeFile(t, filepath.Join(root, "src", "notes.txt"), "hi")
	writeFile(t, filepath.Join(root, "node_modules", "dep", "index.js"), "x")
	writeFile(t, filepath.Join(root, "dist", "bundle.js"), "x")

	files, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.js"),
		filepath.Join(root, "src", "b.ts"),
	}, files)

	_, err = Scan(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestIgnored(t *testing.T) {
	assert.True(t, Ignored("node_modules/x/y.js"))
	assert.True(t, Ignored(".git"))
	assert.False(t, Ignored("src/builder.js"))
}

type recordingLearner struct {
	mu   sync.Mutex
	docs []learning.Document
}

func (r *recordingLearner) LearnDocument(_ context.Context, doc learning.Document) (learning.Pass, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
	return learning.Pass{URI: doc.URI}, nil
}

func (r *recordingLearner) seen() []learning.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]learning.Document(nil), r.docs...)
}

func TestWatcherLearnsSavedFiles(t *testing.T) {
	root := t.TempDir()
	learner := &recordingLearner{}
	w, err := NewWatcher(root, learner, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := filepath.Join(root, "util.ts")
	writeFile(t, path, "export const x = 1;")
	writeFile(t, filepath.Join(root, "notes.md"), "# notes")

	require.Eventually(t, func() bool { return len(learner.seen()) > 0 }, 5*time.Second, 10*time.Millisecond)
	docs := learner.seen()
	assert.Equal(t, "typescript", docs[0].LanguageID)
	assert.Equal(t, "file://"+path, docs[0].URI)
	for _, d := range docs {
		assert.NotContains(t, d.URI, "notes.md")
	}
	assert.GreaterOrEqual(t, w.Learned(), 1)
}

func TestWatcherStartRejectsMissingRoot(t *testing.T) {
	ctx := context.Background()
	for _, root := range []string{
		filepath.Join(t.TempDir(), "missing"),
		func() string {
			p := filepath.Join(t.TempDir(), "file.js")
			writeFile(t, p, "let a = 1;")
			return p
		}(),
	} {
		w, err := NewWatcher(root, &recordingLearner{}, 0)
		require.NoError(t, err)
		assert.Error(t, w.Start(ctx), root)
		w.Stop()
	}
}
