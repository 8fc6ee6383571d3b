package snippets

import (
	"bytes"
	"context"
	"testing"

	"github.com/bastiangx/codeserve/pkg/storage"
	"github.com/bastiangx/codeserve/pkg/suggest"
	"github.com/bastiangx/codeserve/pkg/syntax"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

const addFn = "function add(a, b) { return a + b; }"

func TestFromCodeMalformedFallsBack(t *testing.T) {
	code := "function test( { // malformed"
	sn := FromCode(context.Background(), syntax.NewParser(), code, "javascript")
	assert.Equal(t, code, sn.Code)
	assert.Equal(t, "Code snippet", sn.Title)
	assert.Equal(t, "javascript", sn.Language)
}

func TestFromCodeUnsupportedLanguage(t *testing.T) {
	sn := FromCode(context.Background(), syntax.NewParser(), "def f(): pass", "python")
	assert.Equal(t, "def f(): pass", sn.Code)
	assert.Equal(t, "Code snippet", sn.Title)
}

func TestFromCodeDeclarations(t *testing.T) {
	p := syntax.NewParser()
	ctx := context.Background()

	sn := FromCode(ctx, p, addFn, "javascript")
	assert.Equal(t, "Function add", sn.Title)
	assert.Equal(t, "add(a, b)", sn.Description)
	assert.Equal(t, addFn, sn.Code)

	sn = FromCode(ctx, p, "class Dog extends Animal {\n  bark() {}\n}", "javascript")
	assert.Equal(t, "Class Dog", sn.Title)
	assert.Contains(t, sn.Description, "extends Animal")
	assert.Contains(t, sn.Description, "1 methods")
}

func newStore(t *testing.T) (*Store, storage.KV) {
	t.Helper()
	kv, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return NewStore(kv), kv
}

func TestStoreRoundTripIsEncrypted(t *testing.T) {
	s, kv := newStore(t)
	ctx := context.Background()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	rec, err := s.Save(ctx, suggest.Snippet{Title: "Function add", Language: "javascript", Code: addFn})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	blob, err := kv.Get(ctx, storage.KeySnippets)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(blob, []byte("return a + b")))

	key, err := kv.Get(ctx, storage.KeySnippetSecret)
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	// a fresh store on the same KV reuses the persisted key
	list, err = NewStore(kv).List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
	assert.Equal(t, addFn, list[0].Snippet.Code)
}

func TestStoreDelete(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	a, err := s.Save(ctx, suggest.Snippet{Code: "a()"})
	require.NoError(t, err)
	b, err := s.Save(ctx, suggest.Snippet{Code: "b()"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, a.ID))
	assert.ErrorIs(t, s.Delete(ctx, a.ID), ErrUnknownSnippet)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestStoreTamperedBlob(t *testing.T) {
	s, kv := newStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, suggest.Snippet{Code: addFn})
	require.NoError(t, err)

	blob, err := kv.Get(ctx, storage.KeySnippets)
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xff
	require.NoError(t, kv.Put(ctx, storage.KeySnippets, blob))

	_, err = s.List(ctx)
	assert.ErrorIs(t, err, ErrDecrypt)

	require.NoError(t, kv.Put(ctx, storage.KeySnippets, []byte("short")))
	_, err = s.List(ctx)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestStoreMatch(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	add, err := s.Save(ctx, suggest.Snippet{Title: "Function add", Language: "javascript", Code: addFn})
	require.NoError(t, err)
	_, err = s.Save(ctx, suggest.Snippet{Title: "Class Foo", Language: "javascript", Code: "class Foo {}"})
	require.NoError(t, err)

	got, err := s.Match(ctx, "function add(x, y) { return x + y; }", "javascript", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, add.ID, got[0].Pattern)
	assert.Contains(t, got[0].Description, "match")

	got, err = s.Match(ctx, addFn, "typescript", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
