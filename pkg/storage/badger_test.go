package storage

import (
	"context"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

func TestInMemoryRoundTrip(t *testing.T) {
	kv, err := OpenInMemory()
	require.NoError(t, err)
	defer kv.Close()

	ctx := context.Background()
	_, err = kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Put(ctx, KeyPatterns, []byte("blob")))
	got, err := kv.Get(ctx, KeyPatterns)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)

	require.NoError(t, kv.Delete(ctx, KeyPatterns))
	_, err = kv.Get(ctx, KeyPatterns)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, kv.Delete(ctx, KeyPatterns))
}

func TestPersistentReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	kv, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, "k", []byte("v")))
	require.NoError(t, kv.Close())
	require.NoError(t, kv.Close())

	kv, err = Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer kv.Close()

	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	kv, err := OpenInMemory()
	require.NoError(t, err)
	defer kv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, kv.Put(ctx, "k", nil), context.Canceled)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
