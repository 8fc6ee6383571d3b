// Package storage holds the key/value collaborator the engine persists its
// pattern memory and snippet collection into.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("key not found")

// KV is a flat blob store. Implementations must be safe for concurrent use.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Keys used by the engine.
const (
	KeyPatterns      = "learnedPatterns"
	KeySnippets      = "snippets"
	KeySnippetSecret = "snippetEncryptionKey"
)
