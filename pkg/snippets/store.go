package snippets

import (
	"bytes"
	"cmp"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/bastiangx/codeserve/internal/logger"
	"github.com/bastiangx/codeserve/pkg/metrics"
	"github.com/bastiangx/codeserve/pkg/similarity"
	"github.com/bastiangx/codeserve/pkg/storage"
	"github.com/bastiangx/codeserve/pkg/suggest"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of the snippet encryption key.
const KeySize = chacha20poly1305.KeySize

// MinMatch is the similarity a saved snippet needs to be returned by Match.
const MinMatch = 0.3

var (
	// ErrDecrypt means the stored collection could not be authenticated.
	ErrDecrypt = errors.New("snippet collection cannot be decrypted")
	// ErrUnknownSnippet is returned by Delete for an id not in the collection.
	ErrUnknownSnippet = errors.New("unknown snippet")
)

// Record is one saved snippet.
type Record struct {
	ID        string          `msgpack:"id" yaml:"id"`
	Snippet   suggest.Snippet `msgpack:"snippet" yaml:"snippet"`
	CreatedAt time.Time       `msgpack:"createdAt" yaml:"createdAt"`
}

// Store is the encrypted snippet collection. The whole list is one blob,
// msgpack-encoded then sealed with XChaCha20-Poly1305 on every write.
type Store struct {
	kv  storage.KV
	log *log.Logger
	now func() time.Time

	mu  sync.Mutex
	key *memguard.Enclave
}

// NewStore creates a Store on kv. The key is loaded or generated lazily.
func NewStore(kv storage.KV) *Store {
	return &Store{
		kv:  kv,
		log: logger.New("snippets"),
		now: time.Now,
	}
}

// Save appends sn to the collection and returns its record.
func (s *Store) Save(ctx context.Context, sn suggest.Snippet) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.readLocked(ctx)
	if err != nil {
		return Record{}, err
	}
	rec := Record{ID: uuid.NewString(), Snippet: sn, CreatedAt: s.now().UTC()}
	list = append(list, rec)
	if err := s.writeLocked(ctx, list); err != nil {
		return Record{}, err
	}
	s.log.Debug("saved snippet", "id", rec.ID, "title", sn.Title)
	return rec, nil
}

// List returns the collection in save order.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(ctx)
}

// Delete removes the snippet with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.readLocked(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(list, func(r Record) bool { return r.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSnippet, id)
	}
	return s.writeLocked(ctx, slices.Delete(list, i, i+1))
}

// Match ranks saved snippets by textual similarity to code and returns
// those scoring at least MinMatch, best first. An empty language matches
// every snippet.
func (s *Store) Match(ctx context.Context, code, language string, limit int) ([]suggest.Snippet, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []suggest.Snippet
	for _, r := range list {
		if language != "" && r.Snippet.Language != "" && r.Snippet.Language != language {
			continue
		}
		score := 0.5*similarity.Jaccard(code, r.Snippet.Code) + 0.5*similarity.Normalized(code, r.Snippet.Code)
		if score < MinMatch {
			continue
		}
		sn := r.Snippet
		sn.Pattern = r.ID
		sn.Similarity = score
		sn.Description = suggest.Describe("match", score) + ", " + r.Snippet.Description
		out = append(out, sn)
	}
	slices.SortStableFunc(out, func(a, b suggest.Snippet) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	return suggest.Limit(out, limit), nil
}

func (s *Store) readLocked(ctx context.Context) ([]Record, error) {
	blob, err := s.kv.Get(ctx, storage.KeySnippets)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("snippets_read").Inc()
		return nil, fmt.Errorf("reading snippets: %w", err)
	}
	plain, err := s.open(ctx, blob)
	if err != nil {
		return nil, err
	}
	var list []Record
	if err := msgpack.Unmarshal(plain, &list); err != nil {
		return nil, fmt.Errorf("decoding snippets: %w", err)
	}
	return list, nil
}

func (s *Store) writeLocked(ctx context.Context, list []Record) error {
	plain, err := msgpack.Marshal(list)
	if err != nil {
		return fmt.Errorf("encoding snippets: %w", err)
	}
	blob, err := s.seal(ctx, plain)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, storage.KeySnippets, blob); err != nil {
		metrics.PersistenceFailures.WithLabelValues("snippets_write").Inc()
		return fmt.Errorf("writing snippets: %w", err)
	}
	return nil
}

// seal encrypts plain as nonce || ciphertext.
func (s *Store) seal(ctx context.Context, plain []byte) ([]byte, error) {
	key, err := s.keyLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plain, []byte(storage.KeySnippets)), nil
}

func (s *Store) open(ctx context.Context, blob []byte) ([]byte, error) {
	key, err := s.keyLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, err
	}
	if len(blob) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecrypt
	}
	nonce, sealed := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(storage.KeySnippets))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plain, nil
}

// keyLocked returns the key in a locked buffer the caller must destroy.
// The key is read from the KV once, or generated and persisted when absent,
// then kept sealed in an enclave.
func (s *Store) keyLocked(ctx context.Context) (*memguard.LockedBuffer, error) {
	if s.key == nil {
		raw, err := s.kv.Get(ctx, storage.KeySnippetSecret)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			raw = make([]byte, KeySize)
			if _, err := rand.Read(raw); err != nil {
				return nil, fmt.Errorf("generating snippet key: %w", err)
			}
			if err := s.kv.Put(ctx, storage.KeySnippetSecret, bytes.Clone(raw)); err != nil {
				metrics.PersistenceFailures.WithLabelValues("snippet_key").Inc()
				return nil, fmt.Errorf("storing snippet key: %w", err)
			}
			s.log.Info("generated snippet encryption key")
		case err != nil:
			return nil, fmt.Errorf("reading snippet key: %w", err)
		case len(raw) != KeySize:
			return nil, fmt.Errorf("snippet key has %d bytes, want %d", len(raw), KeySize)
		}
		// NewEnclave wipes raw.
		s.key = memguard.NewEnclave(raw)
	}
	return s.key.Open()
}
