package patterns

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bastiangx/codeserve/internal/logger"
	"github.com/bastiangx/codeserve/pkg/fragment"
	"github.com/bastiangx/codeserve/pkg/metrics"
	"github.com/bastiangx/codeserve/pkg/similarity"
	"github.com/bastiangx/codeserve/pkg/storage"
	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// DefaultCapacity is the default maximum number of stored patterns.
	DefaultCapacity = 1000
	// RetainFraction of capacity survives an eviction.
	RetainFraction = 0.8
)

// LearnResult describes what one Learn call did.
type LearnResult struct {
	ID         string
	Inserted   bool
	Reinforced bool
	NewVariant bool
	Evicted    int
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity sets the maximum pattern count.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store owns every learned pattern. All methods are safe for concurrent use;
// mutations are serialized behind one lock because eviction rewrites the
// whole collection.
type Store struct {
	mu       sync.RWMutex
	patterns map[string]*Pattern
	// triggers maps a lowercased trigger to the set of pattern ids carrying it.
	triggers *patricia.Trie
	seq      uint64
	capacity int

	kv  storage.KV
	now func() time.Time
	log *log.Logger
}

// New creates an empty store persisting into kv. kv may be nil, in which
// case Load and Persist are no-ops.
func New(kv storage.KV, opts ...Option) *Store {
	s := &Store{
		patterns: make(map[string]*Pattern),
		triggers: patricia.NewTrie(),
		capacity: DefaultCapacity,
		kv:       kv,
		now:      time.Now,
		log:      logger.New("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capacity returns the configured maximum pattern count.
func (s *Store) Capacity() int {
	return s.capacity
}

// Learn records a fragment: an existing pattern with the same id is
// reinforced, otherwise a new pattern is inserted. Inserting past capacity
// triggers an eviction.
func (s *Store) Learn(f fragment.Fragment, language string) LearnResult {
	id := ID(f.Content)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.patterns[id]; ok {
		p.Frequency++
		p.LastUsed = now
		res := LearnResult{ID: id, Reinforced: true}
		if p.Code != f.Content && !slices.Contains(p.Variants, f.Content) {
			p.Variants = append(p.Variants, f.Content)
			res.NewVariant = true
		}
		metrics.PatternsReinforced.Inc()
		s.log.Debug("reinforced pattern", "id", id, "frequency", p.Frequency)
		return res
	}

	s.seq++
	p := &Pattern{
		ID:         id,
		Code:       f.Content,
		Context:    f.Context,
		Kind:       f.Kind,
		Frequency:  1,
		LastUsed:   now,
		Triggers:   Triggers(f.Content, f.Context),
		Language:   language,
		Confidence: Confidence(f),
		Seq:        s.seq,
		CreatedAt:  now,
	}
	s.insertLocked(p)
	metrics.PatternsInserted.Inc()
	s.log.Debug("inserted pattern", "id", id, "kind", p.Kind, "confidence", p.Confidence)

	res := LearnResult{ID: id, Inserted: true}
	if len(s.patterns) > s.capacity {
		res.Evicted = s.evictLocked()
	}
	return res
}

func (s *Store) insertLocked(p *Pattern) {
	s.patterns[p.ID] = p
	for _, trig := range p.Triggers {
		key := patricia.Prefix(strings.ToLower(trig))
		if item := s.triggers.Get(key); item != nil {
			item.(map[string]struct{})[p.ID] = struct{}{}
			continue
		}
		s.triggers.Insert(key, map[string]struct{}{p.ID: {}})
	}
}

func (s *Store) removeLocked(p *Pattern) {
	delete(s.patterns, p.ID)
	for _, trig := range p.Triggers {
		key := patricia.Prefix(strings.ToLower(trig))
		item := s.triggers.Get(key)
		if item == nil {
			continue
		}
		ids := item.(map[string]struct{})
		delete(ids, p.ID)
		if len(ids) == 0 {
			s.triggers.Delete(key)
		}
	}
}

// retainCount is floor(RetainFraction × capacity), at least 1.
func (s *Store) retainCount() int {
	return max(1, int(float64(s.capacity)*RetainFraction))
}

// byValue orders patterns by score descending, then insertion order.
func byValue(a, b *Pattern) int {
	if c := cmp.Compare(b.Score(), a.Score()); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

func (s *Store) evictLocked() int {
	all := make([]*Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		all = append(all, p)
	}
	slices.SortFunc(all, byValue)

	keep := s.retainCount()
	if keep >= len(all) {
		return 0
	}
	for _, p := range all[keep:] {
		s.removeLocked(p)
	}
	evicted := len(all) - keep
	metrics.PatternsEvicted.Add(float64(evicted))
	s.log.Info("evicted patterns over capacity", "evicted", evicted, "kept", keep)
	return evicted
}

// FindSimilar returns the pattern whose code has the highest Jaccard
// similarity to content, if that similarity is at least threshold. The
// pattern with id excludeID is skipped.
func (s *Store) FindSimilar(content string, threshold float64, excludeID string) (*Pattern, float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Pattern
	bestScore := -1.0
	for _, p := range s.sortedLocked() {
		if p.ID == excludeID {
			continue
		}
		if sim := similarity.Jaccard(content, p.Code); sim > bestScore {
			best, bestScore = p, sim
		}
	}
	if best == nil || bestScore < threshold {
		return nil, 0, false
	}
	return best.clone(), bestScore, true
}

// sortedLocked returns patterns in insertion order.
func (s *Store) sortedLocked() []*Pattern {
	all := make([]*Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		all = append(all, p)
	}
	slices.SortFunc(all, func(a, b *Pattern) int { return cmp.Compare(a.Seq, b.Seq) })
	return all
}

// TopByFrequency returns up to n patterns by descending frequency.
func (s *Store) TopByFrequency(n int) []*Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedLocked()
	slices.SortStableFunc(all, func(a, b *Pattern) int { return cmp.Compare(b.Frequency, a.Frequency) })
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return cloneAll(all)
}

// All returns copies of every pattern in insertion order.
func (s *Store) All() []*Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.sortedLocked())
}

// Get returns a copy of the pattern with id.
func (s *Store) Get(id string) (*Pattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// Len returns the number of stored patterns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

// ByTriggerPrefix returns patterns having a trigger that starts with prefix
// (case-insensitive), most valuable first.
func (s *Store) ByTriggerPrefix(prefix string) []*Pattern {
	prefix = strings.ToLower(prefix)
	if prefix == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{})
	err := s.triggers.VisitSubtree(patricia.Prefix(prefix), func(_ patricia.Prefix, item patricia.Item) error {
		for id := range item.(map[string]struct{}) {
			ids[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		s.log.Errorf("Error visiting trigger subtree: %v", err)
		return nil
	}

	out := make([]*Pattern, 0, len(ids))
	for id := range ids {
		if p, ok := s.patterns[id]; ok {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, byValue)
	return cloneAll(out)
}

// TriggerWords returns every indexed trigger, lowercased.
func (s *Store) TriggerWords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var words []string
	_ = s.triggers.Visit(func(p patricia.Prefix, _ patricia.Item) error {
		words = append(words, string(p))
		return nil
	})
	return words
}

func cloneAll(in []*Pattern) []*Pattern {
	out := make([]*Pattern, len(in))
	for i, p := range in {
		out[i] = p.clone()
	}
	return out
}

// Stats summarizes the store.
type Stats struct {
	Patterns       int            `msgpack:"patterns" yaml:"patterns"`
	Capacity       int            `msgpack:"capacity" yaml:"capacity"`
	Triggers       int            `msgpack:"triggers" yaml:"triggers"`
	ByKind         map[string]int `msgpack:"by_kind" yaml:"by_kind"`
	TopScore       float64        `msgpack:"top_score" yaml:"top_score"`
	Reinforcements int            `msgpack:"reinforcements" yaml:"reinforcements"`
}

// Stats returns a summary of the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Patterns: len(s.patterns),
		Capacity: s.capacity,
		ByKind:   make(map[string]int),
	}
	_ = s.triggers.Visit(func(patricia.Prefix, patricia.Item) error {
		st.Triggers++
		return nil
	})
	for _, p := range s.patterns {
		st.ByKind[string(p.Kind)]++
		st.TopScore = max(st.TopScore, p.Score())
		st.Reinforcements += p.Frequency - 1
	}
	return st
}

// Load replaces the in-memory patterns with the persisted blob. A missing
// blob leaves the store empty. An unreadable or corrupt blob also leaves
// the store empty and is returned as an error for the caller to log.
func (s *Store) Load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	data, err := s.kv.Get(ctx, storage.KeyPatterns)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = make(map[string]*Pattern)
	s.triggers = patricia.NewTrie()
	s.seq = 0

	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("load").Inc()
		return fmt.Errorf("load patterns: %w", err)
	}

	var stored map[string]*Pattern
	if err := msgpack.Unmarshal(data, &stored); err != nil {
		metrics.PersistenceFailures.WithLabelValues("load").Inc()
		return fmt.Errorf("decode patterns: %w", err)
	}
	for id, p := range stored {
		if p == nil {
			continue
		}
		p.ID = id
		s.insertLocked(p)
		s.seq = max(s.seq, p.Seq)
	}
	if len(s.patterns) > s.capacity {
		s.evictLocked()
	}
	s.log.Debug("loaded patterns", "count", len(s.patterns))
	return nil
}

// Persist writes every pattern to the KV as one msgpack blob, keyed by id.
// A failed write leaves the in-memory state untouched.
func (s *Store) Persist(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	s.mu.RLock()
	snapshot := make(map[string]*Pattern, len(s.patterns))
	for id, p := range s.patterns {
		snapshot[id] = p.clone()
	}
	s.mu.RUnlock()

	data, err := msgpack.Marshal(snapshot)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("encode").Inc()
		return fmt.Errorf("encode patterns: %w", err)
	}
	if err := s.kv.Put(ctx, storage.KeyPatterns, data); err != nil {
		metrics.PersistenceFailures.WithLabelValues("save").Inc()
		return fmt.Errorf("save patterns: %w", err)
	}
	return nil
}
