package patterns

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/bastiangx/codeserve/pkg/fragment"
	"github.com/bastiangx/codeserve/pkg/storage"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

const validateEmail = "function validateEmail(email) { const regex = /^\\S+@\\S+$/; return regex.test(email); }"

func fn(content string) fragment.Fragment {
	return fragment.Fragment{
		Content:    content,
		Kind:       fragment.KindFunction,
		Context:    "// helpers for signup forms",
		LineCount:  1,
		Complexity: fragment.Complexity(content),
	}
}

// failingKV fails every operation.
type failingKV struct{}

var errBroken = errors.New("disk on fire")

func (failingKV) Get(context.Context, string) ([]byte, error) { return nil, errBroken }
func (failingKV) Put(context.Context, string, []byte) error   { return errBroken }
func (failingKV) Delete(context.Context, string) error        { return errBroken }
func (failingKV) Close() error                                { return nil }

func TestIDIsStableUnderWhitespace(t *testing.T) {
	a := ID("function f() {\n  return 1;\n}")
	assert.Equal(t, a, ID("function f() {\n  return 1;\n}"))
	assert.Equal(t, a, ID("function   f() {  return 1; }"))
	assert.NotEqual(t, a, ID("function f() { return 2; }"))
	assert.Regexp(t, `^p_[0-9a-f]+$`, a)
}

func TestLearnReinforcesIdenticalContent(t *testing.T) {
	s := New(nil)

	first := s.Learn(fn(validateEmail), "javascript")
	assert.True(t, first.Inserted)

	for want := 2; want <= 5; want++ {
		res := s.Learn(fn(validateEmail), "javascript")
		assert.True(t, res.Reinforced)
		assert.Equal(t, first.ID, res.ID)

		p, ok := s.Get(first.ID)
		require.True(t, ok)
		assert.Equal(t, want, p.Frequency)
	}
	assert.Equal(t, 1, s.Len())
}

func TestLearnRecordsVariants(t *testing.T) {
	s := New(nil)
	s.Learn(fn("function f() { return 1; }"), "javascript")
	res := s.Learn(fn("function f() {\n  return 1;\n}"), "javascript")
	assert.True(t, res.NewVariant)

	res = s.Learn(fn("function f() {\n  return 1;\n}"), "javascript")
	assert.False(t, res.NewVariant)

	p, _ := s.Get(res.ID)
	assert.Equal(t, []string{"function f() {\n  return 1;\n}"}, p.Variants)
	assert.Equal(t, "function f() { return 1; }", p.Code)
}

func TestLearnUpdatesLastUsed(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(nil, WithClock(func() time.Time { return now }))

	res := s.Learn(fn(validateEmail), "javascript")
	now = now.Add(time.Minute)
	s.Learn(fn(validateEmail), "javascript")

	p, _ := s.Get(res.ID)
	assert.Equal(t, now, p.LastUsed)
	assert.Equal(t, now.Add(-time.Minute), p.CreatedAt)
}

func TestTriggers(t *testing.T) {
	got := Triggers(validateEmail, "// helpers for signup forms")
	assert.Equal(t, []string{
		"function", "const", "return",
		"validateEmail", "email", "regex", "test",
		"helpers", "signup", "forms",
	}, got)

	many := Triggers("alpha beta gamma delta epsilon zeta eta", "")
	assert.Len(t, many, 5)
}

func TestConfidenceBounds(t *testing.T) {
	kinds := []fragment.Kind{
		fragment.KindFunction, fragment.KindClass, fragment.KindVariable,
		fragment.KindImport, fragment.KindLoop, fragment.KindConditional, fragment.KindBlock,
	}
	for _, k := range kinds {
		for _, c := range []float64{0, 1, 5, 10, 100} {
			for _, content := range []string{"{}", "{", "}}", "x"} {
				conf := Confidence(fragment.Fragment{Kind: k, Complexity: c, Content: content})
				assert.GreaterOrEqual(t, conf, 0.0)
				assert.LessOrEqual(t, conf, 1.0)
			}
		}
	}
	assert.InDelta(t, 0.5+0.03+0.1, Confidence(fragment.Fragment{Kind: fragment.KindLoop, Complexity: 1, Content: "{}"}), 1e-9)
	assert.InDelta(t, 0.5+0.15+0.25, Confidence(fragment.Fragment{Kind: fragment.KindClass, Complexity: 5, Content: "{"}), 1e-9)
}

func TestEvictionKeepsTopByValue(t *testing.T) {
	const capacity = 10
	s := New(nil, WithCapacity(capacity))

	type entry struct {
		id    string
		score float64
		seq   int
	}
	var entries []entry
	for i := 0; i < capacity+1; i++ {
		f := fragment.Fragment{
			Content:    fmt.Sprintf("const v%d = { n: %d };", i, i),
			Kind:       fragment.KindVariable,
			Complexity: float64(i%3 + 1),
		}
		res := s.Learn(f, "javascript")
		entries = append(entries, entry{id: res.ID, score: Confidence(f), seq: i})
		if i < capacity {
			assert.Zero(t, res.Evicted)
		} else {
			assert.Equal(t, capacity+1-8, res.Evicted)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].seq < entries[j].seq
	})

	require.Equal(t, 8, s.Len())
	assert.LessOrEqual(t, s.Len(), capacity)
	for i, e := range entries {
		_, ok := s.Get(e.id)
		assert.Equal(t, i < 8, ok, "entry %d (seq %d)", i, e.seq)
	}

	for _, p := range s.All() {
		for _, trig := range p.Triggers {
			assert.NotEmpty(t, s.ByTriggerPrefix(trig))
		}
	}
}

func TestEvictionDropsStaleTriggers(t *testing.T) {
	s := New(nil, WithCapacity(1))
	s.Learn(fn("function zebraOne() { return 1; }"), "javascript")
	s.Learn(fn("function alphaTwo() { if (a) { return 2; } }"), "javascript")

	require.Equal(t, 1, s.Len())
	assert.Empty(t, s.ByTriggerPrefix("zebra"))
	assert.Len(t, s.ByTriggerPrefix("alpha"), 1)
}

func TestFindSimilar(t *testing.T) {
	s := New(nil)
	res := s.Learn(fn(validateEmail), "javascript")

	p, sim, ok := s.FindSimilar(validateEmail+" ", 0.9, "")
	require.True(t, ok)
	assert.Equal(t, res.ID, p.ID)
	assert.Equal(t, 1.0, sim)

	_, _, ok = s.FindSimilar(validateEmail, 0.9, res.ID)
	assert.False(t, ok)

	_, _, ok = s.FindSimilar("while (true) {}", 0.9, "")
	assert.False(t, ok)
}

func TestByTriggerPrefix(t *testing.T) {
	s := New(nil)
	s.Learn(fn(validateEmail), "javascript")
	s.Learn(fn("function validatePhone(phone) { return /\\d+/.test(phone); }"), "javascript")
	s.Learn(fn("function fetchUser(id) { return api.get(id); }"), "javascript")

	assert.Len(t, s.ByTriggerPrefix("valid"), 2)
	assert.Len(t, s.ByTriggerPrefix("VALIDATEP"), 1)
	assert.Len(t, s.ByTriggerPrefix("fetch"), 1)
	assert.Empty(t, s.ByTriggerPrefix("zzz"))
	assert.Empty(t, s.ByTriggerPrefix(""))
}

func TestTopByFrequency(t *testing.T) {
	s := New(nil)
	a := s.Learn(fn("function a() { return 1; }"), "javascript")
	b := s.Learn(fn("function b() { return 2; }"), "javascript")
	s.Learn(fn("function b() { return 2; }"), "javascript")

	top := s.TopByFrequency(1)
	require.Len(t, top, 1)
	assert.Equal(t, b.ID, top[0].ID)

	all := s.TopByFrequency(10)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[1].ID)
}

func TestReturnedPatternsAreCopies(t *testing.T) {
	s := New(nil)
	res := s.Learn(fn(validateEmail), "javascript")
	p, _ := s.Get(res.ID)
	p.Frequency = 99
	p.Triggers[0] = "mutated"

	again, _ := s.Get(res.ID)
	assert.Equal(t, 1, again.Frequency)
	assert.NotEqual(t, "mutated", again.Triggers[0])
}

func TestPersistRoundTrip(t *testing.T) {
	kv, err := storage.OpenInMemory()
	require.NoError(t, err)
	defer kv.Close()
	ctx := context.Background()

	s := New(kv)
	s.Learn(fn(validateEmail), "javascript")
	s.Learn(fn(validateEmail), "javascript")
	s.Learn(fragment.Fragment{Content: "import x from 'y';", Kind: fragment.KindImport, Context: fragment.ImportContext, Complexity: 1}, "typescript")
	require.NoError(t, s.Persist(ctx))

	fresh := New(kv)
	require.NoError(t, fresh.Load(ctx))
	require.Equal(t, s.Len(), fresh.Len())

	for _, want := range s.All() {
		got, ok := fresh.Get(want.ID)
		require.True(t, ok, want.ID)
		assert.Equal(t, want.Frequency, got.Frequency)
		assert.Equal(t, want.Confidence, got.Confidence)
		assert.Equal(t, want.Triggers, got.Triggers)
		assert.Equal(t, want.Language, got.Language)
		assert.Equal(t, want.Seq, got.Seq)
	}

	// insertion order continues after the restored sequence
	res := fresh.Learn(fn("function later() {}"), "javascript")
	p, _ := fresh.Get(res.ID)
	assert.Equal(t, uint64(3), p.Seq)
}

func TestLoadMissingBlobIsEmpty(t *testing.T) {
	kv, err := storage.OpenInMemory()
	require.NoError(t, err)
	defer kv.Close()

	s := New(kv)
	require.NoError(t, s.Load(context.Background()))
	assert.Zero(t, s.Len())
}

func TestLoadCorruptBlobFallsBackToEmpty(t *testing.T) {
	kv, err := storage.OpenInMemory()
	require.NoError(t, err)
	defer kv.Close()
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, storage.KeyPatterns, []byte{0xc1, 0x00, 0xff}))

	s := New(kv)
	s.Learn(fn(validateEmail), "javascript")
	assert.Error(t, s.Load(ctx))
	assert.Zero(t, s.Len())
}

func TestPersistFailureKeepsMemory(t *testing.T) {
	s := New(failingKV{})
	s.Learn(fn(validateEmail), "javascript")

	err := s.Persist(context.Background())
	assert.ErrorIs(t, err, errBroken)
	assert.Equal(t, 1, s.Len())

	assert.ErrorIs(t, s.Load(context.Background()), errBroken)
	assert.Zero(t, s.Len())
}

// Repeated learning under a tight capacity must not grow the store or the
// trigger index without bound.
func TestChurnStaysBounded(t *testing.T) {
	s := New(nil, WithCapacity(50))
	for i := 0; i < 2000; i++ {
		s.Learn(fn(fmt.Sprintf("function f%d(arg%d) { return arg%d * %d; }", i, i, i, i)), "javascript")
		assert.LessOrEqual(t, s.Len(), 50)
	}
	st := s.Stats()
	assert.LessOrEqual(t, st.Patterns, 50)
	// each pattern carries a bounded trigger set
	assert.LessOrEqual(t, st.Triggers, 50*(len(triggerKeywords)+maxIdentifierTriggers+maxContextTriggers))
}
