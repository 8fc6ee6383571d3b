package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortBySimilarityIsStable(t *testing.T) {
	s := []Snippet{
		{Title: "a", Similarity: 0.4},
		{Title: "b", Similarity: 0.9},
		{Title: "c", Similarity: 0.4},
	}
	SortBySimilarity(s)
	assert.Equal(t, "b", s[0].Title)
	assert.Equal(t, "a", s[1].Title)
	assert.Equal(t, "c", s[2].Title)
}

func TestDedupe(t *testing.T) {
	s := []Snippet{
		{Title: "typed", Code: "const x = 1;"},
		{Title: "first", Code: "return  y;"},
		{Title: "copy", Code: "return y;"},
		{Title: "empty", Code: "   "},
		{Title: "other", Code: "let z = [];"},
	}
	out := Dedupe(s, "const  x = 1;")
	var titles []string
	for _, sn := range out {
		titles = append(titles, sn.Title)
	}
	assert.Equal(t, []string{"first", "other"}, titles)
}

func TestLimitAndDescribe(t *testing.T) {
	s := make([]Snippet, 4)
	assert.Len(t, Limit(s, 2), 2)
	assert.Len(t, Limit(s, 0), 4)
	assert.Len(t, Limit(s, 10), 4)

	assert.Equal(t, "72% relevance", Describe("relevance", 0.72))
	assert.Equal(t, "100% match", Describe("match", 1.3))
}
