package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/analysis"
)

func newTestIndex(t *testing.T, docs ...string) *MemoryIndex {
	t.Helper()
	m := NewMemoryIndex("mem_1", analysis.NewStandard())
	for i, body := range docs {
		_, err := m.AddDocument(document.DocID(i+1), document.New(
			document.Text("id", string(rune('a'+i))),
			document.Text("body", body),
		))
		require.NoError(t, err)
	}
	return m
}

func TestAddDocumentBuildsPostings(t *testing.T) {
	m := newTestIndex(t, "red fish blue fish", "one fish")
	v := m.View()

	list, err := v.Postings("body", "fish")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint32(0), list[0].Doc)
	assert.Equal(t, 2, list[0].Frequency)
	assert.Equal(t, []int{1, 3}, list[0].Positions)
	assert.Equal(t, Offset{Start: 4, End: 8}, list[0].Offsets[0])

	assert.Equal(t, 4, v.FieldLength("body", 0))
	assert.Equal(t, FieldStats{DocCount: 2, SumLength: 6}, v.FieldStats("body"))

	terms, err := v.Terms("body")
	require.NoError(t, err)
	assert.Equal(t, []string{"blue", "fish", "one", "red"}, terms)
}

func TestViewIgnoresLaterAppends(t *testing.T) {
	m := newTestIndex(t, "alpha")
	v := m.View()

	_, err := m.AddDocument(10, document.New(document.Text("body", "alpha beta")))
	require.NoError(t, err)

	assert.Equal(t, uint32(1), v.MaxDoc())
	list, _ := v.Postings("body", "alpha")
	assert.Len(t, list, 1)
	terms, _ := v.Terms("body")
	assert.Equal(t, []string{"alpha"}, terms)
	_, ok := v.Ordinal(10)
	assert.False(t, ok)

	assert.Equal(t, uint32(2), m.View().MaxDoc())
}

func TestRejectsNonIncreasingID(t *testing.T) {
	m := newTestIndex(t, "alpha", "beta")
	_, err := m.AddDocument(2, document.New(document.Text("body", "gamma")))
	assert.Error(t, err)
}

func TestDeleteIsCopyOnWrite(t *testing.T) {
	m := newTestIndex(t, "alpha", "beta")
	before := m.View()

	assert.True(t, m.Delete(1))
	assert.False(t, m.Delete(1), "already deleted")
	assert.False(t, m.Delete(99))

	assert.False(t, before.Deleted().Contains(0))
	assert.True(t, m.View().Deleted().Contains(0))
	assert.False(t, m.Contains(1))
	assert.Equal(t, 1, m.LiveCount())
	assert.Equal(t, 2, m.DocCount())
}

func TestStoredDocumentsAndValues(t *testing.T) {
	m := NewMemoryIndex("mem", analysis.NewStandard())
	_, err := m.AddDocument(1, document.New(
		document.Text("id", "7"),
		document.Field{Name: "secret", Value: "hidden text", Indexed: true},
	))
	require.NoError(t, err)
	v := m.View()

	doc, err := v.Document(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, doc.Names())

	val, err := v.StoredValue("id", 0)
	require.NoError(t, err)
	assert.Equal(t, "7", val)

	list, _ := v.Postings("secret", "hidden")
	assert.Len(t, list, 1, "unstored fields are still searchable")

	_, err = v.Document(5)
	assert.Error(t, err)
}

func TestMergeDropsDeletedAndRenumbers(t *testing.T) {
	a := newTestIndex(t, "apple pie", "banana split", "apple crumble")
	a.Delete(2)
	b := NewMemoryIndex("mem_2", analysis.NewStandard())
	_, err := b.AddDocument(10, document.New(document.Text("body", "apple juice")))
	require.NoError(t, err)

	data, err := Merge(context.Background(), []Segment{b.View(), a.View()})
	require.NoError(t, err)

	assert.Equal(t, []document.DocID{1, 3, 10}, data.IDs, "ids ascending regardless of input order")
	require.Len(t, data.Docs, 3)
	body, _ := data.Docs[1].Get("body")
	assert.Equal(t, "apple crumble", body)

	var apple PostingList
	for _, e := range data.Terms {
		if e.Field == "body" && e.Term == "apple" {
			apple = e.Postings
		}
		assert.NotEqual(t, "banana", e.Term, "terms only in deleted docs disappear")
	}
	require.Len(t, apple, 3)
	assert.Equal(t, []uint32{0, 1, 2}, []uint32{apple[0].Doc, apple[1].Doc, apple[2].Doc})
	assert.Equal(t, []uint32{2, 2, 2}, data.Lengths["body"])
	assert.Equal(t, FieldStats{DocCount: 3, SumLength: 6}, data.Stats()["body"])
}

func TestMergeHonoursCancellation(t *testing.T) {
	m := newTestIndex(t, "alpha")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Merge(ctx, []Segment{m.View()})
	assert.ErrorIs(t, err, context.Canceled)
}
