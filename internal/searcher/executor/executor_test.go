package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
)

func newEngine(t *testing.T) *indexer.Engine {
	t.Helper()
	e, err := indexer.Open(indexer.Options{Config: config.IndexConfig{InMemory: true, MergeFactor: 100}})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// heroes indexes the sample users, flushing the first half so results span
// disk and memory segments.
func heroes(t *testing.T) (*indexer.Engine, *Executor) {
	t.Helper()
	e := newEngine(t)
	users := model.SampleUsers()
	for i, u := range users {
		_, err := e.Add(context.Background(), model.UserSchema.ToDocument(&u))
		require.NoError(t, err)
		if i == len(users)/2-1 {
			require.NoError(t, e.Flush(context.Background()))
		}
	}
	return e, New(e, config.SearchConfig{DefaultFields: []string{"userName", "sal"}})
}

func userIDs(res *Result) []string {
	out := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		out[i], _ = h.Document.Get("id")
	}
	return out
}

func TestSearchSingleField(t *testing.T) {
	_, x := heroes(t)

	res, err := x.Search(context.Background(), Request{Keywords: "钟", Fields: []string{"userName"}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"6"}, userIDs(res))
	assert.Equal(t, 1, res.TotalHits)
	name, _ := res.Hits[0].Document.Get("userName")
	assert.Equal(t, "钟无艳", name)

	res, err = x.Search(context.Background(), Request{Keywords: "肌肉", Fields: []string{"sal"}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, userIDs(res), "a multi-token word matches as a phrase")
}

func TestSearchSortByIDDescending(t *testing.T) {
	_, x := heroes(t)

	res, err := x.Search(context.Background(), Request{
		Keywords: "一",
		Fields:   []string{"userName", "sal"},
		Limit:    10,
		Sort:     []ranker.SortField{{Field: "id", Type: ranker.Numeric, Descending: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"20", "18", "4", "3"}, userIDs(res))
}

func TestSearchLimit(t *testing.T) {
	_, x := heroes(t)

	res, err := x.Search(context.Background(), Request{Keywords: "一", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 2)
	assert.Equal(t, 4, res.TotalHits)
	assert.GreaterOrEqual(t, res.Hits[0].Score, res.Hits[1].Score)

	_, err = x.Search(context.Background(), Request{Keywords: "一", Limit: 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = x.Search(context.Background(), Request{Keywords: "  ", Limit: 5})
	assert.ErrorIs(t, err, apperrors.ErrQueryParse)

	res, err = x.Search(context.Background(), Request{Keywords: "，。", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, res.Hits, "punctuation analyzes to nothing")
}

func TestSearchBooleanOperators(t *testing.T) {
	_, x := heroes(t)

	res, err := x.Search(context.Background(), Request{Keywords: "钱 AND 汉", Fields: []string{"sal"}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"6"}, userIDs(res))

	res, err = x.Search(context.Background(), Request{Keywords: "一 -东", Limit: 10,
		Sort: []ranker.SortField{{Field: "id", Type: ranker.Numeric}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4", "20"}, userIDs(res))

	res, err = x.Search(context.Background(), Request{Keywords: `"只有一个"`, Fields: []string{"sal"}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, userIDs(res))

	res, err = x.Search(context.Background(), Request{Keywords: `"一只有"`, Fields: []string{"sal"}, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Hits, "phrase order matters")
}

func TestDisjunctionMaxTakesBestField(t *testing.T) {
	e := newEngine(t)
	add := func(title, body string) document.DocID {
		id, err := e.Add(context.Background(), document.New(document.Text("title", title), document.Text("body", body)))
		require.NoError(t, err)
		return id
	}
	both := add("quick fox", "the fox and another fox")
	add("slow dog", "a fox in the woods")
	add("cat", "nothing here")

	x := New(e, config.SearchConfig{})
	score := func(fields ...string) float64 {
		res, err := x.Search(context.Background(), Request{Keywords: "fox", Fields: fields, Limit: 10})
		require.NoError(t, err)
		for _, h := range res.Hits {
			if h.ID == both {
				return h.Score
			}
		}
		t.Fatalf("doc %d not found for fields %v", both, fields)
		return 0
	}

	title, body := score("title"), score("body")
	require.NotEqual(t, title, body)
	assert.InDelta(t, max(title, body), score("title", "body"), 1e-9, "best field wins, fields are not summed")

	x.cfg.TieBreaker = 0.5
	assert.InDelta(t, max(title, body)+0.5*min(title, body), score("title", "body"), 1e-9)
}

func TestSearchSkipsDeletedDocuments(t *testing.T) {
	e, x := heroes(t)

	require.NoError(t, e.Delete(context.Background(), 4))
	res, err := x.Search(context.Background(), Request{Keywords: "一", Limit: 10,
		Sort: []ranker.SortField{{Field: "id", Type: ranker.Numeric, Descending: true}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"20", "18", "3"}, userIDs(res))
}

func TestSearchSeesUnflushedDocuments(t *testing.T) {
	e := newEngine(t)
	x := New(e, config.SearchConfig{DefaultFields: []string{"userName"}})

	u := model.User{ID: "21", UserName: "钟馗", Sal: "来将可留姓名"}
	_, err := e.Add(context.Background(), model.UserSchema.ToDocument(&u))
	require.NoError(t, err)

	res, err := x.Search(context.Background(), Request{Keywords: "钟", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"21"}, userIDs(res))
}

func TestSearchHonoursCancellation(t *testing.T) {
	_, x := heroes(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := x.Search(ctx, Request{Keywords: "一", Limit: 5})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrepareDefaultsAndDedupesFields(t *testing.T) {
	x := &Executor{cfg: config.SearchConfig{DefaultFields: []string{"userName"}}}
	req, q, err := x.Prepare(Request{Keywords: "a AND b", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"userName"}, req.Fields)
	assert.Equal(t, "+a +b", q.String())

	req, _, err = x.Prepare(Request{Keywords: "a", Fields: []string{"sal", "sal", ""}, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"sal"}, req.Fields)

	x.cfg.DefaultFields = nil
	_, _, err = x.Prepare(Request{Keywords: "a", Limit: 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
