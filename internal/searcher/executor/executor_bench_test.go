package executor

import (
	"context"
	"strconv"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
)

// benchCorpus loads n copies of the sample users spread over several
// segments.
func benchCorpus(b *testing.B, n int) *Executor {
	b.Helper()
	e, err := indexer.Open(indexer.Options{Config: config.IndexConfig{InMemory: true, MergeFactor: 10}})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { e.Close() })
	ctx := context.Background()
	users := model.SampleUsers()
	for i := range n {
		u := users[i%len(users)]
		u.ID = strconv.Itoa(i + 1)
		if _, err := e.Add(ctx, model.UserSchema.ToDocument(&u)); err != nil {
			b.Fatal(err)
		}
		if (i+1)%2000 == 0 {
			if err := e.Flush(ctx); err != nil {
				b.Fatal(err)
			}
		}
	}
	return New(e, config.SearchConfig{DefaultFields: []string{"userName", "sal"}})
}

func BenchmarkSearch(b *testing.B) {
	x := benchCorpus(b, 10000)
	byID := []ranker.SortField{{Field: "id", Type: ranker.Numeric, Descending: true}}
	cases := map[string]Request{
		"term":    {Keywords: "钟", Fields: []string{"userName"}, Limit: 10},
		"multi":   {Keywords: "一", Limit: 10},
		"boolean": {Keywords: "钱 AND 汉 -难", Limit: 10},
		"phrase":  {Keywords: `"只有一个"`, Limit: 10},
		"sorted":  {Keywords: "一", Limit: 10, Sort: byID},
	}
	for name, req := range cases {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				if _, err := x.Search(context.Background(), req); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	x := benchCorpus(b, 10000)
	req := Request{Keywords: "有钱", Limit: 10}
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := x.Search(context.Background(), req); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
