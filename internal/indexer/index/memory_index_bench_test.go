package index

import (
	"strconv"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/analysis"
)

func benchDoc(i int) document.Document {
	return document.New(
		document.Text("id", strconv.Itoa(i)),
		document.Text("userName", "东皇太一"),
		document.Text("sal", "俗说说得好，有钱男子汉，无钱汉子难"),
	)
}

func BenchmarkMemoryIndexAdd(b *testing.B) {
	m := NewMemoryIndex("mem_1", analysis.NewStandard())
	b.ReportAllocs()
	i := 0
	for b.Loop() {
		i++
		if _, err := m.AddDocument(document.DocID(i), benchDoc(i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMemoryIndexPostings(b *testing.B) {
	m := NewMemoryIndex("mem_1", analysis.NewStandard())
	for i := 1; i <= 10000; i++ {
		if _, err := m.AddDocument(document.DocID(i), benchDoc(i)); err != nil {
			b.Fatal(err)
		}
	}
	v := m.View()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := v.Postings("sal", "钱"); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkMemoryIndexView(b *testing.B) {
	m := NewMemoryIndex("mem_1", analysis.NewStandard())
	for i := 1; i <= 5000; i++ {
		if _, err := m.AddDocument(document.DocID(i), benchDoc(i)); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportAllocs()
	for b.Loop() {
		_ = m.View()
	}
}
