// Package merger combines per-segment candidate lists into one bounded,
// ordered result list.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/ranker"
)

// TopN keeps the limit best docs under cmp and returns them best first.
func TopN(docs []ranker.ScoredDoc, limit int, cmp func(a, b ranker.ScoredDoc) int) []ranker.ScoredDoc {
	return Merge([][]ranker.ScoredDoc{docs}, limit, cmp)
}

// Merge returns the limit best docs across lists, best first. A bounded
// heap keeps memory proportional to limit.
func Merge(lists [][]ranker.ScoredDoc, limit int, cmp func(a, b ranker.ScoredDoc) int) []ranker.ScoredDoc {
	if limit <= 0 {
		return nil
	}
	h := &docHeap{cmp: cmp}
	for _, docs := range lists {
		for _, doc := range docs {
			if h.Len() < limit {
				heap.Push(h, doc)
				continue
			}
			// Replace the current worst when doc beats it.
			if cmp(doc, h.docs[0]) < 0 {
				h.docs[0] = doc
				heap.Fix(h, 0)
			}
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return result
}

// docHeap is a max-heap on cmp: the root is the worst kept doc.
type docHeap struct {
	docs []ranker.ScoredDoc
	cmp  func(a, b ranker.ScoredDoc) int
}

func (h *docHeap) Len() int { return len(h.docs) }

func (h *docHeap) Less(i, j int) bool { return h.cmp(h.docs[i], h.docs[j]) > 0 }

func (h *docHeap) Swap(i, j int) { h.docs[i], h.docs[j] = h.docs[j], h.docs[i] }

func (h *docHeap) Push(x any) {
	h.docs = append(h.docs, x.(ranker.ScoredDoc))
}

func (h *docHeap) Pop() any {
	old := h.docs
	n := len(old)
	item := old[n-1]
	h.docs = old[:n-1]
	return item
}
