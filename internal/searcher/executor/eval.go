package executor

import (
	"context"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/analysis"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/ranker"
)

// node is a query tree analyzed for one field. Exactly one of leaf and
// clauses is set.
type node struct {
	leaf    *leaf
	clauses []clause
}

type clause struct {
	occur parser.Occur
	node  *node
}

// leaf is a single term or a phrase. offsets[i] is the position of terms[i]
// relative to terms[0].
type leaf struct {
	terms   []string
	offsets []int
}

type fieldPlan struct {
	field string
	root  *node
}

type termKey struct {
	field string
	term  string
}

// compile analyzes every word of b with the field's analyzer. Words that
// analyze to nothing are dropped, as are groups left without a positive
// clause; nil means the query cannot match in this field.
func compile(a analysis.Analyzer, field string, b *parser.Boolean) *node {
	n := &node{}
	positive := false
	for _, c := range b.Clauses {
		var child *node
		switch v := c.Node.(type) {
		case *parser.Term:
			child = analyzeLeaf(a, field, v.Text)
		case *parser.Phrase:
			child = analyzeLeaf(a, field, v.Text)
		case *parser.Boolean:
			child = compile(a, field, v)
		}
		if child == nil {
			continue
		}
		positive = positive || c.Occur != parser.MustNot
		n.clauses = append(n.clauses, clause{occur: c.Occur, node: child})
	}
	if !positive {
		return nil
	}
	return n
}

func analyzeLeaf(a analysis.Analyzer, field, text string) *node {
	tokens := analysis.Collect(a, field, text)
	if len(tokens) == 0 {
		return nil
	}
	l := &leaf{}
	for _, tok := range tokens {
		l.terms = append(l.terms, tok.Term)
		l.offsets = append(l.offsets, tok.Position-tokens[0].Position)
	}
	return &node{leaf: l}
}

func collectKeys(plans []fieldPlan) []termKey {
	seen := make(map[termKey]bool)
	var keys []termKey
	var walk func(field string, n *node)
	walk = func(field string, n *node) {
		if n.leaf != nil {
			for _, t := range n.leaf.terms {
				k := termKey{field, t}
				if !seen[k] {
					seen[k] = true
					keys = append(keys, k)
				}
			}
			return
		}
		for _, c := range n.clauses {
			walk(field, c.node)
		}
	}
	for _, p := range plans {
		walk(p.field, p.root)
	}
	return keys
}

// corpusStats are taken over the whole snapshot so a document scores the
// same whichever segment holds it.
type corpusStats struct {
	totalDocs int
	df        map[termKey]int
	avgLen    map[string]float64
}

func gatherStats(segs []index.Segment, fields []string, postings []map[termKey]index.PostingList) corpusStats {
	st := corpusStats{df: make(map[termKey]int), avgLen: make(map[string]float64, len(fields))}
	for i, seg := range segs {
		st.totalDocs += int(seg.MaxDoc())
		for k, list := range postings[i] {
			st.df[k] += len(list)
		}
	}
	for _, f := range fields {
		var total index.FieldStats
		for _, seg := range segs {
			total = total.Add(seg.FieldStats(f))
		}
		if total.DocCount > 0 {
			st.avgLen[f] = float64(total.SumLength) / float64(total.DocCount)
		}
	}
	return st
}

type matches struct {
	docs   *roaring.Bitmap
	scores map[uint32]float64
}

func newMatches() matches {
	return matches{docs: roaring.New(), scores: make(map[uint32]float64)}
}

type segmentEval struct {
	ctx      context.Context
	seg      index.Segment
	postings map[termKey]index.PostingList
	stats    corpusStats
}

// run scores every live document of the segment that matches in at least
// one field.
func (ev *segmentEval) run(plans []fieldPlan, tieBreaker float64, sort []ranker.SortField) ([]ranker.ScoredDoc, error) {
	perField := make([]matches, 0, len(plans))
	union := roaring.New()
	for _, p := range plans {
		m := ev.eval(p.field, p.root)
		perField = append(perField, m)
		union.Or(m.docs)
	}
	union.AndNot(ev.seg.Deleted())

	cands := make([]ranker.ScoredDoc, 0, union.GetCardinality())
	scores := make([]float64, 0, len(perField))
	it := union.Iterator()
	for n := 0; it.HasNext(); n++ {
		if n%1024 == 0 {
			if err := ev.ctx.Err(); err != nil {
				return nil, err
			}
		}
		ord := it.Next()
		scores = scores[:0]
		for _, m := range perField {
			if m.docs.Contains(ord) {
				scores = append(scores, m.scores[ord])
			}
		}
		d := ranker.ScoredDoc{ID: ev.seg.DocID(ord), Score: ranker.DisMax(scores, tieBreaker)}
		if len(sort) > 0 {
			d.Values = make([]string, len(sort))
			for i, sf := range sort {
				v, err := ev.seg.StoredValue(sf.Field, ord)
				if err != nil {
					return nil, err
				}
				d.Values[i] = v
			}
		}
		cands = append(cands, d)
	}
	return cands, nil
}

func (ev *segmentEval) eval(field string, n *node) matches {
	if n.leaf != nil {
		if len(n.leaf.terms) == 1 {
			return ev.term(field, n.leaf.terms[0])
		}
		return ev.phrase(field, n.leaf)
	}

	var must, should, not []matches
	for _, c := range n.clauses {
		m := ev.eval(field, c.node)
		switch c.occur {
		case parser.Must:
			must = append(must, m)
		case parser.MustNot:
			not = append(not, m)
		default:
			should = append(should, m)
		}
	}

	out := newMatches()
	if len(must) > 0 {
		out.docs = must[0].docs.Clone()
		for _, m := range must[1:] {
			out.docs.And(m.docs)
		}
	} else {
		for _, m := range should {
			out.docs.Or(m.docs)
		}
	}
	for _, m := range not {
		out.docs.AndNot(m.docs)
	}
	for _, group := range [][]matches{must, should} {
		for _, m := range group {
			for ord, s := range m.scores {
				if out.docs.Contains(ord) {
					out.scores[ord] += s
				}
			}
		}
	}
	return out
}

func (ev *segmentEval) term(field, term string) matches {
	k := termKey{field, term}
	idf := ranker.IDF(ev.stats.totalDocs, ev.stats.df[k])
	avg := ev.stats.avgLen[field]
	m := newMatches()
	for _, p := range ev.postings[k] {
		m.docs.Add(p.Doc)
		m.scores[p.Doc] = ranker.BM25(idf, float64(p.Frequency), float64(ev.seg.FieldLength(field, p.Doc)), avg)
	}
	return m
}

// phrase matches documents where every term occurs at its offset from an
// occurrence of the first term. The phrase frequency stands in for tf and
// the idfs of its terms add up.
func (ev *segmentEval) phrase(field string, l *leaf) matches {
	m := newMatches()
	rest := make([]map[uint32][]int, len(l.terms))
	idf := 0.0
	for i, term := range l.terms {
		k := termKey{field, term}
		idf += ranker.IDF(ev.stats.totalDocs, ev.stats.df[k])
		list := ev.postings[k]
		if len(list) == 0 {
			return m
		}
		if i == 0 {
			continue
		}
		rest[i] = make(map[uint32][]int, len(list))
		for _, p := range list {
			rest[i][p.Doc] = p.Positions
		}
	}

	avg := ev.stats.avgLen[field]
	for _, p := range ev.postings[termKey{field, l.terms[0]}] {
		freq := 0
		for _, pos := range p.Positions {
			if ev.phraseAt(l, rest, p.Doc, pos) {
				freq++
			}
		}
		if freq > 0 {
			m.docs.Add(p.Doc)
			m.scores[p.Doc] = ranker.BM25(idf, float64(freq), float64(ev.seg.FieldLength(field, p.Doc)), avg)
		}
	}
	return m
}

func (ev *segmentEval) phraseAt(l *leaf, rest []map[uint32][]int, doc uint32, pos int) bool {
	for i := 1; i < len(l.terms); i++ {
		positions, ok := rest[i][doc]
		if !ok {
			return false
		}
		if _, found := slices.BinarySearch(positions, pos+l.offsets[i]); !found {
			return false
		}
	}
	return true
}
