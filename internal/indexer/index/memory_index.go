package index

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/analysis"
)

// MemoryIndex is the writable segment. Documents are appended with
// increasing DocIDs; readers take a View that pins the document count at
// creation and therefore never observes later appends.
type MemoryIndex struct {
	name     string
	analyzer analysis.Analyzer

	mu      sync.RWMutex
	ids     []document.DocID
	docs    []document.Document
	terms   map[string]map[string]PostingList
	lengths map[string][]uint32
	stats   map[string]FieldStats
	deleted *roaring.Bitmap
	size    int64
}

func NewMemoryIndex(name string, analyzer analysis.Analyzer) *MemoryIndex {
	return &MemoryIndex{
		name:     name,
		analyzer: analyzer,
		terms:    make(map[string]map[string]PostingList),
		lengths:  make(map[string][]uint32),
		stats:    make(map[string]FieldStats),
		deleted:  roaring.New(),
	}
}

type fieldPostings struct {
	field    string
	length   int
	postings map[string]*Posting
}

// AddDocument analyzes doc and appends it under id, returning its ordinal.
// id must be greater than every id added before.
func (m *MemoryIndex) AddDocument(id document.DocID, doc document.Document) (uint32, error) {
	analyzed := make([]fieldPostings, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		if !f.Indexed {
			continue
		}
		fp := fieldPostings{field: f.Name, postings: make(map[string]*Posting)}
		for tok := range m.analyzer.Analyze(f.Name, f.Value) {
			p, ok := fp.postings[tok.Term]
			if !ok {
				p = &Posting{Positions: make([]int, 0, 2), Offsets: make([]Offset, 0, 2)}
				fp.postings[tok.Term] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, tok.Position)
			p.Offsets = append(p.Offsets, Offset{Start: tok.Start, End: tok.End})
			fp.length++
		}
		analyzed = append(analyzed, fp)
	}
	stored := doc.Stored()

	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.ids); n > 0 && id <= m.ids[n-1] {
		return 0, fmt.Errorf("doc id %d is not greater than last id %d", id, m.ids[n-1])
	}
	ord := uint32(len(m.ids))
	m.ids = append(m.ids, id)
	m.docs = append(m.docs, stored)
	m.size += stored.Size() + 32

	for _, fp := range analyzed {
		byTerm, ok := m.terms[fp.field]
		if !ok {
			byTerm = make(map[string]PostingList)
			m.terms[fp.field] = byTerm
		}
		for term, p := range fp.postings {
			p.Doc = ord
			byTerm[term] = append(byTerm[term], *p)
			m.size += int64(len(term) + len(p.Positions)*24 + 48)
		}

		lengths := m.lengths[fp.field]
		for uint32(len(lengths)) <= ord {
			lengths = append(lengths, 0)
		}
		lengths[ord] = uint32(fp.length)
		m.lengths[fp.field] = lengths

		if fp.length > 0 {
			st := m.stats[fp.field]
			st.DocCount++
			st.SumLength += int64(fp.length)
			m.stats[fp.field] = st
		}
	}
	return ord, nil
}

// Delete tombstones the document with id. It reports whether the id was
// present and live.
func (m *MemoryIndex) Delete(id document.DocID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, ok := searchIDs(m.ids, id)
	if !ok || m.deleted.Contains(ord) {
		return false
	}
	next := m.deleted.Clone()
	next.Add(ord)
	m.deleted = next
	return true
}

// Contains reports whether id is present and not deleted.
func (m *MemoryIndex) Contains(id document.DocID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ord, ok := searchIDs(m.ids, id)
	return ok && !m.deleted.Contains(ord)
}

func (m *MemoryIndex) Name() string { return m.name }

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// DocCount counts every appended document, deleted or not.
func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// LiveCount counts documents that are not deleted.
func (m *MemoryIndex) LiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids) - int(m.deleted.GetCardinality())
}

// View returns a read-only Segment pinned to the current document count and
// tombstones.
func (m *MemoryIndex) View() Segment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make(map[string]FieldStats, len(m.stats))
	for f, s := range m.stats {
		stats[f] = s
	}
	return &memoryView{
		m:       m,
		maxDoc:  uint32(len(m.ids)),
		deleted: m.deleted,
		stats:   stats,
	}
}

func searchIDs(ids []document.DocID, id document.DocID) (uint32, bool) {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return uint32(i), true
	}
	return 0, false
}

type memoryView struct {
	m       *MemoryIndex
	maxDoc  uint32
	deleted *roaring.Bitmap
	stats   map[string]FieldStats
}

func (v *memoryView) Name() string { return v.m.name }
func (v *memoryView) MaxDoc() uint32 { return v.maxDoc }

func (v *memoryView) DocID(ord uint32) document.DocID {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	return v.m.ids[ord]
}

func (v *memoryView) Ordinal(id document.DocID) (uint32, bool) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	return searchIDs(v.m.ids[:v.maxDoc], id)
}

func (v *memoryView) Fields() []string {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	fields := make([]string, 0, len(v.m.terms))
	for f := range v.m.terms {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields
}

func (v *memoryView) Terms(field string) ([]string, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	byTerm := v.m.terms[field]
	terms := make([]string, 0, len(byTerm))
	for term, list := range byTerm {
		if len(list) > 0 && list[0].Doc < v.maxDoc {
			terms = append(terms, term)
		}
	}
	slices.Sort(terms)
	return terms, nil
}

// Postings returns the prefix of the list visible to this view. Appends
// never touch elements below maxDoc, so the prefix can be shared.
func (v *memoryView) Postings(field, term string) (PostingList, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	list := v.m.terms[field][term]
	cut := sort.Search(len(list), func(i int) bool { return list[i].Doc >= v.maxDoc })
	return list[:cut:cut], nil
}

func (v *memoryView) FieldStats(field string) FieldStats {
	return v.stats[field]
}

func (v *memoryView) FieldLength(field string, ord uint32) int {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	lengths := v.m.lengths[field]
	if ord >= v.maxDoc || int(ord) >= len(lengths) {
		return 0
	}
	return int(lengths[ord])
}

func (v *memoryView) Document(ord uint32) (document.Document, error) {
	if ord >= v.maxDoc {
		return document.Document{}, fmt.Errorf("ordinal %d out of range", ord)
	}
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	return v.m.docs[ord].Clone(), nil
}

func (v *memoryView) StoredValue(field string, ord uint32) (string, error) {
	if ord >= v.maxDoc {
		return "", fmt.Errorf("ordinal %d out of range", ord)
	}
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	value, _ := v.m.docs[ord].Get(field)
	return value, nil
}

func (v *memoryView) Deleted() *roaring.Bitmap { return v.deleted }
