package index

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

const cancelCheckInterval = 256

// Merge materializes the live documents of segs into one SegmentData.
// Tombstoned documents are dropped and ordinals renumbered; DocIDs are kept.
// Inputs are ordered by their smallest DocID so the output stays sorted.
func Merge(ctx context.Context, segs []Segment) (*SegmentData, error) {
	ordered := slices.Clone(segs)
	slices.SortStableFunc(ordered, func(a, b Segment) int {
		return compareFirstID(a, b)
	})

	data := &SegmentData{Lengths: make(map[string][]uint32)}
	remaps := make([][]int64, len(ordered))
	for si, s := range ordered {
		deleted := s.Deleted()
		remap := make([]int64, s.MaxDoc())
		for ord := uint32(0); ord < s.MaxDoc(); ord++ {
			if deleted.Contains(ord) {
				remap[ord] = -1
				continue
			}
			doc, err := s.Document(ord)
			if err != nil {
				return nil, fmt.Errorf("reading document %d of %s: %w", ord, s.Name(), err)
			}
			remap[ord] = int64(len(data.IDs))
			data.IDs = append(data.IDs, s.DocID(ord))
			data.Docs = append(data.Docs, doc)
		}
		remaps[si] = remap
	}

	fields := unionFields(ordered)
	for _, field := range fields {
		lengths := make([]uint32, len(data.IDs))
		for si, s := range ordered {
			for ord, newOrd := range remaps[si] {
				if newOrd >= 0 {
					lengths[newOrd] = uint32(s.FieldLength(field, uint32(ord)))
				}
			}
		}
		data.Lengths[field] = lengths
	}

	for _, field := range fields {
		terms, err := unionTerms(ordered, field)
		if err != nil {
			return nil, err
		}
		for i, term := range terms {
			if i%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			var merged PostingList
			for si, s := range ordered {
				list, err := s.Postings(field, term)
				if err != nil {
					return nil, fmt.Errorf("reading postings %s:%s of %s: %w", field, term, s.Name(), err)
				}
				for _, p := range list {
					newOrd := remaps[si][p.Doc]
					if newOrd < 0 {
						continue
					}
					p.Doc = uint32(newOrd)
					merged = append(merged, p)
				}
			}
			if len(merged) > 0 {
				data.Terms = append(data.Terms, TermEntry{Field: field, Term: term, Postings: merged})
			}
		}
	}
	return data, nil
}

func compareFirstID(a, b Segment) int {
	switch {
	case a.MaxDoc() == 0 && b.MaxDoc() == 0:
		return 0
	case a.MaxDoc() == 0:
		return 1
	case b.MaxDoc() == 0:
		return -1
	}
	return cmp.Compare(a.DocID(0), b.DocID(0))
}

func unionFields(segs []Segment) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range segs {
		for _, f := range s.Fields() {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				out = append(out, f)
			}
		}
	}
	slices.Sort(out)
	return out
}

func unionTerms(segs []Segment, field string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range segs {
		terms, err := s.Terms(field)
		if err != nil {
			return nil, err
		}
		for _, t := range terms {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				out = append(out, t)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}
