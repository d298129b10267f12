// Package index holds the in-memory segment, the posting types shared with
// on-disk segments, and the Segment read interface that search runs
// against.
package index

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
)

// Offset is a byte range in the original field text.
type Offset struct {
	Start int `msgpack:"s"`
	End   int `msgpack:"e"`
}

// Posting records the occurrences of one term in one document. Doc is the
// segment-local ordinal.
type Posting struct {
	Doc       uint32   `msgpack:"d"`
	Frequency int      `msgpack:"f"`
	Positions []int    `msgpack:"p"`
	Offsets   []Offset `msgpack:"o"`
}

// PostingList is ordered by ascending Doc.
type PostingList []Posting

// TermEntry is a term and its postings within one field.
type TermEntry struct {
	Field    string
	Term     string
	Postings PostingList
}

// FieldStats aggregates token counts for one field across a segment.
type FieldStats struct {
	// DocCount is the number of documents with at least one token.
	DocCount int `msgpack:"c"`
	// SumLength is the total token count.
	SumLength int64 `msgpack:"l"`
}

// Add accumulates o into s.
func (s FieldStats) Add(o FieldStats) FieldStats {
	return FieldStats{DocCount: s.DocCount + o.DocCount, SumLength: s.SumLength + o.SumLength}
}

// Segment is a read-only view of a set of documents with local ordinals
// 0..MaxDoc()-1. Implementations must be safe for concurrent readers and
// must not change what they return for the lifetime of the view.
type Segment interface {
	Name() string
	MaxDoc() uint32
	DocID(ord uint32) document.DocID
	Ordinal(id document.DocID) (uint32, bool)

	Fields() []string
	// Terms returns the field's terms in ascending order.
	Terms(field string) ([]string, error)
	Postings(field, term string) (PostingList, error)
	FieldStats(field string) FieldStats
	FieldLength(field string, ord uint32) int

	Document(ord uint32) (document.Document, error)
	StoredValue(field string, ord uint32) (string, error)

	// Deleted returns the tombstoned ordinals. The bitmap is never mutated
	// after the view is created.
	Deleted() *roaring.Bitmap
}

// LiveDocs is MaxDoc minus tombstones.
func LiveDocs(s Segment) int {
	return int(s.MaxDoc()) - int(s.Deleted().GetCardinality())
}

// SegmentData is a fully materialized segment, ready to be encoded.
type SegmentData struct {
	IDs     []document.DocID
	Docs    []document.Document
	Lengths map[string][]uint32
	Terms   []TermEntry
}

// Stats computes per-field statistics from Lengths.
func (d *SegmentData) Stats() map[string]FieldStats {
	stats := make(map[string]FieldStats, len(d.Lengths))
	for field, lengths := range d.Lengths {
		var fs FieldStats
		for _, l := range lengths {
			if l > 0 {
				fs.DocCount++
				fs.SumLength += int64(l)
			}
		}
		stats[field] = fs
	}
	return stats
}
