package indexer

import (
	"fmt"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
)

// segmentRef owns an open disk segment. The index holds one reference while
// the segment is committed; every snapshot holds another.
type segmentRef struct {
	reader  *segment.Reader
	deleted atomic.Pointer[roaring.Bitmap]
	refs    atomic.Int32
	retired atomic.Bool
	release func(*segmentRef)
}

func (r *segmentRef) incRef() { r.refs.Add(1) }

func (r *segmentRef) decRef() {
	if n := r.refs.Add(-1); n == 0 {
		r.release(r)
	} else if n < 0 {
		panic(fmt.Sprintf("segment %s released too many times", r.reader.Name()))
	}
}

// retire drops the index's reference to a segment replaced by a merge. Its
// files are removed once the last snapshot lets go.
func (r *segmentRef) retire() {
	r.retired.Store(true)
	r.decRef()
}

type view struct {
	generation uint64
	segments   []*segmentRef
	frozen     []*index.MemoryIndex
	mem        *index.MemoryIndex
}

// Snapshot is a consistent point-in-time view of every segment. It must be
// released; until then the disk segments it references stay open.
type Snapshot struct {
	generation uint64
	version    uint64
	refs       []*segmentRef
	segments   []index.Segment
	released   atomic.Bool
}

// Acquire pins the current segments. Documents added before the call are
// visible, later ones are not.
func (e *Engine) Acquire() (*Snapshot, error) {
	// Read the version before the views so a cache entry keyed by it is
	// never older than the key claims.
	version := e.version.Load()

	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	v := e.current
	if v == nil {
		return nil, apperrors.ErrClosed
	}
	s := &Snapshot{
		generation: v.generation,
		version:    version,
		refs:       make([]*segmentRef, 0, len(v.segments)),
		segments:   make([]index.Segment, 0, len(v.segments)+len(v.frozen)+1),
	}
	for _, ref := range v.segments {
		ref.incRef()
		s.refs = append(s.refs, ref)
		s.segments = append(s.segments, ref.reader.WithDeletes(ref.deleted.Load()))
	}
	for _, f := range v.frozen {
		s.segments = append(s.segments, f.View())
	}
	s.segments = append(s.segments, v.mem.View())
	return s, nil
}

// Segments lists disk segments in commit order followed by memory segments.
func (s *Snapshot) Segments() []index.Segment { return s.segments }

// Generation is the manifest generation the snapshot was taken at.
func (s *Snapshot) Generation() uint64 { return s.generation }

// Version changes whenever the visible contents of the index change.
func (s *Snapshot) Version() uint64 { return s.version }

// NumDocs counts live documents.
func (s *Snapshot) NumDocs() int {
	n := 0
	for _, seg := range s.segments {
		n += index.LiveDocs(seg)
	}
	return n
}

func (s *Snapshot) Get(id document.DocID) (document.Document, error) {
	for _, seg := range s.segments {
		ord, ok := seg.Ordinal(id)
		if !ok {
			continue
		}
		if seg.Deleted().Contains(ord) {
			break
		}
		return seg.Document(ord)
	}
	return document.Document{}, fmt.Errorf("doc %d: %w", id, apperrors.ErrDocumentNotFound)
}

// Release drops the snapshot's references. It is safe to call twice.
func (s *Snapshot) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	for _, ref := range s.refs {
		ref.decRef()
	}
}
