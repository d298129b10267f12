package segment

import (
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/storage"
)

// Reader serves one immutable segment file. The dictionary and meta are
// held in memory; postings and stored documents are read on demand.
type Reader struct {
	name   string
	size   int64
	header SegmentHeader
	dict   []DictEntry
	meta   segmentMeta
	fields []string

	// mu serializes positional reads; in-memory files share a cursor.
	mu   sync.Mutex
	file storage.File

	colMu   sync.Mutex
	columns map[string][]string
}

// Open validates and loads the segment name from dir.
func Open(dir storage.Directory, name string) (*Reader, error) {
	size, err := dir.Size(name)
	if err != nil {
		return nil, err
	}
	if size < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("segment %s: truncated (%d bytes)", name, size)
	}
	f, err := dir.Open(name)
	if err != nil {
		return nil, err
	}
	r, err := load(f, name, size)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func load(f storage.File, name string, size int64) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("segment %s: reading header: %w", name, err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("segment %s: bad magic bytes %x", name, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("segment %s: unsupported format version %d", name, header.Version)
	}

	footerBytes := make([]byte, FooterSize)
	if _, err := f.ReadAt(footerBytes, size-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("segment %s: reading footer: %w", name, err)
	}
	footer := decodeFooter(footerBytes)
	if footer.DictOffset+footer.DictSize+footer.MetaSize+int64(FooterSize) != size {
		return nil, fmt.Errorf("segment %s: footer does not match file size", name)
	}

	tail := make([]byte, footer.DictSize+footer.MetaSize)
	if _, err := f.ReadAt(tail, footer.DictOffset); err != nil {
		return nil, fmt.Errorf("segment %s: reading dictionary: %w", name, err)
	}
	dictData, metaData := tail[:footer.DictSize], tail[footer.DictSize:]
	if checksum(dictData, metaData) != footer.Checksum {
		return nil, fmt.Errorf("segment %s: checksum mismatch", name)
	}

	r := &Reader{name: name, size: size, header: header, file: f, columns: make(map[string][]string)}
	if err := msgpack.Unmarshal(dictData, &r.dict); err != nil {
		return nil, fmt.Errorf("segment %s: parsing dictionary: %w", name, err)
	}
	if err := msgpack.Unmarshal(metaData, &r.meta); err != nil {
		return nil, fmt.Errorf("segment %s: parsing meta: %w", name, err)
	}
	if len(r.meta.IDs) != int(header.DocCount) || len(r.meta.DocOffsets) != int(header.DocCount)+1 {
		return nil, fmt.Errorf("segment %s: meta does not match header", name)
	}
	seen := make(map[string]struct{})
	for _, e := range r.dict {
		if _, ok := seen[e.Field]; !ok {
			seen[e.Field] = struct{}{}
			r.fields = append(r.fields, e.Field)
		}
	}
	for f := range r.meta.Lengths {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			r.fields = append(r.fields, f)
		}
	}
	sort.Strings(r.fields)
	return r, nil
}

func (r *Reader) readAt(b []byte, off int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.file.ReadAt(b, off)
	return err
}

func (r *Reader) Name() string { return r.name }
func (r *Reader) MaxDoc() uint32 { return r.header.DocCount }
func (r *Reader) TermCount() int { return len(r.dict) }
func (r *Reader) SizeBytes() int64 { return r.size }
func (r *Reader) Fields() []string { return r.fields }
func (r *Reader) CreatedAt() int64 { return r.header.CreatedAt }

func (r *Reader) DocID(ord uint32) document.DocID {
	return document.DocID(r.meta.IDs[ord])
}

// Ordinal finds id by binary search; ids are stored ascending.
func (r *Reader) Ordinal(id document.DocID) (uint32, bool) {
	ids := r.meta.IDs
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= uint64(id) })
	if i < len(ids) && ids[i] == uint64(id) {
		return uint32(i), true
	}
	return 0, false
}

func (r *Reader) lookup(field, term string) (DictEntry, bool) {
	i := sort.Search(len(r.dict), func(i int) bool {
		e := r.dict[i]
		if e.Field != field {
			return e.Field >= field
		}
		return e.Term >= term
	})
	if i < len(r.dict) && r.dict[i].Field == field && r.dict[i].Term == term {
		return r.dict[i], true
	}
	return DictEntry{}, false
}

func (r *Reader) Terms(field string) ([]string, error) {
	start := sort.Search(len(r.dict), func(i int) bool { return r.dict[i].Field >= field })
	var terms []string
	for i := start; i < len(r.dict) && r.dict[i].Field == field; i++ {
		terms = append(terms, r.dict[i].Term)
	}
	return terms, nil
}

// DocFreq returns the number of documents containing term, tombstones
// included.
func (r *Reader) DocFreq(field, term string) int {
	e, ok := r.lookup(field, term)
	if !ok {
		return 0
	}
	return e.DocFreq
}

func (r *Reader) Postings(field, term string) (index.PostingList, error) {
	e, ok := r.lookup(field, term)
	if !ok {
		return nil, nil
	}
	buf := make([]byte, e.PostLen)
	if err := r.readAt(buf, r.header.PostOffset+e.PostOffset); err != nil {
		return nil, fmt.Errorf("segment %s: reading postings: %w", r.name, err)
	}
	var list index.PostingList
	if err := msgpack.Unmarshal(buf, &list); err != nil {
		return nil, fmt.Errorf("segment %s: parsing postings: %w", r.name, err)
	}
	return list, nil
}

func (r *Reader) FieldStats(field string) index.FieldStats {
	return r.meta.Stats[field]
}

func (r *Reader) FieldLength(field string, ord uint32) int {
	lengths := r.meta.Lengths[field]
	if int(ord) >= len(lengths) {
		return 0
	}
	return int(lengths[ord])
}

func (r *Reader) Document(ord uint32) (document.Document, error) {
	if ord >= r.header.DocCount {
		return document.Document{}, fmt.Errorf("segment %s: ordinal %d out of range", r.name, ord)
	}
	start, end := r.meta.DocOffsets[ord], r.meta.DocOffsets[ord+1]
	buf := make([]byte, end-start)
	if err := r.readAt(buf, r.header.StoredOffset+start); err != nil {
		return document.Document{}, fmt.Errorf("segment %s: reading document: %w", r.name, err)
	}
	var doc document.Document
	if err := msgpack.Unmarshal(buf, &doc); err != nil {
		return document.Document{}, fmt.Errorf("segment %s: parsing document: %w", r.name, err)
	}
	return doc, nil
}

// StoredValue reads one stored field. The first call for a field loads the
// whole column, which sorting then reuses.
func (r *Reader) StoredValue(field string, ord uint32) (string, error) {
	if ord >= r.header.DocCount {
		return "", fmt.Errorf("segment %s: ordinal %d out of range", r.name, ord)
	}
	r.colMu.Lock()
	defer r.colMu.Unlock()
	col, ok := r.columns[field]
	if !ok {
		col = make([]string, r.header.DocCount)
		for i := uint32(0); i < r.header.DocCount; i++ {
			doc, err := r.Document(i)
			if err != nil {
				return "", err
			}
			col[i], _ = doc.Get(field)
		}
		r.columns[field] = col
	}
	return col[ord], nil
}

// WithDeletes returns a Segment view of r with the given tombstones. A nil
// bitmap means no deletions.
func (r *Reader) WithDeletes(deleted *roaring.Bitmap) index.Segment {
	if deleted == nil {
		deleted = roaring.New()
	}
	return &liveReader{Reader: r, deleted: deleted}
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

type liveReader struct {
	*Reader
	deleted *roaring.Bitmap
}

func (l *liveReader) Deleted() *roaring.Bitmap { return l.deleted }
