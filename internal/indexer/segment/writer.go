package segment

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/storage"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
)

// Layout: header | postings | stored docs | dictionary | meta | footer.
// The header locates postings and stored documents; the footer locates the
// dictionary and meta and carries a CRC32 over both.
type SegmentHeader struct {
	Magic        uint32
	Version      uint32
	TermCount    uint32
	DocCount     uint32
	CreatedAt    int64
	PostOffset   int64
	PostSize     int64
	StoredOffset int64
	StoredSize   int64
}

type segmentFooter struct {
	Checksum   uint32
	DocCount   uint32
	DictOffset int64
	DictSize   int64
	MetaSize   int64
}

// DictEntry locates one (field, term) postings list relative to the start
// of the postings block.
type DictEntry struct {
	Field      string `msgpack:"f"`
	Term       string `msgpack:"t"`
	PostOffset int64  `msgpack:"o"`
	PostLen    int    `msgpack:"l"`
	DocFreq    int    `msgpack:"d"`
}

type segmentMeta struct {
	IDs        []uint64                    `msgpack:"ids"`
	DocOffsets []int64                     `msgpack:"docs"`
	Lengths    map[string][]uint32         `msgpack:"len"`
	Stats      map[string]index.FieldStats `msgpack:"stats"`
}

// Info describes a written segment.
type Info struct {
	Name      string
	DocCount  int
	TermCount int
	Size      int64
}

// Writer encodes SegmentData into .spdx files inside a Directory.
type Writer struct {
	dir storage.Directory
}

func NewWriter(dir storage.Directory) *Writer {
	return &Writer{dir: dir}
}

// Write creates segment name from data. The file is written under a
// temporary name and renamed on success, so name either does not exist or
// is complete.
func (w *Writer) Write(name string, data *index.SegmentData) (Info, error) {
	if len(data.IDs) == 0 {
		return Info{}, fmt.Errorf("cannot write empty segment")
	}

	var postings bytes.Buffer
	dict := make([]DictEntry, 0, len(data.Terms))
	for _, entry := range data.Terms {
		encoded, err := msgpack.Marshal(entry.Postings)
		if err != nil {
			return Info{}, fmt.Errorf("encoding postings for %s:%s: %w", entry.Field, entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Field:      entry.Field,
			Term:       entry.Term,
			PostOffset: int64(postings.Len()),
			PostLen:    len(encoded),
			DocFreq:    len(entry.Postings),
		})
		postings.Write(encoded)
	}

	var stored bytes.Buffer
	meta := segmentMeta{
		IDs:        make([]uint64, len(data.IDs)),
		DocOffsets: make([]int64, 0, len(data.Docs)+1),
		Lengths:    data.Lengths,
		Stats:      data.Stats(),
	}
	for i, id := range data.IDs {
		meta.IDs[i] = uint64(id)
	}
	for i, doc := range data.Docs {
		meta.DocOffsets = append(meta.DocOffsets, int64(stored.Len()))
		encoded, err := msgpack.Marshal(doc)
		if err != nil {
			return Info{}, fmt.Errorf("encoding stored document %d: %w", i, err)
		}
		stored.Write(encoded)
	}
	meta.DocOffsets = append(meta.DocOffsets, int64(stored.Len()))

	dictData, err := msgpack.Marshal(dict)
	if err != nil {
		return Info{}, fmt.Errorf("encoding dictionary: %w", err)
	}
	metaData, err := msgpack.Marshal(meta)
	if err != nil {
		return Info{}, fmt.Errorf("encoding meta: %w", err)
	}

	header := SegmentHeader{
		Magic:        MagicBytes,
		Version:      FormatVersion,
		TermCount:    uint32(len(dict)),
		DocCount:     uint32(len(data.IDs)),
		CreatedAt:    time.Now().Unix(),
		PostOffset:   int64(HeaderSize),
		PostSize:     int64(postings.Len()),
		StoredOffset: int64(HeaderSize + postings.Len()),
		StoredSize:   int64(stored.Len()),
	}
	footer := segmentFooter{
		Checksum:   checksum(dictData, metaData),
		DocCount:   header.DocCount,
		DictOffset: header.StoredOffset + header.StoredSize,
		DictSize:   int64(len(dictData)),
		MetaSize:   int64(len(metaData)),
	}

	tmp := name + ".tmp"
	f, err := w.dir.Create(tmp)
	if err != nil {
		return Info{}, err
	}
	fail := func(op string, err error) (Info, error) {
		f.Close()
		_ = w.dir.Remove(tmp)
		return Info{}, fmt.Errorf("%s %s: %w", op, name, err)
	}

	bw := bufio.NewWriterSize(f, 64*1024)
	for _, block := range [][]byte{encodeHeader(header), postings.Bytes(), stored.Bytes(), dictData, metaData, encodeFooter(footer)} {
		if _, err := bw.Write(block); err != nil {
			return fail("writing", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fail("writing", err)
	}
	if err := f.Sync(); err != nil {
		return fail("syncing", err)
	}
	if err := f.Close(); err != nil {
		_ = w.dir.Remove(tmp)
		return Info{}, fmt.Errorf("closing %s: %w", name, err)
	}
	if err := w.dir.Rename(tmp, name); err != nil {
		_ = w.dir.Remove(tmp)
		return Info{}, err
	}

	size := int64(HeaderSize) + header.PostSize + header.StoredSize + footer.DictSize + footer.MetaSize + int64(FooterSize)
	return Info{Name: name, DocCount: len(data.IDs), TermCount: len(dict), Size: size}, nil
}

func checksum(blocks ...[]byte) uint32 {
	h := crc32.NewIEEE()
	for _, b := range blocks {
		h.Write(b)
	}
	return h.Sum32()
}

func encodeHeader(h SegmentHeader) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.StoredOffset))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.StoredSize))
	return b
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:        binary.LittleEndian.Uint32(b[0:4]),
		Version:      binary.LittleEndian.Uint32(b[4:8]),
		TermCount:    binary.LittleEndian.Uint32(b[8:12]),
		DocCount:     binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(b[16:24])),
		PostOffset:   int64(binary.LittleEndian.Uint64(b[24:32])),
		PostSize:     int64(binary.LittleEndian.Uint64(b[32:40])),
		StoredOffset: int64(binary.LittleEndian.Uint64(b[40:48])),
		StoredSize:   int64(binary.LittleEndian.Uint64(b[48:56])),
	}
}

func encodeFooter(f segmentFooter) []byte {
	b := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(b[0:4], f.Checksum)
	binary.LittleEndian.PutUint32(b[4:8], f.DocCount)
	binary.LittleEndian.PutUint64(b[8:16], uint64(f.DictOffset))
	binary.LittleEndian.PutUint64(b[16:24], uint64(f.DictSize))
	binary.LittleEndian.PutUint64(b[24:32], uint64(f.MetaSize))
	return b
}

func decodeFooter(b []byte) segmentFooter {
	return segmentFooter{
		Checksum:   binary.LittleEndian.Uint32(b[0:4]),
		DocCount:   binary.LittleEndian.Uint32(b[4:8]),
		DictOffset: int64(binary.LittleEndian.Uint64(b[8:16])),
		DictSize:   int64(binary.LittleEndian.Uint64(b[16:24])),
		MetaSize:   int64(binary.LittleEndian.Uint64(b[24:32])),
	}
}
