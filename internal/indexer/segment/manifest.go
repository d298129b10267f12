package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/storage"
)

// ManifestName is the commit point of an index directory. Segment files
// not listed in it are leftovers of an interrupted operation.
const ManifestName = "segments.gen"

const (
	manifestMagic   uint32 = 0x53504d46
	manifestVersion uint32 = 1
)

const (
	segmentExt = ".spdx"
	deletesExt = ".del"
)

// SegmentMeta is one committed segment. DelCount is the number of
// tombstones persisted in its .del file.
type SegmentMeta struct {
	Name     string `msgpack:"name"`
	DocCount int    `msgpack:"docs"`
	DelCount int    `msgpack:"dels"`
}

// Manifest lists the committed segments in order.
type Manifest struct {
	Generation  uint64        `msgpack:"gen"`
	NextSeq     uint64        `msgpack:"seq"`
	NextDocID   uint64        `msgpack:"next_id"`
	CommittedAt int64         `msgpack:"at"`
	Segments    []SegmentMeta `msgpack:"segments"`
}

// Clone returns a deep copy that can be edited and committed.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Segments = append([]SegmentMeta(nil), m.Segments...)
	return &c
}

// Names lists the committed segment names.
func (m *Manifest) Names() []string {
	names := make([]string, len(m.Segments))
	for i, s := range m.Segments {
		names[i] = s.Name
	}
	return names
}

// SegmentName returns the file name for sequence number seq.
func SegmentName(seq uint64) string {
	return fmt.Sprintf("seg_%06d%s", seq, segmentExt)
}

// DeletesName returns the tombstone file that belongs to a segment.
func DeletesName(segment string) string {
	return strings.TrimSuffix(segment, segmentExt) + deletesExt
}

// IsIndexFile reports whether name is a file this package manages.
func IsIndexFile(name string) bool {
	return name == ManifestName ||
		strings.HasSuffix(name, segmentExt) ||
		strings.HasSuffix(name, deletesExt) ||
		strings.HasSuffix(name, ".tmp")
}

// ReadManifest loads the manifest of dir. A directory without one yields an
// empty manifest at generation 0.
func ReadManifest(dir storage.Directory) (*Manifest, error) {
	ok, err := dir.Exists(ManifestName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Manifest{NextSeq: 1, NextDocID: 1}, nil
	}
	data, err := storage.ReadFile(dir, ManifestName)
	if err != nil {
		return nil, err
	}
	if len(data) < 12 {
		return nil, errors.New("manifest truncated")
	}
	if binary.LittleEndian.Uint32(data[0:4]) != manifestMagic {
		return nil, errors.New("manifest has bad magic bytes")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != manifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", v)
	}
	body := data[12:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(data[8:12]) {
		return nil, errors.New("manifest checksum mismatch")
	}
	var m Manifest
	if err := msgpack.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// WriteManifest commits m to dir atomically.
func WriteManifest(dir storage.Directory, m *Manifest) error {
	m.CommittedAt = time.Now().UnixMilli()
	body, err := msgpack.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	data := make([]byte, 12, 12+len(body))
	binary.LittleEndian.PutUint32(data[0:4], manifestMagic)
	binary.LittleEndian.PutUint32(data[4:8], manifestVersion)
	binary.LittleEndian.PutUint32(data[8:12], crc32.ChecksumIEEE(body))
	data = append(data, body...)
	return storage.WriteFile(dir, ManifestName, data)
}

// WriteDeletes persists the tombstones of segment.
func WriteDeletes(dir storage.Directory, segment string, deleted *roaring.Bitmap) error {
	data, err := deleted.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding tombstones of %s: %w", segment, err)
	}
	return storage.WriteFile(dir, DeletesName(segment), data)
}

// ReadDeletes loads the tombstones of segment. A missing file means none.
func ReadDeletes(dir storage.Directory, segment string) (*roaring.Bitmap, error) {
	name := DeletesName(segment)
	ok, err := dir.Exists(name)
	if err != nil {
		return nil, err
	}
	bm := roaring.New()
	if !ok {
		return bm, nil
	}
	data, err := storage.ReadFile(dir, name)
	if err != nil {
		return nil, err
	}
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("parsing tombstones of %s: %w", segment, err)
	}
	return bm, nil
}
