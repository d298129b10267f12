package segment

import (
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/analysis"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/storage"
)

func buildData(t *testing.T) *index.SegmentData {
	t.Helper()
	m := index.NewMemoryIndex("mem", analysis.NewStandard())
	rows := []struct {
		id   document.DocID
		name string
		sal  string
	}{
		{1, "鲁班七号", "不得不承认，有时候肌肉比头脑管用"},
		{2, "钟无艳", "有钱男子汉，无钱汉子难"},
		{5, "关羽", "把眼光移开"},
	}
	for _, r := range rows {
		_, err := m.AddDocument(r.id, document.New(
			document.Text("userName", r.name),
			document.Text("sal", r.sal),
		))
		require.NoError(t, err)
	}
	data, err := index.Merge(context.Background(), []index.Segment{m.View()})
	require.NoError(t, err)
	return data
}

func TestWriteAndOpen(t *testing.T) {
	fsDir, err := storage.NewFSDirectory(t.TempDir())
	require.NoError(t, err)
	for name, dir := range map[string]storage.Directory{"fs": fsDir, "memory": storage.NewMemoryDirectory()} {
		t.Run(name, func(t *testing.T) {
			data := buildData(t)
			info, err := NewWriter(dir).Write(SegmentName(1), data)
			require.NoError(t, err)
			assert.Equal(t, 3, info.DocCount)

			size, err := dir.Size(info.Name)
			require.NoError(t, err)
			assert.Equal(t, info.Size, size)

			r, err := Open(dir, info.Name)
			require.NoError(t, err)
			defer r.Close()

			assert.Equal(t, uint32(3), r.MaxDoc())
			assert.Equal(t, []string{"sal", "userName"}, r.Fields())

			ord, ok := r.Ordinal(5)
			require.True(t, ok)
			assert.Equal(t, uint32(2), ord)
			_, ok = r.Ordinal(3)
			assert.False(t, ok)

			list, err := r.Postings("userName", "钟")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, uint32(1), list[0].Doc)
			assert.Equal(t, []int{0}, list[0].Positions)

			missing, err := r.Postings("userName", "absent")
			require.NoError(t, err)
			assert.Empty(t, missing)

			assert.Equal(t, 1, r.DocFreq("sal", "钱"), "two occurrences in one document count once")
			assert.Equal(t, 4, r.FieldLength("userName", 0))
			assert.Equal(t, data.Stats()["sal"], r.FieldStats("sal"))

			doc, err := r.Document(1)
			require.NoError(t, err)
			v, _ := doc.Get("userName")
			assert.Equal(t, "钟无艳", v)

			sv, err := r.StoredValue("userName", 2)
			require.NoError(t, err)
			assert.Equal(t, "关羽", sv)

			names, err := dir.List()
			require.NoError(t, err)
			assert.Equal(t, []string{SegmentName(1)}, names)
		})
	}
}

func TestOpenRejectsCorruption(t *testing.T) {
	dir := storage.NewMemoryDirectory()
	info, err := NewWriter(dir).Write(SegmentName(2), buildData(t))
	require.NoError(t, err)

	data, err := storage.ReadFile(dir, info.Name)
	require.NoError(t, err)
	data[len(data)-FooterSize-1] ^= 0xff
	require.NoError(t, storage.WriteFile(dir, info.Name, data))

	_, err = Open(dir, info.Name)
	assert.ErrorContains(t, err, "checksum")

	require.NoError(t, storage.WriteFile(dir, "short.spdx", []byte("tiny")))
	_, err = Open(dir, "short.spdx")
	assert.Error(t, err)
}

func TestWriteRejectsEmpty(t *testing.T) {
	_, err := NewWriter(storage.NewMemoryDirectory()).Write(SegmentName(1), &index.SegmentData{})
	assert.Error(t, err)
}

func TestWithDeletesImplementsSegment(t *testing.T) {
	dir := storage.NewMemoryDirectory()
	info, err := NewWriter(dir).Write(SegmentName(3), buildData(t))
	require.NoError(t, err)
	r, err := Open(dir, info.Name)
	require.NoError(t, err)
	defer r.Close()

	del := roaring.BitmapOf(0)
	seg := r.WithDeletes(del)
	assert.Equal(t, 2, index.LiveDocs(seg))

	merged, err := index.Merge(context.Background(), []index.Segment{seg})
	require.NoError(t, err)
	assert.Equal(t, []document.DocID{2, 5}, merged.IDs)
}

func TestManifestRoundTrip(t *testing.T) {
	dir := storage.NewMemoryDirectory()

	empty, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Zero(t, empty.Generation)
	assert.Equal(t, uint64(1), empty.NextSeq)

	m := empty.Clone()
	m.Generation = 4
	m.NextSeq = 3
	m.NextDocID = 21
	m.Segments = []SegmentMeta{{Name: SegmentName(1), DocCount: 20, DelCount: 1}}
	require.NoError(t, WriteManifest(dir, m))

	got, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, m.Segments, got.Segments)
	assert.Equal(t, uint64(21), got.NextDocID)
	assert.Equal(t, []string{"seg_000001.spdx"}, got.Names())
	assert.Empty(t, empty.Segments, "clone does not alias")
}

func TestManifestChecksum(t *testing.T) {
	dir := storage.NewMemoryDirectory()
	require.NoError(t, WriteManifest(dir, &Manifest{Generation: 1}))
	data, err := storage.ReadFile(dir, ManifestName)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01
	require.NoError(t, storage.WriteFile(dir, ManifestName, data))

	_, err = ReadManifest(dir)
	assert.Error(t, err)
}

func TestDeletesRoundTrip(t *testing.T) {
	dir := storage.NewMemoryDirectory()
	seg := SegmentName(7)

	none, err := ReadDeletes(dir, seg)
	require.NoError(t, err)
	assert.True(t, none.IsEmpty())

	require.NoError(t, WriteDeletes(dir, seg, roaring.BitmapOf(1, 5, 9)))
	got, err := ReadDeletes(dir, seg)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 5, 9}, got.ToArray())
	assert.Equal(t, "seg_000007.del", DeletesName(seg))
	assert.True(t, IsIndexFile("seg_000007.del"))
	assert.False(t, IsIndexFile("notes.txt"))
}
