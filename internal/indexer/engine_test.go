package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/storage"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
)

// faultyDirectory fails renames onto names matching failRename.
type faultyDirectory struct {
	storage.Directory
	failRename atomic.Pointer[string]
}

func (d *faultyDirectory) Rename(oldName, newName string) error {
	if p := d.failRename.Load(); p != nil && strings.HasSuffix(newName, *p) {
		return errors.New("injected rename failure")
	}
	return d.Directory.Rename(oldName, newName)
}

func (d *faultyDirectory) failOn(suffix string) { d.failRename.Store(&suffix) }
func (d *faultyDirectory) heal()                { d.failRename.Store(nil) }

func testConfig() config.IndexConfig {
	return config.IndexConfig{
		InMemory:    true,
		MergeFactor: 100,
		Retry:       config.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func openEngine(t *testing.T, disk storage.Directory, mutate ...func(*config.IndexConfig)) *Engine {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := Open(Options{Config: cfg, Disk: disk})
	require.NoError(t, err)
	return e
}

func hero(name, sal string) document.Document {
	return document.New(document.Text("userName", name), document.Text("sal", sal))
}

func addHeroes(t *testing.T, e *Engine, n int) []document.DocID {
	t.Helper()
	ids := make([]document.DocID, 0, n)
	for i := range n {
		id, err := e.Add(context.Background(), hero(fmt.Sprintf("hero%d", i), "有钱男子汉"))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func docCount(t *testing.T, e *Engine) int {
	t.Helper()
	snap, err := e.Acquire()
	require.NoError(t, err)
	defer snap.Release()
	return snap.NumDocs()
}

func TestAddVisibleToLaterSnapshots(t *testing.T) {
	e := openEngine(t, nil)
	defer e.Close()

	before, err := e.Acquire()
	require.NoError(t, err)
	defer before.Release()

	id, err := e.Add(context.Background(), hero("钟无艳", "有钱男子汉，无钱汉子难"))
	require.NoError(t, err)
	assert.Equal(t, document.DocID(1), id)

	assert.Equal(t, 0, before.NumDocs(), "earlier snapshot does not see later adds")
	assert.Equal(t, 1, docCount(t, e))

	doc, err := e.Get(context.Background(), id)
	require.NoError(t, err)
	v, _ := doc.Get("userName")
	assert.Equal(t, "钟无艳", v)
}

func TestAddRejectsInvalidDocument(t *testing.T) {
	e := openEngine(t, nil)
	defer e.Close()

	_, err := e.Add(context.Background(), document.Document{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Add(ctx, hero("a", "b"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFlushMovesDocumentsToDisk(t *testing.T) {
	disk := storage.NewMemoryDirectory()
	e := openEngine(t, disk)
	defer e.Close()

	ids := addHeroes(t, e, 5)
	require.NoError(t, e.Flush(context.Background()))

	st := e.Stats()
	require.Len(t, st.Segments, 1)
	assert.Equal(t, 5, st.DiskDocs)
	assert.Zero(t, st.BufferedDocs)
	assert.Equal(t, uint64(1), st.Generation)

	for _, id := range ids {
		_, err := e.Get(context.Background(), id)
		assert.NoError(t, err)
	}
	ok, err := disk.Exists(segment.ManifestName)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, e.Flush(context.Background()), "flushing an empty buffer is a no-op")
	assert.Len(t, e.Stats().Segments, 1)
}

func TestFlushFailureKeepsDocumentsSearchable(t *testing.T) {
	disk := &faultyDirectory{Directory: storage.NewMemoryDirectory()}
	e := openEngine(t, disk)
	defer e.Close()

	ids := addHeroes(t, e, 3)
	disk.failOn(".spdx")
	err := e.Flush(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIndexWrite)

	assert.Equal(t, 3, docCount(t, e))
	assert.Empty(t, e.Stats().Segments)
	names, err := disk.List()
	require.NoError(t, err)
	assert.Empty(t, names, "no partial segment is left behind")

	disk.heal()
	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, 3, e.Stats().DiskDocs)
	for _, id := range ids {
		_, err := e.Get(context.Background(), id)
		assert.NoError(t, err)
	}
}

func TestManifestFailureRollsBackFlush(t *testing.T) {
	disk := &faultyDirectory{Directory: storage.NewMemoryDirectory()}
	e := openEngine(t, disk)
	defer e.Close()

	addHeroes(t, e, 2)
	disk.failOn(segment.ManifestName)
	require.Error(t, e.Flush(context.Background()))
	assert.Equal(t, 2, docCount(t, e))

	names, err := disk.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	disk.heal()
	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, []string{"seg_000001.spdx"}, segmentNames(e))
}

func segmentNames(e *Engine) []string {
	var names []string
	for _, s := range e.Stats().Segments {
		names = append(names, s.Name)
	}
	return names
}

func TestMergePreservesDocuments(t *testing.T) {
	disk := storage.NewMemoryDirectory()
	e := openEngine(t, disk)
	defer e.Close()

	var ids []document.DocID
	for range 3 {
		ids = append(ids, addHeroes(t, e, 4)...)
		require.NoError(t, e.Flush(context.Background()))
	}
	require.Len(t, e.Stats().Segments, 3)

	old, err := e.Acquire()
	require.NoError(t, err)

	info, err := e.Merge(context.Background(), segmentNames(e))
	require.NoError(t, err)
	assert.Equal(t, 12, info.DocCount)
	assert.Equal(t, []string{info.Name}, segmentNames(e))

	for _, id := range ids {
		_, err := e.Get(context.Background(), id)
		assert.NoError(t, err)
	}

	// The old snapshot still reads its segments until released.
	assert.Equal(t, 12, old.NumDocs())
	_, err = old.Get(ids[0])
	require.NoError(t, err)
	exists, err := disk.Exists("seg_000001.spdx")
	require.NoError(t, err)
	assert.True(t, exists)

	old.Release()
	exists, err = disk.Exists("seg_000001.spdx")
	require.NoError(t, err)
	assert.False(t, exists, "retired segment removed after last release")
}

func TestMergeFailureLeavesIndexUnchanged(t *testing.T) {
	disk := &faultyDirectory{Directory: storage.NewMemoryDirectory()}
	e := openEngine(t, disk)
	defer e.Close()

	for range 2 {
		addHeroes(t, e, 2)
		require.NoError(t, e.Flush(context.Background()))
	}
	before := segmentNames(e)

	disk.failOn(segment.ManifestName)
	_, err := e.Merge(context.Background(), before)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIndexWrite)
	assert.Equal(t, before, segmentNames(e))
	assert.Equal(t, 4, docCount(t, e))

	names, err := disk.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, append([]string{segment.ManifestName}, before...), names)

	disk.heal()
	_, err = e.Merge(context.Background(), before)
	require.NoError(t, err)
	assert.Len(t, segmentNames(e), 1)
}

func TestMergeRejectsUnknownSegments(t *testing.T) {
	e := openEngine(t, nil)
	defer e.Close()

	_, err := e.Merge(context.Background(), []string{"seg_999999.spdx"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = e.Merge(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestMergePolicyRunsAfterFlush(t *testing.T) {
	e := openEngine(t, nil, func(c *config.IndexConfig) { c.MergeFactor = 3 })
	defer e.Close()

	for i := range 3 {
		addHeroes(t, e, 1)
		require.NoError(t, e.Flush(context.Background()))
		if i < 2 {
			assert.Len(t, e.Stats().Segments, i+1)
		}
	}
	st := e.Stats()
	assert.Len(t, st.Segments, 1, "three level-0 segments merge into one")
	assert.Equal(t, 3, st.LiveDocs)
}

func TestFlushReportsMergeFailure(t *testing.T) {
	disk := &faultyDirectory{Directory: storage.NewMemoryDirectory()}
	e := openEngine(t, disk, func(c *config.IndexConfig) { c.MergeFactor = 3 })
	defer e.Close()

	for range 2 {
		addHeroes(t, e, 1)
		require.NoError(t, e.Flush(context.Background()))
	}
	disk.failOn(segment.SegmentName(4))
	addHeroes(t, e, 1)

	err := e.Flush(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMergeFailed)
	st := e.Stats()
	assert.Len(t, st.Segments, 3, "the flushed segment is committed, the merge is not")
	assert.Equal(t, 3, st.LiveDocs)

	disk.heal()
	require.NoError(t, e.MaybeMerge(context.Background()))
	assert.Len(t, e.Stats().Segments, 1)
}

func TestZeroConfigMergeFactorMatchesConfigDefault(t *testing.T) {
	e, err := Open(Options{Config: config.IndexConfig{InMemory: true}})
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, config.Default().Index.MergeFactor, e.cfg.MergeFactor)
	assert.Equal(t, 3, e.cfg.MergeFactor)
}

func TestMergeLevel(t *testing.T) {
	tests := []struct {
		live, factor, want int
	}{
		{0, 10, 0},
		{1, 10, 0},
		{9, 10, 0},
		{10, 10, 1},
		{999, 10, 2},
		{1000, 10, 3},
		{8, 2, 3},
		{26, 3, 2},
		{27, 3, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mergeLevel(tt.live, tt.factor), "live=%d factor=%d", tt.live, tt.factor)
	}
}

func TestDelete(t *testing.T) {
	disk := storage.NewMemoryDirectory()
	e := openEngine(t, disk)

	ids := addHeroes(t, e, 4)
	require.NoError(t, e.Flush(context.Background()))
	memID, err := e.Add(context.Background(), hero("关羽", "把眼光移开"))
	require.NoError(t, err)

	snap, err := e.Acquire()
	require.NoError(t, err)

	require.NoError(t, e.Delete(context.Background(), ids[1]))
	require.NoError(t, e.Delete(context.Background(), memID))
	assert.ErrorIs(t, e.Delete(context.Background(), ids[1]), apperrors.ErrDocumentNotFound)
	assert.ErrorIs(t, e.Delete(context.Background(), 999), apperrors.ErrDocumentNotFound)

	_, err = e.Get(context.Background(), ids[1])
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	assert.Equal(t, 3, docCount(t, e))

	assert.Equal(t, 5, snap.NumDocs(), "deletes after acquire are not visible")
	snap.Release()

	require.NoError(t, e.Close())

	reopened := openEngine(t, disk)
	defer reopened.Close()
	_, err = reopened.Get(context.Background(), ids[1])
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound, "tombstones survive reopen")
	assert.Equal(t, 3, docCount(t, reopened))
}

func TestReopenRecoversCommittedState(t *testing.T) {
	disk := storage.NewMemoryDirectory()
	e := openEngine(t, disk)
	ids := addHeroes(t, e, 3)
	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.Delete(context.Background(), ids[0]), apperrors.ErrClosed)
	_, err := e.Add(context.Background(), hero("x", "y"))
	assert.ErrorIs(t, err, apperrors.ErrClosed)
	_, err = e.Acquire()
	assert.ErrorIs(t, err, apperrors.ErrClosed)

	require.NoError(t, storage.WriteFile(disk, "seg_000042.spdx", []byte("leftover")))
	require.NoError(t, storage.WriteFile(disk, "notes.txt", []byte("keep")))

	reopened := openEngine(t, disk)
	defer reopened.Close()
	assert.Equal(t, 3, docCount(t, reopened))

	id, err := reopened.Add(context.Background(), hero("新", "文档"))
	require.NoError(t, err)
	assert.Greater(t, id, ids[2], "ids are never reused")

	exists, err := disk.Exists("seg_000042.spdx")
	require.NoError(t, err)
	assert.False(t, exists, "uncommitted segment removed on open")
	exists, err = disk.Exists("notes.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAddFailsWhenMemoryIsFull(t *testing.T) {
	e := openEngine(t, nil, func(c *config.IndexConfig) { c.RAMBufferSize = 256 })
	defer e.Close()

	var err error
	for range 100 {
		if _, err = e.Add(context.Background(), hero("鲁班七号", "不得不承认，有时候肌肉比头脑管用")); err != nil {
			break
		}
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIndexWrite)

	require.NoError(t, e.Flush(context.Background()))
	_, err = e.Add(context.Background(), hero("鲁班七号", "肌肉"))
	assert.NoError(t, err, "a flush frees the memory tier")
}

func TestFlushLoopDrainsOnThreshold(t *testing.T) {
	e := openEngine(t, nil, func(c *config.IndexConfig) { c.MaxBufferedDocs = 2 })
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.StartFlushLoop(ctx)

	addHeroes(t, e, 2)
	require.Eventually(t, func() bool { return e.Stats().DiskDocs == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestConcurrentAddSearchAndFlush(t *testing.T) {
	e := openEngine(t, nil, func(c *config.IndexConfig) { c.MergeFactor = 3 })
	defer e.Close()

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				_, err := e.Add(context.Background(), hero(fmt.Sprintf("w%d-%d", w, i), "有钱男子汉"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 10 {
			assert.NoError(t, e.Flush(context.Background()))
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		last := 0
		for range 50 {
			snap, err := e.Acquire()
			if !assert.NoError(t, err) {
				return
			}
			n := snap.NumDocs()
			assert.GreaterOrEqual(t, n, last, "visible document count never shrinks")
			last = n
			snap.Release()
		}
	}()
	wg.Wait()

	require.NoError(t, e.ForceMerge(context.Background()))
	st := e.Stats()
	assert.Len(t, st.Segments, 1)
	assert.Equal(t, writers*perWriter, st.LiveDocs)
}
