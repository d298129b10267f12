// Package indexer owns the two-tier index: one writable memory segment,
// sealed memory segments awaiting flush, and immutable disk segments listed
// in a manifest. Readers work on ref-counted snapshots, so flushes and merges
// never disturb a search that is already running.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/analysis"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/storage"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/metrics"
)

const (
	defaultRAMBufferSize   = 16 << 20
	defaultMaxBufferedDocs = 10000
	defaultMergeFactor     = 3
)

// Options configures Open. Zero values fall back to directories and an
// analyzer derived from Config.
type Options struct {
	Config   config.IndexConfig
	Disk     storage.Directory
	RAM      storage.Directory
	Analyzer analysis.Analyzer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Engine is safe for concurrent use. Add only takes writeMu and never waits
// on disk; Flush, Merge, Delete and Close serialize on ioMu. Lock order is
// ioMu, writeMu, viewMu.
type Engine struct {
	cfg        config.IndexConfig
	disk       storage.Directory
	ram        storage.Directory
	analyzer   analysis.Analyzer
	diskWriter *segment.Writer
	ramWriter  *segment.Writer
	metrics    *metrics.Metrics
	logger     *slog.Logger

	ioMu     sync.Mutex
	manifest *segment.Manifest

	writeMu  sync.Mutex
	mem      *index.MemoryIndex
	frozen   []*index.MemoryIndex
	segments []*segmentRef
	nextID   uint64
	memSeq   uint64
	haltErr  error

	viewMu  sync.RWMutex
	current *view

	version atomic.Uint64
	closed  atomic.Bool
	flushCh chan struct{}
}

// Open recovers the index committed in the disk directory. Files that the
// manifest does not list are leftovers of an interrupted flush or merge and
// are removed.
func Open(opts Options) (*Engine, error) {
	cfg := withIndexDefaults(opts.Config)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "indexer")

	disk := opts.Disk
	if disk == nil {
		if cfg.InMemory || cfg.DataDir == "" {
			disk = storage.NewMemoryDirectory()
		} else {
			var err error
			if disk, err = storage.NewFSDirectory(cfg.DataDir); err != nil {
				return nil, fmt.Errorf("opening index directory: %w", err)
			}
		}
	}
	ram := opts.RAM
	if ram == nil {
		ram = storage.NewMemoryDirectory()
	}
	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = analysis.FromConfig(cfg.Analyzer)
	}
	analyzer = analysis.Limit(analyzer, cfg.MaxFieldTokens)

	e := &Engine{
		cfg:        cfg,
		disk:       disk,
		ram:        ram,
		analyzer:   analyzer,
		diskWriter: segment.NewWriter(disk),
		ramWriter:  segment.NewWriter(ram),
		metrics:    opts.Metrics,
		logger:     logger,
		flushCh:    make(chan struct{}, 1),
	}
	// Versions key cached results; seeding from the clock keeps them unique
	// across restarts.
	e.version.Store(uint64(time.Now().UnixNano()))

	if err := e.recover(); err != nil {
		return nil, err
	}
	return e, nil
}

func withIndexDefaults(cfg config.IndexConfig) config.IndexConfig {
	if cfg.RAMBufferSize <= 0 {
		cfg.RAMBufferSize = defaultRAMBufferSize
	}
	if cfg.MaxBufferedDocs <= 0 {
		cfg.MaxBufferedDocs = defaultMaxBufferedDocs
	}
	if cfg.MergeFactor < 2 {
		cfg.MergeFactor = defaultMergeFactor
	}
	return cfg
}

func (e *Engine) recover() error {
	manifest, err := segment.ReadManifest(e.disk)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	refs := make([]*segmentRef, 0, len(manifest.Segments))
	fail := func(err error) error {
		for _, ref := range refs {
			ref.reader.Close()
		}
		return err
	}
	for _, meta := range manifest.Segments {
		reader, err := segment.Open(e.disk, meta.Name)
		if err != nil {
			return fail(fmt.Errorf("opening committed segment: %w", err))
		}
		deleted, err := segment.ReadDeletes(e.disk, meta.Name)
		if err != nil {
			reader.Close()
			return fail(err)
		}
		refs = append(refs, e.newSegmentRef(reader, deleted))
		e.logger.Info("loaded existing segment",
			"segment", meta.Name,
			"terms", reader.TermCount(),
			"docs", reader.MaxDoc(),
			"deleted", deleted.GetCardinality(),
		)
	}

	listed := make(map[string]bool, 2*len(manifest.Segments))
	for _, meta := range manifest.Segments {
		listed[meta.Name] = true
		listed[segment.DeletesName(meta.Name)] = true
	}
	names, err := e.disk.List()
	if err != nil {
		return fail(err)
	}
	for _, name := range names {
		if name == segment.ManifestName || listed[name] || !segment.IsIndexFile(name) {
			continue
		}
		if err := e.disk.Remove(name); err != nil {
			return fail(err)
		}
		e.logger.Warn("removed uncommitted index file", "file", name)
	}

	e.manifest = manifest
	e.segments = refs
	e.nextID = max(manifest.NextDocID, 1)
	e.mem = e.newMemoryIndex()

	e.writeMu.Lock()
	e.publishLocked()
	e.writeMu.Unlock()

	e.logger.Info("segment recovery complete",
		"generation", manifest.Generation,
		"segments_loaded", len(refs),
		"next_doc_id", e.nextID,
	)
	return nil
}

func (e *Engine) newMemoryIndex() *index.MemoryIndex {
	e.memSeq++
	return index.NewMemoryIndex(fmt.Sprintf("mem_%06d", e.memSeq), e.analyzer)
}

// writableLocked reports why the writer cannot accept changes. Callers hold
// writeMu.
func (e *Engine) writableLocked() error {
	if e.closed.Load() {
		return apperrors.ErrClosed
	}
	if e.haltErr != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrWriterHalted, e.haltErr)
	}
	return nil
}

func (e *Engine) writable() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.writableLocked()
}

func (e *Engine) halt(err error) {
	e.writeMu.Lock()
	e.haltErr = err
	e.writeMu.Unlock()
	e.logger.Error("index writer halted; reopen the index to recover", "error", err)
}

// bufferedBytesLocked sums the memory held by the live and sealed memory
// segments.
func (e *Engine) bufferedBytesLocked() int64 {
	total := e.mem.Size()
	for _, f := range e.frozen {
		total += f.Size()
	}
	return total
}

// Add appends doc to the memory segment and returns its id. The document is
// visible to every snapshot acquired after Add returns. Add never writes to
// disk: once the memory segments reach twice the RAM buffer the call fails
// until a flush drains them.
func (e *Engine) Add(ctx context.Context, doc document.Document) (document.DocID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := doc.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	e.writeMu.Lock()
	if err := e.writableLocked(); err != nil {
		e.writeMu.Unlock()
		return 0, err
	}
	if buffered := e.bufferedBytesLocked(); buffered >= 2*e.cfg.RAMBufferSize {
		e.writeMu.Unlock()
		e.requestFlush()
		return 0, &apperrors.IndexWriteError{
			Op:  "add",
			Err: fmt.Errorf("memory segments hold %d bytes, limit is %d; waiting for flush", buffered, 2*e.cfg.RAMBufferSize),
		}
	}
	id := document.DocID(e.nextID)
	if _, err := e.mem.AddDocument(id, doc); err != nil {
		e.writeMu.Unlock()
		return 0, &apperrors.IndexWriteError{Op: "add", Err: err}
	}
	e.nextID++
	e.version.Add(1)
	size, docs := e.mem.Size(), e.mem.DocCount()
	e.writeMu.Unlock()

	e.metrics.DocAdded()
	e.logger.Debug("document indexed in memory", "doc_id", id, "mem_size", size)
	if size >= e.cfg.RAMBufferSize || docs >= e.cfg.MaxBufferedDocs {
		e.requestFlush()
	}
	return id, nil
}

// Analyzer is the analyzer documents are indexed with. Queries must use the
// same one for terms to agree.
func (e *Engine) Analyzer() analysis.Analyzer { return e.analyzer }

func (e *Engine) requestFlush() {
	select {
	case e.flushCh <- struct{}{}:
	default:
	}
}

// Get returns the stored fields of a live document.
func (e *Engine) Get(ctx context.Context, id document.DocID) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return document.Document{}, err
	}
	snap, err := e.Acquire()
	if err != nil {
		return document.Document{}, err
	}
	defer snap.Release()
	return snap.Get(id)
}

// Delete tombstones the document with id. Tombstones of disk segments are
// persisted before the call returns.
func (e *Engine) Delete(ctx context.Context, id document.DocID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.ioMu.Lock()
	defer e.ioMu.Unlock()

	e.writeMu.Lock()
	if err := e.writableLocked(); err != nil {
		e.writeMu.Unlock()
		return err
	}
	for _, m := range append([]*index.MemoryIndex{e.mem}, e.frozen...) {
		if m.Delete(id) {
			e.version.Add(1)
			e.writeMu.Unlock()
			e.metrics.DocDeleted()
			return nil
		}
	}
	segments := e.segments
	e.writeMu.Unlock()

	for _, ref := range segments {
		ord, ok := ref.reader.Ordinal(id)
		if !ok {
			continue
		}
		cur := ref.deleted.Load()
		if cur.Contains(ord) {
			break
		}
		next := cur.Clone()
		next.Add(ord)
		if err := segment.WriteDeletes(e.disk, ref.reader.Name(), next); err != nil {
			return &apperrors.IndexWriteError{Op: "delete", Err: err}
		}
		ref.deleted.Store(next)
		e.version.Add(1)
		e.metrics.DocDeleted()
		return nil
	}
	return fmt.Errorf("doc %d: %w", id, apperrors.ErrDocumentNotFound)
}

// SegmentStats describes one disk segment.
type SegmentStats struct {
	Name      string `json:"name"`
	Docs      int    `json:"docs"`
	Deleted   int    `json:"deleted"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Stats is a point-in-time summary of the index.
type Stats struct {
	Generation    uint64         `json:"generation"`
	Version       uint64         `json:"version"`
	Segments      []SegmentStats `json:"segments"`
	DiskDocs      int            `json:"diskDocs"`
	BufferedDocs  int            `json:"bufferedDocs"`
	BufferedBytes int64          `json:"bufferedBytes"`
	LiveDocs      int            `json:"liveDocs"`
	Halted        bool           `json:"halted"`
}

func (e *Engine) Stats() Stats {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	st := Stats{
		Version:       e.version.Load(),
		BufferedBytes: e.bufferedBytesLocked(),
		Halted:        e.haltErr != nil,
	}
	e.viewMu.RLock()
	if e.current != nil {
		st.Generation = e.current.generation
	}
	e.viewMu.RUnlock()
	for _, m := range append([]*index.MemoryIndex{e.mem}, e.frozen...) {
		st.BufferedDocs += m.DocCount()
		st.LiveDocs += m.LiveCount()
	}
	for _, ref := range e.segments {
		deleted := int(ref.deleted.Load().GetCardinality())
		docs := int(ref.reader.MaxDoc())
		st.Segments = append(st.Segments, SegmentStats{
			Name:      ref.reader.Name(),
			Docs:      docs,
			Deleted:   deleted,
			SizeBytes: ref.reader.SizeBytes(),
		})
		st.DiskDocs += docs
		st.LiveDocs += docs - deleted
	}
	return st
}

// StartFlushLoop flushes on every FlushInterval tick and whenever Add
// crosses a buffer threshold. Cancelling ctx performs a final flush.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	var ticker *time.Ticker
	var tick <-chan time.Time
	if e.cfg.FlushInterval > 0 {
		ticker = time.NewTicker(e.cfg.FlushInterval)
		tick = ticker.C
	}
	go func() {
		if ticker != nil {
			defer ticker.Stop()
		}
		e.flushLoop(ctx, tick)
	}()
}

func (e *Engine) flushLoop(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("flush loop stopping, performing final flush")
			if err := e.Flush(context.Background()); err != nil && !errors.Is(err, apperrors.ErrClosed) {
				e.logger.Error("final flush failed", "error", err)
			}
			return
		case <-tick:
			if err := e.Flush(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("periodic flush failed", "error", err)
			}
		case <-e.flushCh:
			if err := e.Flush(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("threshold flush failed", "error", err)
			}
		}
	}
}

// Close flushes buffered documents and releases the disk segments. Snapshots
// still held keep their segments open until released.
func (e *Engine) Close() error {
	e.ioMu.Lock()
	defer e.ioMu.Unlock()
	if e.closed.Load() {
		return nil
	}

	var flushErr error
	if e.writable() == nil {
		if flushErr = e.flushLocked(context.Background()); flushErr != nil {
			e.logger.Error("final flush on close failed", "error", flushErr)
		}
	}

	e.writeMu.Lock()
	e.closed.Store(true)
	refs := e.segments
	e.segments = nil
	e.viewMu.Lock()
	e.current = nil
	e.viewMu.Unlock()
	e.writeMu.Unlock()

	for _, ref := range refs {
		ref.decRef()
	}
	e.logger.Info("index closed", "segments", len(refs))
	return flushErr
}

// publishLocked installs a new view built from the engine state. Callers
// hold writeMu and, except during recovery, ioMu.
func (e *Engine) publishLocked() {
	v := &view{
		generation: e.manifest.Generation,
		segments:   slices.Clone(e.segments),
		frozen:     slices.Clone(e.frozen),
		mem:        e.mem,
	}
	e.viewMu.Lock()
	e.current = v
	e.viewMu.Unlock()
	e.version.Add(1)

	buffered := e.mem.DocCount()
	for _, f := range e.frozen {
		buffered += f.DocCount()
	}
	e.metrics.SetIndexShape(len(e.segments), buffered, e.bufferedBytesLocked())
}

func (e *Engine) newSegmentRef(reader *segment.Reader, deleted *roaring.Bitmap) *segmentRef {
	ref := &segmentRef{reader: reader, release: e.releaseSegment}
	if deleted == nil {
		deleted = roaring.New()
	}
	ref.deleted.Store(deleted)
	ref.refs.Store(1)
	return ref
}

// releaseSegment runs when the last reference to a segment is dropped.
// Retired segments are no longer in the manifest, so their files go too.
func (e *Engine) releaseSegment(ref *segmentRef) {
	name := ref.reader.Name()
	if err := ref.reader.Close(); err != nil {
		e.logger.Error("closing segment reader", "segment", name, "error", err)
	}
	if !ref.retired.Load() {
		return
	}
	for _, file := range []string{name, segment.DeletesName(name)} {
		if err := e.disk.Remove(file); err != nil {
			e.logger.Error("removing retired segment file", "file", file, "error", err)
		}
	}
	e.logger.Debug("retired segment removed", "segment", name)
}
