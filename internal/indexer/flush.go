package indexer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/storage"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
)

// Flush seals the memory segment and writes every sealed memory segment to
// disk, then applies the merge policy. On failure the sealed segments stay
// searchable and the next flush retries them. A merge failure after the
// flush committed is returned wrapping apperrors.ErrMergeFailed.
func (e *Engine) Flush(ctx context.Context) error {
	e.ioMu.Lock()
	defer e.ioMu.Unlock()
	if err := e.flushLocked(ctx); err != nil {
		return err
	}
	if err := e.maybeMergeLocked(ctx); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrMergeFailed, err)
	}
	return nil
}

func (e *Engine) flushLocked(ctx context.Context) error {
	e.writeMu.Lock()
	if err := e.writableLocked(); err != nil {
		e.writeMu.Unlock()
		return err
	}
	if e.mem.DocCount() > 0 {
		e.frozen = append(slices.Clone(e.frozen), e.mem)
		e.mem = e.newMemoryIndex()
		e.publishLocked()
	}
	pending := e.frozen
	e.writeMu.Unlock()

	for _, sealed := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		err := e.flushSegment(ctx, sealed)
		e.metrics.ObserveFlush(time.Since(start).Seconds(), err)
		if err != nil {
			return err
		}
	}
	return nil
}

// flushSegment encodes sealed in the RAM directory, copies it to disk and
// commits it. Only the final publish touches reader-visible state.
func (e *Engine) flushSegment(ctx context.Context, sealed *index.MemoryIndex) error {
	data, err := index.Merge(ctx, []index.Segment{sealed.View()})
	if err != nil {
		return &apperrors.IndexWriteError{Op: "flush", Err: err}
	}
	if len(data.IDs) == 0 {
		e.writeMu.Lock()
		e.frozen = slices.DeleteFunc(slices.Clone(e.frozen), func(m *index.MemoryIndex) bool { return m == sealed })
		e.publishLocked()
		e.writeMu.Unlock()
		e.logger.Debug("dropped memory segment with no live documents", "segment", sealed.Name())
		return nil
	}

	name := segment.SegmentName(e.manifest.NextSeq)
	info, err := e.ramWriter.Write(name, data)
	if err != nil {
		return &apperrors.IndexWriteError{Op: "flush", Err: err}
	}
	defer func() {
		if err := e.ram.Remove(name); err != nil {
			e.logger.Warn("removing staged segment", "segment", name, "error", err)
		}
	}()
	if err := storage.Copy(e.ram, e.disk, name); err != nil {
		return &apperrors.IndexWriteError{Op: "flush", Err: err}
	}
	reader, err := segment.Open(e.disk, name)
	if err != nil {
		e.removeFiles(name)
		return &apperrors.IndexWriteError{Op: "flush", Err: err}
	}
	ref := e.newSegmentRef(reader, nil)

	e.writeMu.Lock()
	nextID := e.nextID
	e.writeMu.Unlock()

	next := e.manifest.Clone()
	next.Generation++
	next.NextSeq++
	next.NextDocID = nextID
	next.Segments = append(next.Segments, segment.SegmentMeta{Name: name, DocCount: info.DocCount})
	e.fillDelCounts(next)
	if err := e.commit(next); err != nil {
		reader.Close()
		e.removeFiles(name)
		return &apperrors.IndexWriteError{Op: "flush", Err: err}
	}

	e.writeMu.Lock()
	e.frozen = slices.DeleteFunc(slices.Clone(e.frozen), func(m *index.MemoryIndex) bool { return m == sealed })
	e.segments = append(slices.Clone(e.segments), ref)
	e.publishLocked()
	e.writeMu.Unlock()

	e.logger.Info("segment flushed",
		"segment", name,
		"terms", info.TermCount,
		"docs", info.DocCount,
		"bytes", info.Size,
		"generation", next.Generation,
		"active_segments", len(next.Segments),
	)
	return nil
}

// commit writes next as the new manifest. A write error normally leaves the
// previous manifest in place; when the resulting state cannot be read back
// the writer halts rather than guess which generation is on disk.
func (e *Engine) commit(next *segment.Manifest) error {
	err := segment.WriteManifest(e.disk, next)
	if err == nil {
		e.manifest = next
		return nil
	}
	onDisk, readErr := segment.ReadManifest(e.disk)
	switch {
	case readErr != nil:
		e.halt(fmt.Errorf("manifest generation %d unreadable after failed commit: %w", next.Generation, errors.Join(err, readErr)))
		return fmt.Errorf("%w: %v", apperrors.ErrWriterHalted, err)
	case onDisk.Generation == next.Generation:
		e.logger.Warn("manifest commit reported an error but landed", "generation", next.Generation, "error", err)
		e.manifest = onDisk
		return nil
	case onDisk.Generation != e.manifest.Generation:
		e.halt(fmt.Errorf("manifest generation %d on disk, expected %d", onDisk.Generation, e.manifest.Generation))
		return fmt.Errorf("%w: %v", apperrors.ErrWriterHalted, err)
	}
	return fmt.Errorf("committing manifest: %w", err)
}

// fillDelCounts records the current tombstone count of every segment that
// stays in next.
func (e *Engine) fillDelCounts(next *segment.Manifest) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	counts := make(map[string]int, len(e.segments))
	for _, ref := range e.segments {
		counts[ref.reader.Name()] = int(ref.deleted.Load().GetCardinality())
	}
	for i := range next.Segments {
		next.Segments[i].DelCount = counts[next.Segments[i].Name]
	}
}

func (e *Engine) removeFiles(names ...string) {
	for _, name := range names {
		if err := e.disk.Remove(name); err != nil {
			e.logger.Error("removing uncommitted segment", "segment", name, "error", err)
		}
	}
}
