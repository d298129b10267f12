package indexer

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/resilience"
)

// Merge combines the named disk segments into one, dropping deleted
// documents. It either commits the merged segment in place of its inputs or
// leaves the index exactly as it was. Transient failures are retried.
func (e *Engine) Merge(ctx context.Context, names []string) (segment.Info, error) {
	e.ioMu.Lock()
	defer e.ioMu.Unlock()
	if err := e.writable(); err != nil {
		return segment.Info{}, err
	}
	return e.mergeLocked(ctx, names)
}

// ForceMerge merges every disk segment into one. Buffered documents are
// flushed first.
func (e *Engine) ForceMerge(ctx context.Context) error {
	e.ioMu.Lock()
	defer e.ioMu.Unlock()
	if err := e.flushLocked(ctx); err != nil {
		return err
	}
	e.writeMu.Lock()
	names := make([]string, 0, len(e.segments))
	hasDeletes := false
	for _, ref := range e.segments {
		names = append(names, ref.reader.Name())
		hasDeletes = hasDeletes || !ref.deleted.Load().IsEmpty()
	}
	e.writeMu.Unlock()
	if len(names) == 0 || (len(names) == 1 && !hasDeletes) {
		return nil
	}
	_, err := e.mergeLocked(ctx, names)
	return err
}

// MaybeMerge applies the merge policy until no merge is due.
func (e *Engine) MaybeMerge(ctx context.Context) error {
	e.ioMu.Lock()
	defer e.ioMu.Unlock()
	if err := e.writable(); err != nil {
		return err
	}
	return e.maybeMergeLocked(ctx)
}

func (e *Engine) maybeMergeLocked(ctx context.Context) error {
	for {
		e.writeMu.Lock()
		pick := pickMerge(e.segments, e.cfg.MergeFactor)
		e.writeMu.Unlock()
		if pick == nil {
			return nil
		}
		if _, err := e.mergeLocked(ctx, pick); err != nil {
			return err
		}
	}
}

// pickMerge returns the first run of factor adjacent segments on the same
// level, where a segment of n live documents sits on level floor(log_factor n).
func pickMerge(refs []*segmentRef, factor int) []string {
	level := func(ref *segmentRef) int {
		live := int(ref.reader.MaxDoc()) - int(ref.deleted.Load().GetCardinality())
		return mergeLevel(live, factor)
	}
	start := 0
	for i := range refs {
		if i > 0 && level(refs[i]) != level(refs[i-1]) {
			start = i
		}
		if i-start+1 == factor {
			names := make([]string, 0, factor)
			for _, ref := range refs[start : i+1] {
				names = append(names, ref.reader.Name())
			}
			return names
		}
	}
	return nil
}

// mergeLevel is floor(log_factor live), computed on integers so exact powers
// land on their own level.
func mergeLevel(live, factor int) int {
	lvl := 0
	for live >= factor {
		live /= factor
		lvl++
	}
	return lvl
}

func (e *Engine) mergeLocked(ctx context.Context, names []string) (segment.Info, error) {
	inputs, err := e.resolve(names)
	if err != nil {
		return segment.Info{}, err
	}

	start := time.Now()
	var info segment.Info
	err = resilience.Retry(ctx, "merge", resilience.RetryConfig{
		MaxAttempts:  e.cfg.Retry.MaxAttempts,
		InitialDelay: e.cfg.Retry.InitialDelay,
		MaxDelay:     e.cfg.Retry.MaxDelay,
	}, func(ctx context.Context) error {
		var err error
		info, err = e.mergeOnce(ctx, inputs)
		return err
	})
	e.metrics.ObserveMerge(time.Since(start).Seconds(), err)
	if err != nil {
		e.logger.Error("merge failed", "segments", names, "error", err)
		return segment.Info{}, &apperrors.IndexWriteError{Op: "merge", Err: err}
	}
	return info, nil
}

func (e *Engine) resolve(names []string) ([]*segmentRef, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no segments to merge", apperrors.ErrInvalidInput)
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	inputs := make([]*segmentRef, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(e.segments, func(ref *segmentRef) bool { return ref.reader.Name() == name })
		if i < 0 {
			return nil, fmt.Errorf("%w: segment %q is not committed", apperrors.ErrInvalidInput, name)
		}
		if slices.Contains(inputs, e.segments[i]) {
			return nil, fmt.Errorf("%w: segment %q listed twice", apperrors.ErrInvalidInput, name)
		}
		inputs = append(inputs, e.segments[i])
	}
	return inputs, nil
}

// mergeOnce runs one attempt. Nothing reader-visible changes until the
// manifest commit succeeds.
func (e *Engine) mergeOnce(ctx context.Context, inputs []*segmentRef) (segment.Info, error) {
	segs := make([]index.Segment, len(inputs))
	for i, ref := range inputs {
		segs[i] = ref.reader.WithDeletes(ref.deleted.Load())
	}
	data, err := index.Merge(ctx, segs)
	if err != nil {
		return segment.Info{}, err
	}

	var (
		info segment.Info
		ref  *segmentRef
	)
	if len(data.IDs) > 0 {
		name := segment.SegmentName(e.manifest.NextSeq)
		if info, err = e.diskWriter.Write(name, data); err != nil {
			return segment.Info{}, err
		}
		reader, err := segment.Open(e.disk, name)
		if err != nil {
			e.removeFiles(name)
			return segment.Info{}, err
		}
		ref = e.newSegmentRef(reader, nil)
	}

	next := e.manifest.Clone()
	next.Generation++
	next.NextSeq++
	replaced := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		replaced[in.reader.Name()] = true
	}
	kept := make([]segment.SegmentMeta, 0, len(next.Segments))
	placed := false
	for _, meta := range next.Segments {
		if !replaced[meta.Name] {
			kept = append(kept, meta)
			continue
		}
		if !placed && ref != nil {
			kept = append(kept, segment.SegmentMeta{Name: info.Name, DocCount: info.DocCount})
		}
		placed = true
	}
	next.Segments = kept
	e.fillDelCounts(next)

	if err := e.commit(next); err != nil {
		if ref != nil {
			ref.reader.Close()
			e.removeFiles(info.Name)
		}
		if e.writable() != nil {
			return segment.Info{}, resilience.Permanent(err)
		}
		return segment.Info{}, err
	}

	e.writeMu.Lock()
	segments := make([]*segmentRef, 0, len(e.segments))
	placed = false
	for _, cur := range e.segments {
		if !slices.Contains(inputs, cur) {
			segments = append(segments, cur)
			continue
		}
		if !placed && ref != nil {
			segments = append(segments, ref)
		}
		placed = true
	}
	e.segments = segments
	e.publishLocked()
	e.writeMu.Unlock()

	for _, in := range inputs {
		in.retire()
	}
	e.logger.Info("segments merged",
		"inputs", len(inputs),
		"output", info.Name,
		"docs", info.DocCount,
		"generation", next.Generation,
		"active_segments", len(next.Segments),
	)
	return info, nil
}
