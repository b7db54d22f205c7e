package biglist

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/biglist/codec"
)

// Base is the read side of a dataset: indexed random access with a one-file
// read-ahead cache, and ordered full iteration with bounded prefetch.
//
// A Base (and the Biglist embedding it) is a single-worker handle: share the
// dataset between workers by opening one instance each, not by sharing an
// instance between goroutines.
type Base[T any] struct {
	fs              afs.Service
	baseURL         string
	codec           codec.Codec[T]
	logger          *logrus.Logger
	readConcurrency int

	// current snapshot of data_files_info
	entries []FileEntry

	// one-file read-ahead cache
	cached     *FileReader[T]
	cacheStart int64
	cacheEnd   int64

	// set by the write side; reports whether unflushed appends exist
	unflushed func() bool
}

// URL returns the dataset's root location.
func (b *Base[T]) URL() string { return b.baseURL }

// FileSeq returns a fresh view over the current snapshot of data files.
func (b *Base[T]) FileSeq() *FileSeq[T] {
	return NewFileSeq(b.fs, b.baseURL, b.codec, b.entries)
}

// Len returns the number of flushed elements.
func (b *Base[T]) Len() int64 {
	b.warnUnflushed()
	return b.numItems()
}

// NumDataItems returns the number of flushed elements.
func (b *Base[T]) NumDataItems() int64 { return b.Len() }

// NumDataFiles returns the number of data files in the current snapshot.
func (b *Base[T]) NumDataFiles() int { return len(b.entries) }

func (b *Base[T]) numItems() int64 {
	if len(b.entries) == 0 {
		return 0
	}
	return b.entries[len(b.entries)-1].Cum
}

// Reload refreshes the snapshot from storage, picking up files merged in by
// other writers. Outstanding eager-flush interim records are folded in
// read-only, so their data is visible before the next locked merge consumes
// them.
func (b *Base[T]) Reload(ctx context.Context) error {
	info, err := loadInfo(ctx, b.fs, b.baseURL)
	if err != nil {
		return err
	}
	entries := info.DataFilesInfo
	interim, err := loadInterimEntries(ctx, b.fs, b.baseURL)
	if err != nil {
		return err
	}
	if len(interim) > 0 {
		entries = mergeEntries(entries, interim)
	}
	b.entries = entries
	b.invalidateCache()
	return nil
}

// At returns the element at idx. Negative indices count from the end. The
// owning file is found by binary search over cumulative counts; a one-file
// cache makes nearby repeated accesses O(1).
func (b *Base[T]) At(ctx context.Context, idx int64) (T, error) {
	var zero T
	b.warnUnflushed()
	total := b.numItems()
	i := idx
	if i < 0 {
		i += total
	}
	if i < 0 || i >= total {
		return zero, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, idx, total)
	}
	if b.cached == nil || i < b.cacheStart || i >= b.cacheEnd {
		fileIdx := sort.Search(len(b.entries), func(k int) bool { return b.entries[k].Cum > i })
		entry := b.entries[fileIdx]
		b.cached = b.FileSeq().Reader(fileIdx)
		b.cacheStart = entry.Cum - entry.Count
		b.cacheEnd = entry.Cum
	}
	return b.cached.At(ctx, int(i-b.cacheStart))
}

// Scan iterates every element in index order, calling fn until it returns
// false or the dataset is exhausted. With more than one data file, up to
// min(readConcurrency, fileCount) files are prefetched concurrently through a
// bounded in-order pipeline; prefetch affects only when files are fetched,
// never the order elements are yielded. Abandoned prefetches finish in the
// background and are discarded.
func (b *Base[T]) Scan(ctx context.Context, fn func(item T) bool) error {
	b.warnUnflushed()
	seq := b.FileSeq()
	n := seq.Len()
	switch n {
	case 0:
		return nil
	case 1:
		batch, err := seq.Reader(0).Batch(ctx)
		if err != nil {
			return err
		}
		for _, item := range batch {
			if !fn(item) {
				return nil
			}
		}
		return nil
	}

	bound := b.readConcurrency
	if bound <= 0 {
		bound = defaultReadConcurrency
	}
	if bound > n {
		bound = n
	}
	type result struct {
		batch []T
		err   error
	}
	done := make(chan struct{})
	defer close(done)
	// inflight holds one future per submitted file, consumed FIFO; its
	// capacity is the backpressure bound on concurrent loads.
	inflight := make(chan chan result, bound)
	go func() {
		defer close(inflight)
		for i := 0; i < n; i++ {
			future := make(chan result, 1)
			select {
			case inflight <- future:
			case <-done:
				return
			}
			go func(reader *FileReader[T]) {
				batch, err := reader.Batch(ctx)
				future <- result{batch: batch, err: err}
			}(seq.Reader(i))
		}
	}()
	for future := range inflight {
		res := <-future
		if res.err != nil {
			return res.err
		}
		for _, item := range res.batch {
			if !fn(item) {
				return nil
			}
		}
	}
	return nil
}

// Slice collects every element into memory, in index order. Intended for
// small datasets and tests; prefer Scan for anything big.
func (b *Base[T]) Slice(ctx context.Context) ([]T, error) {
	items := make([]T, 0, b.numItems())
	err := b.Scan(ctx, func(item T) bool {
		items = append(items, item)
		return true
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (b *Base[T]) invalidateCache() {
	b.cached = nil
	b.cacheStart = 0
	b.cacheEnd = 0
}

func (b *Base[T]) warnUnflushed() {
	if b.unflushed != nil && b.unflushed() {
		b.logger.Warnf("biglist: reading %v while unflushed appends exist; they are invisible until Flush", b.baseURL)
	}
}
