// Package biglist implements a persisted, append-only, out-of-memory list.
// Elements live in immutable data files under one root URL; a durable JSON
// index defines their global order. Any number of uncoordinated writer
// instances — goroutines, processes or machines — append concurrently and
// publish their files with Flush; readers stream the merged result with
// background prefetch. Storage is addressed through viant/afs, so the same
// code runs against file://, mem:// and, with afsc, s3:// or gs:// roots.
package biglist

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs/url"
	"github.com/viant/biglist/codec"
	"github.com/viant/biglist/lock"
)

const defaultLockTimeout = 2 * time.Minute

type fileState int

const (
	filePending fileState = iota
	fileConfirmed
	fileFailed
)

// pendingFile is a data file handed to the Dumper but not yet merged into
// the durable index. It is recorded optimistically at spill time as
// filePending and settled to fileConfirmed or fileFailed when the Dumper
// drains.
type pendingFile struct {
	entry FileEntry // Cum is unset until merge
	state fileState
}

// Biglist is one writer instance over a dataset. Its append buffer and
// pending files are exclusively owned; the only cross-writer shared state is
// the durable index, guarded by the lock during Flush.
type Biglist[T any] struct {
	Base[T]

	info      *Info
	batchSize int
	buffer    []T
	pending   []pendingFile
	dumper    *Dumper
	tracker   *Tracker
	lock      lock.Lock
	writerID  string
	warned    bool
}

// New creates a dataset at baseURL and returns a writer instance over it.
// It fails with ErrAlreadyExists when a dataset is already rooted there.
func New[T any](ctx context.Context, baseURL string, opts ...Option) (*Biglist[T], error) {
	o := newOptions(opts...)
	if ok, err := o.fs.Exists(ctx, infoURL(baseURL)); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %v", ErrAlreadyExists, baseURL)
	}
	if o.batchSize <= 0 {
		return nil, fmt.Errorf("biglist: batch size must be positive, got %d", o.batchSize)
	}
	info := &Info{
		StorageFormat:  o.format,
		StorageVersion: storageVersion,
		BatchSize:      o.batchSize,
		DataFilesInfo:  []FileEntry{},
	}
	if err := saveInfo(ctx, o.fs, baseURL, info); err != nil {
		return nil, err
	}
	return open[T](ctx, baseURL, o, info)
}

// Open returns a writer instance over the existing dataset at baseURL. Use
// it for reading too: a reader is an instance that never appends.
func Open[T any](ctx context.Context, baseURL string, opts ...Option) (*Biglist[T], error) {
	o := newOptions(opts...)
	if ok, err := o.fs.Exists(ctx, infoURL(baseURL)); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotExist, baseURL)
	}
	info, err := loadInfo(ctx, o.fs, baseURL)
	if err != nil {
		return nil, err
	}
	return open[T](ctx, baseURL, o, info)
}

func open[T any](ctx context.Context, baseURL string, o *options, info *Info) (*Biglist[T], error) {
	if info.StorageVersion > storageVersion {
		return nil, fmt.Errorf("biglist: unsupported storage version %d at %v", info.StorageVersion, baseURL)
	}
	registry, err := registryFor[T](o)
	if err != nil {
		return nil, err
	}
	c, err := registry.Lookup(info.StorageFormat)
	if err != nil {
		return nil, err
	}
	l := &Biglist[T]{
		info:      info,
		batchSize: info.BatchSize,
		dumper:    o.dumper,
		tracker:   &Tracker{},
		lock:      o.lock,
		writerID:  uuid.NewString(),
	}
	l.Base = Base[T]{
		fs:              o.fs,
		baseURL:         baseURL,
		codec:           c,
		logger:          o.logger,
		readConcurrency: o.readConcurrency,
	}
	if l.dumper == nil {
		l.dumper = NewDumper(o.fs, o.writerConcurrency)
	}
	if l.lock == nil {
		l.lock = lock.NewLease(o.fs, url.Join(baseURL, lockFileName))
	}
	l.entries = info.DataFilesInfo
	interim, err := loadInterimEntries(ctx, o.fs, baseURL)
	if err != nil {
		return nil, err
	}
	if len(interim) > 0 {
		l.entries = mergeEntries(l.entries, interim)
	}
	l.unflushed = func() bool {
		if len(l.buffer) == 0 && len(l.pending) == 0 {
			return false
		}
		if l.warned {
			return false
		}
		l.warned = true
		return true
	}
	return l, nil
}

func registryFor[T any](o *options) (*codec.Registry[T], error) {
	if o.registry == nil {
		return codec.NewRegistry[T](), nil
	}
	registry, ok := o.registry.(*codec.Registry[T])
	if !ok {
		return nil, fmt.Errorf("biglist: codec registry element type mismatch: %T", o.registry)
	}
	return registry, nil
}

// Append adds one element to the in-memory buffer. Once the buffer reaches
// the batch size it is handed to the Dumper as a new data file. Appended
// elements stay invisible to every reader, this instance included, until
// Flush completes. Append blocks only when the Dumper is at capacity.
func (l *Biglist[T]) Append(ctx context.Context, item T) error {
	l.buffer = append(l.buffer, item)
	if len(l.buffer) >= l.batchSize {
		return l.spill(ctx)
	}
	return nil
}

// Extend appends every element of items.
func (l *Biglist[T]) Extend(ctx context.Context, items []T) error {
	for _, item := range items {
		if err := l.Append(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// spill hands the buffered batch to the Dumper under a collision-free file
// name and records it optimistically as pending; Flush settles entries whose
// persist failed.
func (l *Biglist[T]) spill(ctx context.Context) error {
	if len(l.buffer) == 0 {
		return nil
	}
	batch := l.buffer
	l.buffer = nil
	name, err := dataFileName(len(batch), l.codec.Extension())
	if err != nil {
		return err
	}
	destURL := url.Join(l.baseURL, name)
	submitErr := l.dumper.Submit(ctx, l.tracker, destURL, func() ([]byte, error) {
		return l.codec.Encode(batch)
	})
	if submitErr != nil {
		l.buffer = append(batch, l.buffer...)
		return submitErr
	}
	l.pending = append(l.pending, pendingFile{entry: FileEntry{Name: name, Count: int64(len(batch))}})
	return nil
}

type flushOptions struct {
	eager                bool
	lockTimeout          time.Duration
	continueOnWriteError bool
}

// FlushOption configures one Flush call.
type FlushOption func(*flushOptions)

// Eager stages this writer's files in a lock-free interim record instead of
// merging them into the durable index. A later regular Flush, from any
// writer, folds outstanding interim records in. Use it under very high
// writer fan-out to avoid lock contention, at the price of a slightly stale
// global index.
func Eager() FlushOption {
	return func(o *flushOptions) { o.eager = true }
}

// WithLockTimeout bounds the wait for the index lock during a regular Flush.
func WithLockTimeout(timeout time.Duration) FlushOption {
	return func(o *flushOptions) { o.lockTimeout = timeout }
}

// ContinueOnWriteError makes Flush report failed batches in its returned
// slice instead of failing on the first one; intact batches are still
// published.
func ContinueOnWriteError() FlushOption {
	return func(o *flushOptions) { o.continueOnWriteError = true }
}

// Flush persists any buffered elements, drains this writer's in-flight
// persist jobs and publishes
// every successfully persisted file, making its elements visible to readers.
// A file that failed to persist never enters the index: its entry is
// dropped, the partial file is deleted best-effort and the failure is either
// returned as the error (default) or collected in the returned slice
// (ContinueOnWriteError). Flushing with no new appends is a no-op.
func (l *Biglist[T]) Flush(ctx context.Context, opts ...FlushOption) ([]WriteFailure, error) {
	fo := flushOptions{lockTimeout: defaultLockTimeout}
	for _, opt := range opts {
		opt(&fo)
	}
	if err := l.spill(ctx); err != nil {
		return nil, err
	}
	failures := l.reconcile(ctx, l.tracker.Wait())
	if len(failures) > 0 && !fo.continueOnWriteError {
		return nil, FirstError(failures)
	}
	confirmed := l.takeConfirmed()
	var err error
	if fo.eager {
		err = l.flushEager(ctx, confirmed)
	} else {
		err = l.flushLocked(ctx, fo.lockTimeout, confirmed)
	}
	if err != nil {
		// keep confirmed entries pending so a retried Flush publishes them
		for _, entry := range confirmed {
			l.pending = append(l.pending, pendingFile{entry: entry, state: fileConfirmed})
		}
		return failures, err
	}
	l.warned = false
	if fo.continueOnWriteError {
		return failures, nil
	}
	return nil, nil
}

// reconcile settles pending entries against the Dumper's failure report:
// entries whose persist failed are dropped and their partial files deleted,
// the rest are confirmed. It returns the failures belonging to this list.
func (l *Biglist[T]) reconcile(ctx context.Context, failures []WriteFailure) []WriteFailure {
	failed := make(map[string]error, len(failures))
	for _, failure := range failures {
		failed[failure.URL] = failure.Err
	}
	var mine []WriteFailure
	kept := l.pending[:0]
	for _, p := range l.pending {
		destURL := url.Join(l.baseURL, p.entry.Name)
		if err, ok := failed[destURL]; ok {
			p.state = fileFailed
			mine = append(mine, WriteFailure{URL: destURL, Err: err})
			l.logger.Warnf("biglist: dropping data file %v that failed to persist: %v", destURL, err)
			if exists, _ := l.fs.Exists(ctx, destURL); exists {
				_ = l.fs.Delete(ctx, destURL)
			}
			continue
		}
		p.state = fileConfirmed
		kept = append(kept, p)
	}
	l.pending = kept
	return mine
}

func (l *Biglist[T]) takeConfirmed() []FileEntry {
	confirmed := make([]FileEntry, 0, len(l.pending))
	for _, p := range l.pending {
		if p.state == fileConfirmed {
			confirmed = append(confirmed, p.entry)
		}
	}
	l.pending = nil
	return confirmed
}

// flushEager appends confirmed entries to this writer's interim record and
// folds them into the in-memory snapshot, without touching the lock or the
// durable index.
func (l *Biglist[T]) flushEager(ctx context.Context, confirmed []FileEntry) error {
	if len(confirmed) == 0 {
		return nil
	}
	recordURL := url.Join(interimBaseURL(l.baseURL), l.writerID+".json")
	if ok, _ := l.fs.Exists(ctx, recordURL); ok {
		previous, err := loadInterim(ctx, l.fs, recordURL)
		if err != nil {
			return err
		}
		confirmed = append(previous, confirmed...)
	}
	if err := saveInterim(ctx, l.fs, recordURL, confirmed); err != nil {
		return err
	}
	l.entries = mergeEntries(l.entries, confirmed)
	l.invalidateCache()
	return nil
}

// flushLocked merges this writer's confirmed entries, plus every outstanding
// interim record, into the durable index under the lock. The index is
// re-read inside the lock so concurrent writers' updates compose instead of
// clobbering each other. Interim records are deleted only after the merged
// index persisted; re-consuming one is harmless because the merge dedups.
func (l *Biglist[T]) flushLocked(ctx context.Context, timeout time.Duration, confirmed []FileEntry) error {
	guard, err := l.lock.Acquire(ctx, timeout)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := guard.Release(ctx); releaseErr != nil {
			l.logger.Warnf("biglist: release index lock %v: %v", l.baseURL, releaseErr)
		}
	}()
	info, err := loadInfo(ctx, l.fs, l.baseURL)
	if err != nil {
		return err
	}
	interimURLs, err := listInterimRecords(ctx, l.fs, l.baseURL)
	if err != nil {
		return err
	}
	additions := confirmed
	for _, recordURL := range interimURLs {
		entries, err := loadInterim(ctx, l.fs, recordURL)
		if err != nil {
			return err
		}
		additions = append(additions, entries...)
	}
	if len(additions) > 0 {
		info.DataFilesInfo = mergeEntries(info.DataFilesInfo, additions)
		if err := saveInfo(ctx, l.fs, l.baseURL, info); err != nil {
			return err
		}
	}
	for _, recordURL := range interimURLs {
		_ = l.fs.Delete(ctx, recordURL)
	}
	l.info = info
	l.entries = info.DataFilesInfo
	l.invalidateCache()
	return nil
}

// Info returns the writer's current view of the durable index record.
func (l *Biglist[T]) Info() Info { return *l.info }

// BatchSize returns the maximum number of elements per data file.
func (l *Biglist[T]) BatchSize() int { return l.batchSize }

// Destroy deletes the entire dataset, data files included.
func (l *Biglist[T]) Destroy(ctx context.Context) error {
	l.buffer = nil
	l.pending = nil
	l.entries = nil
	l.invalidateCache()
	return l.fs.Delete(ctx, l.baseURL)
}

var nameMu sync.Mutex
var lastStamp time.Time

// dataFileName builds a collision-free data file name:
// {UTC datetime to the microsecond}_{16 random hex}_{batch length}.{ext}.
// Timestamps are forced strictly increasing within the process so names from
// one writer sort in creation order even on sub-microsecond spills.
func dataFileName(count int, ext string) (string, error) {
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", err
	}
	nameMu.Lock()
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(lastStamp) {
		now = lastStamp.Add(time.Microsecond)
	}
	lastStamp = now
	nameMu.Unlock()
	stamp := now.Format("20060102150405.000000")
	return fmt.Sprintf("%s_%s_%d.%s", stamp, hex.EncodeToString(suffix[:]), count, ext), nil
}
