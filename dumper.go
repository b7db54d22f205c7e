package biglist

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"golang.org/x/sync/semaphore"
)

// WriteFailure records one data file that failed to persist.
type WriteFailure struct {
	URL string
	Err error
}

// FirstError returns the first failure as an error, or nil.
func FirstError(failures []WriteFailure) error {
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("biglist: persist %v: %w", failures[0].URL, failures[0].Err)
}

// Tracker collects the completions and failures of one writer's submissions.
// Each writer owns its own Tracker, so lists sharing a Dumper drain and
// reconcile only their own jobs; the Dumper itself holds no per-job state.
// A Tracker is driven by a single writer: Submit and Wait on it must not run
// concurrently.
type Tracker struct {
	wg sync.WaitGroup

	mu       sync.Mutex
	failures []WriteFailure
}

// Wait blocks until every job submitted against this tracker has finished
// and returns the failures recorded since the previous Wait. Successful jobs
// leave no trace.
func (t *Tracker) Wait() []WriteFailure {
	t.wg.Wait()
	t.mu.Lock()
	defer t.mu.Unlock()
	failures := t.failures
	t.failures = nil
	return failures
}

// Dumper serializes and persists batches in the background, never exceeding
// a fixed number of in-flight jobs. One Dumper may be shared by several lists
// within a process; only the in-flight bound is shared, job outcomes stay
// with each submitter's Tracker. It does not survive process duplication;
// create a new one in the child process instead of inheriting it.
type Dumper struct {
	fs     afs.Service
	sem    *semaphore.Weighted
	weight int64
}

// NewDumper returns a Dumper persisting through fs with at most maxInflight
// concurrent jobs.
func NewDumper(fs afs.Service, maxInflight int) *Dumper {
	if maxInflight <= 0 {
		maxInflight = defaultWriterConcurrency
	}
	return &Dumper{fs: fs, sem: semaphore.NewWeighted(int64(maxInflight)), weight: int64(maxInflight)}
}

// Submit schedules one batch persist: encode is run on a background
// goroutine and its output uploaded to destURL. Submit blocks only while the
// in-flight limit is reached; that wait is the writer's sole backpressure
// point. The job's outcome is recorded on tracker, to be collected by its
// next Wait.
func (d *Dumper) Submit(ctx context.Context, tracker *Tracker, destURL string, encode func() ([]byte, error)) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	tracker.wg.Add(1)
	go func() {
		defer tracker.wg.Done()
		defer d.sem.Release(1)
		data, err := encode()
		if err == nil {
			err = d.fs.Upload(ctx, destURL, file.DefaultFileOsMode, bytes.NewReader(data))
		}
		if err != nil {
			tracker.mu.Lock()
			tracker.failures = append(tracker.failures, WriteFailure{URL: destURL, Err: err})
			tracker.mu.Unlock()
		}
	}()
	return nil
}

// Close drains every in-flight job, regardless of submitter, by taking the
// full semaphore weight.
func (d *Dumper) Close() error {
	if err := d.sem.Acquire(context.Background(), d.weight); err != nil {
		return err
	}
	d.sem.Release(d.weight)
	return nil
}
