package lock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

const (
	defaultTTL     = time.Minute
	defaultTimeout = 2 * time.Minute
	defaultSettle  = 20 * time.Millisecond
)

var errHeld = errors.New("lock: lease held")

// leaseRecord is the JSON body of a lease file.
type leaseRecord struct {
	Owner      string    `json:"owner"`
	Generation uint64    `json:"generation"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Lease is a Lock backed by a lease file at a storage URL. An acquire writes
// a record carrying the owner id and an incremented generation, then reads it
// back after a settle delay; the acquire succeeds only when the read-back
// still names this owner. The generation is the fencing token: release and
// renewal verify it, so a holder that lost its lease cannot clobber the
// current holder's record. Expired leases are taken over.
//
// For file:// URLs an OS advisory flock on the lease file is held for the
// duration of the guard as well, which closes the settle window entirely on
// local filesystems. On backends without conditional writes two contenders
// writing within one settle window can both pass verification; raise
// WithSettle well above the store's write-to-read latency, or supply a Lock
// built on a conditional-write primitive where strict mutual exclusion is
// required.
type Lease struct {
	fs     afs.Service
	URL    string
	owner  string
	ttl    time.Duration
	settle time.Duration
}

// LeaseOption mutates a Lease.
type LeaseOption func(*Lease)

// WithTTL sets how long an unreleased lease stays valid before takeover.
func WithTTL(ttl time.Duration) LeaseOption {
	return func(l *Lease) { l.ttl = ttl }
}

// WithSettle sets the delay between writing a lease record and verifying it.
func WithSettle(settle time.Duration) LeaseOption {
	return func(l *Lease) { l.settle = settle }
}

// NewLease returns a lease lock on the supplied URL.
func NewLease(fs afs.Service, URL string, opts ...LeaseOption) *Lease {
	lease := &Lease{
		fs:     fs,
		URL:    URL,
		owner:  uuid.NewString(),
		ttl:    defaultTTL,
		settle: defaultSettle,
	}
	for _, opt := range opts {
		opt(lease)
	}
	return lease
}

// Acquire attempts to take the lease, retrying with exponential backoff until
// timeout elapses. It returns ErrAcquire when the lease stayed held.
func (l *Lease) Acquire(ctx context.Context, timeout time.Duration) (Guard, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
		backoff.WithMaxInterval(500*time.Millisecond),
		backoff.WithMaxElapsedTime(timeout)), ctx)
	var guard *leaseGuard
	err := backoff.Retry(func() error {
		g, err := l.tryAcquire(ctx)
		if err != nil {
			return err
		}
		guard = g
		return nil
	}, policy)
	if err != nil {
		if errors.Is(err, errHeld) || errors.Is(err, errWouldBlock) {
			return nil, fmt.Errorf("%w: %v", ErrAcquire, l.URL)
		}
		return nil, err
	}
	return guard, nil
}

func (l *Lease) tryAcquire(ctx context.Context) (*leaseGuard, error) {
	var current leaseRecord
	if ok, _ := l.fs.Exists(ctx, l.URL); ok {
		data, err := l.fs.DownloadWithURL(ctx, l.URL)
		if err == nil && json.Unmarshal(data, &current) == nil {
			if current.Owner != "" && current.Owner != l.owner && time.Now().Before(current.ExpiresAt) {
				return nil, errHeld
			}
		}
	}
	var flock *os.File
	if l.isLocal() {
		f, err := tryFlock(url.Path(l.URL))
		if err != nil {
			return nil, err
		}
		flock = f
	}
	next := leaseRecord{
		Owner:      l.owner,
		Generation: current.Generation + 1,
		ExpiresAt:  time.Now().Add(l.ttl),
	}
	if err := l.write(ctx, next, flock); err != nil {
		releaseFlock(flock)
		return nil, err
	}
	if flock == nil && l.settle > 0 {
		select {
		case <-ctx.Done():
			return nil, backoff.Permanent(ctx.Err())
		case <-time.After(l.settle):
		}
	}
	got, err := l.read(ctx, flock)
	if err != nil {
		releaseFlock(flock)
		return nil, err
	}
	if got.Owner != l.owner || got.Generation != next.Generation {
		releaseFlock(flock)
		return nil, errHeld
	}
	return &leaseGuard{lease: l, record: next, flock: flock}, nil
}

func (l *Lease) isLocal() bool {
	return url.Scheme(l.URL, file.Scheme) == file.Scheme
}

func (l *Lease) write(ctx context.Context, record leaseRecord, flock *os.File) error {
	body, err := json.Marshal(record)
	if err != nil {
		return backoff.Permanent(err)
	}
	if flock != nil {
		// the flocked handle is the lease file; write through it
		if err := flock.Truncate(0); err != nil {
			return err
		}
		if _, err := flock.WriteAt(body, 0); err != nil {
			return err
		}
		return flock.Sync()
	}
	return l.fs.Upload(ctx, l.URL, file.DefaultFileOsMode, bytes.NewReader(body))
}

func (l *Lease) read(ctx context.Context, flock *os.File) (leaseRecord, error) {
	var record leaseRecord
	var data []byte
	var err error
	if flock != nil {
		data, err = os.ReadFile(flock.Name())
	} else {
		data, err = l.fs.DownloadWithURL(ctx, l.URL)
	}
	if err != nil {
		return record, err
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, err
	}
	return record, nil
}

type leaseGuard struct {
	lease    *Lease
	record   leaseRecord
	flock    *os.File
	released bool
}

func (g *leaseGuard) Generation() uint64 { return g.record.Generation }

// Release verifies the fencing generation before removing the lease record;
// a guard that was taken over returns an error and leaves the newer lease
// intact.
func (g *leaseGuard) Release(ctx context.Context) error {
	if g.released {
		return nil
	}
	g.released = true
	defer releaseFlock(g.flock)
	current, err := g.lease.read(ctx, g.flock)
	if err != nil {
		return err
	}
	if current.Owner != g.record.Owner || current.Generation != g.record.Generation {
		return fmt.Errorf("lock: lease %v taken over at generation %d", g.lease.URL, current.Generation)
	}
	released := leaseRecord{Generation: g.record.Generation}
	return g.lease.write(ctx, released, g.flock)
}

func releaseFlock(f *os.File) {
	if f == nil {
		return
	}
	_ = unflock(f)
}
