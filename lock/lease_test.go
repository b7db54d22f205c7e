package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/viant/afs"
)

func TestLeaseAcquireRelease(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	URL := "mem://localhost/biglist/lock/basic.lock"

	lease := NewLease(fs, URL, WithSettle(0))
	guard, err := lease.Acquire(ctx, time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if guard.Generation() != 1 {
		t.Fatalf("expected generation 1, got %d", guard.Generation())
	}
	if err := guard.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	guard, err = lease.Acquire(ctx, time.Second)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	if guard.Generation() != 2 {
		t.Fatalf("expected generation 2, got %d", guard.Generation())
	}
	if err := guard.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
}

func TestLeaseContention(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	URL := "mem://localhost/biglist/lock/contended.lock"

	holder := NewLease(fs, URL, WithSettle(0))
	guard, err := holder.Acquire(ctx, time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	contender := NewLease(fs, URL, WithSettle(0))
	if _, err := contender.Acquire(ctx, 100*time.Millisecond); !errors.Is(err, ErrAcquire) {
		t.Fatalf("expected ErrAcquire, got %v", err)
	}

	if err := guard.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	guard, err = contender.Acquire(ctx, time.Second)
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	if err := guard.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
}

func TestLeaseExpiredTakeover(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	URL := "mem://localhost/biglist/lock/expired.lock"

	holder := NewLease(fs, URL, WithSettle(0), WithTTL(time.Millisecond))
	stale, err := holder.Acquire(ctx, time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	contender := NewLease(fs, URL, WithSettle(0))
	guard, err := contender.Acquire(ctx, time.Second)
	if err != nil {
		t.Fatalf("takeover failed: %v", err)
	}
	if guard.Generation() <= stale.Generation() {
		t.Fatalf("expected takeover generation above %d, got %d", stale.Generation(), guard.Generation())
	}

	// the stale holder is fenced out
	if err := stale.Release(ctx); err == nil {
		t.Fatal("expected stale release to fail")
	}
	if err := guard.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
}
