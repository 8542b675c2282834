package keylock

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquireMutualExclusion(t *testing.T) {
	r := New()
	ctx := context.Background()

	release, err := r.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		rel, err := r.Acquire(ctx, "k")
		if err != nil {
			t.Errorf("second Acquire: %v", err)
			return
		}
		close(acquired)
		rel()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire succeeded while first holder had not released")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never completed after release")
	}
}

func TestAcquireDistinctKeysDoNotBlock(t *testing.T) {
	r := New()
	ctx := context.Background()

	releaseA, err := r.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	defer releaseA()

	releaseB, err := r.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("Acquire b: %v", err)
	}
	releaseB()
}

func TestAcquireCancelledContextLeaksNothing(t *testing.T) {
	r := New()
	ctx := context.Background()

	release, err := r.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Acquire(cctx, "k"); err == nil {
		t.Fatal("expected context-cancelled Acquire to fail")
	}

	release()

	// The registry should not have leaked a reference: a fresh Acquire on
	// the same key must succeed immediately.
	release2, err := r.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("Acquire after cancel: %v", err)
	}
	release2()
}

func TestReleasedEntriesAreDropped(t *testing.T) {
	r := New()
	ctx := context.Background()

	for i := 0; i < sweepThreshold+5; i++ {
		rel, err := r.Acquire(ctx, keyFor(i))
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		rel()
	}

	if got := r.Len(); got != 0 {
		t.Fatalf("expected all transient entries swept, got %d remaining", got)
	}
}

func TestConcurrentAcquireSameKeySerializes(t *testing.T) {
	r := New()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rel, err := r.Acquire(ctx, "shared")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			rel()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most 1 concurrent holder, saw %d", maxSeen)
	}
}

func keyFor(i int) string {
	return string(rune('a' + i%26))
}
