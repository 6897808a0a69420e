package guard

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTryAcquireConcurrent(t *testing.T) {
	t.Parallel()

	g := New(time.Minute)

	const goroutines = 32
	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := g.TryAcquire("stream-1"); ok {
				granted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := granted.Load(); got != 1 {
		t.Fatalf("expected exactly one acquisition, got %d", got)
	}
	if !g.Held("stream-1") {
		t.Fatalf("expected the lease to be held")
	}
}

func TestReleaseFreesSlot(t *testing.T) {
	t.Parallel()

	g := New(time.Minute)

	token, ok := g.TryAcquire("stream-1")
	if !ok {
		t.Fatalf("first acquire should succeed")
	}
	if _, ok := g.TryAcquire("stream-1"); ok {
		t.Fatalf("second acquire should be denied while held")
	}

	g.Release(token)
	if g.Held("stream-1") {
		t.Fatalf("lease should be free after release")
	}
	if _, ok := g.TryAcquire("stream-1"); !ok {
		t.Fatalf("acquire after release should succeed")
	}
}

func TestStaleTokenCannotRelease(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	g := New(time.Minute)
	g.now = func() time.Time { return now }

	stale, ok := g.TryAcquire("stream-1")
	if !ok {
		t.Fatalf("initial acquire should succeed")
	}

	// Let the lease expire and get reclaimed by a new holder.
	now = now.Add(2 * time.Minute)
	fresh, ok := g.TryAcquire("stream-1")
	if !ok {
		t.Fatalf("acquire after expiry should succeed")
	}

	// The stale token must not free the reissued lease.
	g.Release(stale)
	if !g.Held("stream-1") {
		t.Fatalf("stale release must not clear the new lease")
	}

	g.Release(fresh)
	if g.Held("stream-1") {
		t.Fatalf("fresh release should clear the lease")
	}
}

func TestRenewExtendsLease(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	g := New(time.Minute)
	g.now = func() time.Time { return now }

	token, ok := g.TryAcquire("stream-1")
	if !ok {
		t.Fatalf("acquire should succeed")
	}

	now = now.Add(45 * time.Second)
	if !g.Renew(token) {
		t.Fatalf("renew of a live lease should succeed")
	}

	// Past the original expiry but inside the renewed window.
	now = now.Add(45 * time.Second)
	if !g.Held("stream-1") {
		t.Fatalf("renewed lease should still be held")
	}

	// Once expired and reclaimed by another holder, the old token is dead.
	now = now.Add(2 * time.Minute)
	if _, ok := g.TryAcquire("stream-1"); !ok {
		t.Fatalf("reclaim after expiry should succeed")
	}
	if g.Renew(token) {
		t.Fatalf("renew of a reclaimed lease should fail")
	}
}

func TestIndependentStreams(t *testing.T) {
	t.Parallel()

	g := New(time.Minute)

	if _, ok := g.TryAcquire("stream-1"); !ok {
		t.Fatalf("acquire stream-1 should succeed")
	}
	if _, ok := g.TryAcquire("stream-2"); !ok {
		t.Fatalf("acquire stream-2 should not be blocked by stream-1")
	}
}
