package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// controlledFetch releases one pending fetch per send on results.
type controlledFetch struct {
	calls   atomic.Int32
	started chan string
	results chan fetchResult
}

type fetchResult struct {
	state State[int]
	err   error
}

func newControlledFetch() *controlledFetch {
	return &controlledFetch{
		started: make(chan string, 16),
		results: make(chan fetchResult),
	}
}

func (f *controlledFetch) fetch(ctx context.Context, key string) (State[int], error) {
	f.calls.Add(1)
	f.started <- key
	select {
	case result := <-f.results:
		return result.state, result.err
	case <-ctx.Done():
		return Absent[int](), ctx.Err()
	}
}

func (f *controlledFetch) waitStarted(t *testing.T) {
	t.Helper()

	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch to start")
	}
}

func awaitWithin(t *testing.T, future *Future[int]) (State[int], error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return future.Await(ctx)
}

// TestAsyncMemoCoalescesConcurrentFetches verifies one underlying fetch per key while pending.
func TestAsyncMemoCoalescesConcurrentFetches(t *testing.T) {
	t.Parallel()

	source := newControlledFetch()
	memo := CachedWithAsync[string, int](NewLRU[string](4))(source.fetch)

	const callers = 16
	futures := make([]*Future[int], callers)
	var wg sync.WaitGroup
	for idx := 0; idx < callers; idx++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			futures[idx] = memo.Fetch(context.Background(), "profile-1")
		}(idx)
	}
	wg.Wait()
	source.waitStarted(t)
	source.results <- fetchResult{state: Present(42)}

	for idx, future := range futures {
		if future != futures[0] {
			t.Fatalf("future %d differs from first future", idx)
		}
		state, err := awaitWithin(t, future)
		if value, _ := state.Get(); err != nil || value != 42 {
			t.Fatalf("await = %d, %v, want 42, nil", value, err)
		}
	}
	if calls := source.calls.Load(); calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", calls)
	}
}

// TestAsyncMemoEvictsFailedAndAbsentResults verifies self-healing before results are observable.
func TestAsyncMemoEvictsFailedAndAbsentResults(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	tests := []struct {
		name    string
		result  fetchResult
		wantErr error
	}{
		{name: "rejected", result: fetchResult{err: errBoom}, wantErr: errBoom},
		{name: "absent", result: fetchResult{state: Absent[int]()}},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			source := newControlledFetch()
			memo := CachedWithAsync[string, int](nil)(source.fetch)

			future := memo.Fetch(context.Background(), "k")
			source.waitStarted(t)
			source.results <- testCase.result

			state, err := awaitWithin(t, future)
			if !errors.Is(err, testCase.wantErr) {
				t.Fatalf("await error = %v, want %v", err, testCase.wantErr)
			}
			if !state.IsAbsent() {
				t.Fatal("expected absent state")
			}
			if memo.Cached("k") {
				t.Fatal("expected settled entry to be evicted")
			}

			retry := memo.Fetch(context.Background(), "k")
			if retry == future {
				t.Fatal("expected a fresh future after eviction")
			}
			source.waitStarted(t)
			source.results <- fetchResult{state: Present(7)}
			if _, err := awaitWithin(t, retry); err != nil {
				t.Fatalf("retry failed: %v", err)
			}
			if calls := source.calls.Load(); calls != 2 {
				t.Fatalf("fetch calls = %d, want 2", calls)
			}
		})
	}
}

// TestAsyncMemoStaleFailureKeepsNewerEntry verifies the identity check on late completions.
func TestAsyncMemoStaleFailureKeepsNewerEntry(t *testing.T) {
	t.Parallel()

	source := newControlledFetch()
	memo := CachedWithAsync[string, int](nil)(source.fetch)

	stale := memo.Fetch(context.Background(), "k")
	source.waitStarted(t)
	memo.Prime("k", 99)
	source.results <- fetchResult{err: errors.New("late failure")}

	if _, err := awaitWithin(t, stale); err == nil {
		t.Fatal("expected stale future to fail")
	}
	if !memo.Cached("k") {
		t.Fatal("expected primed entry to survive stale failure")
	}
	state, err := awaitWithin(t, memo.Fetch(context.Background(), "k"))
	if value, _ := state.Get(); err != nil || value != 99 {
		t.Fatalf("fetch = %d, %v, want 99, nil", value, err)
	}
}

// TestAsyncMemoUpdateSkipsPendingAbsent verifies the updater never sees a value that turns out absent.
func TestAsyncMemoUpdateSkipsPendingAbsent(t *testing.T) {
	t.Parallel()

	source := newControlledFetch()
	memo := CachedWithAsync[string, int](nil)(source.fetch)

	memo.Fetch(context.Background(), "k")
	source.waitStarted(t)

	var fnCalls atomic.Int32
	updated := memo.Update("k", func(current int) (State[int], error) {
		fnCalls.Add(1)
		return Present(current + 1), nil
	})
	if updated.Settled() {
		t.Fatal("expected update to wait for pending fetch")
	}

	source.results <- fetchResult{state: Absent[int]()}
	state, err := awaitWithin(t, updated)
	if err != nil || !state.IsAbsent() {
		t.Fatalf("update = %v, %v, want absent, nil", state, err)
	}
	if calls := fnCalls.Load(); calls != 0 {
		t.Fatalf("updater calls = %d, want 0", calls)
	}
	if memo.Cached("k") {
		t.Fatal("expected absent entry to be evicted")
	}
}

// TestAsyncMemoUpdateAppliesToResolvedValue verifies successful chained updates are cached.
func TestAsyncMemoUpdateAppliesToResolvedValue(t *testing.T) {
	t.Parallel()

	source := newControlledFetch()
	memo := CachedWithAsync[string, int](nil)(source.fetch)

	memo.Fetch(context.Background(), "k")
	source.waitStarted(t)
	updated := memo.Update("k", func(current int) (State[int], error) {
		return Present(current * 2), nil
	})
	source.results <- fetchResult{state: Present(21)}

	state, err := awaitWithin(t, updated)
	if value, _ := state.Get(); err != nil || value != 42 {
		t.Fatalf("update = %d, %v, want 42, nil", value, err)
	}
	cached, err := awaitWithin(t, memo.Fetch(context.Background(), "k"))
	if value, _ := cached.Get(); err != nil || value != 42 {
		t.Fatalf("fetch after update = %d, %v, want 42, nil", value, err)
	}
	if calls := source.calls.Load(); calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", calls)
	}
}

// TestAsyncMemoUpdateFailures verifies failing updaters evict and propagate.
func TestAsyncMemoUpdateFailures(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	tests := []struct {
		name    string
		fn      UpdateFunc[int]
		wantErr bool
		wantIs  error
	}{
		{
			name:    "updater error",
			fn:      func(int) (State[int], error) { return Absent[int](), errBoom },
			wantErr: true,
			wantIs:  errBoom,
		},
		{
			name:    "updater panic",
			fn:      func(int) (State[int], error) { panic("updater exploded") },
			wantErr: true,
		},
		{
			name: "updater returns absent",
			fn:   func(int) (State[int], error) { return Absent[int](), nil },
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			memo := CachedWithAsync[string, int](nil)(func(context.Context, string) (State[int], error) {
				return Present(1), nil
			})
			if _, err := awaitWithin(t, memo.Fetch(context.Background(), "k")); err != nil {
				t.Fatalf("fetch failed: %v", err)
			}

			state, err := awaitWithin(t, memo.Update("k", testCase.fn))
			if (err != nil) != testCase.wantErr {
				t.Fatalf("update error = %v, want error %v", err, testCase.wantErr)
			}
			if testCase.wantIs != nil && !errors.Is(err, testCase.wantIs) {
				t.Fatalf("update error = %v, want %v", err, testCase.wantIs)
			}
			if !state.IsAbsent() {
				t.Fatal("expected absent state")
			}
			if memo.Cached("k") {
				t.Fatal("expected entry to be evicted")
			}
		})
	}
}

// TestAsyncMemoUpdateUncachedKey verifies updates never fetch on their own.
func TestAsyncMemoUpdateUncachedKey(t *testing.T) {
	t.Parallel()

	source := newControlledFetch()
	memo := CachedWithAsync[string, int](nil)(source.fetch)

	called := false
	future := memo.Update("missing", func(current int) (State[int], error) {
		called = true
		return Present(current), nil
	})
	state, err := awaitWithin(t, future)
	if err != nil || !state.IsAbsent() || called {
		t.Fatalf("update = %v, %v, called %v, want absent, nil, false", state, err, called)
	}
	if calls := source.calls.Load(); calls != 0 {
		t.Fatalf("fetch calls = %d, want 0", calls)
	}
}

// TestAsyncMemoFetchIgnoresCallerCancellation verifies one caller cannot cancel a shared fetch.
func TestAsyncMemoFetchIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	source := newControlledFetch()
	memo := CachedWithAsync[string, int](nil)(source.fetch)

	callerCtx, cancel := context.WithCancel(context.Background())
	future := memo.Fetch(callerCtx, "k")
	source.waitStarted(t)
	cancel()

	if _, err := future.Await(callerCtx); !errors.Is(err, context.Canceled) {
		t.Fatalf("await error = %v, want context canceled", err)
	}

	source.results <- fetchResult{state: Present(5)}
	state, err := awaitWithin(t, future)
	if value, _ := state.Get(); err != nil || value != 5 {
		t.Fatalf("await = %d, %v, want 5, nil", value, err)
	}
}

// TestAsyncMemoLRUEviction verifies the strategy bounds cached futures.
func TestAsyncMemoLRUEviction(t *testing.T) {
	t.Parallel()

	memo := CachedWithAsync[int, int](NewLRU[int](2))(func(_ context.Context, key int) (State[int], error) {
		return Present(key), nil
	})
	for key := 0; key < 3; key++ {
		if _, err := awaitWithin(t, memo.Fetch(context.Background(), key)); err != nil {
			t.Fatalf("fetch %d failed: %v", key, err)
		}
	}

	if memo.Cached(0) || !memo.Cached(1) || !memo.Cached(2) {
		t.Fatal("expected key 0 to be evicted")
	}
	memo.Forget(1)
	if memo.Len() != 1 {
		t.Fatalf("len = %d, want 1", memo.Len())
	}
}
