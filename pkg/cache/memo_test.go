package cache

import (
	"context"
	"errors"
	"testing"
)

// TestMemoFetchCachesPresentValues verifies hits skip the fetch function.
func TestMemoFetchCachesPresentValues(t *testing.T) {
	t.Parallel()

	calls := 0
	memo := CachedWith[string, int](NewLRU[string](8))(func(_ context.Context, key string) (State[int], error) {
		calls++
		return Present(len(key)), nil
	})

	for idx := 0; idx < 3; idx++ {
		state, err := memo.Fetch(context.Background(), "abc")
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if value, ok := state.Get(); !ok || value != 3 {
			t.Fatalf("fetch = %d, %v, want 3, true", value, ok)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", calls)
	}
}

// TestMemoFetchDoesNotStoreAbsenceOrErrors verifies failures and absence always refetch.
func TestMemoFetchDoesNotStoreAbsenceOrErrors(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	tests := []struct {
		name    string
		state   State[int]
		err     error
		wantErr error
	}{
		{name: "absent", state: Absent[int]()},
		{name: "error", err: errBoom, wantErr: errBoom},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			memo := CachedWith[string, int](nil)(func(context.Context, string) (State[int], error) {
				calls++
				return testCase.state, testCase.err
			})

			for idx := 0; idx < 2; idx++ {
				state, err := memo.Fetch(context.Background(), "k")
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("fetch error = %v, want %v", err, testCase.wantErr)
				}
				if !state.IsAbsent() {
					t.Fatal("expected absent state")
				}
			}
			if calls != 2 {
				t.Fatalf("fetch calls = %d, want 2", calls)
			}
			if memo.Cached("k") {
				t.Fatal("expected nothing cached")
			}
		})
	}
}

// TestMemoUpdate verifies updater semantics for cached, uncached, and failing keys.
func TestMemoUpdate(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	memo := CachedWith[string, int](nil)(func(context.Context, string) (State[int], error) {
		return Present(10), nil
	})

	fnCalls := 0
	state, err := memo.Update("cold", func(current int) (State[int], error) {
		fnCalls++
		return Present(current + 1), nil
	})
	if err != nil || !state.IsAbsent() || fnCalls != 0 {
		t.Fatalf("uncached update = %v, %v, calls %d, want absent, nil, 0", state, err, fnCalls)
	}

	if _, err := memo.Fetch(context.Background(), "k"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	state, err = memo.Update("k", func(current int) (State[int], error) {
		return Present(current + 1), nil
	})
	if value, _ := state.Get(); err != nil || value != 11 {
		t.Fatalf("update = %d, %v, want 11, nil", value, err)
	}

	_, err = memo.Update("k", func(int) (State[int], error) {
		return Absent[int](), errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("update error = %v, want %v", err, errBoom)
	}
	if memo.Cached("k") {
		t.Fatal("expected failing updater to evict entry")
	}
}

// TestMemoRecoversPanics verifies a panicking fetch surfaces as an error.
func TestMemoRecoversPanics(t *testing.T) {
	t.Parallel()

	memo := CachedWith[int, int](nil)(func(context.Context, int) (State[int], error) {
		panic("fetch exploded")
	})

	if _, err := memo.Fetch(context.Background(), 1); err == nil {
		t.Fatal("expected panic to become an error")
	}
}

// TestMemoPrimeAndForget verifies direct writes bypass and reset the fetch function.
func TestMemoPrimeAndForget(t *testing.T) {
	t.Parallel()

	calls := 0
	memo := CachedWith[string, string](NewUnlimited[string](nil, nil))(func(_ context.Context, key string) (State[string], error) {
		calls++
		return Present("fetched-" + key), nil
	})

	memo.Prime("a", "primed")
	state, _ := memo.Fetch(context.Background(), "a")
	if value, _ := state.Get(); value != "primed" || calls != 0 {
		t.Fatalf("fetch after prime = %q, calls %d, want primed, 0", value, calls)
	}

	memo.Forget("a")
	state, _ = memo.Fetch(context.Background(), "a")
	if value, _ := state.Get(); value != "fetched-a" || calls != 1 {
		t.Fatalf("fetch after forget = %q, calls %d, want fetched-a, 1", value, calls)
	}
	if memo.Len() != 1 {
		t.Fatalf("len = %d, want 1", memo.Len())
	}
}
