package event

import (
	"context"
	"slices"
	"testing"
)

// TestSourceNotifyDeliversToRegisteredWatchers verifies basic fan-out and unwatch.
func TestSourceNotifyDeliversToRegisteredWatchers(t *testing.T) {
	t.Parallel()

	source := NewSource[string]()
	var got []string
	unwatchA := source.Watch(func(_ context.Context, value string) { got = append(got, "a:"+value) })
	unwatchB := source.Watch(func(_ context.Context, value string) { got = append(got, "b:"+value) })

	source.Notify(context.Background(), "x")
	if empty := unwatchA(); empty {
		t.Fatal("expected source to keep watcher b")
	}
	source.Notify(context.Background(), "y")
	if empty := unwatchB(); !empty {
		t.Fatal("expected source to be empty after last unwatch")
	}
	if empty := unwatchB(); !empty {
		t.Fatal("expected repeated unwatch to report empty")
	}
	source.Notify(context.Background(), "z")

	want := []string{"a:x", "b:x", "b:y"}
	if !slices.Equal(got, want) {
		t.Fatalf("delivered = %v, want %v", got, want)
	}
}

// TestSourceWatcherAddedDuringNotifyFiresNextRound verifies snapshot semantics for additions.
func TestSourceWatcherAddedDuringNotifyFiresNextRound(t *testing.T) {
	t.Parallel()

	source := NewSource[int]()
	var recorded []int
	source.Watch(func(_ context.Context, value int) {
		recorded = append(recorded, value)
		if value == 1 {
			source.Watch(func(_ context.Context, value int) {
				recorded = append(recorded, value*10)
			})
		}
	})

	source.Notify(context.Background(), 1)
	source.Notify(context.Background(), 2)

	if want := []int{1, 2, 20}; !slices.Equal(recorded, want) {
		t.Fatalf("recorded = %v, want %v", recorded, want)
	}
}

// TestSourceWatcherRemovedDuringNotifyStillFires verifies snapshot semantics for removals.
func TestSourceWatcherRemovedDuringNotifyStillFires(t *testing.T) {
	t.Parallel()

	source := NewSource[int]()
	var recorded []string
	var unwatchSecond func() bool
	source.Watch(func(_ context.Context, value int) {
		recorded = append(recorded, "first")
		unwatchSecond()
	})
	unwatchSecond = source.Watch(func(_ context.Context, value int) {
		recorded = append(recorded, "second")
	})

	source.Notify(context.Background(), 1)
	source.Notify(context.Background(), 2)

	if want := []string{"first", "second", "first"}; !slices.Equal(recorded, want) {
		t.Fatalf("recorded = %v, want %v", recorded, want)
	}
	if source.Len() != 1 {
		t.Fatalf("len = %d, want 1", source.Len())
	}
}

// TestSourceReentrantNotify verifies a handler may notify the same source.
func TestSourceReentrantNotify(t *testing.T) {
	t.Parallel()

	source := NewSource[int]()
	var recorded []int
	source.Watch(func(ctx context.Context, value int) {
		recorded = append(recorded, value)
		if value < 3 {
			source.Notify(ctx, value+1)
		}
	})

	source.Notify(context.Background(), 1)

	if want := []int{1, 2, 3}; !slices.Equal(recorded, want) {
		t.Fatalf("recorded = %v, want %v", recorded, want)
	}
}
