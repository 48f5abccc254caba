package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
)

// PullFunc produces the next page of items. done reports that no page follows.
type PullFunc[T any] func(ctx context.Context) (items []T, done bool, err error)

// Stream is a pull-driven lazy sequence of items.
//
// Items are buffered one page at a time: a page is pulled only when the buffer is
// empty, so the consumer's read rate paces the producer. A pull error is sticky
// and returned by every later Recv. Close cancels the stream and drops the pull
// function together with everything it references.
type Stream[T any] struct {
	recvMu sync.Mutex

	mu      sync.Mutex
	pull    PullFunc[T]
	pending []T
	done    bool
	err     error
	onClose func() error
}

// New creates a stream backed by pull.
func New[T any](pull PullFunc[T]) *Stream[T] {
	return &Stream[T]{pull: pull}
}

// Recv returns the next item.
//
// io.EOF is returned once the stream is finished or closed.
func (s *Stream[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	if ctx == nil {
		return zero, fmt.Errorf("stream recv: nil context")
	}

	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("stream recv context: %w", err)
		}

		item, ok, pull, err := s.next()
		if err != nil {
			return zero, err
		}
		if ok {
			return item, nil
		}

		items, done, pullErr := pull(ctx)
		s.mu.Lock()
		switch {
		case s.pull == nil:
			// Closed while pulling; drop the page.
		case pullErr != nil:
			s.err = fmt.Errorf("stream pull: %w", pullErr)
			s.pull = nil
		default:
			s.pending = append(s.pending, items...)
			if done {
				s.done = true
				s.pull = nil
			}
		}
		s.mu.Unlock()
	}
}

// next dequeues one buffered item, or returns the pull function to call when the
// buffer is empty and the stream is still open.
func (s *Stream[T]) next() (item T, ok bool, pull PullFunc[T], err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 {
		item = s.pending[0]
		var zero T
		s.pending[0] = zero
		s.pending = s.pending[1:]
		return item, true, nil, nil
	}
	if s.err != nil {
		return item, false, nil, s.err
	}
	if s.done || s.pull == nil {
		return item, false, nil, io.EOF
	}

	return item, false, s.pull, nil
}

// Close cancels the stream. Buffered items are discarded.
func (s *Stream[T]) Close() error {
	s.mu.Lock()
	s.pull = nil
	s.pending = nil
	s.done = true
	onClose := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	if onClose != nil {
		return onClose()
	}

	return nil
}

// All returns an iterator over the remaining items.
//
// Iteration stops after the first error, which is yielded with a zero item.
// Breaking out of the loop closes the stream.
func (s *Stream[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			item, err := s.Recv(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(item, err)
				return
			}
			if !yield(item, nil) {
				_ = s.Close()
				return
			}
		}
	}
}

// Collect drains s into a slice.
func Collect[T any](ctx context.Context, s *Stream[T]) ([]T, error) {
	items := make([]T, 0)
	for item, err := range s.All(ctx) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}

	return items, nil
}

// Filter returns a stream yielding only the items of src accepted by keep.
// Closing the returned stream closes src.
func Filter[T any](src *Stream[T], keep func(T) (bool, error)) *Stream[T] {
	filtered := New(func(ctx context.Context) ([]T, bool, error) {
		item, err := src.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return nil, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		ok, err := keep(item)
		if err != nil {
			return nil, false, fmt.Errorf("filter item: %w", err)
		}
		if !ok {
			return nil, false, nil
		}

		return []T{item}, false, nil
	})

	filtered.onClose = src.Close

	return filtered
}
