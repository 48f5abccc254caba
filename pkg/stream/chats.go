package stream

import (
	"context"
	"fmt"
	"time"

	"ex-chatflow/pkg/chatflow"
)

const defaultPageSize = 20

// Option mutates chat stream configuration.
type Option func(*config)

type config struct {
	contextID string
	before    time.Time
	pageSize  int
	clock     func() time.Time
}

func newConfig(options []Option) config {
	cfg := config{
		pageSize: defaultPageSize,
		clock:    time.Now,
	}
	for _, option := range options {
		option(&cfg)
	}

	return cfg
}

// WithContext restricts RecentChats to children of one context.
func WithContext(contextID string) Option {
	return func(cfg *config) {
		cfg.contextID = contextID
	}
}

// WithBefore starts RecentChats strictly before t instead of now.
func WithBefore(t time.Time) Option {
	return func(cfg *config) {
		if !t.IsZero() {
			cfg.before = t
		}
	}
}

// WithPageSize sets how many interactions one pull requests.
func WithPageSize(size int) Option {
	return func(cfg *config) {
		if size > 0 {
			cfg.pageSize = size
		}
	}
}

func withClock(clock func() time.Time) Option {
	return func(cfg *config) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// RecentChats streams interactions newest first.
//
// Each pull requests one page strictly before the cursor and moves the cursor to
// the oldest item of that page. A page shorter than the page size ends the
// stream.
func RecentChats(pager chatflow.Pager, options ...Option) *Stream[chatflow.Interaction] {
	cfg := newConfig(options)
	cursor := cfg.before
	if cursor.IsZero() {
		cursor = cfg.clock()
	}

	return New(func(ctx context.Context) ([]chatflow.Interaction, bool, error) {
		page, err := pager.Page(ctx, chatflow.PageQuery{
			ContextID: cfg.contextID,
			Before:    cursor,
			Limit:     cfg.pageSize,
			Order:     chatflow.OrderDesc,
		})
		if err != nil {
			return nil, false, fmt.Errorf("recent chats page before %s: %w", cursor.Format(time.RFC3339Nano), err)
		}
		if len(page) > 0 {
			cursor = page[len(page)-1].CreatedAt
		}

		return page, len(page) < cfg.pageSize, nil
	})
}

// TraceBack streams the ancestry of start, newest first within each level and
// then the containing node.
//
// For a chat turn inside a context, each pull returns one page of older turns in
// the same context. When none are left it yields the containing context and
// continues from there. Containers and top-level turns go straight to their
// parent. The stream ends when no parent exists. start itself is not yielded.
// A parent that is not strictly older than its child fails the stream with
// chatflow.ErrInvalidInteraction.
func TraceBack(pager chatflow.Pager, start chatflow.Interaction, options ...Option) *Stream[chatflow.Interaction] {
	cfg := newConfig(options)
	current := start

	return New(func(ctx context.Context) ([]chatflow.Interaction, bool, error) {
		if current.Kind.IsLeaf() && current.ContextID != "" {
			siblings, err := pager.Page(ctx, chatflow.PageQuery{
				ContextID: current.ContextID,
				Before:    current.CreatedAt,
				Limit:     cfg.pageSize,
				Order:     chatflow.OrderDesc,
			})
			if err != nil {
				return nil, false, fmt.Errorf("trace back siblings of %s: %w", current.ID, err)
			}
			if len(siblings) > 0 {
				current = siblings[len(siblings)-1]
				return siblings, false, nil
			}
		}

		parent, found, err := pager.Parent(ctx, current.ID)
		if err != nil {
			return nil, false, fmt.Errorf("trace back parent of %s: %w", current.ID, err)
		}
		if !found {
			return nil, true, nil
		}
		if !parent.CreatedAt.Before(current.CreatedAt) {
			return nil, false, fmt.Errorf("trace back parent of %s: %s is not older: %w",
				current.ID, parent.ID, chatflow.ErrInvalidInteraction)
		}
		current = parent

		return []chatflow.Interaction{parent}, false, nil
	})
}
