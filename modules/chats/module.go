package chats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ex-chatflow/pkg/cache"
	"ex-chatflow/pkg/chatflow"
	"ex-chatflow/pkg/event"
	"ex-chatflow/pkg/stream"
)

const (
	defaultCacheSize = 1024
	defaultPageSize  = 20
)

// Option mutates chat module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithCacheSize sets how many interactions stay cached.
func WithCacheSize(size int) Option {
	return func(module *Module) {
		if size > 0 {
			module.cacheSize = size
		}
	}
}

// WithPageSize sets how many interactions one stream pull requests.
func WithPageSize(size int) Option {
	return func(module *Module) {
		if size > 0 {
			module.pageSize = size
		}
	}
}

// WithStore injects an interaction store directly, bypassing service lookup.
func WithStore(store chatflow.InteractionStore) Option {
	return func(module *Module) {
		if store != nil {
			module.store = store
		}
	}
}

func withClock(clock func() time.Time) Option {
	return func(module *Module) {
		if clock != nil {
			module.clock = clock
		}
	}
}

func withIDs(next func() string) Option {
	return func(module *Module) {
		if next != nil {
			module.nextID = next
		}
	}
}

// Module owns the interaction cache and the chat watcher hub.
type Module struct {
	logger    *slog.Logger
	store     chatflow.InteractionStore
	cacheSize int
	pageSize  int
	clock     func() time.Time
	nextID    func() string

	stats *cache.Stats[string]
	memo  *cache.AsyncMemo[string, chatflow.Interaction]
	hub   *event.Hub[chatflow.ChatEvent]
}

// New creates a chat module.
func New(options ...Option) *Module {
	module := &Module{
		logger:    slog.Default(),
		cacheSize: defaultCacheSize,
		pageSize:  defaultPageSize,
		clock:     time.Now,
		nextID:    uuid.NewString,
		hub:       event.NewHub[chatflow.ChatEvent](),
	}
	for _, option := range options {
		option(module)
	}

	module.stats = cache.NewStats[string](cache.NewLRU[string](module.cacheSize))
	module.memo = cache.CachedWithAsync[string, chatflow.Interaction](module.stats)(module.fetch)

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "chats"
}

// OnRegister resolves the store and registers the module as the chats service.
func (m *Module) OnRegister(_ context.Context, runtime chatflow.ModuleRuntime) error {
	logger, err := chatflow.ResolveAs[*slog.Logger](runtime.Services(), chatflow.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, chatflow.ErrServiceNotFound):
	default:
		return fmt.Errorf("chats resolve logger: %w", err)
	}

	if m.store == nil {
		store, err := chatflow.ResolveAs[chatflow.InteractionStore](runtime.Services(), chatflow.ServiceInteractionStore)
		if err != nil {
			return fmt.Errorf("chats resolve store: %w", err)
		}
		m.store = store
	}

	if err := runtime.Services().Register(chatflow.ServiceChats, m); err != nil {
		return fmt.Errorf("chats register service %s: %w", chatflow.ServiceChats, err)
	}

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(ctx context.Context) error {
	m.logger.InfoContext(ctx,
		"chats module started",
		"module", m.Name(),
		"cache_size", m.cacheSize,
		"page_size", m.pageSize,
	)

	return nil
}

// OnShutdown reports cache statistics.
func (m *Module) OnShutdown(ctx context.Context) error {
	stats := m.stats.Snapshot()
	m.logger.InfoContext(ctx,
		"chats module stopped",
		"module", m.Name(),
		"cached", m.memo.Len(),
		"hits", stats.Hits,
		"adds", stats.Adds,
		"evictions", stats.Evictions,
	)

	return nil
}

// Interaction returns one interaction. found is false when the store has no such id.
func (m *Module) Interaction(ctx context.Context, id string) (chatflow.Interaction, bool, error) {
	state, err := m.memo.Fetch(ctx, id).Await(ctx)
	if err != nil {
		return chatflow.Interaction{}, false, fmt.Errorf("load interaction %s: %w", id, err)
	}
	interaction, found := state.Get()

	return interaction, found, nil
}

// Append persists interaction and notifies watchers of its scope.
//
// A missing ID or CreatedAt is filled in. The stored interaction is returned.
func (m *Module) Append(ctx context.Context, interaction chatflow.Interaction) (chatflow.Interaction, error) {
	if interaction.ID == "" {
		interaction.ID = m.nextID()
	}
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = m.clock()
	}
	if err := interaction.Validate(); err != nil {
		return chatflow.Interaction{}, fmt.Errorf("append interaction: %w", err)
	}
	if err := m.store.AppendInteraction(ctx, interaction); err != nil {
		return chatflow.Interaction{}, fmt.Errorf("append interaction %s: %w", interaction.ID, err)
	}

	m.memo.Prime(interaction.ID, interaction)
	m.hub.Notify(ctx, interaction.ScopePath(), chatflow.ChatEvent{Interaction: interaction})
	m.logger.DebugContext(ctx,
		"interaction appended",
		"id", interaction.ID,
		"kind", interaction.Kind,
		"context_id", interaction.ContextID,
		"profile_id", interaction.ProfileID,
	)

	return interaction, nil
}

// Recent streams interactions newest first, optionally within one context and
// strictly before a cursor. A zero before starts from now.
func (m *Module) Recent(contextID string, before time.Time) *stream.Stream[chatflow.Interaction] {
	return stream.RecentChats(m.pager(),
		stream.WithContext(contextID),
		stream.WithBefore(before),
		stream.WithPageSize(m.pageSize),
	)
}

// TraceBack streams the ancestry of the interaction id.
func (m *Module) TraceBack(ctx context.Context, id string) (*stream.Stream[chatflow.Interaction], error) {
	start, found, err := m.Interaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("trace back: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("trace back %s: %w", id, chatflow.ErrNotFound)
	}

	return stream.TraceBack(m.pager(), start, stream.WithPageSize(m.pageSize)), nil
}

// Watch registers handler for appends under path.
//
// Paths follow chatflow.Interaction.ScopePath: nil watches everything, one
// segment watches a profile and two segments watch one thread of a profile.
func (m *Module) Watch(path []string, handler event.Handler[chatflow.ChatEvent]) (unwatch func()) {
	return m.hub.Watch(path, handler)
}

// Stats returns cache counters.
func (m *Module) Stats() cache.StatsSnapshot {
	return m.stats.Snapshot()
}

// pager serves pages from the store and primes the cache with what it reads,
// so walking history makes later lookups by id free.
func (m *Module) pager() chatflow.Pager {
	return chatflow.PagerFuncs{
		PageFunc: func(ctx context.Context, q chatflow.PageQuery) ([]chatflow.Interaction, error) {
			page, err := m.store.Page(ctx, q)
			if err != nil {
				return nil, err
			}
			for _, interaction := range page {
				m.memo.Prime(interaction.ID, interaction)
			}

			return page, nil
		},
		ParentFunc: func(ctx context.Context, id string) (chatflow.Interaction, bool, error) {
			child, found, err := m.Interaction(ctx, id)
			if err != nil || !found || child.ContextID == "" {
				return chatflow.Interaction{}, false, err
			}

			return m.Interaction(ctx, child.ContextID)
		},
	}
}

func (m *Module) fetch(ctx context.Context, id string) (cache.State[chatflow.Interaction], error) {
	interaction, found, err := m.store.Interaction(ctx, id)
	if err != nil {
		return cache.Absent[chatflow.Interaction](), err
	}

	return cache.StateOf(interaction, found), nil
}
