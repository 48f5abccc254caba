package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ex-chatflow/pkg/cache"
	"ex-chatflow/pkg/chatflow"
	"ex-chatflow/pkg/event"
)

const defaultCacheSize = 256

// Option mutates profile module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithCacheSize sets how many profiles stay cached.
func WithCacheSize(size int) Option {
	return func(module *Module) {
		if size > 0 {
			module.cacheSize = size
		}
	}
}

// WithStore injects a profile store directly, bypassing service lookup.
func WithStore(store chatflow.ProfileStore) Option {
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

// Module caches profiles and notifies watchers after every persisted change.
type Module struct {
	logger    *slog.Logger
	store     chatflow.ProfileStore
	cacheSize int
	clock     func() time.Time

	stats *cache.Stats[string]
	memo  *cache.AsyncMemo[string, chatflow.Profile]
	hub   *event.Hub[chatflow.ProfileEvent]
}

// New creates a profile module.
func New(options ...Option) *Module {
	module := &Module{
		logger:    slog.Default(),
		cacheSize: defaultCacheSize,
		clock:     time.Now,
		hub:       event.NewHub[chatflow.ProfileEvent](),
	}
	for _, option := range options {
		option(module)
	}

	module.stats = cache.NewStats[string](cache.NewLRU[string](module.cacheSize))
	module.memo = cache.CachedWithAsync[string, chatflow.Profile](module.stats)(module.fetch)

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "profiles"
}

// OnRegister resolves the store and registers the module as the profiles service.
func (m *Module) OnRegister(_ context.Context, runtime chatflow.ModuleRuntime) error {
	logger, err := chatflow.ResolveAs[*slog.Logger](runtime.Services(), chatflow.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, chatflow.ErrServiceNotFound):
	default:
		return fmt.Errorf("profiles resolve logger: %w", err)
	}

	if m.store == nil {
		store, err := chatflow.ResolveAs[chatflow.ProfileStore](runtime.Services(), chatflow.ServiceProfileStore)
		if err != nil {
			return fmt.Errorf("profiles resolve store: %w", err)
		}
		m.store = store
	}

	if err := runtime.Services().Register(chatflow.ServiceProfiles, m); err != nil {
		return fmt.Errorf("profiles register service %s: %w", chatflow.ServiceProfiles, err)
	}

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(ctx context.Context) error {
	m.logger.InfoContext(ctx, "profiles module started", "module", m.Name(), "cache_size", m.cacheSize)

	return nil
}

// OnShutdown reports cache statistics.
func (m *Module) OnShutdown(ctx context.Context) error {
	stats := m.stats.Snapshot()
	m.logger.InfoContext(ctx,
		"profiles module stopped",
		"module", m.Name(),
		"cached", m.memo.Len(),
		"hits", stats.Hits,
		"adds", stats.Adds,
		"evictions", stats.Evictions,
	)

	return nil
}

// Profile returns one profile. found is false when the store has no such profile.
func (m *Module) Profile(ctx context.Context, id string) (chatflow.Profile, bool, error) {
	state, err := m.memo.Fetch(ctx, id).Await(ctx)
	if err != nil {
		return chatflow.Profile{}, false, fmt.Errorf("load profile %s: %w", id, err)
	}
	profile, found := state.Get()

	return profile, found, nil
}

// Save persists profile, refreshes the cache, and notifies watchers.
func (m *Module) Save(ctx context.Context, profile chatflow.Profile) (chatflow.Profile, error) {
	profile.UpdatedAt = m.clock()
	if err := profile.Validate(); err != nil {
		return chatflow.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	if err := m.store.SaveProfile(ctx, profile); err != nil {
		return chatflow.Profile{}, fmt.Errorf("save profile %s: %w", profile.ID, err)
	}

	m.memo.Prime(profile.ID, profile)
	m.notify(ctx, profile)

	return profile, nil
}

// Update applies fn to the current profile and persists the result.
//
// Updates to one profile are chained in call order. When fn or persistence
// fails the cached profile is dropped, so the next read reloads it from the
// store, and the failure is returned.
func (m *Module) Update(
	ctx context.Context,
	id string,
	fn func(current chatflow.Profile) (chatflow.Profile, error),
) (chatflow.Profile, error) {
	_, found, err := m.Profile(ctx, id)
	if err != nil {
		return chatflow.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	if !found {
		return chatflow.Profile{}, fmt.Errorf("update profile %s: %w", id, chatflow.ErrNotFound)
	}

	persistCtx := context.WithoutCancel(ctx)
	future := m.memo.Update(id, func(current chatflow.Profile) (cache.State[chatflow.Profile], error) {
		next, err := fn(current)
		if err != nil {
			return cache.Absent[chatflow.Profile](), err
		}
		next.ID = current.ID
		next.UpdatedAt = m.clock()
		if err := next.Validate(); err != nil {
			return cache.Absent[chatflow.Profile](), err
		}
		if err := m.store.SaveProfile(persistCtx, next); err != nil {
			return cache.Absent[chatflow.Profile](), err
		}

		return cache.Present(next), nil
	})

	state, err := future.Await(ctx)
	if err != nil {
		return chatflow.Profile{}, fmt.Errorf("update profile %s: %w", id, err)
	}
	updated, ok := state.Get()
	if !ok {
		return chatflow.Profile{}, fmt.Errorf("update profile %s: %w", id, chatflow.ErrNotFound)
	}
	m.notify(ctx, updated)

	return updated, nil
}

// Watch registers handler for changes to one profile.
func (m *Module) Watch(id string, handler event.Handler[chatflow.ProfileEvent]) (unwatch func()) {
	return m.hub.Watch([]string{id}, handler)
}

// WatchAll registers handler for changes to every profile.
func (m *Module) WatchAll(handler event.Handler[chatflow.ProfileEvent]) (unwatch func()) {
	return m.hub.Watch(nil, handler)
}

// Stats returns cache counters.
func (m *Module) Stats() cache.StatsSnapshot {
	return m.stats.Snapshot()
}

func (m *Module) fetch(ctx context.Context, id string) (cache.State[chatflow.Profile], error) {
	profile, found, err := m.store.Profile(ctx, id)
	if err != nil {
		return cache.Absent[chatflow.Profile](), err
	}
	m.logger.DebugContext(ctx, "profile loaded", "profile_id", id, "found", found)

	return cache.StateOf(profile, found), nil
}

func (m *Module) notify(ctx context.Context, profile chatflow.Profile) {
	m.hub.Notify(ctx, []string{profile.ID}, chatflow.ProfileEvent{Profile: profile})
}
