// Package settings provides the client settings module: a write-through cache
// over the setting store that keeps every loaded key and notifies per-key
// watchers on change.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ex-chatflow/pkg/cache"
	"ex-chatflow/pkg/chatflow"
	"ex-chatflow/pkg/event"
)

// Option mutates settings module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithStore injects a setting store directly, bypassing service lookup.
func WithStore(store chatflow.SettingStore) Option {
	return func(module *Module) {
		if store != nil {
			module.store = store
		}
	}
}

// Module caches settings without eviction.
type Module struct {
	logger *slog.Logger
	store  chatflow.SettingStore

	memo *cache.Memo[string, string]
	hub  *event.Hub[chatflow.SettingEvent]
}

// New creates a settings module.
func New(options ...Option) *Module {
	module := &Module{
		logger: slog.Default(),
		hub:    event.NewHub[chatflow.SettingEvent](),
	}
	for _, option := range options {
		option(module)
	}

	strategy := cache.NewUnlimited(
		func(key string) {
			module.logger.Debug("setting cached", "key", key)
		},
		func(key string) {
			module.logger.Debug("setting dropped", "key", key)
		},
	)
	module.memo = cache.CachedWith[string, string](strategy)(module.fetch)

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "settings"
}

// OnRegister resolves the store and registers the module as the settings service.
func (m *Module) OnRegister(_ context.Context, runtime chatflow.ModuleRuntime) error {
	logger, err := chatflow.ResolveAs[*slog.Logger](runtime.Services(), chatflow.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, chatflow.ErrServiceNotFound):
	default:
		return fmt.Errorf("settings resolve logger: %w", err)
	}

	if m.store == nil {
		store, err := chatflow.ResolveAs[chatflow.SettingStore](runtime.Services(), chatflow.ServiceSettingStore)
		if err != nil {
			return fmt.Errorf("settings resolve store: %w", err)
		}
		m.store = store
	}

	if err := runtime.Services().Register(chatflow.ServiceSettings, m); err != nil {
		return fmt.Errorf("settings register service %s: %w", chatflow.ServiceSettings, err)
	}

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(ctx context.Context) error {
	m.logger.InfoContext(ctx, "settings module started", "module", m.Name())

	return nil
}

// OnShutdown reports how many settings were cached.
func (m *Module) OnShutdown(ctx context.Context) error {
	m.logger.InfoContext(ctx, "settings module stopped", "module", m.Name(), "cached", m.memo.Len())

	return nil
}

// Get returns one setting. found is false when the key was never set.
func (m *Module) Get(ctx context.Context, key string) (string, bool, error) {
	state, err := m.memo.Fetch(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	value, found := state.Get()

	return value, found, nil
}

// Set persists value, refreshes the cache, and notifies watchers of key.
func (m *Module) Set(ctx context.Context, key string, value string) error {
	if key == "" {
		return fmt.Errorf("set setting: empty key")
	}
	if err := m.store.SaveSetting(ctx, key, value); err != nil {
		m.memo.Forget(key)
		return fmt.Errorf("set setting %s: %w", key, err)
	}

	m.memo.Prime(key, value)
	m.hub.Notify(ctx, []string{key}, chatflow.SettingEvent{Key: key, Value: value})

	return nil
}

// Watch registers handler for changes to key.
func (m *Module) Watch(key string, handler event.Handler[chatflow.SettingEvent]) (unwatch func()) {
	return m.hub.Watch([]string{key}, handler)
}

// WatchAll registers handler for changes to every setting.
func (m *Module) WatchAll(handler event.Handler[chatflow.SettingEvent]) (unwatch func()) {
	return m.hub.Watch(nil, handler)
}

func (m *Module) fetch(ctx context.Context, key string) (cache.State[string], error) {
	value, found, err := m.store.Setting(ctx, key)
	if err != nil {
		return cache.Absent[string](), err
	}

	return cache.StateOf(value, found), nil
}
