// Package chatflowtest provides in-memory collaborators for testing modules.
package chatflowtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"ex-chatflow/pkg/chatflow"
)

// Store is an in-memory InteractionStore, ProfileStore and SettingStore.
//
// Load counters let tests assert cache behavior. SetFailures makes
// loads or saves return an injected error.
type Store struct {
	mu           sync.Mutex
	interactions map[string]chatflow.Interaction
	profiles     map[string]chatflow.Profile
	settings     map[string]string

	InteractionLoads atomic.Int32
	ProfileLoads     atomic.Int32
	SettingLoads     atomic.Int32

	failLoad error
	failSave error
}

var (
	_ chatflow.InteractionStore = (*Store)(nil)
	_ chatflow.ProfileStore     = (*Store)(nil)
	_ chatflow.SettingStore     = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		interactions: make(map[string]chatflow.Interaction),
		profiles:     make(map[string]chatflow.Profile),
		settings:     make(map[string]string),
	}
}

// Interaction implements chatflow.InteractionStore.
func (s *Store) Interaction(_ context.Context, id string) (chatflow.Interaction, bool, error) {
	s.InteractionLoads.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failLoad != nil {
		return chatflow.Interaction{}, false, s.failLoad
	}
	interaction, found := s.interactions[id]

	return interaction, found, nil
}

// AppendInteraction implements chatflow.InteractionStore.
func (s *Store) AppendInteraction(_ context.Context, interaction chatflow.Interaction) error {
	if err := interaction.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSave != nil {
		return s.failSave
	}
	if _, exists := s.interactions[interaction.ID]; exists {
		return fmt.Errorf("append interaction %s: id already exists: %w", interaction.ID, chatflow.ErrInvalidInteraction)
	}
	s.interactions[interaction.ID] = interaction

	return nil
}

// Page implements chatflow.Pager.
func (s *Store) Page(_ context.Context, q chatflow.PageQuery) ([]chatflow.Interaction, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failLoad != nil {
		return nil, s.failLoad
	}
	matched := make([]chatflow.Interaction, 0)
	for _, interaction := range s.interactions {
		if q.ContextID != "" && interaction.ContextID != q.ContextID {
			continue
		}
		if interaction.CreatedAt.Before(q.Before) {
			matched = append(matched, interaction)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	if q.Order == chatflow.OrderAsc {
		for left, right := 0, len(matched)-1; left < right; left, right = left+1, right-1 {
			matched[left], matched[right] = matched[right], matched[left]
		}
	}

	return matched, nil
}

// Parent implements chatflow.Pager.
func (s *Store) Parent(_ context.Context, id string) (chatflow.Interaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	child, found := s.interactions[id]
	if !found || child.ContextID == "" {
		return chatflow.Interaction{}, false, nil
	}
	parent, found := s.interactions[child.ContextID]

	return parent, found, nil
}

// Profile implements chatflow.ProfileStore.
func (s *Store) Profile(_ context.Context, id string) (chatflow.Profile, bool, error) {
	s.ProfileLoads.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failLoad != nil {
		return chatflow.Profile{}, false, s.failLoad
	}
	profile, found := s.profiles[id]

	return profile, found, nil
}

// SaveProfile implements chatflow.ProfileStore.
func (s *Store) SaveProfile(_ context.Context, profile chatflow.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSave != nil {
		return s.failSave
	}
	s.profiles[profile.ID] = profile

	return nil
}

// Setting implements chatflow.SettingStore.
func (s *Store) Setting(_ context.Context, key string) (string, bool, error) {
	s.SettingLoads.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failLoad != nil {
		return "", false, s.failLoad
	}
	value, found := s.settings[key]

	return value, found, nil
}

// SaveSetting implements chatflow.SettingStore.
func (s *Store) SaveSetting(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSave != nil {
		return s.failSave
	}
	s.settings[key] = value

	return nil
}

// SetFailures replaces the injected load and save errors.
func (s *Store) SetFailures(load error, save error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failLoad = load
	s.failSave = save
}

// Registry is a minimal map-backed chatflow.ServiceRegistry.
type Registry struct {
	mu       sync.Mutex
	services map[string]any
}

// NewRegistry creates a registry holding services.
func NewRegistry(services map[string]any) *Registry {
	registry := &Registry{services: make(map[string]any, len(services))}
	for name, service := range services {
		registry.services[name] = service
	}

	return registry
}

// Register implements chatflow.ServiceRegistry.
func (r *Registry) Register(name string, service any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[name]; exists {
		return fmt.Errorf("register service %s: %w", name, chatflow.ErrServiceAlreadyRegistered)
	}
	r.services[name] = service

	return nil
}

// Resolve implements chatflow.ServiceRegistry.
func (r *Registry) Resolve(name string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	service, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("resolve service %s: %w", name, chatflow.ErrServiceNotFound)
	}

	return service, nil
}

// Runtime is a chatflow.ModuleRuntime over a Registry.
type Runtime struct {
	Registry chatflow.ServiceRegistry
}

// Services implements chatflow.ModuleRuntime.
func (r Runtime) Services() chatflow.ServiceRegistry {
	return r.Registry
}
