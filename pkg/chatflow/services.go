package chatflow

import (
	"context"
	"fmt"
)

const (
	// ServiceLogger is the optional service registry key for structured logging.
	ServiceLogger = "logger"
	// ServiceInteractionStore is the service registry key for the interaction store.
	ServiceInteractionStore = "chatflow.interaction_store"
	// ServiceProfileStore is the service registry key for the profile store.
	ServiceProfileStore = "chatflow.profile_store"
	// ServiceSettingStore is the service registry key for the setting store.
	ServiceSettingStore = "chatflow.setting_store"
	// ServiceProfiles is the service registry key for the profiles module.
	ServiceProfiles = "chatflow.profiles"
	// ServiceChats is the service registry key for the chats module.
	ServiceChats = "chatflow.chats"
	// ServiceSettings is the service registry key for the settings module.
	ServiceSettings = "chatflow.settings"
)

// ServiceRegistry provides runtime dependency injection to modules.
type ServiceRegistry interface {
	// Register binds a singleton service value to a stable name.
	Register(name string, service any) error
	// Resolve returns a registered service by name.
	Resolve(name string) (any, error)
}

// Disposer is implemented by services that release resources when the owning
// registry is disposed.
type Disposer interface {
	// Dispose releases service resources.
	Dispose(ctx context.Context) error
}

// ResolveAs resolves a service and casts it to the requested type.
func ResolveAs[T any](registry ServiceRegistry, name string) (T, error) {
	var zero T

	service, err := registry.Resolve(name)
	if err != nil {
		return zero, fmt.Errorf("resolve service %s: %w", name, err)
	}

	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("resolve service %s: type assertion failed", name)
	}

	return typed, nil
}
