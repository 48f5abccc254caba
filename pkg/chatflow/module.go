package chatflow

import "context"

// ModuleRuntime provides kernel facilities to modules during registration.
type ModuleRuntime interface {
	// Services exposes the service registry for dependency lookup.
	Services() ServiceRegistry
}

// Module is a lifecycle-aware unit owning one slice of reactive state.
//
// Caches and hubs created by a module live until OnShutdown, which is where
// per-scope singletons are released.
type Module interface {
	// Name returns a stable module identifier.
	Name() string
	// OnRegister is called once when the module is registered.
	OnRegister(ctx context.Context, runtime ModuleRuntime) error
	// OnStart is called when the kernel starts.
	OnStart(ctx context.Context) error
	// OnShutdown is called during orderly shutdown.
	OnShutdown(ctx context.Context) error
}
