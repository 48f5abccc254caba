package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"ex-chatflow/pkg/chatflow"
)

// ServiceRegistry is the default in-memory service registry implementation.
//
// It owns the per-scope singletons registered through it: Dispose releases
// every service implementing chatflow.Disposer or io.Closer in reverse
// registration order.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
	order    []string
	disposed bool
}

// NewServiceRegistry creates an empty service registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]any),
	}
}

// Register registers a named service singleton.
func (r *ServiceRegistry) Register(name string, service any) error {
	if name == "" {
		return fmt.Errorf("register service: empty name")
	}
	if isNilService(service) {
		return fmt.Errorf("register service %s: nil service", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return fmt.Errorf("register service %s: %w", name, chatflow.ErrKernelShutdown)
	}
	if _, exists := r.services[name]; exists {
		return fmt.Errorf("register service %s: %w", name, chatflow.ErrServiceAlreadyRegistered)
	}

	r.services[name] = service
	r.order = append(r.order, name)

	return nil
}

// Resolve returns a registered named service.
func (r *ServiceRegistry) Resolve(name string) (any, error) {
	if name == "" {
		return nil, fmt.Errorf("resolve service: empty name")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	service, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("resolve service %s: %w", name, chatflow.ErrServiceNotFound)
	}

	return service, nil
}

// Dispose releases disposable services in reverse registration order and
// empties the registry. Later calls are no-ops.
func (r *ServiceRegistry) Dispose(ctx context.Context) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil
	}
	r.disposed = true
	order := r.order
	services := r.services
	r.order = nil
	r.services = make(map[string]any)
	r.mu.Unlock()

	var disposeErr error
	for idx := len(order) - 1; idx >= 0; idx-- {
		name := order[idx]
		err := runSafely("dispose service "+name, func() error {
			return disposeService(ctx, services[name])
		})
		if err != nil {
			disposeErr = errors.Join(disposeErr, err)
		}
	}

	return disposeErr
}

func disposeService(ctx context.Context, service any) error {
	switch typed := service.(type) {
	case chatflow.Disposer:
		return typed.Dispose(ctx)
	case io.Closer:
		return typed.Close()
	default:
		return nil
	}
}

// isNilService rejects untyped nil and typed nil pointers, maps, funcs and similar.
func isNilService(service any) bool {
	if service == nil {
		return true
	}

	value := reflect.ValueOf(service)
	switch value.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		return value.IsNil()
	default:
		return false
	}
}
