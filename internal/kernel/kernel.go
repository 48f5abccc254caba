package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ex-chatflow/pkg/chatflow"
)

// Kernel owns the modules of one client scope and the singletons they register.
type Kernel struct {
	cfg config

	services *ServiceRegistry

	mu          sync.RWMutex
	modules     map[string]*moduleRecord
	moduleOrder []string
	shutdown    bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a new kernel runtime.
func New(options ...Option) *Kernel {
	cfg := defaultConfig()
	for _, option := range options {
		option(&cfg)
	}

	kernelRuntime := &Kernel{
		cfg:         cfg,
		services:    NewServiceRegistry(),
		modules:     make(map[string]*moduleRecord),
		moduleOrder: make([]string, 0),
	}
	if err := kernelRuntime.services.Register(chatflow.ServiceLogger, cfg.logger); err != nil {
		cfg.logger.Error("register logger service", "error", err)
	}

	return kernelRuntime
}

// Services exposes the kernel service registry.
func (k *Kernel) Services() chatflow.ServiceRegistry {
	return k.services
}

// RegisterService registers a runtime service singleton.
func (k *Kernel) RegisterService(name string, service any) error {
	if err := k.services.Register(name, service); err != nil {
		return fmt.Errorf("register service %s: %w", name, err)
	}

	return nil
}

// RegisterModule registers a lifecycle-aware module and runs its OnRegister hook.
func (k *Kernel) RegisterModule(ctx context.Context, module chatflow.Module) error {
	if module == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := module.Name()
	if name == "" {
		return fmt.Errorf("register module: empty module name")
	}

	record := &moduleRecord{name: name, module: module}

	k.mu.Lock()
	if k.shutdown {
		k.mu.Unlock()
		return fmt.Errorf("register module %s: %w", name, chatflow.ErrKernelShutdown)
	}
	if _, exists := k.modules[name]; exists {
		k.mu.Unlock()
		return fmt.Errorf("register module %s: %w", name, chatflow.ErrModuleAlreadyRegistered)
	}
	k.modules[name] = record
	k.moduleOrder = append(k.moduleOrder, name)
	k.mu.Unlock()

	hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
	defer cancel()

	err := runSafely("module "+name+" OnRegister", func() error {
		return module.OnRegister(hookCtx, &moduleRuntime{services: k.services})
	})
	if err != nil {
		k.rollbackModuleRegistration(name)
		return fmt.Errorf("register module %s: %w", name, err)
	}

	k.cfg.logger.DebugContext(ctx, "module registered", "module", name)

	return nil
}

// Start invokes OnStart in registration order with per-module timeouts.
func (k *Kernel) Start(ctx context.Context) error {
	records, err := k.snapshotModules()
	if err != nil {
		return fmt.Errorf("start kernel: %w", err)
	}

	for _, record := range records {
		hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
		err := runSafely("module "+record.name+" OnStart", func() error {
			return record.module.OnStart(hookCtx)
		})
		cancel()
		if err != nil {
			return fmt.Errorf("start module %s: %w", record.name, err)
		}
	}

	return nil
}

// Shutdown invokes OnShutdown in reverse registration order and then disposes
// registered services. It runs once; later calls return the first result.
func (k *Kernel) Shutdown(ctx context.Context) error {
	k.shutdownOnce.Do(func() {
		k.shutdownErr = k.shutdownAll(ctx)
	})

	return k.shutdownErr
}

// shutdownAll tears down modules and services in a bounded timeout window.
// It uses WithoutCancel to ensure cleanup still runs after parent cancellation.
func (k *Kernel) shutdownAll(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.shutdownTimeout)
	defer cancel()

	k.mu.Lock()
	k.shutdown = true
	records := make([]*moduleRecord, 0, len(k.moduleOrder))
	for _, name := range k.moduleOrder {
		records = append(records, k.modules[name])
	}
	k.mu.Unlock()

	var shutdownErr error
	for idx := len(records) - 1; idx >= 0; idx-- {
		record := records[idx]
		hookCtx, hookCancel := context.WithTimeout(shutdownCtx, k.cfg.moduleHookTimeout)
		err := runSafely("module "+record.name+" OnShutdown", func() error {
			return record.module.OnShutdown(hookCtx)
		})
		hookCancel()
		if err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown module %s: %w", record.name, err))
		}
	}
	if err := k.services.Dispose(shutdownCtx); err != nil {
		shutdownErr = errors.Join(shutdownErr, fmt.Errorf("dispose services: %w", err))
	}

	if shutdownErr != nil {
		return fmt.Errorf("kernel shutdown: %w", shutdownErr)
	}
	k.cfg.logger.DebugContext(ctx, "kernel shut down", "modules", len(records))

	return nil
}

func (k *Kernel) snapshotModules() ([]*moduleRecord, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.shutdown {
		return nil, chatflow.ErrKernelShutdown
	}
	records := make([]*moduleRecord, 0, len(k.moduleOrder))
	for _, name := range k.moduleOrder {
		records = append(records, k.modules[name])
	}

	return records, nil
}

// rollbackModuleRegistration removes a module whose OnRegister failed.
func (k *Kernel) rollbackModuleRegistration(name string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	delete(k.modules, name)
	k.moduleOrder = removeOrderedName(k.moduleOrder, name)
}

// removeOrderedName removes one name while preserving remaining order.
func removeOrderedName(ordered []string, target string) []string {
	filtered := make([]string, 0, len(ordered))
	for _, item := range ordered {
		if item != target {
			filtered = append(filtered, item)
		}
	}

	return filtered
}
