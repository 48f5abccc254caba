package kernel

import "ex-chatflow/pkg/chatflow"

// moduleRecord stores one registered module and its registration name.
type moduleRecord struct {
	name   string
	module chatflow.Module
}

// moduleRuntime is the kernel-owned implementation of chatflow.ModuleRuntime.
type moduleRuntime struct {
	services chatflow.ServiceRegistry
}

// Services returns the kernel service registry visible to the module.
func (r *moduleRuntime) Services() chatflow.ServiceRegistry {
	return r.services
}
