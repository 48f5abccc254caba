package chatflow

import "errors"

var (
	// ErrInvalidInteraction indicates that an interaction does not satisfy model invariants.
	ErrInvalidInteraction = errors.New("chatflow: invalid interaction")
	// ErrInvalidProfile indicates that a profile does not satisfy model invariants.
	ErrInvalidProfile = errors.New("chatflow: invalid profile")
	// ErrNotFound indicates that a referenced entity is confirmed absent.
	ErrNotFound = errors.New("chatflow: not found")
	// ErrServiceAlreadyRegistered indicates duplicate service registration.
	ErrServiceAlreadyRegistered = errors.New("chatflow: service already registered")
	// ErrServiceNotFound indicates a service lookup miss.
	ErrServiceNotFound = errors.New("chatflow: service not found")
	// ErrModuleAlreadyRegistered indicates duplicate module registration.
	ErrModuleAlreadyRegistered = errors.New("chatflow: module already registered")
	// ErrKernelShutdown indicates use of a kernel after shutdown.
	ErrKernelShutdown = errors.New("chatflow: kernel shut down")
)
