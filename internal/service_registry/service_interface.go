package service_registry

import "context"

// Service is the interface for all long-running components started by the registry.
type Service interface {
	Start() error
	Stop() error
}

// ReadinessWaiter is implemented by services that later services depend on. The registry
// waits for WaitReady before starting the next service.
type ReadinessWaiter interface {
	WaitReady(ctx context.Context) error
}
