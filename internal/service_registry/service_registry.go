package service_registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/rs/zerolog"
)

// ServiceRegistry manages the lifecycle of services in registration order.
type ServiceRegistry struct {
	services *orderedmap.OrderedMap[string, Service]
	started  []string
	Logger   zerolog.Logger
}

// NewServiceRegistry initializes an empty registry.
func NewServiceRegistry(logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: orderedmap.NewOrderedMap[string, Service](),
		Logger:   logger,
	}
}

// RegisterService adds a service to the registry. Duplicate names are ignored.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services.Get(name); exists {
		sr.Logger.Warn().Str("service", name).Msg("Service is already registered")
		return
	}
	sr.services.Set(name, svc)
	sr.Logger.Info().Str("service", name).Msg("Registered service")
}

// Names returns the registered service names in start order.
func (sr *ServiceRegistry) Names() []string {
	return sr.services.Keys()
}

// StartServices starts all registered services in order. A service implementing
// ReadinessWaiter must become ready before the next one starts. If any step fails,
// the services already started are stopped in reverse order.
func (sr *ServiceRegistry) StartServices(ctx context.Context) error {
	for el := sr.services.Front(); el != nil; el = el.Next() {
		name, svc := el.Key, el.Value

		sr.Logger.Info().Str("service", name).Msg("Starting service")
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Str("service", name).Msg("Failed to start service")
			sr.rollback()
			return fmt.Errorf("start %s: %w", name, err)
		}
		sr.started = append(sr.started, name)

		if waiter, ok := svc.(ReadinessWaiter); ok {
			sr.Logger.Info().Str("service", name).Msg("Waiting for service to become ready")
			if err := waiter.WaitReady(ctx); err != nil {
				sr.Logger.Error().Err(err).Str("service", name).Msg("Service did not become ready")
				sr.rollback()
				return fmt.Errorf("wait for %s: %w", name, err)
			}
		}
	}

	return nil
}

// StopServices stops the started services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.started) - 1; i >= 0; i-- {
		name := sr.started[i]
		svc, _ := sr.services.Get(name)

		sr.Logger.Info().Str("service", name).Msg("Stopping service")
		if err := svc.Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	sr.started = nil

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

func (sr *ServiceRegistry) rollback() {
	sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
	_ = sr.StopServices()
}
