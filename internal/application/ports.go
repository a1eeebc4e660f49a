package application

import (
	"context"
	"errors"
	"time"

	"askhome/internal/alexa"
	"askhome/internal/smarthome"
)

// ApplianceRegistry is the discovery registry plus lookup by appliance id.
type ApplianceRegistry interface {
	alexa.ApplianceRegistry
	Lookup(id string) (smarthome.Appliance, bool)
}

// ResponseStore caches encoded responses keyed by directive name and message id.
type ResponseStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

// HealthChecker reports whether the device backend can be reached.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthChecks is healthy when every backend is.
type HealthChecks []HealthChecker

func (h HealthChecks) Ping(ctx context.Context) error {
	var errs []error
	for _, c := range h {
		if err := c.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ string) error {
	return nil
}
