package provision

import (
	"context"

	"provision-service/internal/tenant"
)

// Health is a compute instance's own health-probe result.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthStarting  Health = "starting"
	HealthUnhealthy Health = "unhealthy"
	HealthNone      Health = "none" // no health probe configured
)

// InstanceStatus describes one live compute instance.
type InstanceStatus struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	State  string `json:"state"`
	Health Health `json:"health"`
}

// Compute is the capability set every compute backend satisfies.
// Callers never distinguish backends; the variant is selected by
// explicit configuration at construction.
type Compute interface {
	// StartTenant materializes the tenant's blueprint and starts its
	// compute processes.
	StartTenant(ctx context.Context, name tenant.Name, theme string, creds Credentials, siteType string) error

	// StopTenant suspends the tenant's processes, preserving data.
	StopTenant(ctx context.Context, name tenant.Name) error

	// ResumeTenant restarts suspended processes in place.
	ResumeTenant(ctx context.Context, name tenant.Name) error

	// DeleteTenant tears down processes and irreversibly removes
	// working state. Returns false without error when nothing existed.
	DeleteTenant(ctx context.Context, name tenant.Name) (bool, error)

	// Status lists live instances belonging to this platform.
	Status(ctx context.Context) ([]InstanceStatus, error)

	// Logs fetches the last lines of the tenant's process logs.
	Logs(ctx context.Context, name tenant.Name, lines int) (string, error)

	// HealthOf resolves the tenant's primary instance health.
	HealthOf(ctx context.Context, name tenant.Name) (Health, error)

	// Exec runs a management command inside one of the tenant's
	// compute processes and returns its stdout.
	Exec(ctx context.Context, name tenant.Name, service string, argv []string) (string, error)

	// ReloadEdge gracefully reloads the tenant's edge process so
	// configuration changes take effect without downtime.
	ReloadEdge(ctx context.Context, name tenant.Name) error
}
