package provision

import (
	"fmt"
	"time"
)

// DatabaseError wraps a failure from the administrative database
// connection during tenant database provisioning. No retry is attempted
// at this layer; retry policy belongs to the caller.
type DatabaseError struct {
	Op     string
	Tenant string
	Err    error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s failed for tenant %q: %v", e.Op, e.Tenant, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// ProvisionError reports a failed external command, carrying the
// captured standard error for diagnostics.
type ProvisionError struct {
	Op     string
	Tenant string
	Stderr string
	Err    error
}

func (e *ProvisionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed for tenant %q: %s", e.Op, e.Tenant, e.Stderr)
	}
	return fmt.Sprintf("%s failed for tenant %q: %v", e.Op, e.Tenant, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// TimeoutError reports an external command or polling deadline exceeded.
type TimeoutError struct {
	Op      string
	Tenant  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s for tenant %q", e.Op, e.Timeout, e.Tenant)
}

// NotFoundError reports an operation against a tenant, blueprint or
// template that does not exist.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// ConflictError is reserved in the taxonomy. Create is currently
// idempotent-overwrite, so nothing raises it yet.
type ConflictError struct {
	Kind string
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}
