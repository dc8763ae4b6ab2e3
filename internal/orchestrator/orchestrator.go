// Package orchestrator sequences database provisioning, compute
// provisioning, registry bookkeeping and asynchronous admin seeding
// across the two independently-failing external systems.
//
// No automatic compensating rollback is performed across systems:
// errors propagate to the caller, and recovery is operator-triggered
// retry or delete, both of which are idempotent.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"provision-service/internal/model"
	"provision-service/internal/provision"
	"provision-service/internal/registry"
	"provision-service/internal/seeder"
	"provision-service/internal/tenant"
	"provision-service/pkg/config"
	"provision-service/prometheus"

	"go.uber.org/zap"
)

// Registry is the orchestrator's view of the durable tenant registry.
type Registry interface {
	Upsert(ctx context.Context, t *model.Tenant) error
	Get(ctx context.Context, name string) (*model.Tenant, error)
	List(ctx context.Context) ([]model.Tenant, error)
	UpdateStatus(ctx context.Context, name, status string) error
	Delete(ctx context.Context, name string) error
}

// Databases provisions and destroys isolated tenant databases.
type Databases interface {
	CreateTenantDatabase(ctx context.Context, name tenant.Name) (provision.Credentials, error)
	DropTenantDatabase(ctx context.Context, name tenant.Name) (bool, error)
}

// Seeds dispatches asynchronous admin seeding jobs.
type Seeds interface {
	Dispatch(job seeder.Job) bool
}

// Orchestrator implements the tenant lifecycle. All collaborators are
// injected at construction; nothing is looked up globally.
//
// Operations on distinct tenant names are fully independent. Operations
// on the same name are not mutually excluded: a single control-plane
// instance is assumed, and concurrent calls for one tenant can race.
type Orchestrator struct {
	cfg       *config.Config
	log       *zap.Logger
	registry  Registry
	databases Databases
	compute   provision.Compute
	seeds     Seeds
}

func New(cfg *config.Config, log *zap.Logger, reg Registry, dbs Databases, compute provision.Compute, seeds Seeds) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		log:       log,
		registry:  reg,
		databases: dbs,
		compute:   compute,
		seeds:     seeds,
	}
}

// CreateRequest carries the caller-supplied parameters for Create.
type CreateRequest struct {
	Name       string
	Theme      string
	SiteType   string
	AdminEmail string
}

// CreateResult is returned to the caller. The plaintext admin password
// appears here and nowhere else.
type CreateResult struct {
	Name          string   `json:"name"`
	Subdomains    []string `json:"subdomains"`
	AdminEmail    string   `json:"admin_email"`
	AdminPassword string   `json:"admin_password"`
}

// Create provisions a tenant end to end: sanitize, create the isolated
// database, start compute, record the tenant, then dispatch seeding and
// return. The database comes first because compute startup needs live
// credentials. Seeding runs detached; the caller never waits for it.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	name, err := tenant.SanitizeName(req.Name)
	if err != nil {
		return nil, err
	}
	if err := tenant.ValidateToken("theme", req.Theme); err != nil {
		return nil, err
	}
	if err := tenant.ValidateToken("site_type", req.SiteType); err != nil {
		return nil, err
	}

	log := o.log.With(zap.String("tenant", name.String()), zap.String("site_type", req.SiteType))

	log.Info("Provisioning tenant database")
	start := time.Now()
	creds, err := o.databases.CreateTenantDatabase(ctx, name)
	if err != nil {
		return nil, err
	}
	prometheus.TrackProvisionStep("create_database")(start)

	log.Info("Starting tenant compute")
	start = time.Now()
	if err := o.compute.StartTenant(ctx, name, req.Theme, creds, req.SiteType); err != nil {
		// The database stays provisioned and orphaned; a later create
		// or delete on the same name recovers it.
		return nil, err
	}
	prometheus.TrackProvisionStep("start_compute")(start)

	adminEmail := req.AdminEmail
	if adminEmail == "" {
		adminEmail = fmt.Sprintf("admin@%s.%s", name, o.cfg.Platform.Domain)
	}
	adminPassword := provision.GeneratePassword(16)

	rec := &model.Tenant{
		Name:       name.String(),
		SiteType:   req.SiteType,
		Theme:      req.Theme,
		AdminEmail: adminEmail,
		DBName:     creds.Name,
		DBUser:     creds.User,
		Status:     model.StatusRunning,
	}
	if err := o.registry.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	// Fire and forget: the create call returns before seeding completes.
	o.seeds.Dispatch(seeder.Job{
		Tenant:   name,
		SiteType: req.SiteType,
		Email:    adminEmail,
		Password: adminPassword,
		Creds:    creds,
	})

	log.Info("Tenant provisioned", zap.String("db_name", creds.Name))
	return &CreateResult{
		Name: name.String(),
		Subdomains: []string{
			fmt.Sprintf("%s.%s", name, o.cfg.Platform.Domain),
			fmt.Sprintf("admin.%s.%s", name, o.cfg.Platform.Domain),
		},
		AdminEmail:    adminEmail,
		AdminPassword: adminPassword,
	}, nil
}

// Delete tears a tenant down. Compute goes first so no running process
// holds open connections to the database about to be dropped. Deleting
// a never-provisioned tenant reports NotFoundError, not a failure.
func (o *Orchestrator) Delete(ctx context.Context, rawName string) error {
	name, err := tenant.SanitizeName(rawName)
	if err != nil {
		return err
	}
	log := o.log.With(zap.String("tenant", name.String()))

	log.Info("Stopping tenant compute")
	computeRemoved, err := o.compute.DeleteTenant(ctx, name)
	if err != nil {
		return err
	}

	log.Info("Dropping tenant database")
	dbDropped, err := o.databases.DropTenantDatabase(ctx, name)
	if err != nil {
		return err
	}

	registered := true
	if _, err := o.registry.Get(ctx, name.String()); err != nil {
		if !errors.Is(err, registry.ErrTenantNotFound) {
			return err
		}
		registered = false
	}
	if registered {
		if err := o.registry.Delete(ctx, name.String()); err != nil {
			return err
		}
	}

	if !computeRemoved && !dbDropped && !registered {
		return &provision.NotFoundError{Kind: "tenant", Name: name.String()}
	}

	log.Info("Tenant removed",
		zap.Bool("compute_removed", computeRemoved),
		zap.Bool("database_dropped", dbDropped))
	return nil
}

// Suspend stops a tenant's compute processes while the database and
// working directory remain untouched.
func (o *Orchestrator) Suspend(ctx context.Context, rawName string) error {
	return o.toggle(ctx, rawName, model.StatusSuspended)
}

// Resume restores a suspended tenant to running without re-provisioning.
func (o *Orchestrator) Resume(ctx context.Context, rawName string) error {
	return o.toggle(ctx, rawName, model.StatusRunning)
}

func (o *Orchestrator) toggle(ctx context.Context, rawName, target string) error {
	name, err := tenant.SanitizeName(rawName)
	if err != nil {
		return err
	}

	if _, err := o.registry.Get(ctx, name.String()); err != nil {
		if errors.Is(err, registry.ErrTenantNotFound) {
			return &provision.NotFoundError{Kind: "tenant", Name: name.String()}
		}
		return err
	}

	if target == model.StatusSuspended {
		err = o.compute.StopTenant(ctx, name)
	} else {
		err = o.compute.ResumeTenant(ctx, name)
	}
	if err != nil {
		return err
	}

	return o.registry.UpdateStatus(ctx, name.String(), target)
}

// SeedRequest carries parameters for an explicit re-seed.
type SeedRequest struct {
	Name     string
	Email    string
	Password string
}

// SeedResult reports the credentials the dispatched seeding run will
// apply.
type SeedResult struct {
	Name          string `json:"name"`
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
}

// SeedAdmin re-runs seeding for an already-provisioned tenant with
// caller-supplied or freshly generated credentials. The tenant database
// role password is rotated to obtain live credentials for the seeder;
// running compute keeps its pooled connections.
func (o *Orchestrator) SeedAdmin(ctx context.Context, req SeedRequest) (*SeedResult, error) {
	name, err := tenant.SanitizeName(req.Name)
	if err != nil {
		return nil, err
	}

	rec, err := o.registry.Get(ctx, name.String())
	if err != nil {
		if errors.Is(err, registry.ErrTenantNotFound) {
			return nil, &provision.NotFoundError{Kind: "tenant", Name: name.String()}
		}
		return nil, err
	}

	email := req.Email
	if email == "" {
		email = rec.AdminEmail
	}
	if email == "" {
		email = fmt.Sprintf("admin@%s.%s", name, o.cfg.Platform.Domain)
	}
	password := req.Password
	if password == "" {
		password = provision.GeneratePassword(16)
	}

	creds, err := o.databases.CreateTenantDatabase(ctx, name)
	if err != nil {
		return nil, err
	}

	if email != rec.AdminEmail {
		rec.AdminEmail = email
		if err := o.registry.Upsert(ctx, rec); err != nil {
			return nil, err
		}
	}

	o.seeds.Dispatch(seeder.Job{
		Tenant:   name,
		SiteType: rec.SiteType,
		Email:    email,
		Password: password,
		Creds:    creds,
	})

	return &SeedResult{
		Name:          name.String(),
		AdminEmail:    email,
		AdminPassword: password,
	}, nil
}

// StatusResult pairs durable registry rows with live compute state.
// Live state is always re-derived from the compute backend, never
// cached.
type StatusResult struct {
	Tenants   []model.Tenant             `json:"tenants"`
	Instances []provision.InstanceStatus `json:"running_containers"`
}

// Status reports the registry alongside live compute instances.
func (o *Orchestrator) Status(ctx context.Context) (*StatusResult, error) {
	instances, err := o.compute.Status(ctx)
	if err != nil {
		return nil, err
	}
	tenants, err := o.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	if prometheus.ActiveTenantsGauge != nil {
		prometheus.ActiveTenantsGauge.Set(float64(len(tenants)))
	}

	return &StatusResult{Tenants: tenants, Instances: instances}, nil
}

// Logs fetches the tail of a tenant's compute logs.
func (o *Orchestrator) Logs(ctx context.Context, rawName string, lines int) (string, error) {
	name, err := tenant.SanitizeName(rawName)
	if err != nil {
		return "", err
	}
	if lines <= 0 {
		lines = 100
	}
	if lines > 1000 {
		lines = 1000
	}
	return o.compute.Logs(ctx, name, lines)
}
