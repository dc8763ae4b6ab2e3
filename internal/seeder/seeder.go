// Package seeder runs post-provisioning setup detached from the request
// that triggered it: it polls the new compute instance until healthy,
// creates the initial administrator identity, and for ecommerce tenants
// injects the generated publishable API key into the edge process.
//
// Failures here are terminal for the task only. They are logged, never
// retried automatically, and never surfaced to the original caller,
// whose request has already completed.
package seeder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"provision-service/internal/provision"
	"provision-service/internal/tenant"
	"provision-service/pkg/config"
	"provision-service/pkg/database"
	"provision-service/prometheus"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// publishableKeyPlaceholder is rewritten in the tenant's edge config
// once the ecommerce backend has generated its API key.
const publishableKeyPlaceholder = "__PUBLISHABLE_KEY__"

// edgeConfigRelPath locates the edge config inside a tenant's working
// directory.
const edgeConfigRelPath = "edge/Caddyfile"

// Job describes one seeding task.
type Job struct {
	Tenant   tenant.Name
	SiteType string
	Email    string
	Password string
	Creds    provision.Credentials
}

// computeClient is the slice of the compute capability set the seeder
// needs.
type computeClient interface {
	HealthOf(ctx context.Context, name tenant.Name) (provision.Health, error)
	Exec(ctx context.Context, name tenant.Name, service string, argv []string) (string, error)
	ReloadEdge(ctx context.Context, name tenant.Name) error
}

// tenantDB is the seeder's view of a tenant's isolated database.
type tenantDB interface {
	DeleteAdminUser(ctx context.Context, email string) error
	PublishableKey(ctx context.Context) (string, error)
	Close() error
}

type dbOpener func(creds provision.Credentials) (tenantDB, error)

// Pool is a fixed-size worker pool consuming seed jobs. Dispatch never
// blocks the originating request: a full queue drops the job with a
// logged warning.
type Pool struct {
	cfg     *config.Config
	compute computeClient
	openDB  dbOpener
	log     *zap.Logger

	jobs chan Job
	wg   sync.WaitGroup
}

func NewPool(cfg *config.Config, compute computeClient, log *zap.Logger) *Pool {
	return &Pool{
		cfg:     cfg,
		compute: compute,
		openDB:  openGormTenantDB,
		log:     log,
		jobs:    make(chan Job, cfg.Seeder.QueueSize),
	}
}

// Start launches the workers. They stop when the context is cancelled
// or the queue is closed via Stop.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Seeder.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					p.runJob(ctx, job)
				}
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}

// Dispatch enqueues a seed job without blocking. Returns false when the
// queue is full and the job was dropped.
func (p *Pool) Dispatch(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		p.log.Warn("Seeder queue full, dropping job",
			zap.String("tenant", job.Tenant.String()))
		prometheus.SeedOutcome("dropped")
		return false
	}
}

func (p *Pool) runJob(ctx context.Context, job Job) {
	log := p.log.With(
		zap.String("tenant", job.Tenant.String()),
		zap.String("site_type", job.SiteType),
		zap.String("admin_email", job.Email))

	log.Info("Seeding started")
	if err := p.seed(ctx, log, job); err != nil {
		// Terminal for this task; the caller's request already returned.
		log.Error("Seeding failed", zap.Error(err))
		prometheus.SeedOutcome("failure")
		return
	}
	log.Info("Seeding completed")
	prometheus.SeedOutcome("success")
}

func (p *Pool) seed(ctx context.Context, log *zap.Logger, job Job) error {
	if err := p.waitHealthy(ctx, log, job.Tenant); err != nil {
		return err
	}

	tdb, err := p.openDB(job.Creds)
	if err != nil {
		return err
	}
	defer tdb.Close()

	// Idempotent reset: a stale identity from a previous seed must not
	// collide with the one about to be created.
	if err := tdb.DeleteAdminUser(ctx, job.Email); err != nil {
		return fmt.Errorf("failed to reset admin identity: %w", err)
	}

	service, argv := adminCreateCommand(job.SiteType, job.Email, job.Password)
	if _, err := p.compute.Exec(ctx, job.Tenant, service, argv); err != nil {
		return fmt.Errorf("failed to create admin identity: %w", err)
	}
	log.Info("Admin identity created")

	if job.SiteType == provision.SiteTypeEcommerce {
		return p.injectPublishableKey(ctx, log, job, tdb)
	}
	return nil
}

// waitHealthy polls the compute instance's health at a fixed interval
// up to a bounded number of attempts. An instance with no health probe
// configured gets one grace interval, then seeding proceeds rather than
// polling indefinitely.
func (p *Pool) waitHealthy(ctx context.Context, log *zap.Logger, name tenant.Name) error {
	for attempt := 1; attempt <= p.cfg.Seeder.HealthAttempts; attempt++ {
		health, err := p.compute.HealthOf(ctx, name)
		if err != nil {
			log.Debug("Health probe not resolvable yet", zap.Int("attempt", attempt), zap.Error(err))
		} else {
			switch health {
			case provision.HealthHealthy:
				return nil
			case provision.HealthNone:
				log.Info("No health probe configured, waiting one grace interval")
				if err := sleepCtx(ctx, p.cfg.Seeder.GraceInterval); err != nil {
					return err
				}
				return nil
			}
		}
		if err := sleepCtx(ctx, p.cfg.Seeder.HealthInterval); err != nil {
			return err
		}
	}
	return &provision.TimeoutError{
		Op:      "health poll",
		Tenant:  name.String(),
		Timeout: time.Duration(p.cfg.Seeder.HealthAttempts) * p.cfg.Seeder.HealthInterval,
	}
}

// injectPublishableKey polls the tenant database for the auto-generated
// publishable API key, rewrites the edge config consumed by the
// reverse proxy, and triggers a graceful reload.
func (p *Pool) injectPublishableKey(ctx context.Context, log *zap.Logger, job Job, tdb tenantDB) error {
	var key string
	for attempt := 1; attempt <= p.cfg.Seeder.KeyAttempts; attempt++ {
		k, err := tdb.PublishableKey(ctx)
		if err == nil && k != "" {
			key = k
			break
		}
		if err := sleepCtx(ctx, p.cfg.Seeder.KeyInterval); err != nil {
			return err
		}
	}
	if key == "" {
		return &provision.TimeoutError{
			Op:      "publishable key poll",
			Tenant:  job.Tenant.String(),
			Timeout: time.Duration(p.cfg.Seeder.KeyAttempts) * p.cfg.Seeder.KeyInterval,
		}
	}

	configPath := filepath.Join(p.cfg.Platform.TenantsDir, job.Tenant.String(), edgeConfigRelPath)
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read edge config: %w", err)
	}
	rewritten := strings.ReplaceAll(string(raw), publishableKeyPlaceholder, key)
	if err := os.WriteFile(configPath, []byte(rewritten), 0o644); err != nil {
		return fmt.Errorf("failed to rewrite edge config: %w", err)
	}

	if err := p.compute.ReloadEdge(ctx, job.Tenant); err != nil {
		return fmt.Errorf("failed to reload edge process: %w", err)
	}
	log.Info("Publishable key injected into edge config")
	return nil
}

// adminCreateCommand maps a site type to the in-process management
// command that creates an administrator identity.
func adminCreateCommand(siteType, email, password string) (service string, argv []string) {
	switch siteType {
	case provision.SiteTypeEcommerce:
		return "app", []string{"medusa", "user", "-e", email, "-p", password}
	case provision.SiteTypeCMS:
		return "app", []string{"npx", "strapi", "admin:create-user",
			"--firstname", "Admin", "--lastname", "User",
			"--email", email, "--password", password}
	default:
		return "app", []string{"bin/create-admin", email, password}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// gormTenantDB backs the tenantDB interface with a short-lived gorm
// connection to the tenant's isolated database.
type gormTenantDB struct {
	db *gorm.DB
}

func openGormTenantDB(creds provision.Credentials) (tenantDB, error) {
	gdb, err := database.OpenTenantDB(creds.Host, creds.Port, creds.Name, creds.User, creds.Password)
	if err != nil {
		return nil, err
	}
	return &gormTenantDB{db: gdb}, nil
}

func (t *gormTenantDB) DeleteAdminUser(ctx context.Context, email string) error {
	return t.db.WithContext(ctx).Exec(`DELETE FROM "user" WHERE email = ?`, email).Error
}

func (t *gormTenantDB) PublishableKey(ctx context.Context) (string, error) {
	var token string
	err := t.db.WithContext(ctx).
		Raw(`SELECT token FROM api_key WHERE type = 'publishable' ORDER BY created_at LIMIT 1`).
		Scan(&token).Error
	return token, err
}

func (t *gormTenantDB) Close() error {
	return database.CloseDB(t.db)
}
