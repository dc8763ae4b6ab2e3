package seeder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"provision-service/internal/provision"
	"provision-service/internal/tenant"
	"provision-service/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type seedFakeCompute struct {
	healthSeq []provision.Health
	healthIdx int
	execSvc   string
	execArgv  []string
	reloaded  bool
}

func (f *seedFakeCompute) HealthOf(ctx context.Context, name tenant.Name) (provision.Health, error) {
	if f.healthIdx >= len(f.healthSeq) {
		return f.healthSeq[len(f.healthSeq)-1], nil
	}
	h := f.healthSeq[f.healthIdx]
	f.healthIdx++
	return h, nil
}

func (f *seedFakeCompute) Exec(ctx context.Context, name tenant.Name, service string, argv []string) (string, error) {
	f.execSvc = service
	f.execArgv = argv
	return "ok", nil
}

func (f *seedFakeCompute) ReloadEdge(ctx context.Context, name tenant.Name) error {
	f.reloaded = true
	return nil
}

type fakeTenantDB struct {
	deleted []string
	keySeq  []string
	keyIdx  int
	closed  bool
}

func (f *fakeTenantDB) DeleteAdminUser(ctx context.Context, email string) error {
	f.deleted = append(f.deleted, email)
	return nil
}

func (f *fakeTenantDB) PublishableKey(ctx context.Context) (string, error) {
	if f.keyIdx >= len(f.keySeq) {
		return "", errors.New("relation api_key does not exist")
	}
	k := f.keySeq[f.keyIdx]
	f.keyIdx++
	if k == "" {
		return "", errors.New("no key yet")
	}
	return k, nil
}

func (f *fakeTenantDB) Close() error {
	f.closed = true
	return nil
}

func seedTestSetup(t *testing.T) (*Pool, *seedFakeCompute, *fakeTenantDB, *config.Config) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Platform.TenantsDir = t.TempDir()
	cfg.Seeder.Workers = 1
	cfg.Seeder.QueueSize = 4
	cfg.Seeder.HealthInterval = time.Millisecond
	cfg.Seeder.HealthAttempts = 5
	cfg.Seeder.GraceInterval = time.Millisecond
	cfg.Seeder.KeyInterval = time.Millisecond
	cfg.Seeder.KeyAttempts = 5

	compute := &seedFakeCompute{healthSeq: []provision.Health{provision.HealthHealthy}}
	tdb := &fakeTenantDB{keySeq: []string{"pk_test_123"}}

	pool := NewPool(cfg, compute, zap.NewNop())
	pool.openDB = func(creds provision.Credentials) (tenantDB, error) { return tdb, nil }
	return pool, compute, tdb, cfg
}

func testJob(siteType string) Job {
	name, _ := tenant.SanitizeName("acme-shop")
	return Job{
		Tenant:   name,
		SiteType: siteType,
		Email:    "admin@acme-shop.example.com",
		Password: "secret123",
		Creds: provision.Credentials{
			Host: "shared-postgres", Port: "5432",
			Name: "db_acme_shop", User: "user_acme_shop", Password: "pw",
		},
	}
}

func writeEdgeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(cfg.Platform.TenantsDir, "acme-shop", edgeConfigRelPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path,
		[]byte("header X-Publishable-Key __PUBLISHABLE_KEY__\n"), 0o644))
	return path
}

func TestSeed_EcommercePath(t *testing.T) {
	pool, compute, tdb, cfg := seedTestSetup(t)
	compute.healthSeq = []provision.Health{provision.HealthStarting, provision.HealthHealthy}
	tdb.keySeq = []string{"", "pk_test_123"}
	edgePath := writeEdgeConfig(t, cfg)

	err := pool.seed(context.Background(), zap.NewNop(), testJob(provision.SiteTypeEcommerce))
	require.NoError(t, err)

	// Stale identity removed before the management command ran.
	assert.Equal(t, []string{"admin@acme-shop.example.com"}, tdb.deleted)
	assert.Equal(t, "app", compute.execSvc)
	assert.Equal(t, []string{"medusa", "user", "-e", "admin@acme-shop.example.com", "-p", "secret123"}, compute.execArgv)

	// Publishable key injected and edge reloaded.
	rewritten, err := os.ReadFile(edgePath)
	require.NoError(t, err)
	assert.Contains(t, string(rewritten), "pk_test_123")
	assert.NotContains(t, string(rewritten), publishableKeyPlaceholder)
	assert.True(t, compute.reloaded)
	assert.True(t, tdb.closed)
}

func TestSeed_NonEcommerceSkipsKeyInjection(t *testing.T) {
	pool, compute, tdb, _ := seedTestSetup(t)

	err := pool.seed(context.Background(), zap.NewNop(), testJob(provision.SiteTypeCMS))
	require.NoError(t, err)

	assert.Equal(t, "app", compute.execSvc)
	assert.Contains(t, compute.execArgv, "admin:create-user")
	assert.False(t, compute.reloaded)
	assert.Equal(t, 0, tdb.keyIdx, "no key polling outside ecommerce")
}

func TestSeed_HealthDeadlineIsTerminal(t *testing.T) {
	pool, compute, tdb, _ := seedTestSetup(t)
	compute.healthSeq = []provision.Health{provision.HealthStarting}

	err := pool.seed(context.Background(), zap.NewNop(), testJob(provision.SiteTypeEcommerce))
	require.Error(t, err)

	var terr *provision.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "health poll", terr.Op)

	// Nothing else ran after the deadline.
	assert.Empty(t, tdb.deleted)
	assert.Empty(t, compute.execArgv)
}

func TestSeed_NoProbeProceedsAfterGrace(t *testing.T) {
	pool, compute, tdb, _ := seedTestSetup(t)
	compute.healthSeq = []provision.Health{provision.HealthNone}

	err := pool.seed(context.Background(), zap.NewNop(), testJob(provision.SiteTypeCMS))
	require.NoError(t, err)
	assert.NotEmpty(t, tdb.deleted, "seeding proceeds when no probe is configured")
}

func TestSeed_KeyDeadlineIsTerminal(t *testing.T) {
	pool, _, tdb, cfg := seedTestSetup(t)
	tdb.keySeq = nil // key never appears
	writeEdgeConfig(t, cfg)

	err := pool.seed(context.Background(), zap.NewNop(), testJob(provision.SiteTypeEcommerce))
	require.Error(t, err)

	var terr *provision.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "publishable key poll", terr.Op)
}

func TestPool_DispatchAndDrain(t *testing.T) {
	pool, _, _, cfg := seedTestSetup(t)
	writeEdgeConfig(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	assert.True(t, pool.Dispatch(testJob(provision.SiteTypeEcommerce)))
	pool.Stop()
}

func TestPool_DispatchNeverBlocks(t *testing.T) {
	pool, _, _, _ := seedTestSetup(t)
	// Workers never started: the queue fills, then dispatch drops.

	accepted := 0
	for i := 0; i < 10; i++ {
		if pool.Dispatch(testJob(provision.SiteTypeCMS)) {
			accepted++
		}
	}
	assert.Equal(t, 4, accepted, "queue capacity bounds accepted jobs")
}

func TestAdminCreateCommand(t *testing.T) {
	svc, argv := adminCreateCommand(provision.SiteTypeEcommerce, "a@b.c", "pw")
	assert.Equal(t, "app", svc)
	assert.Equal(t, []string{"medusa", "user", "-e", "a@b.c", "-p", "pw"}, argv)

	_, argv = adminCreateCommand(provision.SiteTypeBlog, "a@b.c", "pw")
	assert.Equal(t, []string{"bin/create-admin", "a@b.c", "pw"}, argv)
}
