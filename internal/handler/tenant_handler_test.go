package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"provision-service/internal/model"
	"provision-service/internal/orchestrator"
	"provision-service/internal/provision"
	"provision-service/internal/registry"
	"provision-service/internal/seeder"
	"provision-service/internal/tenant"
	"provision-service/pkg/config"
	"provision-service/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	cfg := &config.Config{}
	cfg.Metrics.Prefix = "provision_test"
	prometheus.InitMetrics(cfg)
	m.Run()
}

type stubRegistry struct {
	tenants map[string]*model.Tenant
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{tenants: map[string]*model.Tenant{}}
}

func (r *stubRegistry) Upsert(ctx context.Context, t *model.Tenant) error {
	r.tenants[t.Name] = t
	return nil
}

func (r *stubRegistry) Get(ctx context.Context, name string) (*model.Tenant, error) {
	t, ok := r.tenants[name]
	if !ok {
		return nil, registry.ErrTenantNotFound
	}
	return t, nil
}

func (r *stubRegistry) List(ctx context.Context) ([]model.Tenant, error) {
	out := make([]model.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, *t)
	}
	return out, nil
}

func (r *stubRegistry) UpdateStatus(ctx context.Context, name, status string) error {
	t, ok := r.tenants[name]
	if !ok {
		return registry.ErrTenantNotFound
	}
	t.Status = status
	return nil
}

func (r *stubRegistry) Delete(ctx context.Context, name string) error {
	delete(r.tenants, name)
	return nil
}

type stubDatabases struct {
	createErr error
}

func (d *stubDatabases) CreateTenantDatabase(ctx context.Context, name tenant.Name) (provision.Credentials, error) {
	if d.createErr != nil {
		return provision.Credentials{}, d.createErr
	}
	return provision.Credentials{
		Host: "postgres", Port: "5432",
		Name: name.DBName(), User: name.RoleName(), Password: "pw",
	}, nil
}

func (d *stubDatabases) DropTenantDatabase(ctx context.Context, name tenant.Name) (bool, error) {
	return true, nil
}

type stubCompute struct {
	startErr  error
	statusErr error
	logs      string
}

func (c *stubCompute) StartTenant(ctx context.Context, name tenant.Name, theme string, creds provision.Credentials, siteType string) error {
	return c.startErr
}
func (c *stubCompute) StopTenant(ctx context.Context, name tenant.Name) error   { return nil }
func (c *stubCompute) ResumeTenant(ctx context.Context, name tenant.Name) error { return nil }
func (c *stubCompute) DeleteTenant(ctx context.Context, name tenant.Name) (bool, error) {
	return true, nil
}
func (c *stubCompute) Status(ctx context.Context) ([]provision.InstanceStatus, error) {
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	return []provision.InstanceStatus{{ID: "abc", Name: "app-acme-shop-server-1", State: "running"}}, nil
}
func (c *stubCompute) Logs(ctx context.Context, name tenant.Name, lines int) (string, error) {
	return c.logs, nil
}
func (c *stubCompute) HealthOf(ctx context.Context, name tenant.Name) (provision.Health, error) {
	return provision.HealthHealthy, nil
}
func (c *stubCompute) Exec(ctx context.Context, name tenant.Name, service string, argv []string) (string, error) {
	return "", nil
}
func (c *stubCompute) ReloadEdge(ctx context.Context, name tenant.Name) error { return nil }

type stubSeeds struct {
	jobs []seeder.Job
}

func (s *stubSeeds) Dispatch(job seeder.Job) bool {
	s.jobs = append(s.jobs, job)
	return true
}

func newTestHandlers(t *testing.T, compute *stubCompute, dbs *stubDatabases) (*stubRegistry, *stubSeeds) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Platform.Domain = "example.com"

	reg := newStubRegistry()
	seeds := &stubSeeds{}
	Init(orchestrator.New(cfg, zap.NewNop(), reg, dbs, compute, seeds))
	return reg, seeds
}

func doJSON(method, path, body string) (*httptest.ResponseRecorder, echo.Context) {
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, e.NewContext(req, rec)
}

func TestCreateStore_Success(t *testing.T) {
	reg, seeds := newTestHandlers(t, &stubCompute{}, &stubDatabases{})

	rec, c := doJSON(http.MethodPost, "/create-store",
		`{"tenant_name": "acme-shop", "theme": "fashion"}`)
	require.NoError(t, CreateStore(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Status        string   `json:"status"`
		Subdomains    []string `json:"subdomains"`
		AdminEmail    string   `json:"admin_email"`
		AdminPassword string   `json:"admin_password"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, []string{"acme-shop.example.com", "admin.acme-shop.example.com"}, body.Subdomains)
	assert.Equal(t, "admin@acme-shop.example.com", body.AdminEmail)
	assert.NotEmpty(t, body.AdminPassword)

	// Site type defaults to ecommerce and the seeder got the job
	require.Len(t, seeds.jobs, 1)
	assert.Equal(t, provision.SiteTypeEcommerce, seeds.jobs[0].SiteType)

	stored, err := reg.Get(context.Background(), "acme-shop")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, stored.Status)
	assert.Equal(t, "db_acme_shop", stored.DBName)
}

func TestCreateStore_InvalidName(t *testing.T) {
	_, seeds := newTestHandlers(t, &stubCompute{}, &stubDatabases{})

	rec, c := doJSON(http.MethodPost, "/create-store",
		`{"tenant_name": "Bad Name!", "theme": "fashion"}`)
	require.NoError(t, CreateStore(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")
	assert.Empty(t, seeds.jobs)
}

func TestCreateStore_ComputeTimeout(t *testing.T) {
	compute := &stubCompute{startErr: &provision.TimeoutError{Op: "compose up", Tenant: "acme-shop"}}
	newTestHandlers(t, compute, &stubDatabases{})

	rec, c := doJSON(http.MethodPost, "/create-store", `{"tenant_name": "acme-shop"}`)
	require.NoError(t, CreateStore(c))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), "timeout")
}

func TestDeleteStore_Success(t *testing.T) {
	reg, _ := newTestHandlers(t, &stubCompute{}, &stubDatabases{})
	reg.tenants["acme-shop"] = &model.Tenant{Name: "acme-shop", Status: model.StatusRunning}

	rec, c := doJSON(http.MethodPost, "/delete-store", `{"tenant_name": "acme-shop"}`)
	require.NoError(t, DeleteStore(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, reg.tenants, "acme-shop")
}

func TestSuspendStore_NotFound(t *testing.T) {
	newTestHandlers(t, &stubCompute{}, &stubDatabases{})

	rec, c := doJSON(http.MethodPost, "/suspend-store", `{"tenant_name": "ghost-shop"}`)
	require.NoError(t, SuspendStore(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestSuspendResumeStore_RoundTrip(t *testing.T) {
	reg, _ := newTestHandlers(t, &stubCompute{}, &stubDatabases{})
	reg.tenants["acme-shop"] = &model.Tenant{Name: "acme-shop", Status: model.StatusRunning}

	rec, c := doJSON(http.MethodPost, "/suspend-store", `{"tenant_name": "acme-shop"}`)
	require.NoError(t, SuspendStore(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusSuspended, reg.tenants["acme-shop"].Status)

	rec, c = doJSON(http.MethodPost, "/resume-store", `{"tenant_name": "acme-shop"}`)
	require.NoError(t, ResumeStore(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusRunning, reg.tenants["acme-shop"].Status)
}

func TestSeedAdmin_Dispatches(t *testing.T) {
	reg, seeds := newTestHandlers(t, &stubCompute{}, &stubDatabases{})
	reg.tenants["acme-shop"] = &model.Tenant{
		Name: "acme-shop", SiteType: "ecommerce", Status: model.StatusRunning,
	}

	rec, c := doJSON(http.MethodPost, "/seed-admin",
		`{"tenant_name": "acme-shop", "admin_email": "owner@example.com"}`)
	require.NoError(t, SeedAdmin(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, seeds.jobs, 1)
	assert.Equal(t, "owner@example.com", seeds.jobs[0].Email)
	assert.NotEmpty(t, seeds.jobs[0].Password)
}

func TestStoresStatus(t *testing.T) {
	reg, _ := newTestHandlers(t, &stubCompute{}, &stubDatabases{})
	reg.tenants["acme-shop"] = &model.Tenant{Name: "acme-shop", Status: model.StatusRunning}

	rec, c := doJSON(http.MethodGet, "/stores-status", "")
	require.NoError(t, StoresStatus(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tenants           []model.Tenant             `json:"tenants"`
		RunningContainers []provision.InstanceStatus `json:"running_containers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Tenants, 1)
	assert.Len(t, body.RunningContainers, 1)
}

func TestStoresStatus_ComputeDown(t *testing.T) {
	newTestHandlers(t, &stubCompute{statusErr: assert.AnError}, &stubDatabases{})

	rec, c := doJSON(http.MethodGet, "/stores-status", "")
	require.NoError(t, StoresStatus(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStoreLogs(t *testing.T) {
	newTestHandlers(t, &stubCompute{logs: "line1\nline2\n"}, &stubDatabases{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/store-logs/acme-shop?lines=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("name")
	c.SetParamValues("acme-shop")

	require.NoError(t, StoreLogs(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "line1")
}
