package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test-admin-password")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)

	assert.Equal(t, "shared-postgres", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "root", cfg.Database.User)
	assert.Equal(t, "defaultdb", cfg.Database.Name)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "127.0.0.1.nip.io", cfg.Platform.Domain)
	assert.Equal(t, "/opt/saas/tenants", cfg.Platform.TenantsDir)
	assert.Equal(t, "/opt/saas/blueprints", cfg.Platform.BlueprintsDir)
	assert.Equal(t, "app-", cfg.Platform.ContainerPrefix)

	assert.Equal(t, "local", cfg.Compute.Backend)
	assert.Equal(t, 120*time.Second, cfg.Compute.UpTimeout)
	assert.Equal(t, 60*time.Second, cfg.Compute.DownTimeout)

	assert.Equal(t, 2, cfg.Seeder.Workers)
	assert.Equal(t, 10*time.Second, cfg.Seeder.HealthInterval)
	assert.Equal(t, 30, cfg.Seeder.HealthAttempts)
	assert.Equal(t, 5*time.Second, cfg.Seeder.KeyInterval)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "provision", cfg.Metrics.Prefix)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test-admin-password")
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DOMAIN", "platform.example.com")
	os.Setenv("TENANTS_DIR", "/srv/tenants")
	os.Setenv("COMPUTE_BACKEND", "kubernetes")
	os.Setenv("COMPUTE_UP_TIMEOUT", "90s")
	os.Setenv("SEEDER_WORKERS", "4")
	os.Setenv("CORS_ORIGINS", "http://a.example.com, http://b.example.com")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "platform.example.com", cfg.Platform.Domain)
	assert.Equal(t, "/srv/tenants", cfg.Platform.TenantsDir)
	assert.Equal(t, "kubernetes", cfg.Compute.Backend)
	assert.Equal(t, 90*time.Second, cfg.Compute.UpTimeout)
	assert.Equal(t, 4, cfg.Seeder.Workers)
	assert.Equal(t, []string{"http://a.example.com", "http://b.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)

	os.Clearenv()
}

func TestLoad_RequiresAdminPassword(t *testing.T) {
	os.Clearenv()

	_, err := Load()
	require.Error(t, err)

	os.Setenv("DB_PASSWORD", "CHANGE_ME_IN_PRODUCTION")
	_, err = Load()
	require.Error(t, err)

	os.Clearenv()
}
