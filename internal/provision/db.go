package provision

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"provision-service/internal/tenant"
	"provision-service/pkg/config"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Credentials are the ephemeral connection details for a freshly
// provisioned tenant database. The password is never persisted; only
// db name and role name survive in the registry.
type Credentials struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// DatabaseURL renders the credentials as a postgres connection URL.
func (c Credentials) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// DatabaseProvisioner creates and destroys isolated tenant databases on
// the shared Postgres cluster using an injected administrative handle.
type DatabaseProvisioner struct {
	db  *gorm.DB
	cfg *config.Config
	log *zap.Logger
}

func NewDatabaseProvisioner(db *gorm.DB, cfg *config.Config, log *zap.Logger) *DatabaseProvisioner {
	return &DatabaseProvisioner{db: db, cfg: cfg, log: log}
}

// CreateTenantDatabase creates an isolated database and owning role for
// the tenant. If the database already exists, the role's password is
// rotated in place instead of erroring, so repeated create calls are
// idempotent and self-healing after control-plane restarts. A fresh
// password is generated on every call.
//
// Identifiers come exclusively from the sanitizer, so interpolating
// them into schema-definition statements (which Postgres cannot
// parameterize) is structurally safe.
func (p *DatabaseProvisioner) CreateTenantDatabase(ctx context.Context, name tenant.Name) (Credentials, error) {
	dbName := name.DBName()
	roleName := name.RoleName()
	password := GeneratePassword(16)

	exists, err := p.databaseExists(ctx, dbName)
	if err != nil {
		return Credentials{}, &DatabaseError{Op: "create", Tenant: name.String(), Err: err}
	}

	if !exists {
		p.log.Info("Creating tenant role and database",
			zap.String("tenant", name.String()),
			zap.String("db_name", dbName))

		steps := []string{
			fmt.Sprintf("CREATE ROLE %s WITH LOGIN PASSWORD '%s'", roleName, quoteLiteral(password)),
			fmt.Sprintf("CREATE DATABASE %s OWNER %s", dbName, roleName),
			fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", dbName, roleName),
		}
		for _, stmt := range steps {
			if err := p.db.WithContext(ctx).Exec(stmt).Error; err != nil {
				return Credentials{}, &DatabaseError{Op: "create", Tenant: name.String(), Err: err}
			}
		}
	} else {
		// Re-provision: rotate the password rather than failing. This
		// invalidates previously distributed credentials.
		p.log.Warn("Tenant database already exists, rotating role password",
			zap.String("tenant", name.String()),
			zap.String("db_name", dbName))

		stmt := fmt.Sprintf("ALTER ROLE %s WITH LOGIN PASSWORD '%s'", roleName, quoteLiteral(password))
		if err := p.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return Credentials{}, &DatabaseError{Op: "rotate", Tenant: name.String(), Err: err}
		}
	}

	return Credentials{
		Host:     p.cfg.Database.Host,
		Port:     p.cfg.Database.Port,
		Name:     dbName,
		User:     roleName,
		Password: password,
	}, nil
}

// DropTenantDatabase terminates any active backend connections against
// the tenant's database, drops it, then drops the owning role. Returns
// false without error if the database never existed.
func (p *DatabaseProvisioner) DropTenantDatabase(ctx context.Context, name tenant.Name) (bool, error) {
	dbName := name.DBName()
	roleName := name.RoleName()

	exists, err := p.databaseExists(ctx, dbName)
	if err != nil {
		return false, &DatabaseError{Op: "drop", Tenant: name.String(), Err: err}
	}
	if !exists {
		p.log.Warn("Tenant database does not exist, skipping drop",
			zap.String("tenant", name.String()),
			zap.String("db_name", dbName))
		return false, nil
	}

	// A database cannot be dropped while connections are open against it.
	terminate := "SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = ? AND pid <> pg_backend_pid()"
	if err := p.db.WithContext(ctx).Exec(terminate, dbName).Error; err != nil {
		return false, &DatabaseError{Op: "drop", Tenant: name.String(), Err: err}
	}

	p.log.Info("Dropping tenant database and role",
		zap.String("tenant", name.String()),
		zap.String("db_name", dbName))

	for _, stmt := range []string{
		fmt.Sprintf("DROP DATABASE %s", dbName),
		fmt.Sprintf("DROP ROLE %s", roleName),
	} {
		if err := p.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return false, &DatabaseError{Op: "drop", Tenant: name.String(), Err: err}
		}
	}

	return true, nil
}

func (p *DatabaseProvisioner) databaseExists(ctx context.Context, dbName string) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Raw("SELECT count(*) FROM pg_database WHERE datname = ?", dbName).
		Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GeneratePassword returns a cryptographically random alphanumeric
// password. Alphanumeric only, so it is safe inside connection URLs and
// env files without escaping.
func GeneratePassword(length int) string {
	b := make([]byte, length)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		b[i] = passwordAlphabet[n.Int64()]
	}
	return string(b)
}

// quoteLiteral escapes a value for use as a single-quoted SQL literal.
// Passwords are alphanumeric by construction; this is the gate that
// keeps that assumption from ever mattering.
func quoteLiteral(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
