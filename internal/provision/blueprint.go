package provision

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"provision-service/internal/tenant"
)

// Recognized site types. Unrecognized site types still provision, but
// their env file carries only the common block.
const (
	SiteTypeEcommerce = "ecommerce"
	SiteTypeCMS       = "cms"
	SiteTypeBlog      = "blog"
	SiteTypeBooking   = "booking"
)

// tenantPlaceholder is substituted in blueprint file names and contents
// during materialization.
const tenantPlaceholder = "{{TENANT_NAME}}"

// materializeBlueprint copies the site_type-keyed template tree into a
// fresh per-tenant working directory. Any pre-existing directory is
// removed first: the copy is destructive and idempotent, not
// merge-on-conflict.
func materializeBlueprint(blueprintsDir, tenantsDir string, name tenant.Name, siteType string) (string, error) {
	src := filepath.Join(blueprintsDir, siteType)
	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		return "", &NotFoundError{Kind: "blueprint", Name: siteType}
	}

	tenantDir := filepath.Join(tenantsDir, name.String())
	if err := os.RemoveAll(tenantDir); err != nil {
		return "", fmt.Errorf("failed to clear tenant directory %s: %w", tenantDir, err)
	}
	if err := copyTree(src, tenantDir, name.String()); err != nil {
		return "", fmt.Errorf("failed to copy blueprint %s: %w", siteType, err)
	}
	return tenantDir, nil
}

// copyTree copies src into dst, substituting the tenant name into
// path- and content-bearing placeholders.
func copyTree(src, dst, tenantName string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, strings.ReplaceAll(rel, tenantPlaceholder, tenantName))

		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		data = []byte(strings.ReplaceAll(string(data), tenantPlaceholder, tenantName))
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}

// renderEnvFile writes the tenant's .env combining identity, domain,
// theme, database credentials and the site-type-specific variable
// block. Per-tenant secrets are freshly generated on every render and
// never reused across tenants or re-creates.
func renderEnvFile(tenantDir, domain, theme string, name tenant.Name, creds Credentials, siteType string) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Auto-generated .env for tenant %s\n", name)
	fmt.Fprintf(&b, "DOMAIN=%s\n", domain)
	fmt.Fprintf(&b, "TENANT_NAME=%s\n", name)
	fmt.Fprintf(&b, "DB_HOST=%s\n", creds.Host)
	fmt.Fprintf(&b, "DB_PORT=%s\n", creds.Port)
	fmt.Fprintf(&b, "DB_NAME=%s\n", creds.Name)
	fmt.Fprintf(&b, "DB_USER=%s\n", creds.User)
	fmt.Fprintf(&b, "DB_PASSWORD=%s\n", creds.Password)
	fmt.Fprintf(&b, "THEME=%s\n", theme)

	storeURL := fmt.Sprintf("http://%s.%s", name, domain)
	adminURL := fmt.Sprintf("http://admin.%s.%s", name, domain)

	switch siteType {
	case SiteTypeEcommerce:
		fmt.Fprintf(&b, "\n# Ecommerce backend variables\n")
		fmt.Fprintf(&b, "DATABASE_URL=%s\n", creds.DatabaseURL())
		fmt.Fprintf(&b, "REDIS_URL=redis://redis-%s:6379\n", name)
		fmt.Fprintf(&b, "STORE_CORS=%s\n", storeURL)
		fmt.Fprintf(&b, "ADMIN_CORS=%s\n", adminURL)
		fmt.Fprintf(&b, "AUTH_CORS=%s,%s\n", adminURL, storeURL)
		fmt.Fprintf(&b, "JWT_SECRET=%s\n", generateSecret())
		fmt.Fprintf(&b, "COOKIE_SECRET=%s\n", generateSecret())

	case SiteTypeCMS:
		fmt.Fprintf(&b, "\n# Headless CMS variables\n")
		fmt.Fprintf(&b, "DATABASE_CLIENT=postgres\n")
		fmt.Fprintf(&b, "DATABASE_HOST=%s\n", creds.Host)
		fmt.Fprintf(&b, "DATABASE_PORT=%s\n", creds.Port)
		fmt.Fprintf(&b, "DATABASE_NAME=%s\n", creds.Name)
		fmt.Fprintf(&b, "DATABASE_USERNAME=%s\n", creds.User)
		fmt.Fprintf(&b, "DATABASE_PASSWORD=%s\n", creds.Password)
		fmt.Fprintf(&b, "APP_KEYS=%s,%s,%s,%s\n", generateSecret(), generateSecret(), generateSecret(), generateSecret())
		fmt.Fprintf(&b, "API_TOKEN_SALT=%s\n", generateSecret())
		fmt.Fprintf(&b, "ADMIN_JWT_SECRET=%s\n", generateSecret())
		fmt.Fprintf(&b, "TRANSFER_TOKEN_SALT=%s\n", generateSecret())
		fmt.Fprintf(&b, "JWT_SECRET=%s\n", generateSecret())
		fmt.Fprintf(&b, "PUBLIC_URL=%s\n", storeURL)

	case SiteTypeBlog:
		fmt.Fprintf(&b, "\n# Blog engine variables\n")
		fmt.Fprintf(&b, "database__client=postgres\n")
		fmt.Fprintf(&b, "database__connection__host=%s\n", creds.Host)
		fmt.Fprintf(&b, "database__connection__port=%s\n", creds.Port)
		fmt.Fprintf(&b, "database__connection__database=%s\n", creds.Name)
		fmt.Fprintf(&b, "database__connection__user=%s\n", creds.User)
		fmt.Fprintf(&b, "database__connection__password=%s\n", creds.Password)
		fmt.Fprintf(&b, "url=%s\n", storeURL)
		fmt.Fprintf(&b, "admin__url=%s\n", adminURL)

	case SiteTypeBooking:
		fmt.Fprintf(&b, "\n# Booking engine variables\n")
		fmt.Fprintf(&b, "DATABASE_URL=%s\n", creds.DatabaseURL())
		fmt.Fprintf(&b, "SESSION_SECRET=%s\n", generateSecret())
		fmt.Fprintf(&b, "ENCRYPTION_KEY=%s\n", generateSecret())
		fmt.Fprintf(&b, "BASE_URL=%s\n", storeURL)
	}

	return os.WriteFile(filepath.Join(tenantDir, ".env"), []byte(b.String()), 0o600)
}

// generateSecret returns a 256-bit random secret, URL-safe encoded.
func generateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
