// Package tenant maps human tenant names to canonical, injection-safe
// database identifiers. Everything here is pure: the same input always
// yields the same identifiers, which is what makes re-provisioning
// idempotent.
package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

// Tenant names: 3-30 lowercase alphanumerics or hyphens, no leading or
// trailing hyphen. This is the hard gate in front of every identifier
// that reaches a schema-definition statement.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,28}[a-z0-9]$`)

// Themes and site types share a looser token rule: short lowercase
// identifiers, no punctuation beyond hyphens.
var tokenPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,29}$`)

// ValidationError reports a malformed tenant name, theme or site type.
// It is always raised before any side effect occurs.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Name is a validated canonical tenant name.
type Name string

// SanitizeName validates a raw tenant name and returns its canonical form.
func SanitizeName(raw string) (Name, error) {
	if !namePattern.MatchString(raw) {
		return "", &ValidationError{
			Field:  "tenant_name",
			Value:  raw,
			Reason: "must be 3-30 lowercase alphanumeric characters or hyphens, not starting or ending with a hyphen",
		}
	}
	return Name(raw), nil
}

// ValidateToken validates a theme or site-type token.
func ValidateToken(field, raw string) error {
	if !tokenPattern.MatchString(raw) {
		return &ValidationError{
			Field:  field,
			Value:  raw,
			Reason: "must be 1-30 lowercase alphanumeric characters or hyphens",
		}
	}
	return nil
}

func (n Name) String() string {
	return string(n)
}

// DBName returns the tenant's database identifier: db_<name with - -> _>.
func (n Name) DBName() string {
	return "db_" + strings.ReplaceAll(string(n), "-", "_")
}

// RoleName returns the tenant's owning role identifier: user_<name with - -> _>.
func (n Name) RoleName() string {
	return "user_" + strings.ReplaceAll(string(n), "-", "_")
}
