// Package registry persists tenant records in the shared cluster's
// admin database. The registry is the durable source of truth for what
// has been provisioned, independent of live compute or database state.
package registry

import (
	"context"
	"errors"

	"provision-service/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTenantNotFound is returned when a registry row does not exist.
var ErrTenantNotFound = errors.New("tenant not found in registry")

// Store provides access to the tenant registry table.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Upsert writes a tenant record, overwriting any existing row with the
// same name. Create is idempotent-overwrite, so re-provisioning an
// existing tenant refreshes its record rather than conflicting.
func (s *Store) Upsert(ctx context.Context, t *model.Tenant) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"site_type", "theme", "admin_email", "db_name", "db_user", "status", "updated_at",
		}),
	}).Create(t).Error
}

// Get returns the tenant record by name.
func (s *Store) Get(ctx context.Context, name string) (*model.Tenant, error) {
	var t model.Tenant
	err := s.db.WithContext(ctx).First(&t, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns all tenant records, newest first.
func (s *Store) List(ctx context.Context) ([]model.Tenant, error) {
	var tenants []model.Tenant
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&tenants).Error
	return tenants, err
}

// UpdateStatus sets the lifecycle status of an existing tenant.
func (s *Store) UpdateStatus(ctx context.Context, name, status string) error {
	res := s.db.WithContext(ctx).Model(&model.Tenant{}).
		Where("name = ?", name).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// Delete removes a tenant record. Deleting a missing row is a no-op.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Delete(&model.Tenant{}, "name = ?", name).Error
}
