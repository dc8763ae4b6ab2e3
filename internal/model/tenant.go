package model

import (
	"time"
)

// Tenant lifecycle status values persisted in the registry.
const (
	StatusRunning   = "running"
	StatusSuspended = "suspended"
)

// Tenant is the durable registry record for a provisioned tenant.
// It is the source of truth for what has been provisioned, independent
// of live compute or database state.
type Tenant struct {
	Name       string    `json:"name" gorm:"primaryKey;type:varchar(30)"`
	SiteType   string    `json:"site_type" gorm:"type:varchar(30);not null"`
	Theme      string    `json:"theme" gorm:"type:varchar(30)"`
	AdminEmail string    `json:"admin_email" gorm:"type:varchar(255)"`
	DBName     string    `json:"db_name" gorm:"type:varchar(64);not null"`
	DBUser     string    `json:"db_user" gorm:"type:varchar(64);not null"`
	Status     string    `json:"status" gorm:"type:varchar(16);not null;default:running"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
