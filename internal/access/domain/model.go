// Package domain contains the identity registries the resolver reads.
// These tables are owned by the platform's account system; the engine
// only ever reads them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tenant is an isolated organizational scope.
type Tenant struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex:ux_tenants_slug" json:"slug"`
	Enabled   bool         `gorm:"not null;default:true" json:"enabled"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Tenant) TableName() string { return "tenants" }

// GlobalAdmin marks a user as a platform-wide administrator.
type GlobalAdmin struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_global_admins_user" json:"user_id"`
	Email     string       `gorm:"type:text;not null" json:"email"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (GlobalAdmin) TableName() string { return "global_admins" }

// TenantAdmin marks a user as administrator of one tenant.
type TenantAdmin struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_tenant_admins,priority:1" json:"tenant_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_tenant_admins,priority:2" json:"user_id"`
	Email     string       `gorm:"type:text;not null" json:"email"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (TenantAdmin) TableName() string { return "tenant_admins" }

// TenantRole is one (tenant, role) assignment. A user may hold different
// roles in different tenants at the same time.
type TenantRole struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_tenant_roles,priority:1" json:"tenant_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_tenant_roles,priority:2" json:"user_id"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (TenantRole) TableName() string { return "tenant_roles" }

// Subscriber is a reader-level membership in a tenant.
type Subscriber struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_subscribers,priority:1" json:"tenant_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_subscribers,priority:2" json:"user_id"`
	Email     string       `gorm:"type:text;not null" json:"email"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Subscriber) TableName() string { return "subscribers" }
