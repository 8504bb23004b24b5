package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Role is the effective permission level of an identity within a scope.
type Role string

const (
	RoleGlobalAdmin Role = "GLOBAL_ADMIN"
	RoleTenantAdmin Role = "TENANT_ADMIN"
	RoleEditor      Role = "EDITOR"
	RoleAuthor      Role = "AUTHOR"
	RoleContributor Role = "CONTRIBUTOR"
	RoleSubscriber  Role = "SUBSCRIBER"
	RoleNone        Role = "NONE"
)

// Admin reports whether the role carries elevated privilege.
func (r Role) Admin() bool {
	return r == RoleGlobalAdmin || r == RoleTenantAdmin
}

// Member reports whether the role grants any tenant membership at all.
func (r Role) Member() bool {
	return r != RoleNone && r != ""
}

// ParseTenantRole maps a role assignment row to a Role, failing closed on
// anything unknown.
func ParseTenantRole(raw string) Role {
	switch Role(raw) {
	case RoleEditor:
		return RoleEditor
	case RoleAuthor:
		return RoleAuthor
	case RoleContributor:
		return RoleContributor
	default:
		return RoleNone
	}
}

// Resolution is the outcome of a permission lookup. TenantID is zero for
// global-scope resolutions.
type Resolution struct {
	Role     Role
	TenantID snowflake.ID
}

// Service resolves an identity's effective role. Resolution is a pure read
// of current state: callers must re-resolve on every privileged operation
// instead of trusting a cached result, since grants change between calls.
type Service interface {
	// Resolve computes the effective role of userID. When tenantID is zero
	// only global-scope roles are considered; tenant-scoped roles require
	// an explicit tenant. Priority: global-admin > tenant-admin > assigned
	// tenant role > subscriber > none.
	Resolve(ctx context.Context, userID snowflake.ID, tenantID snowflake.ID) (Resolution, error)

	// IsTenantMember reports whether userID is reachable as a message
	// target within the tenant: an assigned role, a subscriber record, or
	// a global-admin designation all qualify.
	IsTenantMember(ctx context.Context, userID snowflake.ID, tenantID snowflake.ID) (bool, error)

	// IsAdmin reports whether userID holds global-admin or tenant-admin
	// privilege for the given tenant.
	IsAdmin(ctx context.Context, userID snowflake.ID, tenantID snowflake.ID) (bool, error)
}

var (
	ErrInvalidUser   = errors.New("invalid_user")
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrNoAccess      = errors.New("no_access")
)
