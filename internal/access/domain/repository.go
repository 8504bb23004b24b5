package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	IsGlobalAdmin(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error)
	IsTenantAdmin(ctx context.Context, db *gorm.DB, userID, tenantID snowflake.ID) (bool, error)
	TenantRole(ctx context.Context, db *gorm.DB, userID, tenantID snowflake.ID) (string, bool, error)
	IsSubscriber(ctx context.Context, db *gorm.DB, userID, tenantID snowflake.ID) (bool, error)
	TenantExists(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (bool, error)
	AdminUserIDs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]snowflake.ID, error)
}
