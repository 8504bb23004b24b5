package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// ReserveWindow is the single compare-and-set step of the rate
	// limiter: it either claims an expired/absent window for now..resetAt
	// and returns true, or leaves the open window untouched and returns
	// it for wait computation.
	ReserveWindow(ctx context.Context, db *gorm.DB, senderID snowflake.ID, now, resetAt time.Time) (bool, *RateLimitRecord, error)
	GetWindow(ctx context.Context, db *gorm.DB, senderID snowflake.ID) (*RateLimitRecord, error)

	HasActiveBlockBy(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, blockerIDs []snowflake.ID, targetIDs []snowflake.ID) (bool, error)
	HasPersonalBlockBetween(ctx context.Context, db *gorm.DB, tenantID, a, b snowflake.ID, excludedBlockerIDs []snowflake.ID) (bool, error)

	InsertBlock(ctx context.Context, db *gorm.DB, block *UserBlock) error
	FindActiveBlock(ctx context.Context, db *gorm.DB, tenantID, blockerID, blockedID snowflake.ID) (*UserBlock, error)
	DeactivateBlock(ctx context.Context, db *gorm.DB, blockID snowflake.ID, at time.Time) error
	ListBlocksByBlocker(ctx context.Context, db *gorm.DB, tenantID, blockerID snowflake.ID) ([]UserBlock, error)
}
