// Package domain contains the moderation store models and contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UserBlock is a blocking relationship scoped to a tenant. Whether it is
// system-wide or personal is not materialized here: it depends on whether
// the blocker currently holds admin privilege, and is evaluated fresh on
// every delivery check.
type UserBlock struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;index:ix_user_blocks_tenant" json:"tenant_id"`
	BlockerID snowflake.ID `gorm:"column:blocker_id;not null;index" json:"blocker_id"`
	BlockedID snowflake.ID `gorm:"column:blocked_id;not null;index" json:"blocked_id"`

	Active bool   `gorm:"not null;default:true;index" json:"active"`
	Reason string `gorm:"type:text" json:"reason,omitempty"`

	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

func (UserBlock) TableName() string { return "user_blocks" }

// RateLimitRecord is the single active send window per sender. A new
// window opens lazily on the first send after expiry.
type RateLimitRecord struct {
	SenderID      snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"sender_id"`
	LastSendAt    time.Time    `gorm:"not null" json:"last_send_at"`
	WindowCount   int          `gorm:"not null" json:"window_count"`
	WindowResetAt time.Time    `gorm:"not null;index" json:"window_reset_at"`
}

func (RateLimitRecord) TableName() string { return "rate_limit_records" }
