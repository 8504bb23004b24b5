package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

const (
	ActionBlockCreate        = "moderation.block.create"
	ActionBlockDeactivate    = "moderation.block.deactivate"
	ActionMessageRecall      = "message.recall"
	ActionWorkflowComplete   = "workflow.complete"
	ActionWorkflowCancel     = "workflow.cancel"
	ActionWorkflowReactivate = "workflow.reactivate"
	ActionWorkflowSoftDelete = "workflow.soft_delete"
	ActionWorkflowHardDelete = "workflow.hard_delete"
)

// AuditLog is an append-only record of a privileged or destructive action.
// For hard-deletes it is the only surviving trace of the target.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID      `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"type:text;index" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
