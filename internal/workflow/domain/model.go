// Package domain contains the workflow session models and contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// WorkflowStatus is the persisted lifecycle state. Hard deletion is not
// a status: the row is physically removed and only audit survives.
type WorkflowStatus string

const (
	StatusActive    WorkflowStatus = "active"
	StatusCompleted WorkflowStatus = "completed"
	StatusCancelled WorkflowStatus = "cancelled"
	StatusDeleted   WorkflowStatus = "deleted"
)

func (s WorkflowStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled, StatusDeleted:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes the state machine: everything is reachable
// from active, and active is reachable again only from cancelled.
func (s WorkflowStatus) CanTransitionTo(target WorkflowStatus) bool {
	switch s {
	case StatusActive:
		return target == StatusCompleted || target == StatusCancelled || target == StatusDeleted
	case StatusCancelled:
		return target == StatusActive
	default:
		return false
	}
}

type Workflow struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID   `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	InitiatorID snowflake.ID   `gorm:"column:initiator_id;not null;index" json:"initiator_id"`
	Title       string         `gorm:"type:text;not null" json:"title"`
	Status      WorkflowStatus `gorm:"type:text;not null;default:'active';index" json:"status"`

	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CompleterID *snowflake.ID `json:"completer_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Workflow) TableName() string { return "workflows" }

// WorkflowParticipant membership is append-only; there is no leave
// operation, only workflow-level termination.
type WorkflowParticipant struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	WorkflowID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_workflow_participants,priority:1" json:"workflow_id"`
	UserID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_workflow_participants,priority:2" json:"user_id"`
	Email      string       `gorm:"type:text;not null" json:"email"`
	Role       string       `gorm:"type:text;not null" json:"role"`
	JoinedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"joined_at"`
}

func (WorkflowParticipant) TableName() string { return "workflow_participants" }

type WorkflowMessageType string

const (
	MessageRequest   WorkflowMessageType = "request"
	MessageResponse  WorkflowMessageType = "response"
	MessageUpload    WorkflowMessageType = "upload"
	MessageShareLink WorkflowMessageType = "share_link"
	MessageReview    WorkflowMessageType = "review"
)

func (t WorkflowMessageType) Valid() bool {
	switch t {
	case MessageRequest, MessageResponse, MessageUpload, MessageShareLink, MessageReview:
		return true
	default:
		return false
	}
}

// WorkflowMessage is append-only and ordered by creation time. MediaRef
// is an opaque object-storage pointer; the engine never dereferences it.
type WorkflowMessage struct {
	ID         snowflake.ID        `gorm:"primaryKey" json:"id"`
	WorkflowID snowflake.ID        `gorm:"not null;index" json:"workflow_id"`
	SenderID   snowflake.ID        `gorm:"column:sender_id;not null;index" json:"sender_id"`
	Type       WorkflowMessageType `gorm:"type:text;not null" json:"type"`
	Content    string              `gorm:"type:text;not null" json:"content"`
	MediaRef   string              `gorm:"type:text" json:"media_ref,omitempty"`
	CreatedAt  time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (WorkflowMessage) TableName() string { return "workflow_messages" }

// WorkflowLink is a shareable entry point into a workflow. Token is the
// unguessable part of the URL; Slug is the readable part derived from
// the workflow title.
type WorkflowLink struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	WorkflowID snowflake.ID `gorm:"not null;index" json:"workflow_id"`
	Token      string       `gorm:"type:text;not null;uniqueIndex:ux_workflow_links_token" json:"token"`
	Slug       string       `gorm:"type:text;not null" json:"slug"`
	Label      string       `gorm:"type:text" json:"label,omitempty"`
	CreatedBy  snowflake.ID `gorm:"not null" json:"created_by"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (WorkflowLink) TableName() string { return "workflow_links" }

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRevoked  InvitationStatus = "revoked"
)

type WorkflowInvitation struct {
	ID         snowflake.ID     `gorm:"primaryKey" json:"id"`
	WorkflowID snowflake.ID     `gorm:"not null;index" json:"workflow_id"`
	Email      string           `gorm:"type:text;not null" json:"email"`
	Role       string           `gorm:"type:text;not null" json:"role"`
	InvitedBy  snowflake.ID     `gorm:"not null" json:"invited_by"`
	Status     InvitationStatus `gorm:"type:text;not null;default:'pending';index" json:"status"`
	CreatedAt  time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (WorkflowInvitation) TableName() string { return "workflow_invitations" }
