// Package domain contains the message store models and contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// MessageType distinguishes delivery semantics, not content.
type MessageType string

const (
	MessageTypeDirect       MessageType = "direct"
	MessageTypeBroadcast    MessageType = "broadcast"
	MessageTypeAnnouncement MessageType = "announcement"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeDirect, MessageTypeBroadcast, MessageTypeAnnouncement:
		return true
	default:
		return false
	}
}

type MessagePriority string

const (
	PriorityLow    MessagePriority = "low"
	PriorityNormal MessagePriority = "normal"
	PriorityHigh   MessagePriority = "high"
)

// Message is owned by the tenant and immutable after creation except for
// recall and soft-delete.
type Message struct {
	ID       snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID snowflake.ID    `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	SenderID snowflake.ID    `gorm:"column:sender_id;not null;index" json:"sender_id"`
	Type     MessageType     `gorm:"type:text;not null" json:"type"`
	Priority MessagePriority `gorm:"type:text;not null;default:'normal'" json:"priority"`

	Subject  string            `gorm:"type:text;not null" json:"subject"`
	Body     string            `gorm:"type:text;not null" json:"body"`
	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	Deleted   bool       `gorm:"not null;default:false" json:"deleted"`

	Recalled     bool       `gorm:"not null;default:false" json:"recalled"`
	RecallReason string     `gorm:"type:text" json:"recall_reason,omitempty"`
	RecalledAt   *time.Time `json:"recalled_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// MessageRecipient is one recipient's view of a message. Its lifecycle is
// decoupled from the message: deleting a recipient row never deletes the
// message itself.
type MessageRecipient struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	MessageID   snowflake.ID `gorm:"not null;index;uniqueIndex:ux_message_recipients,priority:1" json:"message_id"`
	RecipientID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_message_recipients,priority:2" json:"recipient_id"`
	TenantID    snowflake.ID `gorm:"column:tenant_id;not null;index" json:"tenant_id"`

	ReadAt      *time.Time `json:"read_at,omitempty"`
	SavedAt     *time.Time `json:"saved_at,omitempty"`
	ForwardedAt *time.Time `json:"forwarded_at,omitempty"`
	RepliedAt   *time.Time `json:"replied_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (MessageRecipient) TableName() string { return "message_recipients" }

// RecipientState names the per-recipient flags a client may set.
type RecipientState string

const (
	StateRead      RecipientState = "read"
	StateSaved     RecipientState = "saved"
	StateForwarded RecipientState = "forwarded"
	StateReplied   RecipientState = "replied"
	StateDeleted   RecipientState = "deleted"
)

func (s RecipientState) Valid() bool {
	switch s {
	case StateRead, StateSaved, StateForwarded, StateReplied, StateDeleted:
		return true
	default:
		return false
	}
}
