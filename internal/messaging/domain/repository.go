package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// InboxFilter narrows the candidate rows; block evaluation stays in the
// service where the moderation tiers live.
type InboxFilter struct {
	UnreadOnly bool
	SavedOnly  bool
	Before     *InboxCursor
	Limit      int
	Now        time.Time
}

type InboxCursor struct {
	CreatedAt time.Time
	ID        snowflake.ID
}

type Repository interface {
	InsertMessage(ctx context.Context, db *gorm.DB, message *Message) error
	InsertRecipients(ctx context.Context, db *gorm.DB, recipients []MessageRecipient) error
	FindMessage(ctx context.Context, db *gorm.DB, messageID snowflake.ID) (*Message, error)
	MarkRecalled(ctx context.Context, db *gorm.DB, messageID snowflake.ID, reason string, at time.Time) error

	FindRecipient(ctx context.Context, db *gorm.DB, messageID, recipientID snowflake.ID) (*MessageRecipient, error)
	SaveRecipient(ctx context.Context, db *gorm.DB, recipient *MessageRecipient) error

	// ListInbox returns limit+1 candidate items newest-first so the
	// caller can detect a further page after filtering.
	ListInbox(ctx context.Context, db *gorm.DB, tenantID, recipientID snowflake.ID, filter InboxFilter) ([]InboxItem, error)

	// CountUnreadBySender groups unread counts per sender; the service
	// drops blocked senders before summing, mirroring the inbox view.
	CountUnreadBySender(ctx context.Context, db *gorm.DB, tenantID, recipientID snowflake.ID, since *time.Time, now time.Time) ([]SenderUnread, error)
}

type SenderUnread struct {
	SenderID snowflake.ID
	Count    int64
}
