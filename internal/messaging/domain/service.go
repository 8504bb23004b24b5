package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkwellhq/inkwell/pkg/db/pagination"
)

type SendRequest struct {
	TenantID   snowflake.ID    `json:"tenant_id"`
	SenderID   snowflake.ID    `json:"sender_id"`
	Type       MessageType     `json:"type"`
	Priority   MessagePriority `json:"priority"`
	Subject    string          `json:"subject"`
	Body       string          `json:"body"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Recipients []snowflake.ID  `json:"recipients"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
}

// SendResult reports the delivered roster alongside the recipients that
// were filtered out, so the caller can surface partial delivery.
type SendResult struct {
	MessageID         snowflake.ID   `json:"message_id"`
	Delivered         []snowflake.ID `json:"delivered"`
	BlockedRecipients []snowflake.ID `json:"blocked_recipients,omitempty"`
	InvalidRecipients []snowflake.ID `json:"invalid_recipients,omitempty"`
}

// InboxItem is a recipient's view of one message.
type InboxItem struct {
	Message   Message          `json:"message"`
	Recipient MessageRecipient `json:"recipient"`
}

type ListInboxRequest struct {
	pagination.Pagination

	TenantID    snowflake.ID `json:"tenant_id"`
	RecipientID snowflake.ID `json:"recipient_id"`
	UnreadOnly  bool         `json:"unread_only"`
	SavedOnly   bool         `json:"saved_only"`
}

type ListInboxResponse struct {
	Items    []InboxItem         `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	// Send authorizes, rate-limits and persists a message with one
	// recipient row per deliverable target, then notifies the tenant's
	// live listeners. A roster with nothing deliverable is an error,
	// never a silent no-op.
	Send(ctx context.Context, req SendRequest) (SendResult, error)

	// CanRecall reports whether the requester may still withdraw the
	// message. The window is inclusive at its boundary.
	CanRecall(ctx context.Context, messageID, requesterID snowflake.ID) (bool, error)

	// Recall withdraws the message without deleting it; recipient views
	// treat it as withdrawn content from then on.
	Recall(ctx context.Context, messageID, requesterID snowflake.ID, reason string) error

	// MarkRecipientState sets one per-recipient flag. Repeating a
	// mutation keeps the original timestamp.
	MarkRecipientState(ctx context.Context, messageID, recipientID snowflake.ID, state RecipientState) (*MessageRecipient, error)

	// Inbox lists the recipient's messages with block evaluation applied
	// live at query time, so block changes retroactively hide and reveal
	// history.
	Inbox(ctx context.Context, req ListInboxRequest) (ListInboxResponse, error)

	// UnreadCount is the polling reconciliation query for clients whose
	// push stream dropped.
	UnreadCount(ctx context.Context, tenantID, recipientID snowflake.ID, since *time.Time) (int64, error)
}

var (
	ErrMessageNotFound     = errors.New("message_not_found")
	ErrRecipientNotFound   = errors.New("recipient_not_found")
	ErrNotSender           = errors.New("not_sender")
	ErrAlreadyRecalled     = errors.New("already_recalled")
	ErrRecallWindowElapsed = errors.New("recall_window_elapsed")
	ErrNoValidRecipients   = errors.New("no_valid_recipients")
	ErrInvalidMessage      = errors.New("invalid_message")
	ErrInvalidState        = errors.New("invalid_state")
)
