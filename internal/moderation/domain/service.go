package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	messagingdomain "github.com/inkwellhq/inkwell/internal/messaging/domain"
)

// Reservation is the outcome of a combined rate-limit check-and-reserve.
type Reservation struct {
	Allowed     bool      `json:"allowed"`
	WaitSeconds int       `json:"wait_seconds"`
	ResetAt     time.Time `json:"reset_at"`
}

// SendAuthorization reports the outcome of a send eligibility check.
// Blocked recipients are reported rather than aborting the whole send;
// the caller decides whether anything deliverable remains.
type SendAuthorization struct {
	Allowed           bool           `json:"allowed"`
	SenderAdmin       bool           `json:"sender_admin"`
	ValidRecipients   []snowflake.ID `json:"valid_recipients"`
	BlockedRecipients []snowflake.ID `json:"blocked_recipients,omitempty"`
	InvalidRecipients []snowflake.ID `json:"invalid_recipients,omitempty"`
}

type BlockRequest struct {
	TenantID  snowflake.ID
	BlockerID snowflake.ID
	BlockedID snowflake.ID
	Reason    string
}

type Service interface {
	// CheckAndReserve atomically opens or extends the sender's window.
	// The check and the reservation are a single operation: two
	// concurrent sends from the same sender must not both observe
	// allowed within one window.
	CheckAndReserve(ctx context.Context, senderID snowflake.ID) (Reservation, error)

	// PeekWindow reports window state without consuming it, for dry-run
	// eligibility checks.
	PeekWindow(ctx context.Context, senderID snowflake.ID) (Reservation, error)

	// IsBlocked answers whether delivery from sender to recipient is
	// suppressed. Evaluation is two-phase: an active block issued by a
	// current admin against the sender suppresses outright; an admin
	// block against the recipient overrides the personal tier entirely
	// (incoming mail to a blocked user still lands); otherwise personal
	// blocks apply bidirectionally within the pair, with admin-issued
	// rows excluded so they are not double-counted.
	IsBlocked(ctx context.Context, senderID, recipientID, tenantID snowflake.ID) (bool, error)

	// CanSend applies the full eligibility ruleset: feature flag, role
	// gating by message type, capability grant, recipient membership
	// and block evaluation.
	CanSend(ctx context.Context, senderID, tenantID snowflake.ID, msgType messagingdomain.MessageType, recipients []snowflake.ID) (SendAuthorization, error)

	Block(ctx context.Context, req BlockRequest) (*UserBlock, error)
	Unblock(ctx context.Context, tenantID, blockerID, blockedID snowflake.ID) error
	ListBlocks(ctx context.Context, tenantID, blockerID snowflake.ID) ([]UserBlock, error)
}

// RateLimitedError carries the wait hint alongside the sentinel so
// callers can match errors.Is(err, ErrRateLimited) and still surface
// the remaining seconds.
type RateLimitedError struct {
	WaitSeconds int       `json:"wait_seconds"`
	ResetAt     time.Time `json:"reset_at"`
}

func (e *RateLimitedError) Error() string { return "rate_limited" }

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

var (
	ErrInvalidSender     = errors.New("invalid_sender")
	ErrInvalidRecipient  = errors.New("invalid_recipient")
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrInvalidBlock      = errors.New("invalid_block")
	ErrSelfBlock         = errors.New("self_block")
	ErrMessagingDisabled = errors.New("messaging_disabled")
	ErrRateLimited       = errors.New("rate_limited")
	ErrBlocked           = errors.New("blocked")
	ErrBlockNotFound     = errors.New("block_not_found")
)
