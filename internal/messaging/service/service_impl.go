package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accessdomain "github.com/inkwellhq/inkwell/internal/access/domain"
	auditdomain "github.com/inkwellhq/inkwell/internal/audit/domain"
	"github.com/inkwellhq/inkwell/internal/clock"
	"github.com/inkwellhq/inkwell/internal/config"
	"github.com/inkwellhq/inkwell/internal/fanout"
	"github.com/inkwellhq/inkwell/internal/messaging/domain"
	moderationdomain "github.com/inkwellhq/inkwell/internal/moderation/domain"
	"github.com/inkwellhq/inkwell/internal/observability/metrics"
	"github.com/inkwellhq/inkwell/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB            *gorm.DB
	Repo          domain.Repository
	AccessRepo    accessdomain.Repository
	ModerationSvc moderationdomain.Service
	AuditSvc      auditdomain.Service
	Hub           *fanout.Hub
	Cfg           *config.MessagingConfigHolder
	GenID         *snowflake.Node
	Clk           clock.Clock
	Log           *zap.Logger
}

type service struct {
	db            *gorm.DB
	repo          domain.Repository
	accessRepo    accessdomain.Repository
	moderationSvc moderationdomain.Service
	auditSvc      auditdomain.Service
	hub           *fanout.Hub
	cfg           *config.MessagingConfigHolder
	genID         *snowflake.Node
	clk           clock.Clock
	log           *zap.Logger
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:            p.DB,
		repo:          p.Repo,
		accessRepo:    p.AccessRepo,
		moderationSvc: p.ModerationSvc,
		auditSvc:      p.AuditSvc,
		hub:           p.Hub,
		cfg:           p.Cfg,
		genID:         p.GenID,
		clk:           p.Clk,
		log:           p.Log.Named("messaging.service"),
	}
}

func (s *service) Send(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	var result domain.SendResult

	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Body) == "" {
		return result, domain.ErrInvalidMessage
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityNormal
	}

	auth, err := s.moderationSvc.CanSend(ctx, req.SenderID, req.TenantID, req.Type, req.Recipients)
	if err != nil {
		if err == moderationdomain.ErrBlocked {
			metrics.SendsBlocked.Inc()
		}
		return result, err
	}
	result.BlockedRecipients = auth.BlockedRecipients
	result.InvalidRecipients = auth.InvalidRecipients
	if !auth.Allowed {
		if len(auth.BlockedRecipients) > 0 {
			metrics.SendsBlocked.Inc()
		}
		return result, domain.ErrNoValidRecipients
	}

	// The reservation is taken after authorization so a forbidden
	// attempt never burns the sender's window, and before persistence
	// so two concurrent sends cannot both commit in one window.
	reservation, err := s.moderationSvc.CheckAndReserve(ctx, req.SenderID)
	if err != nil {
		return result, err
	}
	if !reservation.Allowed {
		metrics.SendsRateLimited.Inc()
		return result, &moderationdomain.RateLimitedError{
			WaitSeconds: reservation.WaitSeconds,
			ResetAt:     reservation.ResetAt,
		}
	}

	now := s.clk.Now()
	message := &domain.Message{
		ID:        s.genID.Generate(),
		TenantID:  req.TenantID,
		SenderID:  req.SenderID,
		Type:      req.Type,
		Priority:  req.Priority,
		Subject:   req.Subject,
		Body:      req.Body,
		Metadata:  datatypes.JSONMap(req.Metadata),
		ExpiresAt: req.ExpiresAt,
		CreatedAt: now,
	}

	recipients := make([]domain.MessageRecipient, 0, len(auth.ValidRecipients))
	for _, recipientID := range auth.ValidRecipients {
		recipients = append(recipients, domain.MessageRecipient{
			ID:          s.genID.Generate(),
			MessageID:   message.ID,
			RecipientID: recipientID,
			TenantID:    req.TenantID,
			CreatedAt:   now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertMessage(ctx, tx, message); err != nil {
			return err
		}
		return s.repo.InsertRecipients(ctx, tx, recipients)
	})
	if err != nil {
		return result, err
	}

	result.MessageID = message.ID
	result.Delivered = auth.ValidRecipients
	metrics.MessagesSent.WithLabelValues(string(req.Type)).Inc()

	s.publish(fanout.TenantScope(req.TenantID), fanout.EventMessageSent, map[string]any{
		"message_id": message.ID.String(),
		"sender_id":  req.SenderID.String(),
		"type":       string(req.Type),
		"priority":   string(req.Priority),
		"subject":    req.Subject,
		"recipients": idStrings(auth.ValidRecipients),
		"sent_at":    now.UTC().Format(time.RFC3339Nano),
	})
	return result, nil
}

func (s *service) CanRecall(ctx context.Context, messageID, requesterID snowflake.ID) (bool, error) {
	message, err := s.repo.FindMessage(ctx, s.db, messageID)
	if err != nil {
		return false, err
	}
	if message == nil {
		return false, domain.ErrMessageNotFound
	}
	return s.recallable(message, requesterID) == nil, nil
}

func (s *service) Recall(ctx context.Context, messageID, requesterID snowflake.ID, reason string) error {
	message, err := s.repo.FindMessage(ctx, s.db, messageID)
	if err != nil {
		return err
	}
	if message == nil {
		return domain.ErrMessageNotFound
	}
	if err := s.recallable(message, requesterID); err != nil {
		return err
	}

	now := s.clk.Now()
	if err := s.repo.MarkRecalled(ctx, s.db, message.ID, reason, now); err != nil {
		return err
	}

	actor := requesterID.String()
	target := message.ID.String()
	if err := s.auditSvc.Record(ctx, message.TenantID, auditdomain.ActorTypeUser, &actor,
		auditdomain.ActionMessageRecall, "message", &target, map[string]any{"reason": reason}); err != nil {
		s.log.Warn("audit write failed", zap.String("action", auditdomain.ActionMessageRecall), zap.Error(err))
	}

	s.publish(fanout.TenantScope(message.TenantID), fanout.EventMessageRecalled, map[string]any{
		"message_id":  message.ID.String(),
		"recalled_at": now.UTC().Format(time.RFC3339Nano),
	})
	return nil
}

// recallable enforces the withdraw rules. The window is inclusive: a
// recall at exactly the configured boundary still succeeds.
func (s *service) recallable(message *domain.Message, requesterID snowflake.ID) error {
	if message.SenderID != requesterID {
		return domain.ErrNotSender
	}
	if message.Recalled {
		return domain.ErrAlreadyRecalled
	}
	elapsed := s.clk.Now().Sub(message.CreatedAt)
	if elapsed > s.cfg.Get().RecallWindow() {
		return domain.ErrRecallWindowElapsed
	}
	return nil
}

func (s *service) MarkRecipientState(ctx context.Context, messageID, recipientID snowflake.ID, state domain.RecipientState) (*domain.MessageRecipient, error) {
	if !state.Valid() {
		return nil, domain.ErrInvalidState
	}

	recipient, err := s.repo.FindRecipient(ctx, s.db, messageID, recipientID)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, domain.ErrRecipientNotFound
	}

	now := s.clk.Now()
	var slot **time.Time
	switch state {
	case domain.StateRead:
		slot = &recipient.ReadAt
	case domain.StateSaved:
		slot = &recipient.SavedAt
	case domain.StateForwarded:
		slot = &recipient.ForwardedAt
	case domain.StateReplied:
		slot = &recipient.RepliedAt
	case domain.StateDeleted:
		slot = &recipient.DeletedAt
	}

	// Repeating a mutation keeps the first timestamp.
	if *slot != nil {
		return recipient, nil
	}
	*slot = &now

	if err := s.repo.SaveRecipient(ctx, s.db, recipient); err != nil {
		return nil, err
	}
	return recipient, nil
}

func (s *service) Inbox(ctx context.Context, req domain.ListInboxRequest) (domain.ListInboxResponse, error) {
	var resp domain.ListInboxResponse

	limit := req.PageSize
	if limit <= 0 {
		limit = 25
	}

	filter := domain.InboxFilter{
		UnreadOnly: req.UnreadOnly,
		SavedOnly:  req.SavedOnly,
		Limit:      limit,
		Now:        s.clk.Now(),
	}
	if req.PageToken != "" {
		cursor, err := decodeInboxCursor(req.PageToken)
		if err != nil {
			return resp, domain.ErrInvalidMessage
		}
		filter.Before = cursor
	}

	adminIDs, err := s.accessRepo.AdminUserIDs(ctx, s.db, req.TenantID)
	if err != nil {
		return resp, err
	}
	adminSet := make(map[snowflake.ID]bool, len(adminIDs))
	for _, id := range adminIDs {
		adminSet[id] = true
	}

	items := make([]domain.InboxItem, 0, limit)
	hasMore := false

	// Block state is evaluated at query time, never from a stored
	// column, so a block created today hides yesterday's messages and
	// an unblock reveals them again. Suppressed rows are refilled from
	// the next page until the page is full or history runs out.
	blockedSenders := make(map[snowflake.ID]bool)
	for len(items) <= limit {
		candidates, err := s.repo.ListInbox(ctx, s.db, req.TenantID, req.RecipientID, filter)
		if err != nil {
			return resp, err
		}
		if len(candidates) == 0 {
			break
		}

		for _, item := range candidates {
			if len(items) > limit {
				break
			}
			senderID := item.Message.SenderID
			if !adminSet[senderID] && senderID != req.RecipientID {
				suppressed, seen := blockedSenders[senderID]
				if !seen {
					suppressed, err = s.moderationSvc.IsBlocked(ctx, senderID, req.RecipientID, req.TenantID)
					if err != nil {
						return resp, err
					}
					blockedSenders[senderID] = suppressed
				}
				if suppressed {
					continue
				}
			}
			items = append(items, redactIfRecalled(item))
		}

		if len(candidates) <= filter.Limit {
			break
		}
		last := candidates[len(candidates)-1]
		filter.Before = &domain.InboxCursor{CreatedAt: last.Message.CreatedAt, ID: last.Message.ID}
	}

	if len(items) > limit {
		items = items[:limit]
		hasMore = true
	}

	resp.Items = items
	resp.PageInfo.HasMore = hasMore
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.Message.ID.String(),
			CreatedAt: last.Message.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err == nil {
			resp.PageInfo.NextPageToken = token
		}
	}
	return resp, nil
}

// UnreadCount applies the same live block predicate as Inbox so the
// badge can never exceed what the inbox will actually show.
func (s *service) UnreadCount(ctx context.Context, tenantID, recipientID snowflake.ID, since *time.Time) (int64, error) {
	counts, err := s.repo.CountUnreadBySender(ctx, s.db, tenantID, recipientID, since, s.clk.Now())
	if err != nil {
		return 0, err
	}
	if len(counts) == 0 {
		return 0, nil
	}

	adminIDs, err := s.accessRepo.AdminUserIDs(ctx, s.db, tenantID)
	if err != nil {
		return 0, err
	}
	adminSet := make(map[snowflake.ID]bool, len(adminIDs))
	for _, id := range adminIDs {
		adminSet[id] = true
	}

	var total int64
	for _, row := range counts {
		if !adminSet[row.SenderID] && row.SenderID != recipientID {
			blocked, err := s.moderationSvc.IsBlocked(ctx, row.SenderID, recipientID, tenantID)
			if err != nil {
				return 0, err
			}
			if blocked {
				continue
			}
		}
		total += row.Count
	}
	return total, nil
}

// redactIfRecalled strips withdrawn content while keeping the row
// visible, so clients can render a "message recalled" placeholder.
func redactIfRecalled(item domain.InboxItem) domain.InboxItem {
	if !item.Message.Recalled {
		return item
	}
	item.Message.Subject = ""
	item.Message.Body = ""
	item.Message.Metadata = nil
	return item
}

func (s *service) publish(scope, eventType string, payload map[string]any) {
	env, err := fanout.NewEnvelope(eventType, payload)
	if err != nil {
		s.log.Warn("envelope marshal failed", zap.String("type", eventType), zap.Error(err))
		return
	}
	s.hub.Publish(scope, env)
}

func idStrings(ids []snowflake.ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func decodeInboxCursor(token string) (*domain.InboxCursor, error) {
	raw, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(raw.ID, 10, 64)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &domain.InboxCursor{CreatedAt: createdAt, ID: snowflake.ID(id)}, nil
}
