package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkwellhq/inkwell/internal/messaging/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertMessage(ctx context.Context, conn *gorm.DB, message *domain.Message) error {
	return conn.WithContext(ctx).Create(message).Error
}

func (r *repo) InsertRecipients(ctx context.Context, conn *gorm.DB, recipients []domain.MessageRecipient) error {
	if len(recipients) == 0 {
		return nil
	}
	return conn.WithContext(ctx).Create(&recipients).Error
}

func (r *repo) FindMessage(ctx context.Context, conn *gorm.DB, messageID snowflake.ID) (*domain.Message, error) {
	var message domain.Message
	err := conn.WithContext(ctx).
		Where("id = ? AND deleted = ?", messageID, false).
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *repo) MarkRecalled(ctx context.Context, conn *gorm.DB, messageID snowflake.ID, reason string, at time.Time) error {
	return conn.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ? AND recalled = ?", messageID, false).
		Updates(map[string]any{
			"recalled":      true,
			"recall_reason": reason,
			"recalled_at":   at,
		}).Error
}

func (r *repo) FindRecipient(ctx context.Context, conn *gorm.DB, messageID, recipientID snowflake.ID) (*domain.MessageRecipient, error) {
	var recipient domain.MessageRecipient
	err := conn.WithContext(ctx).
		Where("message_id = ? AND recipient_id = ?", messageID, recipientID).
		First(&recipient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &recipient, nil
}

func (r *repo) SaveRecipient(ctx context.Context, conn *gorm.DB, recipient *domain.MessageRecipient) error {
	return conn.WithContext(ctx).Save(recipient).Error
}

func (r *repo) ListInbox(ctx context.Context, conn *gorm.DB, tenantID, recipientID snowflake.ID, filter domain.InboxFilter) ([]domain.InboxItem, error) {
	query := conn.WithContext(ctx).
		Table("messages").
		Select("messages.*").
		Joins("JOIN message_recipients ON message_recipients.message_id = messages.id").
		Where("messages.tenant_id = ? AND message_recipients.recipient_id = ?", tenantID, recipientID).
		Where("messages.deleted = ?", false).
		Where("message_recipients.deleted_at IS NULL").
		Where("messages.expires_at IS NULL OR messages.expires_at > ?", filter.Now)

	if filter.UnreadOnly {
		query = query.Where("message_recipients.read_at IS NULL")
	}
	if filter.SavedOnly {
		query = query.Where("message_recipients.saved_at IS NOT NULL")
	}
	if filter.Before != nil {
		query = query.Where(
			"(messages.created_at < ?) OR (messages.created_at = ? AND messages.id < ?)",
			filter.Before.CreatedAt, filter.Before.CreatedAt, filter.Before.ID,
		)
	}

	var messages []domain.Message
	if err := query.
		Order("messages.created_at DESC, messages.id DESC").
		Limit(filter.Limit + 1).
		Find(&messages).Error; err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}

	messageIDs := make([]snowflake.ID, 0, len(messages))
	for _, message := range messages {
		messageIDs = append(messageIDs, message.ID)
	}

	var recipients []domain.MessageRecipient
	if err := conn.WithContext(ctx).
		Where("message_id IN ? AND recipient_id = ?", messageIDs, recipientID).
		Find(&recipients).Error; err != nil {
		return nil, err
	}
	byMessage := make(map[snowflake.ID]domain.MessageRecipient, len(recipients))
	for _, recipient := range recipients {
		byMessage[recipient.MessageID] = recipient
	}

	items := make([]domain.InboxItem, 0, len(messages))
	for _, message := range messages {
		recipient, ok := byMessage[message.ID]
		if !ok {
			continue
		}
		items = append(items, domain.InboxItem{Message: message, Recipient: recipient})
	}
	return items, nil
}

func (r *repo) CountUnreadBySender(ctx context.Context, conn *gorm.DB, tenantID, recipientID snowflake.ID, since *time.Time, now time.Time) ([]domain.SenderUnread, error) {
	query := conn.WithContext(ctx).
		Model(&domain.MessageRecipient{}).
		Select("messages.sender_id AS sender_id, COUNT(*) AS count").
		Joins("JOIN messages ON messages.id = message_recipients.message_id").
		Where("messages.tenant_id = ? AND message_recipients.recipient_id = ?", tenantID, recipientID).
		Where("messages.deleted = ? AND messages.recalled = ?", false, false).
		Where("message_recipients.read_at IS NULL AND message_recipients.deleted_at IS NULL").
		Where("messages.expires_at IS NULL OR messages.expires_at > ?", now)

	if since != nil {
		query = query.Where("messages.created_at > ?", *since)
	}

	var counts []domain.SenderUnread
	err := query.Group("messages.sender_id").Scan(&counts).Error
	return counts, err
}
