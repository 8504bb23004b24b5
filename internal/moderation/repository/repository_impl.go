package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkwellhq/inkwell/internal/moderation/domain"
	"github.com/inkwellhq/inkwell/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ReserveWindow(ctx context.Context, conn *gorm.DB, senderID snowflake.ID, now, resetAt time.Time) (bool, *domain.RateLimitRecord, error) {
	// Claim an expired window in place. The WHERE clause is the
	// compare half of the compare-and-set: only one concurrent caller
	// can move window_reset_at into the future.
	res := conn.WithContext(ctx).Model(&domain.RateLimitRecord{}).
		Where("sender_id = ? AND window_reset_at <= ?", senderID, now).
		Updates(map[string]any{
			"last_send_at":    now,
			"window_count":    1,
			"window_reset_at": resetAt,
		})
	if res.Error != nil {
		return false, nil, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil, nil
	}

	// No expired row: either this is the first send ever or a window is
	// open. The unique primary key arbitrates the race on first send.
	record := &domain.RateLimitRecord{
		SenderID:      senderID,
		LastSendAt:    now,
		WindowCount:   1,
		WindowResetAt: resetAt,
	}
	err := conn.WithContext(ctx).Create(record).Error
	if err == nil {
		return true, nil, nil
	}
	if !db.IsDuplicateKeyErr(err) {
		return false, nil, err
	}

	current, getErr := r.GetWindow(ctx, conn, senderID)
	if getErr != nil {
		return false, nil, getErr
	}
	return false, current, nil
}

func (r *repo) GetWindow(ctx context.Context, conn *gorm.DB, senderID snowflake.ID) (*domain.RateLimitRecord, error) {
	var record domain.RateLimitRecord
	err := conn.WithContext(ctx).
		Where("sender_id = ?", senderID).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) HasActiveBlockBy(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, blockerIDs []snowflake.ID, targetIDs []snowflake.ID) (bool, error) {
	if len(blockerIDs) == 0 || len(targetIDs) == 0 {
		return false, nil
	}
	var count int64
	err := conn.WithContext(ctx).Model(&domain.UserBlock{}).
		Where("tenant_id = ? AND active = ? AND blocker_id IN ? AND blocked_id IN ?",
			tenantID, true, blockerIDs, targetIDs).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) HasPersonalBlockBetween(ctx context.Context, conn *gorm.DB, tenantID, a, b snowflake.ID, excludedBlockerIDs []snowflake.ID) (bool, error) {
	stmt := conn.WithContext(ctx).Model(&domain.UserBlock{}).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a)
	if len(excludedBlockerIDs) > 0 {
		stmt = stmt.Where("blocker_id NOT IN ?", excludedBlockerIDs)
	}

	var count int64
	err := stmt.Count(&count).Error
	return count > 0, err
}

func (r *repo) InsertBlock(ctx context.Context, conn *gorm.DB, block *domain.UserBlock) error {
	return conn.WithContext(ctx).Create(block).Error
}

func (r *repo) FindActiveBlock(ctx context.Context, conn *gorm.DB, tenantID, blockerID, blockedID snowflake.ID) (*domain.UserBlock, error) {
	var block domain.UserBlock
	err := conn.WithContext(ctx).
		Where("tenant_id = ? AND blocker_id = ? AND blocked_id = ? AND active = ?",
			tenantID, blockerID, blockedID, true).
		First(&block).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (r *repo) DeactivateBlock(ctx context.Context, conn *gorm.DB, blockID snowflake.ID, at time.Time) error {
	return conn.WithContext(ctx).Model(&domain.UserBlock{}).
		Where("id = ?", blockID).
		Updates(map[string]any{
			"active":         false,
			"deactivated_at": at,
		}).Error
}

func (r *repo) ListBlocksByBlocker(ctx context.Context, conn *gorm.DB, tenantID, blockerID snowflake.ID) ([]domain.UserBlock, error) {
	var blocks []domain.UserBlock
	err := conn.WithContext(ctx).
		Where("tenant_id = ? AND blocker_id = ?", tenantID, blockerID).
		Order("created_at desc").
		Find(&blocks).Error
	return blocks, err
}
