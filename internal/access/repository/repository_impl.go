package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/inkwellhq/inkwell/internal/access/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) IsGlobalAdmin(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.GlobalAdmin{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) IsTenantAdmin(ctx context.Context, db *gorm.DB, userID, tenantID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.TenantAdmin{}).
		Where("user_id = ? AND tenant_id = ?", userID, tenantID).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) TenantRole(ctx context.Context, db *gorm.DB, userID, tenantID snowflake.ID) (string, bool, error) {
	var row domain.TenantRole
	err := db.WithContext(ctx).
		Where("user_id = ? AND tenant_id = ?", userID, tenantID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Role, true, nil
}

func (r *repo) IsSubscriber(ctx context.Context, db *gorm.DB, userID, tenantID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Subscriber{}).
		Where("user_id = ? AND tenant_id = ?", userID, tenantID).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) TenantExists(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Tenant{}).
		Where("id = ? AND enabled = ?", tenantID, true).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) AdminUserIDs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]snowflake.ID, error) {
	var globals []snowflake.ID
	if err := db.WithContext(ctx).Model(&domain.GlobalAdmin{}).
		Pluck("user_id", &globals).Error; err != nil {
		return nil, err
	}

	var tenantAdmins []snowflake.ID
	if err := db.WithContext(ctx).Model(&domain.TenantAdmin{}).
		Where("tenant_id = ?", tenantID).
		Pluck("user_id", &tenantAdmins).Error; err != nil {
		return nil, err
	}

	seen := make(map[snowflake.ID]struct{}, len(globals)+len(tenantAdmins))
	out := make([]snowflake.ID, 0, len(globals)+len(tenantAdmins))
	for _, id := range append(globals, tenantAdmins...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
