package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/inkwellhq/inkwell/internal/access/domain"
	"gorm.io/gorm"
)

type service struct {
	db   *gorm.DB
	repo domain.Repository
}

func NewService(db *gorm.DB, repo domain.Repository) domain.Service {
	return &service{db: db, repo: repo}
}

// Resolve walks the registries in fixed priority order and fails closed:
// any lookup error or absence of matching rows yields no access rather
// than a default role.
func (s *service) Resolve(ctx context.Context, userID snowflake.ID, tenantID snowflake.ID) (domain.Resolution, error) {
	none := domain.Resolution{Role: domain.RoleNone}
	if userID == 0 {
		return none, domain.ErrInvalidUser
	}

	global, err := s.repo.IsGlobalAdmin(ctx, s.db, userID)
	if err != nil {
		return none, err
	}
	if global {
		return domain.Resolution{Role: domain.RoleGlobalAdmin, TenantID: tenantID}, nil
	}

	// Without an explicit tenant only global-scope roles are resolvable.
	if tenantID == 0 {
		return none, nil
	}

	exists, err := s.repo.TenantExists(ctx, s.db, tenantID)
	if err != nil {
		return none, err
	}
	if !exists {
		return none, domain.ErrInvalidTenant
	}

	admin, err := s.repo.IsTenantAdmin(ctx, s.db, userID, tenantID)
	if err != nil {
		return none, err
	}
	if admin {
		return domain.Resolution{Role: domain.RoleTenantAdmin, TenantID: tenantID}, nil
	}

	rawRole, found, err := s.repo.TenantRole(ctx, s.db, userID, tenantID)
	if err != nil {
		return none, err
	}
	if found {
		if role := domain.ParseTenantRole(rawRole); role != domain.RoleNone {
			return domain.Resolution{Role: role, TenantID: tenantID}, nil
		}
	}

	subscriber, err := s.repo.IsSubscriber(ctx, s.db, userID, tenantID)
	if err != nil {
		return none, err
	}
	if subscriber {
		return domain.Resolution{Role: domain.RoleSubscriber, TenantID: tenantID}, nil
	}

	return none, nil
}

func (s *service) IsTenantMember(ctx context.Context, userID snowflake.ID, tenantID snowflake.ID) (bool, error) {
	if userID == 0 || tenantID == 0 {
		return false, nil
	}

	res, err := s.Resolve(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	return res.Role.Member(), nil
}

func (s *service) IsAdmin(ctx context.Context, userID snowflake.ID, tenantID snowflake.ID) (bool, error) {
	if userID == 0 {
		return false, nil
	}

	global, err := s.repo.IsGlobalAdmin(ctx, s.db, userID)
	if err != nil {
		return false, err
	}
	if global {
		return true, nil
	}
	if tenantID == 0 {
		return false, nil
	}
	return s.repo.IsTenantAdmin(ctx, s.db, userID, tenantID)
}
