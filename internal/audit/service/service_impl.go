package service

import (
	"context"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkwellhq/inkwell/internal/audit/domain"
	"github.com/inkwellhq/inkwell/internal/clock"
	"github.com/inkwellhq/inkwell/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type service struct {
	db    *gorm.DB
	repo  domain.Repository
	genID *snowflake.Node
	clk   clock.Clock
	log   *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) domain.Service {
	return &service{db: db, repo: repo, genID: genID, clk: clk, log: log}
}

func (s *service) Record(ctx context.Context, tenantID snowflake.ID, actorType string, actorID *string, action, targetType string, targetID *string, metadata map[string]any) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}
	if action == "" {
		return domain.ErrInvalidAction
	}
	if actorType == "" {
		actorType = domain.ActorTypeSystem
	}

	entry := &domain.AuditLog{
		ID:         s.genID.Generate(),
		TenantID:   tenantID,
		ActorType:  actorType,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   datatypes.JSONMap(metadata),
		CreatedAt:  s.clk.Now(),
	}
	return s.repo.Insert(ctx, s.db, entry)
}

func (s *service) List(ctx context.Context, req domain.ListAuditLogRequest) (domain.ListAuditLogResponse, error) {
	var resp domain.ListAuditLogResponse
	if req.TenantID == 0 {
		return resp, domain.ErrInvalidTenant
	}
	if req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt) {
		return resp, domain.ErrInvalidTimeRange
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 25
	}

	filter := domain.ListFilter{
		TenantID:   req.TenantID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Limit:      limit,
	}

	if req.PageToken != "" {
		cursor, err := decodeCursor(req.PageToken)
		if err != nil {
			return resp, domain.ErrInvalidPageToken
		}
		filter.Cursor = cursor
	}

	logs, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return resp, err
	}

	hasMore := len(logs) > limit
	if hasMore {
		logs = logs[:limit]
	}
	resp.HasMore = hasMore
	if hasMore && len(logs) > 0 {
		last := logs[len(logs)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err == nil {
			resp.NextPageToken = token
		}
	}

	resp.AuditLogs = make([]domain.AuditLog, 0, len(logs))
	for _, entry := range logs {
		resp.AuditLogs = append(resp.AuditLogs, *entry)
	}
	return resp, nil
}

func decodeCursor(token string) (*domain.Cursor, error) {
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
	return &domain.Cursor{CreatedAt: createdAt, ID: snowflake.ID(id)}, nil
}
