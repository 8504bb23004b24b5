package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accessdomain "github.com/inkwellhq/inkwell/internal/access/domain"
	auditdomain "github.com/inkwellhq/inkwell/internal/audit/domain"
	"github.com/inkwellhq/inkwell/internal/authorization"
	"github.com/inkwellhq/inkwell/internal/clock"
	"github.com/inkwellhq/inkwell/internal/config"
	messagingdomain "github.com/inkwellhq/inkwell/internal/messaging/domain"
	"github.com/inkwellhq/inkwell/internal/moderation/domain"
	"github.com/inkwellhq/inkwell/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db         *gorm.DB
	repo       domain.Repository
	accessRepo accessdomain.Repository
	accessSvc  accessdomain.Service
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	cfg        *config.MessagingConfigHolder
	locker     *ratelimit.SendLocker
	genID      *snowflake.Node
	clk        clock.Clock
	log        *zap.Logger
}

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Repo       domain.Repository
	AccessRepo accessdomain.Repository
	AccessSvc  accessdomain.Service
	AuthzSvc   authorization.Service
	AuditSvc   auditdomain.Service
	Cfg        *config.MessagingConfigHolder
	Locker     *ratelimit.SendLocker `optional:"true"`
	GenID      *snowflake.Node
	Clk        clock.Clock
	Log        *zap.Logger
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:         p.DB,
		repo:       p.Repo,
		accessRepo: p.AccessRepo,
		accessSvc:  p.AccessSvc,
		authzSvc:   p.AuthzSvc,
		auditSvc:   p.AuditSvc,
		cfg:        p.Cfg,
		locker:     p.Locker,
		genID:      p.GenID,
		clk:        p.Clk,
		log:        p.Log.Named("moderation.service"),
	}
}

func (s *service) CheckAndReserve(ctx context.Context, senderID snowflake.ID) (domain.Reservation, error) {
	if senderID == 0 {
		return domain.Reservation{}, domain.ErrInvalidSender
	}

	// The redis lock serializes bursts from the same sender across
	// replicas; the database reservation below stays the authority, so
	// losing redis only degrades to optimistic contention.
	if s.locker != nil && s.locker.Enabled() {
		token, acquired, err := s.locker.TryLockSender(ctx, senderID.String())
		if err != nil {
			s.log.Warn("send lock unavailable", zap.Error(err))
		} else if !acquired {
			return domain.Reservation{Allowed: false, WaitSeconds: 1}, nil
		} else {
			defer func() {
				if err := s.locker.ReleaseSender(ctx, senderID.String(), token); err != nil {
					s.log.Warn("send lock release failed", zap.Error(err))
				}
			}()
		}
	}

	now := s.clk.Now()
	window := s.cfg.Get().RateLimitWindow()
	resetAt := now.Add(window)

	ok, open, err := s.repo.ReserveWindow(ctx, s.db, senderID, now, resetAt)
	if err != nil {
		return domain.Reservation{}, err
	}
	if ok {
		return domain.Reservation{Allowed: true, ResetAt: resetAt}, nil
	}

	return deniedReservation(open, now), nil
}

func (s *service) PeekWindow(ctx context.Context, senderID snowflake.ID) (domain.Reservation, error) {
	if senderID == 0 {
		return domain.Reservation{}, domain.ErrInvalidSender
	}

	now := s.clk.Now()
	record, err := s.repo.GetWindow(ctx, s.db, senderID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if record == nil || !record.WindowResetAt.After(now) {
		return domain.Reservation{Allowed: true, ResetAt: now.Add(s.cfg.Get().RateLimitWindow())}, nil
	}
	return deniedReservation(record, now), nil
}

func deniedReservation(record *domain.RateLimitRecord, now time.Time) domain.Reservation {
	res := domain.Reservation{Allowed: false}
	if record == nil {
		// Lost the race and the winner's window is not visible yet.
		res.WaitSeconds = 1
		return res
	}
	res.ResetAt = record.WindowResetAt
	wait := int(record.WindowResetAt.Sub(now).Seconds())
	if wait < 1 {
		wait = 1
	}
	res.WaitSeconds = wait
	return res
}

// IsBlocked evaluates the two block tiers in order, and is directional:
// a block suppresses the blocked party's outgoing mail only. An active
// admin-issued block against the sender suppresses outright; one against
// the recipient overrides the personal tier entirely, so incoming mail
// to a blocked user still lands. Only then do personal blocks apply,
// bidirectionally within the pair, with admin-issued rows excluded so
// they never count twice.
func (s *service) IsBlocked(ctx context.Context, senderID, recipientID, tenantID snowflake.ID) (bool, error) {
	if tenantID == 0 {
		return false, domain.ErrInvalidTenant
	}
	if senderID == 0 || recipientID == 0 {
		return false, domain.ErrInvalidSender
	}

	adminIDs, err := s.accessRepo.AdminUserIDs(ctx, s.db, tenantID)
	if err != nil {
		return false, err
	}

	senderSuppressed, err := s.repo.HasActiveBlockBy(ctx, s.db, tenantID, adminIDs, []snowflake.ID{senderID})
	if err != nil {
		return false, err
	}
	if senderSuppressed {
		return true, nil
	}

	recipientSuppressed, err := s.repo.HasActiveBlockBy(ctx, s.db, tenantID, adminIDs, []snowflake.ID{recipientID})
	if err != nil {
		return false, err
	}
	if recipientSuppressed {
		return false, nil
	}

	return s.repo.HasPersonalBlockBetween(ctx, s.db, tenantID, senderID, recipientID, adminIDs)
}

func (s *service) CanSend(ctx context.Context, senderID, tenantID snowflake.ID, msgType messagingdomain.MessageType, recipients []snowflake.ID) (domain.SendAuthorization, error) {
	var out domain.SendAuthorization

	if !s.cfg.Get().Enabled {
		return out, domain.ErrMessagingDisabled
	}
	if senderID == 0 {
		return out, domain.ErrInvalidSender
	}
	if tenantID == 0 {
		return out, domain.ErrInvalidTenant
	}
	if !msgType.Valid() {
		return out, domain.ErrInvalidRecipient
	}

	res, err := s.accessSvc.Resolve(ctx, senderID, tenantID)
	if err != nil {
		return out, err
	}
	if !res.Role.Member() {
		return out, accessdomain.ErrNoAccess
	}
	out.SenderAdmin = res.Role.Admin()

	action := authorization.ActionMessageSend
	switch msgType {
	case messagingdomain.MessageTypeBroadcast:
		action = authorization.ActionMessageBroadcast
	case messagingdomain.MessageTypeAnnouncement:
		action = authorization.ActionMessageAnnounce
	}
	if err := s.authzSvc.Authorize(ctx, senderID, res.Role, tenantID, authorization.ObjectMessage, action); err != nil {
		return out, err
	}

	// A non-admin sender under an admin-issued block is rejected
	// outright; personal blocks against the sender only exclude the
	// specific pairs below. Admin senders are never suppressed.
	if !out.SenderAdmin {
		adminIDs, err := s.accessRepo.AdminUserIDs(ctx, s.db, tenantID)
		if err != nil {
			return out, err
		}
		senderBlocked, err := s.repo.HasActiveBlockBy(ctx, s.db, tenantID, adminIDs, []snowflake.ID{senderID})
		if err != nil {
			return out, err
		}
		if senderBlocked {
			return out, domain.ErrBlocked
		}
	}

	for _, recipientID := range recipients {
		if recipientID == 0 || recipientID == senderID {
			out.InvalidRecipients = append(out.InvalidRecipients, recipientID)
			continue
		}
		member, err := s.accessSvc.IsTenantMember(ctx, recipientID, tenantID)
		if err != nil {
			return out, err
		}
		if !member {
			out.InvalidRecipients = append(out.InvalidRecipients, recipientID)
			continue
		}

		if out.SenderAdmin {
			// A block only suppresses the blocked party's outgoing
			// messages; incoming admin mail still lands.
			out.ValidRecipients = append(out.ValidRecipients, recipientID)
			continue
		}

		blocked, err := s.IsBlocked(ctx, senderID, recipientID, tenantID)
		if err != nil {
			return out, err
		}
		if blocked {
			out.BlockedRecipients = append(out.BlockedRecipients, recipientID)
			continue
		}
		out.ValidRecipients = append(out.ValidRecipients, recipientID)
	}

	out.Allowed = len(out.ValidRecipients) > 0
	return out, nil
}

func (s *service) Block(ctx context.Context, req domain.BlockRequest) (*domain.UserBlock, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if req.BlockerID == 0 || req.BlockedID == 0 {
		return nil, domain.ErrInvalidBlock
	}
	if req.BlockerID == req.BlockedID {
		return nil, domain.ErrSelfBlock
	}

	// Both parties must belong to the tenant; a block row naming an
	// outsider would poison the send-time pair checks.
	member, err := s.accessSvc.IsTenantMember(ctx, req.BlockerID, req.TenantID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, accessdomain.ErrNoAccess
	}
	member, err = s.accessSvc.IsTenantMember(ctx, req.BlockedID, req.TenantID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, domain.ErrInvalidRecipient
	}

	existing, err := s.repo.FindActiveBlock(ctx, s.db, req.TenantID, req.BlockerID, req.BlockedID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	block := &domain.UserBlock{
		ID:        s.genID.Generate(),
		TenantID:  req.TenantID,
		BlockerID: req.BlockerID,
		BlockedID: req.BlockedID,
		Active:    true,
		Reason:    req.Reason,
		CreatedAt: s.clk.Now(),
	}
	if err := s.repo.InsertBlock(ctx, s.db, block); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, req.TenantID, req.BlockerID, auditdomain.ActionBlockCreate, block.ID, map[string]any{
		"blocked_id": req.BlockedID.String(),
		"reason":     req.Reason,
	})
	return block, nil
}

func (s *service) Unblock(ctx context.Context, tenantID, blockerID, blockedID snowflake.ID) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}

	block, err := s.repo.FindActiveBlock(ctx, s.db, tenantID, blockerID, blockedID)
	if err != nil {
		return err
	}
	if block == nil {
		return domain.ErrBlockNotFound
	}

	if err := s.repo.DeactivateBlock(ctx, s.db, block.ID, s.clk.Now()); err != nil {
		return err
	}

	s.recordAudit(ctx, tenantID, blockerID, auditdomain.ActionBlockDeactivate, block.ID, map[string]any{
		"blocked_id": blockedID.String(),
	})
	return nil
}

func (s *service) ListBlocks(ctx context.Context, tenantID, blockerID snowflake.ID) ([]domain.UserBlock, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	return s.repo.ListBlocksByBlocker(ctx, s.db, tenantID, blockerID)
}

func (s *service) recordAudit(ctx context.Context, tenantID, actorID snowflake.ID, action string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actor := actorID.String()
	target := targetID.String()
	if err := s.auditSvc.Record(ctx, tenantID, auditdomain.ActorTypeUser, &actor, action, "user_block", &target, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
