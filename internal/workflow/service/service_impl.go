package service

import (
	"context"
	"crypto/rand"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	accessdomain "github.com/inkwellhq/inkwell/internal/access/domain"
	auditdomain "github.com/inkwellhq/inkwell/internal/audit/domain"
	"github.com/inkwellhq/inkwell/internal/authorization"
	"github.com/inkwellhq/inkwell/internal/clock"
	"github.com/inkwellhq/inkwell/internal/fanout"
	"github.com/inkwellhq/inkwell/internal/workflow/domain"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Repo      domain.Repository
	AccessSvc accessdomain.Service
	AuditSvc  auditdomain.Service
	Hub       *fanout.Hub
	GenID     *snowflake.Node
	Clk       clock.Clock
	Log       *zap.Logger
}

type service struct {
	db        *gorm.DB
	repo      domain.Repository
	accessSvc accessdomain.Service
	auditSvc  auditdomain.Service
	hub       *fanout.Hub
	genID     *snowflake.Node
	clk       clock.Clock
	log       *zap.Logger
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:        p.DB,
		repo:      p.Repo,
		accessSvc: p.AccessSvc,
		auditSvc:  p.AuditSvc,
		hub:       p.Hub,
		genID:     p.GenID,
		clk:       p.Clk,
		log:       p.Log.Named("workflow.service"),
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateWorkflowRequest) (*domain.Workflow, error) {
	if req.TenantID == 0 || req.InitiatorID == 0 || strings.TrimSpace(req.Title) == "" {
		return nil, domain.ErrInvalidWorkflow
	}
	member, err := s.accessSvc.IsTenantMember(ctx, req.InitiatorID, req.TenantID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, accessdomain.ErrNoAccess
	}

	now := s.clk.Now()
	workflow := &domain.Workflow{
		ID:          s.genID.Generate(),
		TenantID:    req.TenantID,
		InitiatorID: req.InitiatorID,
		Title:       req.Title,
		Status:      domain.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	initiator := &domain.WorkflowParticipant{
		ID:         s.genID.Generate(),
		WorkflowID: workflow.ID,
		UserID:     req.InitiatorID,
		Email:      req.InitiatorEmail,
		Role:       "initiator",
		JoinedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertWorkflow(ctx, tx, workflow); err != nil {
			return err
		}
		return s.repo.InsertParticipant(ctx, tx, initiator)
	})
	if err != nil {
		return nil, err
	}
	return workflow, nil
}

func (s *service) Get(ctx context.Context, workflowID, requesterID snowflake.ID) (*domain.Workflow, error) {
	workflow, err := s.find(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipantOrAdmin(ctx, requesterID, workflow); err != nil {
		return nil, err
	}
	return workflow, nil
}

// find loads without gating; mutation paths run their own actor checks.
func (s *service) find(ctx context.Context, workflowID snowflake.ID) (*domain.Workflow, error) {
	workflow, err := s.repo.FindWorkflow(ctx, s.db, workflowID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, domain.ErrWorkflowNotFound
	}
	return workflow, nil
}

func (s *service) requireParticipantOrAdmin(ctx context.Context, requesterID snowflake.ID, workflow *domain.Workflow) error {
	participant, err := s.repo.FindParticipant(ctx, s.db, workflow.ID, requesterID)
	if err != nil {
		return err
	}
	if participant != nil {
		return nil
	}
	return s.requireAdmin(ctx, requesterID, workflow)
}

// requireAdmin verifies the actor against the workflow's stored tenant.
// Client-supplied tenant ids are never trusted for transition scope.
func (s *service) requireAdmin(ctx context.Context, actorID snowflake.ID, workflow *domain.Workflow) error {
	admin, err := s.accessSvc.IsAdmin(ctx, actorID, workflow.TenantID)
	if err != nil {
		return err
	}
	if !admin {
		return authorization.ErrForbidden
	}
	return nil
}

func (s *service) Transition(ctx context.Context, workflowID, actorID snowflake.ID, target domain.WorkflowStatus) (*domain.Workflow, error) {
	if !target.Valid() {
		return nil, domain.ErrInvalidTransition
	}

	workflow, err := s.find(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, actorID, workflow); err != nil {
		return nil, err
	}
	if !workflow.Status.CanTransitionTo(target) {
		return nil, domain.ErrInvalidTransition
	}

	now := s.clk.Now()
	previous := workflow.Status
	workflow.Status = target
	workflow.UpdatedAt = now
	switch target {
	case domain.StatusCompleted:
		workflow.CompletedAt = &now
		workflow.CompleterID = &actorID
	case domain.StatusActive:
		// Reactivation clears the completion stamp from a prior life.
		workflow.CompletedAt = nil
		workflow.CompleterID = nil
	}

	if err := s.repo.UpdateWorkflow(ctx, s.db, workflow); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, workflow.TenantID, actorID, transitionAction(target), workflow.ID, map[string]any{
		"from": string(previous),
		"to":   string(target),
	})
	s.publish(fanout.WorkflowScope(workflow.ID), fanout.EventWorkflowStatus, map[string]any{
		"workflow_id": workflow.ID.String(),
		"from":        string(previous),
		"to":          string(target),
	})
	return workflow, nil
}

func transitionAction(target domain.WorkflowStatus) string {
	switch target {
	case domain.StatusCompleted:
		return auditdomain.ActionWorkflowComplete
	case domain.StatusCancelled:
		return auditdomain.ActionWorkflowCancel
	case domain.StatusActive:
		return auditdomain.ActionWorkflowReactivate
	default:
		return auditdomain.ActionWorkflowSoftDelete
	}
}

func (s *service) HardDelete(ctx context.Context, workflowID, actorID snowflake.ID) error {
	workflow, err := s.find(ctx, workflowID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, actorID, workflow); err != nil {
		return err
	}
	if workflow.Status != domain.StatusDeleted {
		return domain.ErrInvalidTransition
	}

	// Audit first, in its own commit. If the cascade fails halfway the
	// record of the attempt survives; the reverse order could destroy
	// rows and then lose the trail.
	actor := actorID.String()
	target := workflow.ID.String()
	if err := s.auditSvc.Record(ctx, workflow.TenantID, auditdomain.ActorTypeUser, &actor,
		auditdomain.ActionWorkflowHardDelete, "workflow", &target, map[string]any{
			"title":     workflow.Title,
			"initiator": workflow.InitiatorID.String(),
		}); err != nil {
		return err
	}

	return s.repo.Cascade(ctx, s.db, workflow.ID)
}

func (s *service) PostMessage(ctx context.Context, req domain.PostMessageRequest) (*domain.WorkflowMessage, error) {
	if !req.Type.Valid() || strings.TrimSpace(req.Content) == "" {
		return nil, domain.ErrInvalidWorkflow
	}

	workflow, err := s.find(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if workflow.Status != domain.StatusActive {
		return nil, domain.ErrWorkflowNotActive
	}

	participant, err := s.repo.FindParticipant(ctx, s.db, workflow.ID, req.SenderID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, domain.ErrNotParticipant
	}

	message := &domain.WorkflowMessage{
		ID:         s.genID.Generate(),
		WorkflowID: workflow.ID,
		SenderID:   req.SenderID,
		Type:       req.Type,
		Content:    req.Content,
		MediaRef:   req.MediaRef,
		CreatedAt:  s.clk.Now(),
	}
	if err := s.repo.InsertMessage(ctx, s.db, message); err != nil {
		return nil, err
	}

	s.publish(fanout.WorkflowScope(workflow.ID), fanout.EventMessageSent, map[string]any{
		"workflow_id": workflow.ID.String(),
		"message_id":  message.ID.String(),
		"sender_id":   req.SenderID.String(),
		"type":        string(req.Type),
	})
	return message, nil
}

func (s *service) ListMessages(ctx context.Context, workflowID, requesterID snowflake.ID) ([]domain.WorkflowMessage, error) {
	workflow, err := s.find(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := s.requireParticipantOrAdmin(ctx, requesterID, workflow); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, s.db, workflow.ID)
}

func (s *service) AddParticipant(ctx context.Context, req domain.AddParticipantRequest) (*domain.WorkflowParticipant, error) {
	workflow, err := s.find(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if workflow.Status != domain.StatusActive {
		return nil, domain.ErrWorkflowNotActive
	}
	if err := s.requireInitiatorOrAdmin(ctx, req.ActorID, workflow); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindParticipant(ctx, s.db, workflow.ID, req.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	participant := &domain.WorkflowParticipant{
		ID:         s.genID.Generate(),
		WorkflowID: workflow.ID,
		UserID:     req.UserID,
		Email:      req.Email,
		Role:       req.Role,
		JoinedAt:   s.clk.Now(),
	}
	if err := s.repo.InsertParticipant(ctx, s.db, participant); err != nil {
		return nil, err
	}
	return participant, nil
}

func (s *service) requireInitiatorOrAdmin(ctx context.Context, actorID snowflake.ID, workflow *domain.Workflow) error {
	if actorID == workflow.InitiatorID {
		return nil
	}
	return s.requireAdmin(ctx, actorID, workflow)
}

func (s *service) ListParticipants(ctx context.Context, workflowID, requesterID snowflake.ID) ([]domain.WorkflowParticipant, error) {
	workflow, err := s.find(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipantOrAdmin(ctx, requesterID, workflow); err != nil {
		return nil, err
	}
	return s.repo.ListParticipants(ctx, s.db, workflow.ID)
}

func (s *service) AddLink(ctx context.Context, workflowID, actorID snowflake.ID, label string) (*domain.WorkflowLink, error) {
	workflow, err := s.find(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if workflow.Status != domain.StatusActive {
		return nil, domain.ErrWorkflowNotActive
	}

	participant, err := s.repo.FindParticipant(ctx, s.db, workflow.ID, actorID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, domain.ErrNotParticipant
	}

	now := s.clk.Now()
	link := &domain.WorkflowLink{
		ID:         s.genID.Generate(),
		WorkflowID: workflow.ID,
		Token:      ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Slug:       slug.Make(workflow.Title),
		Label:      label,
		CreatedBy:  actorID,
		CreatedAt:  now,
	}
	if err := s.repo.InsertLink(ctx, s.db, link); err != nil {
		return nil, err
	}

	s.publish(fanout.WorkflowScope(workflow.ID), fanout.EventLinkAdded, map[string]any{
		"workflow_id": workflow.ID.String(),
		"link_id":     link.ID.String(),
		"slug":        link.Slug,
		"label":       link.Label,
	})
	return link, nil
}

func (s *service) RemoveLink(ctx context.Context, workflowID, actorID, linkID snowflake.ID) error {
	workflow, err := s.find(ctx, workflowID)
	if err != nil {
		return err
	}

	link, err := s.repo.FindLink(ctx, s.db, workflow.ID, linkID)
	if err != nil {
		return err
	}
	if link == nil {
		return domain.ErrLinkNotFound
	}
	if link.CreatedBy != actorID {
		if err := s.requireAdmin(ctx, actorID, workflow); err != nil {
			return err
		}
	}

	if err := s.repo.DeleteLink(ctx, s.db, link.ID); err != nil {
		return err
	}

	s.publish(fanout.WorkflowScope(workflow.ID), fanout.EventLinkRemoved, map[string]any{
		"workflow_id": workflow.ID.String(),
		"link_id":     link.ID.String(),
	})
	return nil
}

func (s *service) ListLinks(ctx context.Context, workflowID, requesterID snowflake.ID) ([]domain.WorkflowLink, error) {
	workflow, err := s.find(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipantOrAdmin(ctx, requesterID, workflow); err != nil {
		return nil, err
	}
	return s.repo.ListLinks(ctx, s.db, workflow.ID)
}

func (s *service) Invite(ctx context.Context, req domain.InviteRequest) (*domain.WorkflowInvitation, error) {
	if strings.TrimSpace(req.Email) == "" {
		return nil, domain.ErrInvalidWorkflow
	}

	workflow, err := s.find(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if workflow.Status != domain.StatusActive {
		return nil, domain.ErrWorkflowNotActive
	}
	if err := s.requireInitiatorOrAdmin(ctx, req.ActorID, workflow); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	invitation := &domain.WorkflowInvitation{
		ID:         s.genID.Generate(),
		WorkflowID: workflow.ID,
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Role:       req.Role,
		InvitedBy:  req.ActorID,
		Status:     domain.InvitationPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertInvitation(ctx, s.db, invitation); err != nil {
		return nil, err
	}
	return invitation, nil
}

func (s *service) AcceptInvitation(ctx context.Context, invitationID, userID snowflake.ID, email string) (*domain.WorkflowParticipant, error) {
	invitation, err := s.repo.FindInvitation(ctx, s.db, invitationID)
	if err != nil {
		return nil, err
	}
	if invitation == nil {
		return nil, domain.ErrInvitationNotFound
	}
	if invitation.Status != domain.InvitationPending {
		return nil, domain.ErrInvitationClosed
	}
	if !strings.EqualFold(strings.TrimSpace(email), invitation.Email) {
		return nil, domain.ErrInvitationNotFound
	}

	workflow, err := s.find(ctx, invitation.WorkflowID)
	if err != nil {
		return nil, err
	}
	if workflow.Status != domain.StatusActive {
		return nil, domain.ErrWorkflowNotActive
	}

	now := s.clk.Now()
	participant := &domain.WorkflowParticipant{
		ID:         s.genID.Generate(),
		WorkflowID: workflow.ID,
		UserID:     userID,
		Email:      invitation.Email,
		Role:       invitation.Role,
		JoinedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateInvitationStatus(ctx, tx, invitation.ID, domain.InvitationAccepted, now); err != nil {
			return err
		}
		return s.repo.InsertParticipant(ctx, tx, participant)
	})
	if err != nil {
		return nil, err
	}
	return participant, nil
}

func (s *service) recordAudit(ctx context.Context, tenantID, actorID snowflake.ID, action string, targetID snowflake.ID, metadata map[string]any) {
	actor := actorID.String()
	target := targetID.String()
	if err := s.auditSvc.Record(ctx, tenantID, auditdomain.ActorTypeUser, &actor, action, "workflow", &target, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *service) publish(scope, eventType string, payload map[string]any) {
	env, err := fanout.NewEnvelope(eventType, payload)
	if err != nil {
		s.log.Warn("envelope marshal failed", zap.String("type", eventType), zap.Error(err))
		return
	}
	s.hub.Publish(scope, env)
}
