package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkwellhq/inkwell/internal/workflow/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertWorkflow(ctx context.Context, conn *gorm.DB, workflow *domain.Workflow) error {
	return conn.WithContext(ctx).Create(workflow).Error
}

func (r *repo) FindWorkflow(ctx context.Context, conn *gorm.DB, workflowID snowflake.ID) (*domain.Workflow, error) {
	var workflow domain.Workflow
	err := conn.WithContext(ctx).Where("id = ?", workflowID).First(&workflow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &workflow, nil
}

func (r *repo) UpdateWorkflow(ctx context.Context, conn *gorm.DB, workflow *domain.Workflow) error {
	return conn.WithContext(ctx).Save(workflow).Error
}

func (r *repo) InsertParticipant(ctx context.Context, conn *gorm.DB, participant *domain.WorkflowParticipant) error {
	return conn.WithContext(ctx).Create(participant).Error
}

func (r *repo) FindParticipant(ctx context.Context, conn *gorm.DB, workflowID, userID snowflake.ID) (*domain.WorkflowParticipant, error) {
	var participant domain.WorkflowParticipant
	err := conn.WithContext(ctx).
		Where("workflow_id = ? AND user_id = ?", workflowID, userID).
		First(&participant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *repo) ListParticipants(ctx context.Context, conn *gorm.DB, workflowID snowflake.ID) ([]domain.WorkflowParticipant, error) {
	var participants []domain.WorkflowParticipant
	err := conn.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("joined_at ASC, id ASC").
		Find(&participants).Error
	return participants, err
}

func (r *repo) InsertMessage(ctx context.Context, conn *gorm.DB, message *domain.WorkflowMessage) error {
	return conn.WithContext(ctx).Create(message).Error
}

func (r *repo) ListMessages(ctx context.Context, conn *gorm.DB, workflowID snowflake.ID) ([]domain.WorkflowMessage, error) {
	var messages []domain.WorkflowMessage
	err := conn.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

func (r *repo) InsertLink(ctx context.Context, conn *gorm.DB, link *domain.WorkflowLink) error {
	return conn.WithContext(ctx).Create(link).Error
}

func (r *repo) FindLink(ctx context.Context, conn *gorm.DB, workflowID, linkID snowflake.ID) (*domain.WorkflowLink, error) {
	var link domain.WorkflowLink
	err := conn.WithContext(ctx).
		Where("id = ? AND workflow_id = ?", linkID, workflowID).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *repo) DeleteLink(ctx context.Context, conn *gorm.DB, linkID snowflake.ID) error {
	return conn.WithContext(ctx).Delete(&domain.WorkflowLink{}, "id = ?", linkID).Error
}

func (r *repo) ListLinks(ctx context.Context, conn *gorm.DB, workflowID snowflake.ID) ([]domain.WorkflowLink, error) {
	var links []domain.WorkflowLink
	err := conn.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("created_at ASC, id ASC").
		Find(&links).Error
	return links, err
}

func (r *repo) InsertInvitation(ctx context.Context, conn *gorm.DB, invitation *domain.WorkflowInvitation) error {
	return conn.WithContext(ctx).Create(invitation).Error
}

func (r *repo) FindInvitation(ctx context.Context, conn *gorm.DB, invitationID snowflake.ID) (*domain.WorkflowInvitation, error) {
	var invitation domain.WorkflowInvitation
	err := conn.WithContext(ctx).Where("id = ?", invitationID).First(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *repo) UpdateInvitationStatus(ctx context.Context, conn *gorm.DB, invitationID snowflake.ID, status domain.InvitationStatus, at time.Time) error {
	return conn.WithContext(ctx).Model(&domain.WorkflowInvitation{}).
		Where("id = ?", invitationID).
		Updates(map[string]any{"status": status, "updated_at": at}).Error
}

func (r *repo) Cascade(ctx context.Context, conn *gorm.DB, workflowID snowflake.ID) error {
	steps := []func(*gorm.DB) error{
		func(tx *gorm.DB) error {
			return tx.Delete(&domain.WorkflowMessage{}, "workflow_id = ?", workflowID).Error
		},
		func(tx *gorm.DB) error {
			return tx.Delete(&domain.WorkflowParticipant{}, "workflow_id = ?", workflowID).Error
		},
		func(tx *gorm.DB) error {
			return tx.Delete(&domain.WorkflowInvitation{}, "workflow_id = ?", workflowID).Error
		},
		func(tx *gorm.DB) error {
			return tx.Delete(&domain.WorkflowLink{}, "workflow_id = ?", workflowID).Error
		},
		func(tx *gorm.DB) error {
			return tx.Delete(&domain.Workflow{}, "id = ?", workflowID).Error
		},
	}
	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, step := range steps {
			if err := step(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
