package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertWorkflow(ctx context.Context, db *gorm.DB, workflow *Workflow) error
	FindWorkflow(ctx context.Context, db *gorm.DB, workflowID snowflake.ID) (*Workflow, error)
	UpdateWorkflow(ctx context.Context, db *gorm.DB, workflow *Workflow) error

	InsertParticipant(ctx context.Context, db *gorm.DB, participant *WorkflowParticipant) error
	FindParticipant(ctx context.Context, db *gorm.DB, workflowID, userID snowflake.ID) (*WorkflowParticipant, error)
	ListParticipants(ctx context.Context, db *gorm.DB, workflowID snowflake.ID) ([]WorkflowParticipant, error)

	InsertMessage(ctx context.Context, db *gorm.DB, message *WorkflowMessage) error
	ListMessages(ctx context.Context, db *gorm.DB, workflowID snowflake.ID) ([]WorkflowMessage, error)

	InsertLink(ctx context.Context, db *gorm.DB, link *WorkflowLink) error
	FindLink(ctx context.Context, db *gorm.DB, workflowID, linkID snowflake.ID) (*WorkflowLink, error)
	DeleteLink(ctx context.Context, db *gorm.DB, linkID snowflake.ID) error
	ListLinks(ctx context.Context, db *gorm.DB, workflowID snowflake.ID) ([]WorkflowLink, error)

	InsertInvitation(ctx context.Context, db *gorm.DB, invitation *WorkflowInvitation) error
	FindInvitation(ctx context.Context, db *gorm.DB, invitationID snowflake.ID) (*WorkflowInvitation, error)
	UpdateInvitationStatus(ctx context.Context, db *gorm.DB, invitationID snowflake.ID, status InvitationStatus, at time.Time) error

	// Cascade destroys the workflow's dependents and then the workflow
	// row itself, in a fixed order: messages, participants, invitations,
	// links, workflow.
	Cascade(ctx context.Context, db *gorm.DB, workflowID snowflake.ID) error
}
