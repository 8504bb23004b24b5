package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateWorkflowRequest struct {
	TenantID       snowflake.ID `json:"tenant_id"`
	InitiatorID    snowflake.ID `json:"initiator_id"`
	InitiatorEmail string       `json:"initiator_email"`
	Title          string       `json:"title"`
}

type PostMessageRequest struct {
	WorkflowID snowflake.ID        `json:"workflow_id"`
	SenderID   snowflake.ID        `json:"sender_id"`
	Type       WorkflowMessageType `json:"type"`
	Content    string              `json:"content"`
	MediaRef   string              `json:"media_ref,omitempty"`
}

type AddParticipantRequest struct {
	WorkflowID snowflake.ID `json:"workflow_id"`
	ActorID    snowflake.ID `json:"actor_id"`
	UserID     snowflake.ID `json:"user_id"`
	Email      string       `json:"email"`
	Role       string       `json:"role"`
}

type InviteRequest struct {
	WorkflowID snowflake.ID `json:"workflow_id"`
	ActorID    snowflake.ID `json:"actor_id"`
	Email      string       `json:"email"`
	Role       string       `json:"role"`
}

type Service interface {
	Create(ctx context.Context, req CreateWorkflowRequest) (*Workflow, error)

	// Get returns the workflow to its participants and tenant admins.
	// All reads are gated: workflow metadata, rosters and share links
	// are tenant-scoped data, never public to other authenticated users.
	Get(ctx context.Context, workflowID, requesterID snowflake.ID) (*Workflow, error)

	// Transition moves the workflow between lifecycle states. All
	// transitions are admin-only; the actor's admin scope is verified
	// against the workflow's stored tenant, never a caller-supplied one.
	Transition(ctx context.Context, workflowID, actorID snowflake.ID, target WorkflowStatus) (*Workflow, error)

	// HardDelete purges a workflow and its dependents. It requires the
	// workflow to already be in the deleted state and writes the audit
	// record before any row is destroyed.
	HardDelete(ctx context.Context, workflowID, actorID snowflake.ID) error

	// PostMessage appends to the workflow's ordered transcript. The
	// sender must already be a participant and the workflow active.
	PostMessage(ctx context.Context, req PostMessageRequest) (*WorkflowMessage, error)
	ListMessages(ctx context.Context, workflowID, requesterID snowflake.ID) ([]WorkflowMessage, error)

	AddParticipant(ctx context.Context, req AddParticipantRequest) (*WorkflowParticipant, error)
	ListParticipants(ctx context.Context, workflowID, requesterID snowflake.ID) ([]WorkflowParticipant, error)

	AddLink(ctx context.Context, workflowID, actorID snowflake.ID, label string) (*WorkflowLink, error)
	RemoveLink(ctx context.Context, workflowID, actorID, linkID snowflake.ID) error
	ListLinks(ctx context.Context, workflowID, requesterID snowflake.ID) ([]WorkflowLink, error)

	Invite(ctx context.Context, req InviteRequest) (*WorkflowInvitation, error)
	AcceptInvitation(ctx context.Context, invitationID, userID snowflake.ID, email string) (*WorkflowParticipant, error)
}

var (
	ErrWorkflowNotFound   = errors.New("workflow_not_found")
	ErrWorkflowNotActive  = errors.New("workflow_not_active")
	ErrInvalidWorkflow    = errors.New("invalid_workflow")
	ErrInvalidTransition  = errors.New("invalid_state")
	ErrNotParticipant     = errors.New("not_participant")
	ErrLinkNotFound       = errors.New("link_not_found")
	ErrInvitationNotFound = errors.New("invitation_not_found")
	ErrInvitationClosed   = errors.New("invitation_closed")
)
