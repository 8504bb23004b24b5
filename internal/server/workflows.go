package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	workflowdomain "github.com/inkwellhq/inkwell/internal/workflow/domain"
)

type createWorkflowRequest struct {
	Title string `json:"title"`
}

func (s *Server) CreateWorkflow(c *gin.Context) {
	tenantID, err := pathID(c, "tenant_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	workflow, err := s.workflowSvc.Create(c.Request.Context(), workflowdomain.CreateWorkflowRequest{
		TenantID:       tenantID,
		InitiatorID:    ident.UserID,
		InitiatorEmail: ident.Email,
		Title:          req.Title,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, workflow)
}

func (s *Server) GetWorkflow(c *gin.Context) {
	workflowID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	workflow, err := s.workflowSvc.Get(c.Request.Context(), workflowID, ident.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, workflow)
}

type transitionWorkflowRequest struct {
	Status string `json:"status"`
}

func (s *Server) TransitionWorkflow(c *gin.Context) {
	workflowID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req transitionWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	target := workflowdomain.WorkflowStatus(strings.TrimSpace(req.Status))
	if !target.Valid() {
		AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
		return
	}

	workflow, err := s.workflowSvc.Transition(c.Request.Context(), workflowID, ident.UserID, target)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, workflow)
}

func (s *Server) HardDeleteWorkflow(c *gin.Context) {
	workflowID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.workflowSvc.HardDelete(c.Request.Context(), workflowID, ident.UserID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type postWorkflowMessageRequest struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	MediaRef string `json:"media_ref"`
}

func (s *Server) PostWorkflowMessage(c *gin.Context) {
	workflowID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req postWorkflowMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	msgType := workflowdomain.WorkflowMessageType(strings.TrimSpace(req.Type))
	if !msgType.Valid() {
		AbortWithError(c, newValidationError("type", "invalid_type", "invalid message type"))
		return
	}

	message, err := s.workflowSvc.PostMessage(c.Request.Context(), workflowdomain.PostMessageRequest{
		WorkflowID: workflowID,
		SenderID:   ident.UserID,
		Type:       msgType,
		Content:    req.Content,
		MediaRef:   strings.TrimSpace(req.MediaRef),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (s *Server) ListWorkflowMessages(c *gin.Context) {
	workflowID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	messages, err := s.workflowSvc.ListMessages(c.Request.Context(), workflowID, ident.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": messages})
}

type addParticipantRequest struct {
	UserID snowflake.ID `json:"user_id"`
	Email  string       `json:"email"`
	Role   string       `json:"role"`
}

func (s *Server) AddWorkflowParticipant(c *gin.Context) {
	workflowID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req addParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.UserID == 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}

	participant, err := s.workflowSvc.AddParticipant(c.Request.Context(), workflowdomain.AddParticipantRequest{
		WorkflowID: workflowID,
		ActorID:    ident.UserID,
		UserID:     req.UserID,
		Email:      strings.TrimSpace(req.Email),
		Role:       strings.TrimSpace(req.Role),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, participant)
}

func (s *Server) ListWorkflowParticipants(c *gin.Context) {
	workflowID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	participants, err := s.workflowSvc.ListParticipants(c.Request.Context(), workflowID, ident.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": participants})
}

type addLinkRequest struct {
	Label string `json:"label"`
}

func (s *Server) AddWorkflowLink(c *gin.Context) {
	workflowID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req addLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	link, err := s.workflowSvc.AddLink(c.Request.Context(), workflowID, ident.UserID, strings.TrimSpace(req.Label))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

func (s *Server) RemoveWorkflowLink(c *gin.Context) {
	workflowID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	linkID, err := pathID(c, "link_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.workflowSvc.RemoveLink(c.Request.Context(), workflowID, ident.UserID, linkID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": true})
}

func (s *Server) ListWorkflowLinks(c *gin.Context) {
	workflowID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	links, err := s.workflowSvc.ListLinks(c.Request.Context(), workflowID, ident.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": links})
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) InviteToWorkflow(c *gin.Context) {
	workflowID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		AbortWithError(c, newValidationError("email", "invalid_email", "invalid email"))
		return
	}

	invitation, err := s.workflowSvc.Invite(c.Request.Context(), workflowdomain.InviteRequest{
		WorkflowID: workflowID,
		ActorID:    ident.UserID,
		Email:      req.Email,
		Role:       strings.TrimSpace(req.Role),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, invitation)
}

func (s *Server) AcceptWorkflowInvitation(c *gin.Context) {
	invitationID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	participant, err := s.workflowSvc.AcceptInvitation(c.Request.Context(), invitationID, ident.UserID, ident.Email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, participant)
}
