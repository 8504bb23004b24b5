package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/inkwellhq/inkwell/internal/authorization"
	messagingdomain "github.com/inkwellhq/inkwell/internal/messaging/domain"
	moderationdomain "github.com/inkwellhq/inkwell/internal/moderation/domain"
	"github.com/inkwellhq/inkwell/pkg/db/pagination"
)

type sendMessageRequest struct {
	Type       string         `json:"type"`
	Priority   string         `json:"priority"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body"`
	Metadata   map[string]any `json:"metadata"`
	Recipients []snowflake.ID `json:"recipients"`
	ExpiresAt  *time.Time     `json:"expires_at"`
}

func (s *Server) SendMessage(c *gin.Context) {
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

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	msgType := messagingdomain.MessageType(strings.TrimSpace(req.Type))
	if msgType == "" {
		msgType = messagingdomain.MessageTypeDirect
	}
	if !msgType.Valid() {
		AbortWithError(c, newValidationError("type", "invalid_type", "invalid message type"))
		return
	}

	result, err := s.messagingSvc.Send(c.Request.Context(), messagingdomain.SendRequest{
		TenantID:   tenantID,
		SenderID:   ident.UserID,
		Type:       msgType,
		Priority:   messagingdomain.MessagePriority(strings.TrimSpace(req.Priority)),
		Subject:    req.Subject,
		Body:       req.Body,
		Metadata:   req.Metadata,
		Recipients: req.Recipients,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

type canSendRequest struct {
	Type       string         `json:"type"`
	Recipients []snowflake.ID `json:"recipients"`
}

type canSendResponse struct {
	Allowed           bool           `json:"allowed"`
	Reason            string         `json:"reason,omitempty"`
	ValidRecipients   []snowflake.ID `json:"valid_recipients,omitempty"`
	BlockedRecipients []snowflake.ID `json:"blocked_recipients,omitempty"`
	InvalidRecipients []snowflake.ID `json:"invalid_recipients,omitempty"`
	WaitSeconds       int            `json:"wait_seconds,omitempty"`
	WindowResetAt     *time.Time     `json:"window_reset_at,omitempty"`
}

// CanSendMessage is the dry-run eligibility check. Denials come back
// as a 200 with allowed=false so clients can disable the compose UI
// without treating the preflight as a failure.
func (s *Server) CanSendMessage(c *gin.Context) {
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

	var req canSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	msgType := messagingdomain.MessageType(strings.TrimSpace(req.Type))
	if msgType == "" {
		msgType = messagingdomain.MessageTypeDirect
	}
	if !msgType.Valid() {
		AbortWithError(c, newValidationError("type", "invalid_type", "invalid message type"))
		return
	}

	auth, err := s.moderationSvc.CanSend(c.Request.Context(), ident.UserID, tenantID, msgType, req.Recipients)
	if err != nil {
		switch {
		case errors.Is(err, authorization.ErrForbidden):
			c.JSON(http.StatusOK, canSendResponse{Reason: "forbidden"})
		case errors.Is(err, moderationdomain.ErrBlocked):
			c.JSON(http.StatusOK, canSendResponse{Reason: "blocked"})
		case errors.Is(err, moderationdomain.ErrMessagingDisabled):
			c.JSON(http.StatusOK, canSendResponse{Reason: "messaging_disabled"})
		default:
			AbortWithError(c, err)
		}
		return
	}

	resp := canSendResponse{
		Allowed:           auth.Allowed,
		ValidRecipients:   auth.ValidRecipients,
		BlockedRecipients: auth.BlockedRecipients,
		InvalidRecipients: auth.InvalidRecipients,
	}

	window, err := s.moderationSvc.PeekWindow(c.Request.Context(), ident.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !window.Allowed {
		resp.Allowed = false
		resp.Reason = "rate_limited"
		resp.WaitSeconds = window.WaitSeconds
		resetAt := window.ResetAt
		resp.WindowResetAt = &resetAt
	}

	c.JSON(http.StatusOK, resp)
}

type listInboxQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   int    `form:"page_size"`
	UnreadOnly bool   `form:"unread_only"`
	SavedOnly  bool   `form:"saved_only"`
}

func (s *Server) ListInbox(c *gin.Context) {
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

	var query listInboxQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.messagingSvc.Inbox(c.Request.Context(), messagingdomain.ListInboxRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		TenantID:    tenantID,
		RecipientID: ident.UserID,
		UnreadOnly:  query.UnreadOnly,
		SavedOnly:   query.SavedOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Items, "page_info": resp.PageInfo})
}

func (s *Server) UnreadCount(c *gin.Context) {
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

	var since *time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("since", "invalid_since", "invalid since"))
			return
		}
		since = &parsed
	}

	count, err := s.messagingSvc.UnreadCount(c.Request.Context(), tenantID, ident.UserID, since)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

type recallMessageRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RecallMessage(c *gin.Context) {
	messageID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	// The reason is optional; an empty body is a bare recall.
	var req recallMessageRequest
	_ = c.ShouldBindJSON(&req)

	if err := s.messagingSvc.Recall(c.Request.Context(), messageID, ident.UserID, strings.TrimSpace(req.Reason)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"recalled": true})
}

type markStateRequest struct {
	State string `json:"state"`
}

func (s *Server) MarkMessageState(c *gin.Context) {
	messageID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req markStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	state := messagingdomain.RecipientState(strings.TrimSpace(req.State))
	recipient, err := s.messagingSvc.MarkRecipientState(c.Request.Context(), messageID, ident.UserID, state)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, recipient)
}
