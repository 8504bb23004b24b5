package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	moderationdomain "github.com/inkwellhq/inkwell/internal/moderation/domain"
)

type createBlockRequest struct {
	BlockedID snowflake.ID `json:"blocked_id"`
	Reason    string       `json:"reason"`
}

func (s *Server) CreateBlock(c *gin.Context) {
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

	var req createBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.BlockedID == 0 {
		AbortWithError(c, newValidationError("blocked_id", "invalid_blocked_id", "invalid blocked_id"))
		return
	}

	block, err := s.moderationSvc.Block(c.Request.Context(), moderationdomain.BlockRequest{
		TenantID:  tenantID,
		BlockerID: ident.UserID,
		BlockedID: req.BlockedID,
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, block)
}

func (s *Server) DeleteBlock(c *gin.Context) {
	tenantID, err := pathID(c, "tenant_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	blockedID, err := pathID(c, "user_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.moderationSvc.Unblock(c.Request.Context(), tenantID, ident.UserID, blockedID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unblocked": true})
}

func (s *Server) ListBlocks(c *gin.Context) {
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

	blocks, err := s.moderationSvc.ListBlocks(c.Request.Context(), tenantID, ident.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": blocks})
}
