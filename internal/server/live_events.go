package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwellhq/inkwell/internal/fanout"
)

// StreamTenantEvents pushes the tenant's live message events over SSE.
// The replayed backlog is best-effort; clients reconcile gaps through
// the unread-count endpoint.
func (s *Server) StreamTenantEvents(c *gin.Context) {
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

	member, err := s.accessSvc.IsTenantMember(c.Request.Context(), ident.UserID, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !member {
		AbortWithError(c, ErrForbidden)
		return
	}

	s.streamScope(c, fanout.TenantScope(tenantID))
}

// StreamWorkflowEvents pushes a workflow's live events over SSE to its
// participants and tenant admins.
func (s *Server) StreamWorkflowEvents(c *gin.Context) {
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

	if _, err := s.workflowSvc.Get(c.Request.Context(), workflowID, ident.UserID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.streamScope(c, fanout.WorkflowScope(workflowID))
}

func (s *Server) streamScope(c *gin.Context, scope string) {
	if s.hub == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	subscription, backlog, err := s.hub.Subscribe(scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer subscription.Close()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}

	for _, event := range backlog {
		if err := writeLiveEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-subscription.Events():
			if !open {
				return
			}
			if err := writeLiveEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeLiveEvent(w io.Writer, event fanout.Envelope) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
