package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accessdomain "github.com/inkwellhq/inkwell/internal/access/domain"
	auditdomain "github.com/inkwellhq/inkwell/internal/audit/domain"
	"github.com/inkwellhq/inkwell/internal/authorization"
	"github.com/inkwellhq/inkwell/internal/fanout"
	"github.com/inkwellhq/inkwell/internal/identity"
	messagingdomain "github.com/inkwellhq/inkwell/internal/messaging/domain"
	moderationdomain "github.com/inkwellhq/inkwell/internal/moderation/domain"
	workflowdomain "github.com/inkwellhq/inkwell/internal/workflow/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type        string            `json:"type"`
	Message     string            `json:"message"`
	WaitSeconds int               `json:"wait_seconds,omitempty"`
	Errors      []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var rlErr *moderationdomain.RateLimitedError
	if errors.As(err, &rlErr) {
		return http.StatusTooManyRequests, errorPayload{
			Type:        "rate_limited",
			Message:     "rate limited",
			WaitSeconds: rlErr.WaitSeconds,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, identity.ErrExpiredToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, accessdomain.ErrNoAccess),
		errors.Is(err, messagingdomain.ErrNotSender),
		errors.Is(err, workflowdomain.ErrNotParticipant):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, moderationdomain.ErrBlocked):
		return http.StatusForbidden, errorPayload{
			Type:    "blocked",
			Message: "sender is blocked from messaging",
		}
	case errors.Is(err, moderationdomain.ErrMessagingDisabled):
		return http.StatusForbidden, errorPayload{
			Type:    "messaging_disabled",
			Message: "messaging is disabled",
		}
	case errors.Is(err, moderationdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "rate limited",
		}
	case errors.Is(err, messagingdomain.ErrAlreadyRecalled):
		return http.StatusConflict, errorPayload{
			Type:    "already_recalled",
			Message: "message already recalled",
		}
	case errors.Is(err, messagingdomain.ErrRecallWindowElapsed):
		return http.StatusConflict, errorPayload{
			Type:    "recall_window_elapsed",
			Message: "recall window elapsed",
		}
	case errors.Is(err, workflowdomain.ErrInvalidTransition),
		errors.Is(err, workflowdomain.ErrWorkflowNotActive),
		errors.Is(err, workflowdomain.ErrInvitationClosed):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_state",
			Message: "resource state does not permit the operation",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, fanout.ErrHubUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, moderationdomain.ErrInvalidSender),
		errors.Is(err, moderationdomain.ErrInvalidRecipient),
		errors.Is(err, moderationdomain.ErrInvalidTenant),
		errors.Is(err, moderationdomain.ErrInvalidBlock),
		errors.Is(err, moderationdomain.ErrSelfBlock),
		errors.Is(err, messagingdomain.ErrInvalidMessage),
		errors.Is(err, messagingdomain.ErrInvalidState),
		errors.Is(err, messagingdomain.ErrNoValidRecipients),
		errors.Is(err, workflowdomain.ErrInvalidWorkflow),
		errors.Is(err, auditdomain.ErrInvalidTenant),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, fanout.ErrInvalidScope):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, messagingdomain.ErrMessageNotFound),
		errors.Is(err, messagingdomain.ErrRecipientNotFound),
		errors.Is(err, moderationdomain.ErrBlockNotFound),
		errors.Is(err, workflowdomain.ErrWorkflowNotFound),
		errors.Is(err, workflowdomain.ErrLinkNotFound),
		errors.Is(err, workflowdomain.ErrInvitationNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
