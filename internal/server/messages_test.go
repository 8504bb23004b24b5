package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/inkwellhq/inkwell/internal/clock"
	"github.com/inkwellhq/inkwell/internal/config"
	"github.com/inkwellhq/inkwell/internal/identity"
	messagingdomain "github.com/inkwellhq/inkwell/internal/messaging/domain"
	moderationdomain "github.com/inkwellhq/inkwell/internal/moderation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessagingService struct {
	sendErr   error
	sendCalls int
	lastSend  messagingdomain.SendRequest
}

func (f *fakeMessagingService) Send(ctx context.Context, req messagingdomain.SendRequest) (messagingdomain.SendResult, error) {
	f.sendCalls++
	f.lastSend = req
	_ = ctx
	if f.sendErr != nil {
		return messagingdomain.SendResult{}, f.sendErr
	}
	return messagingdomain.SendResult{
		MessageID: snowflake.ID(900),
		Delivered: req.Recipients,
	}, nil
}

func (f *fakeMessagingService) CanRecall(ctx context.Context, messageID, requesterID snowflake.ID) (bool, error) {
	_ = ctx
	_ = messageID
	_ = requesterID
	return false, nil
}

func (f *fakeMessagingService) Recall(ctx context.Context, messageID, requesterID snowflake.ID, reason string) error {
	_ = ctx
	_ = messageID
	_ = requesterID
	_ = reason
	return nil
}

func (f *fakeMessagingService) MarkRecipientState(ctx context.Context, messageID, recipientID snowflake.ID, state messagingdomain.RecipientState) (*messagingdomain.MessageRecipient, error) {
	_ = ctx
	_ = messageID
	_ = recipientID
	_ = state
	return &messagingdomain.MessageRecipient{}, nil
}

func (f *fakeMessagingService) Inbox(ctx context.Context, req messagingdomain.ListInboxRequest) (messagingdomain.ListInboxResponse, error) {
	_ = ctx
	_ = req
	return messagingdomain.ListInboxResponse{}, nil
}

func (f *fakeMessagingService) UnreadCount(ctx context.Context, tenantID, recipientID snowflake.ID, since *time.Time) (int64, error) {
	_ = ctx
	_ = tenantID
	_ = recipientID
	_ = since
	return 0, nil
}

type fakeModerationService struct {
	canSendErr error
	auth       moderationdomain.SendAuthorization
	window     moderationdomain.Reservation
}

func (f *fakeModerationService) CheckAndReserve(ctx context.Context, senderID snowflake.ID) (moderationdomain.Reservation, error) {
	_ = ctx
	_ = senderID
	return moderationdomain.Reservation{Allowed: true}, nil
}

func (f *fakeModerationService) PeekWindow(ctx context.Context, senderID snowflake.ID) (moderationdomain.Reservation, error) {
	_ = ctx
	_ = senderID
	return f.window, nil
}

func (f *fakeModerationService) IsBlocked(ctx context.Context, senderID, recipientID, tenantID snowflake.ID) (bool, error) {
	_ = ctx
	_ = senderID
	_ = recipientID
	_ = tenantID
	return false, nil
}

func (f *fakeModerationService) CanSend(ctx context.Context, senderID, tenantID snowflake.ID, msgType messagingdomain.MessageType, recipients []snowflake.ID) (moderationdomain.SendAuthorization, error) {
	_ = ctx
	_ = senderID
	_ = tenantID
	_ = msgType
	_ = recipients
	if f.canSendErr != nil {
		return moderationdomain.SendAuthorization{}, f.canSendErr
	}
	return f.auth, nil
}

func (f *fakeModerationService) Block(ctx context.Context, req moderationdomain.BlockRequest) (*moderationdomain.UserBlock, error) {
	_ = ctx
	_ = req
	return &moderationdomain.UserBlock{}, nil
}

func (f *fakeModerationService) Unblock(ctx context.Context, tenantID, blockerID, blockedID snowflake.ID) error {
	_ = ctx
	_ = tenantID
	_ = blockerID
	_ = blockedID
	return nil
}

func (f *fakeModerationService) ListBlocks(ctx context.Context, tenantID, blockerID snowflake.ID) ([]moderationdomain.UserBlock, error) {
	_ = ctx
	_ = tenantID
	_ = blockerID
	return nil, nil
}

func newTestServer(messagingSvc messagingdomain.Service, moderationSvc moderationdomain.Service) (*Server, *identity.Provider) {
	cfg := config.Config{AuthJWTSecret: "test-secret"}
	provider := identity.NewProvider(cfg, clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))

	srv := &Server{
		cfg:           cfg,
		identity:      provider,
		messagingSvc:  messagingSvc,
		moderationSvc: moderationSvc,
	}
	return srv, provider
}

func TestSendMessageHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	messagingSvc := &fakeMessagingService{}
	srv, provider := newTestServer(messagingSvc, &fakeModerationService{})

	token, err := provider.IssueToken(snowflake.ID(42), "alice@example.com")
	require.NoError(t, err)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/tenants/:tenant_id/messages", srv.AuthRequired(), srv.SendMessage)

	body := `{"type":"direct","subject":"hello","body":"hi","recipients":["77"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/tenants/10/messages", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, 1, messagingSvc.sendCalls)
	assert.Equal(t, snowflake.ID(42), messagingSvc.lastSend.SenderID, "sender comes from the token")
	assert.Equal(t, snowflake.ID(10), messagingSvc.lastSend.TenantID, "tenant comes from the path")
}

func TestSendMessageRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	messagingSvc := &fakeMessagingService{}
	srv, _ := newTestServer(messagingSvc, &fakeModerationService{})

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/tenants/:tenant_id/messages", srv.AuthRequired(), srv.SendMessage)

	req := httptest.NewRequest(http.MethodPost, "/api/tenants/10/messages", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Zero(t, messagingSvc.sendCalls, "send must not run without a token")
}

func TestSendMessageRateLimitedPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)

	messagingSvc := &fakeMessagingService{
		sendErr: &moderationdomain.RateLimitedError{WaitSeconds: 42, ResetAt: time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC)},
	}
	srv, provider := newTestServer(messagingSvc, &fakeModerationService{})

	token, err := provider.IssueToken(snowflake.ID(42), "alice@example.com")
	require.NoError(t, err)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/tenants/:tenant_id/messages", srv.AuthRequired(), srv.SendMessage)

	body := `{"type":"direct","subject":"hello","body":"hi","recipients":["77"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/tenants/10/messages", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusTooManyRequests, resp.Code, resp.Body.String())

	var payload errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, "rate_limited", payload.Error.Type)
	assert.Equal(t, 42, payload.Error.WaitSeconds)
}

func TestCanSendMessageDenialIsNotAnError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	moderationSvc := &fakeModerationService{
		auth: moderationdomain.SendAuthorization{
			Allowed:         true,
			ValidRecipients: []snowflake.ID{77},
		},
		window: moderationdomain.Reservation{
			Allowed:     false,
			WaitSeconds: 30,
			ResetAt:     time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC),
		},
	}
	srv, provider := newTestServer(&fakeMessagingService{}, moderationSvc)

	token, err := provider.IssueToken(snowflake.ID(42), "alice@example.com")
	require.NoError(t, err)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/tenants/:tenant_id/messages/preflight", srv.AuthRequired(), srv.CanSendMessage)

	body := `{"type":"direct","recipients":["77"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/tenants/10/messages/preflight", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var payload canSendResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.False(t, payload.Allowed, "denial is reported, not errored")
	assert.Equal(t, "rate_limited", payload.Reason)
	assert.Equal(t, 30, payload.WaitSeconds)
}
