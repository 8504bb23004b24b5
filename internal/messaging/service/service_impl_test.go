package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accessdomain "github.com/inkwellhq/inkwell/internal/access/domain"
	accessrepository "github.com/inkwellhq/inkwell/internal/access/repository"
	accessservice "github.com/inkwellhq/inkwell/internal/access/service"
	auditdomain "github.com/inkwellhq/inkwell/internal/audit/domain"
	auditrepository "github.com/inkwellhq/inkwell/internal/audit/repository"
	auditservice "github.com/inkwellhq/inkwell/internal/audit/service"
	"github.com/inkwellhq/inkwell/internal/authorization"
	"github.com/inkwellhq/inkwell/internal/clock"
	"github.com/inkwellhq/inkwell/internal/config"
	"github.com/inkwellhq/inkwell/internal/fanout"
	"github.com/inkwellhq/inkwell/internal/messaging/domain"
	"github.com/inkwellhq/inkwell/internal/messaging/repository"
	moderationdomain "github.com/inkwellhq/inkwell/internal/moderation/domain"
	moderationrepository "github.com/inkwellhq/inkwell/internal/moderation/repository"
	moderationservice "github.com/inkwellhq/inkwell/internal/moderation/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
	svc      domain.Service
	modSvc   moderationdomain.Service
	hub      *fanout.Hub
	cfg      config.MessagingConfig
	tenantID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accessdomain.Tenant{},
		&accessdomain.GlobalAdmin{},
		&accessdomain.TenantAdmin{},
		&accessdomain.TenantRole{},
		&accessdomain.Subscriber{},
		&auditdomain.AuditLog{},
		&moderationdomain.UserBlock{},
		&moderationdomain.RateLimitRecord{},
		&domain.Message{},
		&domain.MessageRecipient{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	cfg := config.DefaultMessagingConfig()
	holder := config.NewStaticMessagingConfigHolder(cfg)

	accessRepo := accessrepository.Provide()
	accessSvc := accessservice.NewService(db, accessRepo)

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authzSvc := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	auditSvc := auditservice.NewService(db, auditrepository.Provide(), node, clk, log)

	modSvc := moderationservice.NewService(moderationservice.ServiceParam{
		DB:         db,
		Repo:       moderationrepository.Provide(),
		AccessRepo: accessRepo,
		AccessSvc:  accessSvc,
		AuthzSvc:   authzSvc,
		AuditSvc:   auditSvc,
		Cfg:        holder,
		GenID:      node,
		Clk:        clk,
		Log:        log,
	})

	hub := fanout.NewHub(holder, log)
	svc := NewService(ServiceParam{
		DB:            db,
		Repo:          repository.Provide(),
		AccessRepo:    accessRepo,
		ModerationSvc: modSvc,
		AuditSvc:      auditSvc,
		Hub:           hub,
		Cfg:           holder,
		GenID:         node,
		Clk:           clk,
		Log:           log,
	})

	f := &fixture{db: db, node: node, clk: clk, svc: svc, modSvc: modSvc, hub: hub, cfg: cfg}
	f.tenantID = node.Generate()
	require.NoError(t, db.Create(&accessdomain.Tenant{ID: f.tenantID, Name: "Press", Slug: "press", Enabled: true}).Error)
	return f
}

func (f *fixture) addEditor(t *testing.T) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Create(&accessdomain.TenantRole{
		ID: f.node.Generate(), UserID: id, TenantID: f.tenantID, Role: string(accessdomain.RoleEditor),
	}).Error)
	return id
}

func (f *fixture) send(t *testing.T, senderID snowflake.ID, recipients ...snowflake.ID) domain.SendResult {
	t.Helper()
	result, err := f.svc.Send(context.Background(), domain.SendRequest{
		TenantID:   f.tenantID,
		SenderID:   senderID,
		Type:       domain.MessageTypeDirect,
		Subject:    "galley proofs",
		Body:       "second pass attached",
		Recipients: recipients,
	})
	require.NoError(t, err)
	return result
}

// nextWindow moves past the sender's rate-limit window so the next send
// in the same test is not throttled.
func (f *fixture) nextWindow() {
	f.clk.Advance(f.cfg.RateLimitWindow())
}

func TestSendPersistsAndRateLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addEditor(t)
	recipient := f.addEditor(t)
	other := f.addEditor(t)

	result := f.send(t, sender, recipient)
	assert.NotZero(t, result.MessageID)
	assert.Equal(t, []snowflake.ID{recipient}, result.Delivered)

	var rows int64
	require.NoError(t, f.db.Model(&domain.MessageRecipient{}).
		Where("message_id = ?", result.MessageID).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)

	// An immediate second send from the same sender is throttled with a
	// usable wait hint.
	_, err := f.svc.Send(ctx, domain.SendRequest{
		TenantID: f.tenantID, SenderID: sender, Type: domain.MessageTypeDirect,
		Subject: "again", Body: "again", Recipients: []snowflake.ID{recipient},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, moderationdomain.ErrRateLimited)
	var rateErr *moderationdomain.RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.Greater(t, rateErr.WaitSeconds, 0)

	// Another sender's window is independent.
	f.send(t, other, recipient)
}

func TestSendRejectsEmptyRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addEditor(t)
	stranger := f.node.Generate()

	result, err := f.svc.Send(ctx, domain.SendRequest{
		TenantID: f.tenantID, SenderID: sender, Type: domain.MessageTypeDirect,
		Subject: "lost", Body: "lost", Recipients: []snowflake.ID{stranger},
	})
	assert.ErrorIs(t, err, domain.ErrNoValidRecipients)
	assert.Equal(t, []snowflake.ID{stranger}, result.InvalidRecipients)

	// A rejected attempt must not consume the window.
	recipient := f.addEditor(t)
	f.send(t, sender, recipient)
}

func TestRecallWindowBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addEditor(t)
	recipient := f.addEditor(t)

	first := f.send(t, sender, recipient)

	ok, err := f.svc.CanRecall(ctx, first.MessageID, recipient)
	require.NoError(t, err)
	assert.False(t, ok, "only the sender may recall")
	assert.ErrorIs(t, f.svc.Recall(ctx, first.MessageID, recipient, ""), domain.ErrNotSender)

	// Exactly at the boundary the recall still succeeds.
	f.clk.Advance(f.cfg.RecallWindow())
	ok, err = f.svc.CanRecall(ctx, first.MessageID, sender)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, f.svc.Recall(ctx, first.MessageID, sender, "typo"))
	assert.ErrorIs(t, f.svc.Recall(ctx, first.MessageID, sender, "typo"), domain.ErrAlreadyRecalled)

	// One second past the boundary it does not.
	second := f.send(t, sender, recipient)
	f.clk.Advance(f.cfg.RecallWindow() + time.Second)
	ok, err = f.svc.CanRecall(ctx, second.MessageID, sender)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, f.svc.Recall(ctx, second.MessageID, sender, ""), domain.ErrRecallWindowElapsed)
}

func TestRecallRedactsInboxView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addEditor(t)
	recipient := f.addEditor(t)

	result := f.send(t, sender, recipient)
	require.NoError(t, f.svc.Recall(ctx, result.MessageID, sender, "sent too early"))

	resp, err := f.svc.Inbox(ctx, domain.ListInboxRequest{TenantID: f.tenantID, RecipientID: recipient})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.True(t, resp.Items[0].Message.Recalled)
	assert.Empty(t, resp.Items[0].Message.Body)
	assert.Empty(t, resp.Items[0].Message.Subject)
}

func TestMarkRecipientStateIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addEditor(t)
	recipient := f.addEditor(t)

	result := f.send(t, sender, recipient)

	first, err := f.svc.MarkRecipientState(ctx, result.MessageID, recipient, domain.StateRead)
	require.NoError(t, err)
	require.NotNil(t, first.ReadAt)
	readAt := *first.ReadAt

	f.clk.Advance(5 * time.Minute)
	second, err := f.svc.MarkRecipientState(ctx, result.MessageID, recipient, domain.StateRead)
	require.NoError(t, err)
	require.NotNil(t, second.ReadAt)
	assert.Equal(t, readAt, *second.ReadAt)

	_, err = f.svc.MarkRecipientState(ctx, result.MessageID, sender, domain.StateRead)
	assert.ErrorIs(t, err, domain.ErrRecipientNotFound)

	_, err = f.svc.MarkRecipientState(ctx, result.MessageID, recipient, domain.RecipientState("archived"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestInboxAppliesBlocksLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addEditor(t)
	recipient := f.addEditor(t)

	f.send(t, sender, recipient)

	resp, err := f.svc.Inbox(ctx, domain.ListInboxRequest{TenantID: f.tenantID, RecipientID: recipient})
	require.NoError(t, err)
	assert.Len(t, resp.Items, 1)
	count, err := f.svc.UnreadCount(ctx, f.tenantID, recipient, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// Blocking the sender hides already-delivered history, badge included.
	_, err = f.modSvc.Block(ctx, moderationdomain.BlockRequest{
		TenantID: f.tenantID, BlockerID: recipient, BlockedID: sender,
	})
	require.NoError(t, err)

	resp, err = f.svc.Inbox(ctx, domain.ListInboxRequest{TenantID: f.tenantID, RecipientID: recipient})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	count, err = f.svc.UnreadCount(ctx, f.tenantID, recipient, nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Unblocking reveals it again.
	require.NoError(t, f.modSvc.Unblock(ctx, f.tenantID, recipient, sender))
	resp, err = f.svc.Inbox(ctx, domain.ListInboxRequest{TenantID: f.tenantID, RecipientID: recipient})
	require.NoError(t, err)
	assert.Len(t, resp.Items, 1)
	count, err = f.svc.UnreadCount(ctx, f.tenantID, recipient, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestUnreadCountReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addEditor(t)
	recipient := f.addEditor(t)

	first := f.send(t, sender, recipient)
	f.nextWindow()
	checkpoint := f.clk.Now()
	f.clk.Advance(time.Minute)
	f.send(t, sender, recipient)

	count, err := f.svc.UnreadCount(ctx, f.tenantID, recipient, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// Polling clients reconcile from their last-seen cursor.
	count, err = f.svc.UnreadCount(ctx, f.tenantID, recipient, &checkpoint)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	_, err = f.svc.MarkRecipientState(ctx, first.MessageID, recipient, domain.StateRead)
	require.NoError(t, err)
	count, err = f.svc.UnreadCount(ctx, f.tenantID, recipient, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestSendEmitsFanoutEvent(t *testing.T) {
	f := newFixture(t)
	sender := f.addEditor(t)
	recipient := f.addEditor(t)

	sub, _, err := f.hub.Subscribe(fanout.TenantScope(f.tenantID))
	require.NoError(t, err)
	defer sub.Close()

	result := f.send(t, sender, recipient)

	select {
	case env := <-sub.Events():
		assert.Equal(t, fanout.EventMessageSent, env.Type)
		assert.Contains(t, string(env.Data), result.MessageID.String())
	case <-time.After(2 * time.Second):
		t.Fatal("no fan-out event received")
	}
}
