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
	messagingdomain "github.com/inkwellhq/inkwell/internal/messaging/domain"
	"github.com/inkwellhq/inkwell/internal/moderation/domain"
	"github.com/inkwellhq/inkwell/internal/moderation/repository"
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
		&domain.UserBlock{},
		&domain.RateLimitRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	accessRepo := accessrepository.Provide()
	accessSvc := accessservice.NewService(db, accessRepo)

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authzSvc := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	auditSvc := auditservice.NewService(db, auditrepository.Provide(), node, clk, log)

	svc := NewService(ServiceParam{
		DB:         db,
		Repo:       repository.Provide(),
		AccessRepo: accessRepo,
		AccessSvc:  accessSvc,
		AuthzSvc:   authzSvc,
		AuditSvc:   auditSvc,
		Cfg:        config.NewStaticMessagingConfigHolder(config.DefaultMessagingConfig()),
		GenID:      node,
		Clk:        clk,
		Log:        log,
	})

	f := &fixture{db: db, node: node, clk: clk, svc: svc}
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

func (f *fixture) addAdmin(t *testing.T) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Create(&accessdomain.TenantAdmin{
		ID: f.node.Generate(), UserID: id, TenantID: f.tenantID, Email: "admin@press.test",
	}).Error)
	return id
}

func TestCheckAndReserveWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	senderID := f.addEditor(t)

	first, err := f.svc.CheckAndReserve(ctx, senderID)
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	second, err := f.svc.CheckAndReserve(ctx, senderID)
	require.NoError(t, err)
	assert.False(t, second.Allowed)
	assert.Greater(t, second.WaitSeconds, 0)
	assert.Equal(t, first.ResetAt.Unix(), second.ResetAt.Unix())

	// The reservation is consumed even when the send later fails, so a
	// peek must agree with the reserve outcome.
	peek, err := f.svc.PeekWindow(ctx, senderID)
	require.NoError(t, err)
	assert.False(t, peek.Allowed)

	// The window reopens exactly at its reset instant, not after it.
	f.clk.Advance(config.DefaultMessagingConfig().RateLimitWindow())
	third, err := f.svc.CheckAndReserve(ctx, senderID)
	require.NoError(t, err)
	assert.True(t, third.Allowed)
}

func TestPersonalBlockIsBidirectional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addEditor(t)
	bob := f.addEditor(t)

	_, err := f.svc.Block(ctx, domain.BlockRequest{TenantID: f.tenantID, BlockerID: alice, BlockedID: bob, Reason: "spam"})
	require.NoError(t, err)

	blocked, err := f.svc.IsBlocked(ctx, alice, bob, f.tenantID)
	require.NoError(t, err)
	assert.True(t, blocked)

	// The target cannot route around the block by initiating instead.
	blocked, err = f.svc.IsBlocked(ctx, bob, alice, f.tenantID)
	require.NoError(t, err)
	assert.True(t, blocked)

	auth, err := f.svc.CanSend(ctx, bob, f.tenantID, messagingdomain.MessageTypeDirect, []snowflake.ID{alice})
	require.NoError(t, err)
	assert.False(t, auth.Allowed)
	assert.Equal(t, []snowflake.ID{alice}, auth.BlockedRecipients)
}

func TestAdminBlockSuppressesRegardlessOfPersonalState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	adminID := f.addAdmin(t)
	troll := f.addEditor(t)
	carol := f.addEditor(t)

	_, err := f.svc.Block(ctx, domain.BlockRequest{TenantID: f.tenantID, BlockerID: adminID, BlockedID: troll})
	require.NoError(t, err)

	// No personal block between troll and carol exists, yet the
	// admin-issued block suppresses everything the target sends.
	blocked, err := f.svc.IsBlocked(ctx, troll, carol, f.tenantID)
	require.NoError(t, err)
	assert.True(t, blocked)

	// Suppression is directional: incoming mail to the blocked user
	// still lands.
	blocked, err = f.svc.IsBlocked(ctx, carol, troll, f.tenantID)
	require.NoError(t, err)
	assert.False(t, blocked)

	auth, err := f.svc.CanSend(ctx, carol, f.tenantID, messagingdomain.MessageTypeDirect, []snowflake.ID{troll})
	require.NoError(t, err)
	assert.True(t, auth.Allowed)

	// The admin tier overrides the personal tier: a personal block
	// inside the pair changes nothing once an admin block exists.
	_, err = f.svc.Block(ctx, domain.BlockRequest{TenantID: f.tenantID, BlockerID: carol, BlockedID: troll})
	require.NoError(t, err)
	blocked, err = f.svc.IsBlocked(ctx, carol, troll, f.tenantID)
	require.NoError(t, err)
	assert.False(t, blocked)

	// A blocked sender is turned away before recipient evaluation.
	_, err = f.svc.CanSend(ctx, troll, f.tenantID, messagingdomain.MessageTypeDirect, []snowflake.ID{carol})
	assert.ErrorIs(t, err, domain.ErrBlocked)
}

func TestAdminSenderNotSuppressedByBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	adminID := f.addAdmin(t)
	dave := f.addEditor(t)

	// A member blocking an admin silences nothing admin-bound.
	_, err := f.svc.Block(ctx, domain.BlockRequest{TenantID: f.tenantID, BlockerID: dave, BlockedID: adminID})
	require.NoError(t, err)

	auth, err := f.svc.CanSend(ctx, adminID, f.tenantID, messagingdomain.MessageTypeDirect, []snowflake.ID{dave})
	require.NoError(t, err)
	assert.True(t, auth.Allowed)
	assert.True(t, auth.SenderAdmin)
	assert.Equal(t, []snowflake.ID{dave}, auth.ValidRecipients)
}

func TestCanSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	editor := f.addEditor(t)
	stranger := f.node.Generate()

	// Non-member recipients are reported, not fatal, while a roster with
	// nothing deliverable is not allowed.
	auth, err := f.svc.CanSend(ctx, editor, f.tenantID, messagingdomain.MessageTypeDirect, []snowflake.ID{stranger})
	require.NoError(t, err)
	assert.False(t, auth.Allowed)
	assert.Equal(t, []snowflake.ID{stranger}, auth.InvalidRecipients)

	// Elevated types need an elevated grant.
	peer := f.addEditor(t)
	_, err = f.svc.CanSend(ctx, editor, f.tenantID, messagingdomain.MessageTypeBroadcast, []snowflake.ID{peer})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	adminID := f.addAdmin(t)
	auth, err = f.svc.CanSend(ctx, adminID, f.tenantID, messagingdomain.MessageTypeBroadcast, []snowflake.ID{peer})
	require.NoError(t, err)
	assert.True(t, auth.Allowed)
}

func TestCanSendDisabledByConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	editor := f.addEditor(t)

	cfg := config.DefaultMessagingConfig()
	cfg.Enabled = false
	disabled := NewService(ServiceParam{
		DB:         f.db,
		Repo:       repository.Provide(),
		AccessRepo: accessrepository.Provide(),
		AccessSvc:  accessservice.NewService(f.db, accessrepository.Provide()),
		AuthzSvc:   nil,
		AuditSvc:   nil,
		Cfg:        config.NewStaticMessagingConfigHolder(cfg),
		GenID:      f.node,
		Clk:        f.clk,
		Log:        zap.NewNop(),
	})

	_, err := disabled.CanSend(ctx, editor, f.tenantID, messagingdomain.MessageTypeDirect, nil)
	assert.ErrorIs(t, err, domain.ErrMessagingDisabled)
}

func TestBlockRequiresTenantMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addEditor(t)
	stranger := f.node.Generate()

	// A blocker outside the tenant has no standing.
	_, err := f.svc.Block(ctx, domain.BlockRequest{TenantID: f.tenantID, BlockerID: stranger, BlockedID: alice})
	assert.ErrorIs(t, err, accessdomain.ErrNoAccess)

	// Blocking a non-member would seed a row the pair checks never match.
	_, err = f.svc.Block(ctx, domain.BlockRequest{TenantID: f.tenantID, BlockerID: alice, BlockedID: stranger})
	assert.ErrorIs(t, err, domain.ErrInvalidRecipient)

	var count int64
	require.NoError(t, f.db.Model(&domain.UserBlock{}).Where("tenant_id = ?", f.tenantID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestBlockLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addEditor(t)
	bob := f.addEditor(t)

	_, err := f.svc.Block(ctx, domain.BlockRequest{TenantID: f.tenantID, BlockerID: alice, BlockedID: alice})
	assert.ErrorIs(t, err, domain.ErrSelfBlock)

	block, err := f.svc.Block(ctx, domain.BlockRequest{TenantID: f.tenantID, BlockerID: alice, BlockedID: bob, Reason: "spam"})
	require.NoError(t, err)
	require.NotNil(t, block)

	// Re-blocking is idempotent: the active row is returned unchanged.
	again, err := f.svc.Block(ctx, domain.BlockRequest{TenantID: f.tenantID, BlockerID: alice, BlockedID: bob})
	require.NoError(t, err)
	assert.Equal(t, block.ID, again.ID)

	blocks, err := f.svc.ListBlocks(ctx, f.tenantID, alice)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	require.NoError(t, f.svc.Unblock(ctx, f.tenantID, alice, bob))
	assert.ErrorIs(t, f.svc.Unblock(ctx, f.tenantID, alice, bob), domain.ErrBlockNotFound)

	blocked, err := f.svc.IsBlocked(ctx, alice, bob, f.tenantID)
	require.NoError(t, err)
	assert.False(t, blocked)

	var count int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).
		Where("tenant_id = ? AND action IN ?", f.tenantID, []string{auditdomain.ActionBlockCreate, auditdomain.ActionBlockDeactivate}).
		Count(&count).Error)
	assert.EqualValues(t, 2, count)
}
