package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/inkwellhq/inkwell/internal/access/domain"
	"github.com/inkwellhq/inkwell/internal/access/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Tenant{},
		&domain.GlobalAdmin{},
		&domain.TenantAdmin{},
		&domain.TenantRole{},
		&domain.Subscriber{},
	))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return db, node
}

func seedTenant(t *testing.T, db *gorm.DB, node *snowflake.Node) snowflake.ID {
	t.Helper()
	id := node.Generate()
	require.NoError(t, db.Create(&domain.Tenant{ID: id, Name: "Press", Slug: "press", Enabled: true}).Error)
	return id
}

func TestResolvePriorityOrder(t *testing.T) {
	db, node := newTestDB(t)
	svc := NewService(db, repository.Provide())
	ctx := context.Background()

	tenantID := seedTenant(t, db, node)
	userID := node.Generate()

	// User holds every registry entry at once: global-admin must win.
	require.NoError(t, db.Create(&domain.GlobalAdmin{ID: node.Generate(), UserID: userID, Email: "root@press.test"}).Error)
	require.NoError(t, db.Create(&domain.TenantAdmin{ID: node.Generate(), UserID: userID, TenantID: tenantID, Email: "root@press.test"}).Error)
	require.NoError(t, db.Create(&domain.TenantRole{ID: node.Generate(), UserID: userID, TenantID: tenantID, Role: string(domain.RoleEditor)}).Error)
	require.NoError(t, db.Create(&domain.Subscriber{ID: node.Generate(), UserID: userID, TenantID: tenantID, Email: "root@press.test"}).Error)

	res, err := svc.Resolve(ctx, userID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleGlobalAdmin, res.Role)

	// Remove the global grant: tenant-admin is next.
	require.NoError(t, db.Where("user_id = ?", userID).Delete(&domain.GlobalAdmin{}).Error)
	res, err = svc.Resolve(ctx, userID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTenantAdmin, res.Role)

	// Then the assigned tenant role.
	require.NoError(t, db.Where("user_id = ?", userID).Delete(&domain.TenantAdmin{}).Error)
	res, err = svc.Resolve(ctx, userID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEditor, res.Role)

	// Then subscriber.
	require.NoError(t, db.Where("user_id = ?", userID).Delete(&domain.TenantRole{}).Error)
	res, err = svc.Resolve(ctx, userID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSubscriber, res.Role)

	// Then nothing at all.
	require.NoError(t, db.Where("user_id = ?", userID).Delete(&domain.Subscriber{}).Error)
	res, err = svc.Resolve(ctx, userID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleNone, res.Role)
}

func TestResolveWithoutTenantOnlyGlobal(t *testing.T) {
	db, node := newTestDB(t)
	svc := NewService(db, repository.Provide())
	ctx := context.Background()

	tenantID := seedTenant(t, db, node)
	editor := node.Generate()
	require.NoError(t, db.Create(&domain.TenantRole{ID: node.Generate(), UserID: editor, TenantID: tenantID, Role: string(domain.RoleEditor)}).Error)

	// Tenant-scoped roles are not resolvable without an explicit tenant.
	res, err := svc.Resolve(ctx, editor, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleNone, res.Role)

	admin := node.Generate()
	require.NoError(t, db.Create(&domain.GlobalAdmin{ID: node.Generate(), UserID: admin, Email: "ops@press.test"}).Error)
	res, err = svc.Resolve(ctx, admin, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleGlobalAdmin, res.Role)
}

func TestResolveFailsClosed(t *testing.T) {
	db, node := newTestDB(t)
	svc := NewService(db, repository.Provide())
	ctx := context.Background()

	_, err := svc.Resolve(ctx, 0, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	// Unknown tenant is an error, not a default role.
	_, err = svc.Resolve(ctx, node.Generate(), node.Generate())
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	// Unknown role assignments resolve to none rather than guessing.
	tenantID := seedTenant(t, db, node)
	userID := node.Generate()
	require.NoError(t, db.Create(&domain.TenantRole{ID: node.Generate(), UserID: userID, TenantID: tenantID, Role: "SUPERUSER"}).Error)
	res, err := svc.Resolve(ctx, userID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleNone, res.Role)
}

func TestIsTenantMemberAdminsReachable(t *testing.T) {
	db, node := newTestDB(t)
	svc := NewService(db, repository.Provide())
	ctx := context.Background()

	tenantID := seedTenant(t, db, node)

	admin := node.Generate()
	require.NoError(t, db.Create(&domain.GlobalAdmin{ID: node.Generate(), UserID: admin, Email: "ops@press.test"}).Error)

	// Admins are reachable targets even without explicit tenant membership.
	member, err := svc.IsTenantMember(ctx, admin, tenantID)
	require.NoError(t, err)
	assert.True(t, member)

	stranger := node.Generate()
	member, err = svc.IsTenantMember(ctx, stranger, tenantID)
	require.NoError(t, err)
	assert.False(t, member)
}
