package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	accessdomain "github.com/inkwellhq/inkwell/internal/access/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectMessage  = "message"
	ObjectWorkflow = "workflow"
	ObjectBlock    = "block"
	ObjectAuditLog = "audit_log"
)

const (
	ActionMessageSend      = "message.send"
	ActionMessageBroadcast = "message.broadcast"
	ActionMessageAnnounce  = "message.announce"

	ActionWorkflowManage = "workflow.manage"
	ActionBlockManage    = "block.manage"
	ActionAuditLogView   = "audit_log.view"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

// Service answers capability questions for an already-resolved role. The
// Access Resolver decides WHO the caller is inside a tenant; this decides
// WHAT that role may do.
type Service interface {
	Authorize(ctx context.Context, userID snowflake.ID, role accessdomain.Role, tenantID snowflake.ID, object, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID snowflake.ID, role accessdomain.Role, tenantID snowflake.ID, object, action string) error {
	_ = ctx
	if userID == 0 {
		return ErrInvalidActor
	}
	if tenantID == 0 && role != accessdomain.RoleGlobalAdmin {
		return ErrInvalidTenant
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}
	if !role.Member() {
		return ErrForbidden
	}

	subject := fmt.Sprintf("user:%s", userID.String())
	roleName := fmt.Sprintf("role:%s", strings.ToLower(string(role)))
	dom := fmt.Sprintf("tenant:%s", tenantID.String())
	if err := s.ensureGrouping(subject, roleName, dom); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, dom, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("role", roleName),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps the casbin grouping in step with the freshly
// resolved role: a stale grouping from a revoked grant must not outlive
// the next authorization check.
func (s *ServiceImpl) ensureGrouping(subject, roleName, dom string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", dom)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, dom)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, dom)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:global_admin", "*", ObjectMessage, ActionMessageSend},
		{"role:global_admin", "*", ObjectMessage, ActionMessageBroadcast},
		{"role:global_admin", "*", ObjectMessage, ActionMessageAnnounce},
		{"role:global_admin", "*", ObjectWorkflow, ActionWorkflowManage},
		{"role:global_admin", "*", ObjectBlock, ActionBlockManage},
		{"role:global_admin", "*", ObjectAuditLog, ActionAuditLogView},

		{"role:tenant_admin", "*", ObjectMessage, ActionMessageSend},
		{"role:tenant_admin", "*", ObjectMessage, ActionMessageBroadcast},
		{"role:tenant_admin", "*", ObjectMessage, ActionMessageAnnounce},
		{"role:tenant_admin", "*", ObjectWorkflow, ActionWorkflowManage},
		{"role:tenant_admin", "*", ObjectBlock, ActionBlockManage},
		{"role:tenant_admin", "*", ObjectAuditLog, ActionAuditLogView},

		{"role:editor", "*", ObjectMessage, ActionMessageSend},
		{"role:editor", "*", ObjectBlock, ActionBlockManage},
		{"role:author", "*", ObjectMessage, ActionMessageSend},
		{"role:author", "*", ObjectBlock, ActionBlockManage},
		{"role:contributor", "*", ObjectMessage, ActionMessageSend},
		{"role:contributor", "*", ObjectBlock, ActionBlockManage},
		{"role:subscriber", "*", ObjectMessage, ActionMessageSend},
		{"role:subscriber", "*", ObjectBlock, ActionBlockManage},
	}

	for _, p := range policies {
		has, err := enforcer.HasPolicy(p[0], p[1], p[2], p[3])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2], p[3]); err != nil {
			return err
		}
	}
	return nil
}
