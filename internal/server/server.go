package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/inkwellhq/inkwell/internal/access"
	accessdomain "github.com/inkwellhq/inkwell/internal/access/domain"
	"github.com/inkwellhq/inkwell/internal/audit"
	auditdomain "github.com/inkwellhq/inkwell/internal/audit/domain"
	"github.com/inkwellhq/inkwell/internal/authorization"
	"github.com/inkwellhq/inkwell/internal/config"
	"github.com/inkwellhq/inkwell/internal/fanout"
	"github.com/inkwellhq/inkwell/internal/identity"
	"github.com/inkwellhq/inkwell/internal/messaging"
	messagingdomain "github.com/inkwellhq/inkwell/internal/messaging/domain"
	"github.com/inkwellhq/inkwell/internal/moderation"
	moderationdomain "github.com/inkwellhq/inkwell/internal/moderation/domain"
	obslogger "github.com/inkwellhq/inkwell/internal/observability/logger"
	obsmetrics "github.com/inkwellhq/inkwell/internal/observability/metrics"
	obstracing "github.com/inkwellhq/inkwell/internal/observability/tracing"
	"github.com/inkwellhq/inkwell/internal/ratelimit"
	"github.com/inkwellhq/inkwell/internal/workflow"
	workflowdomain "github.com/inkwellhq/inkwell/internal/workflow/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	access.Module,
	ratelimit.Module,
	moderation.Module,
	messaging.Module,
	workflow.Module,
	fanout.Module,
	identity.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware())
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	identity      *identity.Provider
	accessSvc     accessdomain.Service
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	moderationSvc moderationdomain.Service
	messagingSvc  messagingdomain.Service
	workflowSvc   workflowdomain.Service
	hub           *fanout.Hub
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	Identity      *identity.Provider
	AccessSvc     accessdomain.Service
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	ModerationSvc moderationdomain.Service
	MessagingSvc  messagingdomain.Service
	WorkflowSvc   workflowdomain.Service
	Hub           *fanout.Hub `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		identity:      p.Identity,
		accessSvc:     p.AccessSvc,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		moderationSvc: p.ModerationSvc,
		messagingSvc:  p.MessagingSvc,
		workflowSvc:   p.WorkflowSvc,
		hub:           p.Hub,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	tenants := api.Group("/tenants/:tenant_id", TenantContext())
	{
		tenants.POST("/messages", s.SendMessage)
		tenants.POST("/messages/preflight", s.CanSendMessage)
		tenants.GET("/inbox", s.ListInbox)
		tenants.GET("/inbox/unread-count", s.UnreadCount)

		tenants.POST("/blocks", s.CreateBlock)
		tenants.DELETE("/blocks/:user_id", s.DeleteBlock)
		tenants.GET("/blocks", s.ListBlocks)

		tenants.POST("/workflows", s.CreateWorkflow)

		tenants.GET("/audit_logs", s.ListAuditLogs)

		tenants.GET("/events", s.StreamTenantEvents)
	}

	api.POST("/messages/:id/recall", s.RecallMessage)
	api.POST("/messages/:id/state", s.MarkMessageState)

	workflows := api.Group("/workflows/:id")
	{
		workflows.GET("", s.GetWorkflow)
		workflows.POST("/transition", s.TransitionWorkflow)
		workflows.DELETE("", s.HardDeleteWorkflow)

		workflows.POST("/messages", s.PostWorkflowMessage)
		workflows.GET("/messages", s.ListWorkflowMessages)

		workflows.POST("/participants", s.AddWorkflowParticipant)
		workflows.GET("/participants", s.ListWorkflowParticipants)

		workflows.POST("/links", s.AddWorkflowLink)
		workflows.GET("/links", s.ListWorkflowLinks)
		workflows.DELETE("/links/:link_id", s.RemoveWorkflowLink)

		workflows.POST("/invitations", s.InviteToWorkflow)

		workflows.GET("/events", s.StreamWorkflowEvents)
	}

	api.POST("/invitations/:id/accept", s.AcceptWorkflowInvitation)
}
