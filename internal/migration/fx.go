package migration

import (
	accessdomain "github.com/inkwellhq/inkwell/internal/access/domain"
	auditdomain "github.com/inkwellhq/inkwell/internal/audit/domain"
	"github.com/inkwellhq/inkwell/internal/config"
	messagingdomain "github.com/inkwellhq/inkwell/internal/messaging/domain"
	moderationdomain "github.com/inkwellhq/inkwell/internal/moderation/domain"
	workflowdomain "github.com/inkwellhq/inkwell/internal/workflow/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// The versioned SQL is written for postgres; other dialects
		// (mysql, sqlite for local work) derive the schema from the
		// models instead.
		return conn.AutoMigrate(
			&accessdomain.Tenant{},
			&accessdomain.GlobalAdmin{},
			&accessdomain.TenantAdmin{},
			&accessdomain.TenantRole{},
			&accessdomain.Subscriber{},
			&auditdomain.AuditLog{},
			&moderationdomain.UserBlock{},
			&moderationdomain.RateLimitRecord{},
			&messagingdomain.Message{},
			&messagingdomain.MessageRecipient{},
			&workflowdomain.Workflow{},
			&workflowdomain.WorkflowParticipant{},
			&workflowdomain.WorkflowMessage{},
			&workflowdomain.WorkflowLink{},
			&workflowdomain.WorkflowInvitation{},
		)
	}),
)
