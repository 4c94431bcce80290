package config

import (
	"github.com/garyjia/doc-approval/internal/container"
	"github.com/garyjia/doc-approval/pkg/database"
)

// ToContainerConfig converts the application Config to a container.Config.
// Load has already validated the driver name.
func (c *Config) ToContainerConfig() *container.Config {
	driver, _ := database.ParseDriver(c.Database.Driver)

	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
			AdminUsers:   append([]string(nil), c.Server.AdminUsers...),
		},
		Workflow: container.WorkflowConfig{
			MaxAttempts: c.Workflow.MaxAttempts,
		},
		Notification: container.NotificationConfig{
			Backend:       c.Notification.Backend,
			RatePerSecond: c.Notification.RateLimit,
			Burst:         c.Notification.Burst,
		},
		Lark: container.LarkConfig{
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			BaseURL:   c.Lark.BaseURL,
		},
		Audit: container.AuditConfig{
			AMQPEnabled: c.Audit.AMQPEnabled,
			AMQPURL:     c.Audit.AMQPURL,
			Exchange:    c.Audit.Exchange,
		},
		Redis: container.RedisConfig{
			Enabled:  c.Redis.Enabled,
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			OwnerTTL: c.Redis.OwnerTTL,
		},
		Sweeper: container.SweeperConfig{
			Enabled:  c.Sweeper.Enabled,
			Interval: c.Sweeper.Interval,
		},
	}
}
