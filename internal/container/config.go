// Package container provides dependency injection and lifecycle management
// for the document approval service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/doc-approval/pkg/database"
)

// Notification backends
const (
	NotifyConsole = "console"
	NotifyLark    = "lark"
	NotifyNone    = "none"
)

// Config holds all configuration for the Container.
type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	Workflow     WorkflowConfig
	Notification NotificationConfig
	Lark         LarkConfig
	Audit        AuditConfig
	Redis        RedisConfig
	Sweeper      SweeperConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is sqlite3 or pgx
	Driver database.Driver

	// Path to SQLite database file
	Path string

	// DSN is the Postgres connection string
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AdminUsers may call the admin routes
	AdminUsers []string
}

// WorkflowConfig tunes the approval engine.
type WorkflowConfig struct {
	// MaxAttempts bounds optimistic retries of one decision
	MaxAttempts int
}

// NotificationConfig selects and throttles the notification channel.
type NotificationConfig struct {
	// Backend is console, lark or none
	Backend string

	// RatePerSecond limits outgoing messages; zero disables throttling
	RatePerSecond float64
	Burst         int
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	AppID     string
	AppSecret string

	// BaseURL overrides the open platform endpoint
	BaseURL string
}

// AuditConfig controls the optional AMQP copy of the audit trail.
type AuditConfig struct {
	AMQPEnabled bool
	AMQPURL     string
	Exchange    string
}

// RedisConfig controls the document owner cache.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	OwnerTTL time.Duration
}

// SweeperConfig controls the expired-grant sweeper.
type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          database.DriverSQLite,
			Path:            "data/docapproval.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Workflow: WorkflowConfig{
			MaxAttempts: 3,
		},
		Notification: NotificationConfig{
			Backend:       NotifyConsole,
			RatePerSecond: 10,
			Burst:         20,
		},
		Audit: AuditConfig{
			Exchange: "docapproval.audit",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			OwnerTTL: 5 * time.Minute,
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite3")
		}
	case database.DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for pgx")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Notification.Backend {
	case NotifyConsole, NotifyNone:
	case NotifyLark:
		if c.Lark.AppID == "" || c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_id and lark.app_secret are required for the lark backend")
		}
	default:
		return fmt.Errorf("unsupported notification backend %q", c.Notification.Backend)
	}

	if c.Audit.AMQPEnabled && c.Audit.AMQPURL == "" {
		return fmt.Errorf("audit.amqp_url is required when audit.amqp_enabled is set")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis.enabled is set")
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}

	return nil
}
