package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/doc-approval/pkg/database"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Notification NotificationConfig `mapstructure:"notification"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Sweeper      SweeperConfig      `mapstructure:"sweeper"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AdminUsers   []string      `mapstructure:"admin_users"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// WorkflowConfig holds approval engine settings
type WorkflowConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// NotificationConfig selects the notification backend
type NotificationConfig struct {
	Backend   string  `mapstructure:"backend"` // console, lark or none
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

// AuditConfig holds the AMQP audit publisher configuration
type AuditConfig struct {
	AMQPEnabled bool   `mapstructure:"amqp_enabled"`
	AMQPURL     string `mapstructure:"amqp_url"`
	Exchange    string `mapstructure:"exchange"`
}

// RedisConfig holds the owner cache configuration
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	OwnerTTL time.Duration `mapstructure:"owner_ttl"`
}

// SweeperConfig holds the expired-grant sweeper configuration
type SweeperConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// EnvPrefix prefixes environment overrides, e.g. DOCAPP_SERVER_PORT
const EnvPrefix = "DOCAPP"

// Load loads configuration from file and environment variables.
// An empty configPath uses defaults and the environment only. A .env file in
// the working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.admin_users", []string{})

	// Database defaults
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "data/docapproval.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("workflow.max_attempts", 3)

	// Notification defaults
	v.SetDefault("notification.backend", "console")
	v.SetDefault("notification.rate_limit", 10.0)
	v.SetDefault("notification.burst", 20)

	v.SetDefault("lark.app_id", "")
	v.SetDefault("lark.app_secret", "")
	v.SetDefault("lark.base_url", "")

	v.SetDefault("audit.amqp_enabled", false)
	v.SetDefault("audit.amqp_url", "")
	v.SetDefault("audit.exchange", "docapproval.audit")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.owner_ttl", 5*time.Minute)

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval", time.Hour)
}

// bindEnvVars binds conventional variable names for credentials and endpoints
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"lark.app_id":     {"DOCAPP_LARK_APP_ID", "LARK_APP_ID"},
		"lark.app_secret": {"DOCAPP_LARK_APP_SECRET", "LARK_APP_SECRET"},
		"database.dsn":    {"DOCAPP_DATABASE_DSN", "DATABASE_DSN"},
		"audit.amqp_url":  {"DOCAPP_AUDIT_AMQP_URL", "AMQP_URL"},
		"redis.addr":      {"DOCAPP_REDIS_ADDR", "REDIS_ADDR"},
		"redis.password":  {"DOCAPP_REDIS_PASSWORD", "REDIS_PASSWORD"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	driver, err := database.ParseDriver(c.Database.Driver)
	if err != nil {
		return err
	}
	if driver == database.DriverSQLite && c.Database.Path == "" {
		return fmt.Errorf("database.path is required for sqlite3")
	}
	if driver == database.DriverPostgres && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for pgx")
	}

	if c.Workflow.MaxAttempts < 1 {
		return fmt.Errorf("workflow.max_attempts must be at least 1")
	}

	switch c.Notification.Backend {
	case "console", "none":
	case "lark":
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	default:
		return fmt.Errorf("notification.backend must be console, lark or none: %q", c.Notification.Backend)
	}

	if c.Audit.AMQPEnabled && c.Audit.AMQPURL == "" {
		return fmt.Errorf("audit.amqp_url is required when audit.amqp_enabled is set")
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}

	return nil
}
