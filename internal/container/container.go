package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/dispatcher"
	"github.com/garyjia/doc-approval/internal/application/permission"
	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/application/service"
	"github.com/garyjia/doc-approval/internal/application/workflow"
	"github.com/garyjia/doc-approval/internal/infrastructure/metrics"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/doc-approval/internal/infrastructure/report"
	"github.com/garyjia/doc-approval/internal/infrastructure/worker"
	"github.com/garyjia/doc-approval/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	conn         *database.DB
	db           *sqldb.DB
	repositories *RepositoryBundle

	// Infrastructure - Observability
	metrics *metrics.Recorder
	reports *report.Exporter

	// Infrastructure - External
	external *ExternalBundle

	// Application
	dispatcher dispatcher.Dispatcher
	engines    *EngineBundle

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Grants      *repository.GrantRepository
	Definitions *repository.DefinitionRepository
	Instances   *repository.InstanceRepository
	Audit       *repository.AuditRepository
	Users       *repository.UserRepository
	Documents   *repository.DocumentRepository
}

// EngineBundle groups the engines and their event subscribers.
type EngineBundle struct {
	Permissions permission.Engine
	Workflows   workflow.Engine
	Definitions workflow.DefinitionService
	Audit       *service.AuditRecorder
	Notifier    *service.Notifier // nil when notifications are disabled
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database, migrations and repositories
// 2. Metrics and reports
// 3. External adapters (notifications, AMQP, Redis)
// 4. Event dispatcher
// 5. Engines and subscribers
// 6. Workers
//
// A failed Start releases whatever it already acquired.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.start(); err != nil {
		_ = c.teardown()
		c.conn, c.db, c.repositories = nil, nil, nil
		c.external, c.dispatcher, c.engines, c.workers = nil, nil, nil, nil
		return err
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

func (c *Container) start() error {
	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized", zap.String("driver", string(c.conn.Driver)))

	// Step 2: Metrics and reports
	c.metrics = metrics.New()
	c.reports = report.NewExporter(c.logger.Named("report"))

	// Step 3: Initialize external adapters
	if err := c.initExternal(); err != nil {
		return fmt.Errorf("failed to initialize external adapters: %w", err)
	}
	c.logger.Info("External adapters initialized",
		zap.String("notification_backend", c.config.Notification.Backend),
		zap.Bool("amqp_audit", c.external.AuditPublisher != nil),
		zap.Bool("redis_cache", c.external.OwnerCache != nil))

	// Step 4: Initialize dispatcher
	disp, err := ProvideDispatcher(c.metrics, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	c.dispatcher = disp

	// Step 5: Initialize engines and subscribers
	if err := c.initEngines(); err != nil {
		return fmt.Errorf("failed to initialize engines: %w", err)
	}
	c.logger.Info("Engines initialized")

	// Step 6: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started", zap.Int("count", c.workers.GetWorkerCount()))

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() error {
	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers (reverse of step 6)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 2: Drain the dispatcher so in-flight side effects finish
	// before their sinks close (reverse of steps 4-5)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 3: Close external adapters (reverse of step 3)
	if c.external != nil {
		if c.external.AuditPublisher != nil {
			if err := c.external.AuditPublisher.Close(); err != nil {
				c.logger.Error("Failed to close audit publisher", zap.Error(err))
				errs = append(errs, fmt.Errorf("close audit publisher: %w", err))
			}
		}
		if c.external.OwnerCache != nil {
			if err := c.external.OwnerCache.Close(); err != nil {
				c.logger.Error("Failed to close redis client", zap.Error(err))
				errs = append(errs, fmt.Errorf("close redis: %w", err))
			}
		}
		c.logger.Info("External adapters closed")
	}

	// Step 4: Close database (reverse of step 1)
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Check database
	if c.conn != nil {
		if err := c.conn.PingContext(ctx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	} else {
		set("database", false, "not initialized")
	}

	// Redis is optional: a failed ping degrades to database reads
	if c.external != nil && c.external.OwnerCache != nil {
		if err := c.external.OwnerCache.Ping(ctx); err != nil {
			status.Components["redis"] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
		} else {
			status.Components["redis"] = ComponentHealth{Healthy: true}
		}
	}

	// Check workers
	if c.workers != nil {
		set("workers", c.workers.IsRunning(), fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()))
	} else {
		set("workers", false, "not initialized")
	}

	// Check dispatcher
	if c.dispatcher != nil {
		set("dispatcher", true, "")
	} else {
		set("dispatcher", false, "not initialized")
	}

	// Check engines
	if c.engines != nil {
		set("engines", true, "")
	} else {
		set("engines", false, "not initialized")
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.conn = dbBundle.Conn
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		return err
	}

	c.repositories = repos
	return nil
}

// initExternal initializes notification, AMQP and Redis adapters.
func (c *Container) initExternal() error {
	external, err := ProvideExternal(c.ctx, c.config, c.repositories, c.logger)
	if err != nil {
		return err
	}
	c.external = external
	return nil
}

// initEngines creates the engines and registers event subscribers.
func (c *Container) initEngines() error {
	deps := &EngineDeps{
		Repos:      c.repositories,
		External:   c.external,
		Dispatcher: c.dispatcher,
		Metrics:    c.metrics,
		Workflow:   c.config.Workflow,
		Notify:     c.config.Notification,
		Logger:     c.logger,
	}
	if c.external.OwnerCache != nil {
		deps.Owners = c.external.OwnerCache
	}

	engines, err := ProvideEngines(deps)
	if err != nil {
		return err
	}
	c.engines = engines
	return nil
}

// initWorkers initializes and starts all background workers using providers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&c.config.Sweeper, c.engines.Permissions, c.logger.Named("worker"))
	if err != nil {
		return err
	}
	c.workers = workers

	// Start all workers
	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Permissions returns the permission engine.
func (c *Container) Permissions() permission.Engine {
	return c.engines.Permissions
}

// Workflows returns the approval workflow engine.
func (c *Container) Workflows() workflow.Engine {
	return c.engines.Workflows
}

// Definitions returns the workflow definition service.
func (c *Container) Definitions() workflow.DefinitionService {
	return c.engines.Definitions
}

// Users returns the user directory.
func (c *Container) Users() port.UserRegistry {
	return c.repositories.Users
}

// Documents returns the document registry. Writes go through the owner
// cache when Redis is enabled.
func (c *Container) Documents() port.DocumentRegistry {
	if c.external != nil && c.external.OwnerCache != nil {
		return c.external.OwnerCache
	}
	return c.repositories.Documents
}

// Audit returns the audit trail repository.
func (c *Container) Audit() port.AuditRepository {
	return c.repositories.Audit
}

// Metrics returns the Prometheus recorder.
func (c *Container) Metrics() *metrics.Recorder {
	return c.metrics
}

// Reports returns the xlsx exporter.
func (c *Container) Reports() *report.Exporter {
	return c.reports
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// KVLogger returns the container's logger in key-value form.
func (c *Container) KVLogger() port.Logger {
	return &zapLoggerAdapter{logger: c.logger}
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the key-value Logger interfaces.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
