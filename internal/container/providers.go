package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/dispatcher"
	"github.com/garyjia/doc-approval/internal/application/permission"
	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/application/service"
	"github.com/garyjia/doc-approval/internal/application/workflow"
	"github.com/garyjia/doc-approval/internal/domain/event"
	"github.com/garyjia/doc-approval/internal/infrastructure/cache"
	"github.com/garyjia/doc-approval/internal/infrastructure/external/console"
	infraLark "github.com/garyjia/doc-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/doc-approval/internal/infrastructure/messaging"
	"github.com/garyjia/doc-approval/internal/infrastructure/metrics"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/doc-approval/internal/infrastructure/worker"
	"github.com/garyjia/doc-approval/migrations"
	"github.com/garyjia/doc-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqldb.DB
}

// ExternalBundle holds adapters to systems outside the process.
// Nil fields are disabled by configuration.
type ExternalBundle struct {
	Gateway        port.NotificationGateway
	AuditPublisher *messaging.AuditPublisher
	OwnerCache     *cache.OwnerCache
}

// ProvideDatabase opens the configured database and applies the embedded
// migrations for its driver.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(conn, logger)
	if err := migrator.RunMigrations(migrations.FS, conn.Driver.MigrationsDir()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqldb.NewDB(conn.DB, conn.Driver, logger),
	}, nil
}

// ProvideRepositories creates all repositories on top of db.
func ProvideRepositories(db *sqldb.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Grants:      repository.NewGrantRepository(db, logger),
		Definitions: repository.NewDefinitionRepository(db, logger),
		Instances:   repository.NewInstanceRepository(db, logger),
		Audit:       repository.NewAuditRepository(db, logger),
		Users:       repository.NewUserRepository(db, logger),
		Documents:   repository.NewDocumentRepository(db, logger),
	}, nil
}

// ProvideNotificationGateway selects the notification backend.
// Returns nil for the "none" backend.
func ProvideNotificationGateway(cfg *Config, users port.UserRegistry, logger *zap.Logger) (port.NotificationGateway, error) {
	switch cfg.Notification.Backend {
	case NotifyNone:
		return nil, nil
	case NotifyConsole, "":
		return console.NewNotifier(logger), nil
	case NotifyLark:
		client := infraLark.NewClient(infraLark.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
			BaseURL:   cfg.Lark.BaseURL,
		}, logger)
		return infraLark.NewNotifier(client, users, logger), nil
	default:
		return nil, fmt.Errorf("unsupported notification backend %q", cfg.Notification.Backend)
	}
}

// ProvideExternal creates the notification gateway, the optional AMQP audit
// publisher and the optional Redis owner cache.
func ProvideExternal(ctx context.Context, cfg *Config, repos *RepositoryBundle, logger *zap.Logger) (*ExternalBundle, error) {
	if repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}

	gateway, err := ProvideNotificationGateway(cfg, repos.Users, logger)
	if err != nil {
		return nil, err
	}
	bundle := &ExternalBundle{Gateway: gateway}

	if cfg.Audit.AMQPEnabled {
		publisher, err := messaging.NewAuditPublisher(messaging.Config{
			URL:      cfg.Audit.AMQPURL,
			Exchange: cfg.Audit.Exchange,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create audit publisher: %w", err)
		}
		bundle.AuditPublisher = publisher
	}

	if cfg.Redis.Enabled {
		rdb := cache.NewClient(cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		owners := cache.NewOwnerCache(rdb, repos.Documents, cfg.Redis.OwnerTTL, logger)
		if err := owners.Ping(ctx); err != nil {
			// the cache falls through to the database, so an unreachable
			// Redis only costs latency
			logger.Warn("Redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		bundle.OwnerCache = owners
	}

	return bundle, nil
}

// ProvideDispatcher creates the event dispatcher. Handler failures are
// counted per subscriber.
func ProvideDispatcher(recorder *metrics.Recorder, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}),
	}
	if recorder != nil {
		opts = append(opts, dispatcher.WithErrorHook(func(handlerName string, _ *event.Event, _ error) {
			recorder.SideEffectFailed(handlerName)
		}))
	}

	return dispatcher.NewDispatcher(opts...), nil
}

// EngineDeps holds dependencies required for creating the engines.
type EngineDeps struct {
	Repos      *RepositoryBundle
	Owners     cache.Documents
	External   *ExternalBundle
	Dispatcher dispatcher.Dispatcher
	Metrics    *metrics.Recorder
	Workflow   WorkflowConfig
	Notify     NotificationConfig
	Logger     *zap.Logger
}

// ProvideEngines creates the permission and workflow engines and registers
// the audit and notification subscribers.
func ProvideEngines(deps *EngineDeps) (*EngineBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("engine dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	owners := deps.Owners
	if owners == nil {
		owners = deps.Repos.Documents
	}

	var m port.Metrics = port.NopMetrics{}
	if deps.Metrics != nil {
		m = deps.Metrics
	}

	permissions := permission.NewEngine(
		deps.Repos.Grants,
		owners,
		deps.Repos.Users,
		permission.WithDispatcher(deps.Dispatcher),
		permission.WithLogger(&zapLoggerAdapter{logger: deps.Logger.Named("permission")}),
		permission.WithMetrics(m),
	)

	workflows := workflow.NewEngine(
		deps.Repos.Definitions,
		deps.Repos.Instances,
		permissions,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger.Named("workflow")}),
		workflow.WithMetrics(m),
		workflow.WithMaxAttempts(deps.Workflow.MaxAttempts),
	)

	definitions := workflow.NewDefinitionService(
		deps.Repos.Definitions,
		deps.Dispatcher,
		&zapLoggerAdapter{logger: deps.Logger.Named("definitions")},
	)

	sinks := []port.AuditSink{deps.Repos.Audit}
	if deps.External != nil && deps.External.AuditPublisher != nil {
		sinks = append(sinks, deps.External.AuditPublisher)
	}
	audit := service.NewAuditRecorder(&zapLoggerAdapter{logger: deps.Logger.Named("audit")}, sinks...)
	audit.Register(deps.Dispatcher)

	bundle := &EngineBundle{
		Permissions: permissions,
		Workflows:   workflows,
		Definitions: definitions,
		Audit:       audit,
	}

	if deps.External != nil && deps.External.Gateway != nil {
		notifier := service.NewNotifier(
			deps.External.Gateway,
			&zapLoggerAdapter{logger: deps.Logger.Named("notifier")},
			service.WithRateLimit(deps.Notify.RatePerSecond, deps.Notify.Burst),
			service.WithNotifierMetrics(m),
		)
		notifier.Register(deps.Dispatcher)
		bundle.Notifier = notifier
	}

	return bundle, nil
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(cfg *SweeperConfig, sweeper worker.GrantSweeper, logger *zap.Logger) (*worker.WorkerManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sweeper config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(logger)

	if cfg.Enabled {
		if sweeper == nil {
			return nil, fmt.Errorf("grant sweeper is required")
		}
		manager.Register(worker.NewExpirySweeper(sweeper, cfg.Interval, logger))
	}

	return manager, nil
}
