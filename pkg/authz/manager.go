package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/lmsauthz/pkg/audit"
	"github.com/platinummonkey/lmsauthz/pkg/config"
	"github.com/platinummonkey/lmsauthz/pkg/definitions"
	"github.com/platinummonkey/lmsauthz/pkg/observability"
	"github.com/platinummonkey/lmsauthz/pkg/rbac"
	"github.com/platinummonkey/lmsauthz/pkg/sweeper"
)

// Manager owns an evaluator together with everything it runs on
type Manager struct {
	cfg       *config.Config
	logger    *observability.Logger
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	otel      *observability.OTelProviders
	db        *sql.DB
	redis     *redis.Client
	store     rbac.AssignmentStore
	audit     audit.Logger
	evaluator *rbac.Evaluator
	watcher   *definitions.Watcher
	sweeper   *sweeper.Sweeper
}

// Option configures a Manager
type Option func(*options)

type options struct {
	logOutput io.Writer
	directory rbac.UserDirectory
}

// WithLogOutput sends logs to w instead of stdout
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithDirectory resolves acting users through dir
func WithDirectory(dir rbac.UserDirectory) Option {
	return func(o *options) { o.directory = dir }
}

// New builds a ready-to-use engine from cfg. It fails when the definition
// table is invalid, the store is unreachable or migrations fail.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	m := &Manager{
		cfg:    cfg,
		logger: observability.NewLogger(cfg.Observability.LogLevel, o.logOutput),
	}

	ok := false
	defer func() {
		if !ok {
			_ = m.Close()
		}
	}()

	if cfg.Observability.MetricsEnabled {
		m.registry = prometheus.NewRegistry()
		m.metrics = observability.NewMetrics(m.registry)
	}

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
		MetricsExport:  cfg.Observability.OTelMetrics,
		MetricInterval: cfg.Observability.OTelMetricInterval,
	}, m.logger)
	if err != nil {
		return nil, err
	}
	m.otel = providers
	if providers != nil && providers.MeterProvider != nil {
		if err := m.metrics.MirrorToOTel(providers.MeterProvider.Meter("lmsauthz")); err != nil {
			return nil, err
		}
	}

	catalog, err := loadCatalog(ctx, cfg.Definitions)
	if err != nil {
		return nil, err
	}

	if err := m.openStore(ctx); err != nil {
		return nil, err
	}

	if err := m.openAudit(ctx); err != nil {
		return nil, err
	}

	evalOpts := []rbac.Option{
		rbac.WithLogger(m.logger),
		rbac.WithMetrics(m.metrics),
		rbac.WithAuditLogger(m.audit),
		rbac.WithStrictContracts(cfg.Engine.StrictContracts),
		rbac.WithRoleSetCacheSize(cfg.Engine.RoleSetCacheSize),
	}
	if o.directory != nil {
		evalOpts = append(evalOpts, rbac.WithDirectory(o.directory))
	}
	m.evaluator, err = rbac.NewEvaluator(catalog, m.store, evalOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluator: %w", err)
	}

	if cfg.Definitions.Watch {
		m.watcher, err = definitions.NewWatcher(cfg.Definitions.Path, m.evaluator,
			definitions.WithDebounce(cfg.Definitions.Debounce),
			definitions.WithLogger(m.logger),
			definitions.WithMetrics(m.metrics),
			definitions.WithAuditLogger(m.audit),
		)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Sweeper.Enabled {
		m.sweeper, err = sweeper.New(m.store, cfg.Sweeper.Schedule,
			sweeper.WithTimeout(cfg.Sweeper.Timeout),
			sweeper.WithLogger(m.logger),
			sweeper.WithMetrics(m.metrics),
			sweeper.WithAuditLogger(m.audit),
		)
		if err != nil {
			return nil, err
		}
	}

	m.logger.WithFields(map[string]interface{}{
		"store":       cfg.Store.Type,
		"definitions": cfg.Definitions.Source,
		"permissions": catalog.Permissions.Len(),
		"roles":       catalog.Roles.Len(),
	}).Info("authorization engine ready")

	ok = true
	return m, nil
}

func loadCatalog(ctx context.Context, cfg config.DefinitionsConfig) (*rbac.Catalog, error) {
	switch cfg.Source {
	case config.SourceFile:
		return definitions.LoadCatalog(ctx, definitions.FileSource{Path: cfg.Path})
	case config.SourceS3:
		src, err := definitions.NewS3Source(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return definitions.LoadCatalog(ctx, src)
	default:
		return rbac.NewCatalog(rbac.DefaultDefinition())
	}
}

func (m *Manager) openStore(ctx context.Context) error {
	cfg := m.cfg.Store

	switch cfg.Type {
	case config.StoreSQLite, config.StorePostgres:
		driver := "postgres"
		if cfg.Type == config.StoreSQLite {
			driver = "sqlite3"
		}
		db, err := sql.Open(driver, cfg.DSN)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", cfg.Type, err)
		}
		m.db = db

		if cfg.Type == config.StoreSQLite {
			// sqlite serializes writers; one connection also keeps :memory: databases shared
			db.SetMaxOpenConns(1)
		} else if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
			db.SetConnMaxLifetime(1 * time.Hour)
			db.SetConnMaxIdleTime(10 * time.Minute)
		}

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("failed to ping %s: %w", cfg.Type, err)
		}
		if err := rbac.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("failed to migrate assignment store: %w", err)
		}
		m.store = rbac.NewSQLStore(db)

	case config.StoreRedis:
		client, err := rbac.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		m.redis = client
		m.store = rbac.NewRedisStore(client, cfg.RedisPrefix)

	default:
		m.store = rbac.NewMemoryStore()
	}
	return nil
}

func (m *Manager) openAudit(ctx context.Context) error {
	var loggers []audit.Logger

	if dir := m.cfg.Audit.FileDir; dir != "" {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: dir,
			Rotate:   true,
			MaxSize:  m.cfg.Audit.FileMaxSize,
			MaxFiles: m.cfg.Audit.FileMaxFiles,
		})
		if err != nil {
			return err
		}
		loggers = append(loggers, fileLogger)
	}

	if m.cfg.Audit.SQLEnabled {
		sqlLogger, err := audit.NewSQLLogger(ctx, m.db)
		if err != nil {
			return err
		}
		loggers = append(loggers, sqlLogger)
	}

	switch len(loggers) {
	case 0:
		m.audit = audit.NopLogger{}
	case 1:
		m.audit = loggers[0]
	default:
		m.audit = audit.NewMultiLogger(loggers...)
	}
	return nil
}

// Evaluator returns the engine's evaluator
func (m *Manager) Evaluator() *rbac.Evaluator {
	return m.evaluator
}

// Store returns the assignment store in use
func (m *Manager) Store() rbac.AssignmentStore {
	return m.store
}

// Logger returns the engine's logger
func (m *Manager) Logger() *observability.Logger {
	return m.logger
}

// MetricsHandler serves the engine's Prometheus metrics for the host to mount.
// It is nil when metrics are disabled.
func (m *Manager) MetricsHandler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return observability.Handler(m.registry)
}

// Run drives the definition watcher and expiry sweeper until ctx is cancelled
// or one of them fails
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if m.watcher != nil {
		g.Go(func() error { return m.watcher.Run(ctx) })
	}
	if m.sweeper != nil {
		g.Go(func() error { return m.sweeper.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	return g.Wait()
}

// Close releases the store, audit destinations and OpenTelemetry providers
func (m *Manager) Close() error {
	var errs []error

	if m.audit != nil {
		if err := m.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit logger: %w", err))
		}
	}
	if m.db != nil {
		if err := m.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	if m.redis != nil {
		if err := m.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := observability.ShutdownOTel(shutdownCtx, m.otel, m.logger); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
