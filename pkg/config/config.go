package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/lmsauthz/pkg/definitions"
	"github.com/platinummonkey/lmsauthz/pkg/observability"
)

// Store backends
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Definition sources
const (
	SourceBuiltin = "builtin"
	SourceFile    = "file"
	SourceS3      = "s3"
)

// Config holds all engine configuration
type Config struct {
	// Assignment store configuration
	Store StoreConfig

	// Permission and role tables
	Definitions DefinitionsConfig

	// Evaluator behavior
	Engine EngineConfig

	// Expired assignment sweeping
	Sweeper SweeperConfig

	// Audit trail
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// StoreConfig selects and locates the assignment store
type StoreConfig struct {
	Type         string
	DSN          string // sqlite path or postgres connection URL
	MaxOpenConns int
	RedisURL     string
	RedisPrefix  string
}

// DefinitionsConfig locates the definition table
type DefinitionsConfig struct {
	Source   string
	Path     string
	Watch    bool
	Debounce time.Duration
	S3       definitions.S3Config
}

// EngineConfig holds evaluator settings
type EngineConfig struct {
	StrictContracts  bool
	RoleSetCacheSize int
}

// SweeperConfig holds expiry sweep settings
type SweeperConfig struct {
	Enabled  bool
	Schedule string
	Timeout  time.Duration
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	// FileDir enables JSON-lines audit files under this directory
	FileDir      string
	FileMaxSize  int64
	FileMaxFiles int

	// SQLEnabled writes events to the assignment database (sql stores only)
	SQLEnabled bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
	OTelMetrics        bool // also push engine metrics over OTLP
	OTelMetricInterval time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Store:         loadStoreConfig(),
		Definitions:   loadDefinitionsConfig(),
		Engine:        loadEngineConfig(),
		Sweeper:       loadSweeperConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadStoreConfig loads store configuration from environment
func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Type:         strings.ToLower(getEnv("LMSAUTHZ_STORE_TYPE", StoreMemory)),
		DSN:          getEnv("LMSAUTHZ_STORE_DSN", ""),
		MaxOpenConns: getEnvInt("LMSAUTHZ_STORE_MAX_OPEN_CONNS", 10),
		RedisURL:     getEnv("LMSAUTHZ_REDIS_URL", ""),
		RedisPrefix:  getEnv("LMSAUTHZ_REDIS_PREFIX", "lmsauthz"),
	}
}

// loadDefinitionsConfig loads definition source configuration from environment
func loadDefinitionsConfig() DefinitionsConfig {
	return DefinitionsConfig{
		Source:   strings.ToLower(getEnv("LMSAUTHZ_DEFINITIONS_SOURCE", SourceBuiltin)),
		Path:     getEnv("LMSAUTHZ_DEFINITIONS_PATH", ""),
		Watch:    getEnvBool("LMSAUTHZ_DEFINITIONS_WATCH", false),
		Debounce: getEnvDuration("LMSAUTHZ_DEFINITIONS_DEBOUNCE", definitions.DefaultDebounce),
		S3: definitions.S3Config{
			Bucket:       getEnv("LMSAUTHZ_S3_BUCKET", ""),
			Key:          getEnv("LMSAUTHZ_S3_KEY", ""),
			Region:       getEnv("LMSAUTHZ_S3_REGION", "us-east-1"),
			Endpoint:     getEnv("LMSAUTHZ_S3_ENDPOINT", ""),
			AccessKey:    getEnv("LMSAUTHZ_S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("LMSAUTHZ_S3_SECRET_KEY", ""),
			UsePathStyle: getEnvBool("LMSAUTHZ_S3_USE_PATH_STYLE", false),
		},
	}
}

// loadEngineConfig loads evaluator configuration from environment
func loadEngineConfig() EngineConfig {
	return EngineConfig{
		StrictContracts:  getEnvBool("LMSAUTHZ_STRICT_CONTRACTS", true),
		RoleSetCacheSize: getEnvInt("LMSAUTHZ_ROLE_SET_CACHE_SIZE", 1024),
	}
}

// loadSweeperConfig loads sweeper configuration from environment
func loadSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Enabled:  getEnvBool("LMSAUTHZ_SWEEP_ENABLED", true),
		Schedule: getEnv("LMSAUTHZ_SWEEP_SCHEDULE", "*/15 * * * *"),
		Timeout:  getEnvDuration("LMSAUTHZ_SWEEP_TIMEOUT", time.Minute),
	}
}

// loadAuditConfig loads audit configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		FileDir:      getEnv("LMSAUTHZ_AUDIT_DIR", ""),
		FileMaxSize:  getEnvInt64("LMSAUTHZ_AUDIT_MAX_SIZE", 100*1024*1024),
		FileMaxFiles: getEnvInt("LMSAUTHZ_AUDIT_MAX_FILES", 10),
		SQLEnabled:   getEnvBool("LMSAUTHZ_AUDIT_SQL", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("LMSAUTHZ_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("LMSAUTHZ_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("LMSAUTHZ_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("LMSAUTHZ_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("LMSAUTHZ_OTEL_SERVICE_NAME", "lmsauthz"),
		OTelServiceVersion: getEnv("LMSAUTHZ_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("LMSAUTHZ_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("LMSAUTHZ_OTEL_SAMPLE_RATIO", 1.0),
		OTelMetrics:        getEnvBool("LMSAUTHZ_OTEL_METRICS_ENABLED", false),
		OTelMetricInterval: getEnvDuration("LMSAUTHZ_OTEL_METRIC_INTERVAL", 10*time.Second),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate store config based on type
	switch c.Store.Type {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("store DSN is required for sqlite store")
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store DSN is required for postgres store")
		}
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis store")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be memory, sqlite, postgres, or redis)", c.Store.Type)
	}

	// Validate definition source
	switch c.Definitions.Source {
	case SourceBuiltin:
	case SourceFile:
		if c.Definitions.Path == "" {
			return fmt.Errorf("definitions path is required for file source")
		}
	case SourceS3:
		if c.Definitions.S3.Bucket == "" || c.Definitions.S3.Key == "" {
			return fmt.Errorf("S3 bucket and key are required for s3 source")
		}
	default:
		return fmt.Errorf("invalid definitions source: %s (must be builtin, file, or s3)", c.Definitions.Source)
	}
	if c.Definitions.Watch && c.Definitions.Source != SourceFile {
		return fmt.Errorf("definition watching requires the file source")
	}

	if c.Sweeper.Enabled {
		if _, err := cron.ParseStandard(c.Sweeper.Schedule); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", c.Sweeper.Schedule, err)
		}
	}

	if c.Audit.SQLEnabled && c.Store.Type != StoreSQLite && c.Store.Type != StorePostgres {
		return fmt.Errorf("SQL audit requires a sqlite or postgres store")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	if c.Observability.OTelMetrics && (!c.Observability.OTelEnabled || !c.Observability.MetricsEnabled) {
		return fmt.Errorf("OTLP metric export requires both OTel and metrics to be enabled")
	}

	return nil
}

// parseLogLevel parses a log level string, falling back to info
func parseLogLevel(level string) observability.LogLevel {
	parsed, err := observability.ParseLevel(level)
	if err != nil {
		return observability.InfoLevel
	}
	return parsed
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
