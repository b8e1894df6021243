package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/lmsauthz/pkg/definitions"
	"github.com/platinummonkey/lmsauthz/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{name: "true", envValue: "true", defaultValue: false, want: true},
		{name: "TRUE", envValue: "TRUE", defaultValue: false, want: true},
		{name: "one", envValue: "1", defaultValue: false, want: true},
		{name: "false", envValue: "false", defaultValue: true, want: false},
		{name: "garbage is false", envValue: "yes please", defaultValue: true, want: false},
		{name: "unset uses default", envValue: "", defaultValue: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_BOOL", tt.envValue)
			}
			if got := getEnvBool("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvNumbers tests the numeric helpers
func TestGetEnvNumbers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_INT64", "9000000000")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_BAD_DURATION", "ninety")

	if got := getEnvInt("TEST_INT", 0); got != 42 {
		t.Errorf("getEnvInt() = %v, want 42", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt() with invalid value = %v, want default 7", got)
	}
	if got := getEnvInt64("TEST_INT64", 0); got != 9000000000 {
		t.Errorf("getEnvInt64() = %v, want 9000000000", got)
	}
	if got := getEnvFloat("TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("getEnvFloat() = %v, want 0.25", got)
	}
	if got := getEnvDuration("TEST_DURATION", 0); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvDuration("TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() with invalid value = %v, want default 1s", got)
	}
}

// TestParseLogLevel tests log level parsing
func TestParseLogLevel(t *testing.T) {
	tests := map[string]observability.LogLevel{
		"debug":   observability.DebugLevel,
		"INFO":    observability.InfoLevel,
		"warning": observability.WarnLevel,
		"error":   observability.ErrorLevel,
		"verbose": observability.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// clearEnv unsets every LMSAUTHZ_ variable for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "LMSAUTHZ_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

// TestLoadConfig_Defaults tests loading with an empty environment
func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Store.Type != StoreMemory {
		t.Errorf("Store.Type = %v, want %v", cfg.Store.Type, StoreMemory)
	}
	if cfg.Definitions.Source != SourceBuiltin {
		t.Errorf("Definitions.Source = %v, want %v", cfg.Definitions.Source, SourceBuiltin)
	}
	if cfg.Definitions.Debounce != definitions.DefaultDebounce {
		t.Errorf("Definitions.Debounce = %v, want %v", cfg.Definitions.Debounce, definitions.DefaultDebounce)
	}
	if !cfg.Engine.StrictContracts {
		t.Error("Engine.StrictContracts should default to true")
	}
	if cfg.Engine.RoleSetCacheSize != 1024 {
		t.Errorf("Engine.RoleSetCacheSize = %v, want 1024", cfg.Engine.RoleSetCacheSize)
	}
	if !cfg.Sweeper.Enabled || cfg.Sweeper.Schedule != "*/15 * * * *" {
		t.Errorf("Sweeper = %+v, want enabled every 15 minutes", cfg.Sweeper)
	}
	if cfg.Audit.FileDir != "" || cfg.Audit.SQLEnabled {
		t.Errorf("Audit = %+v, want disabled", cfg.Audit)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("LogLevel = %v, want info", cfg.Observability.LogLevel)
	}
	if cfg.Observability.OTelEnabled {
		t.Error("OTel should be disabled by default")
	}
	if cfg.Store.RedisPrefix != "lmsauthz" {
		t.Errorf("RedisPrefix = %v, want lmsauthz", cfg.Store.RedisPrefix)
	}
}

// TestLoadConfig_FromEnvironment tests that every section reads its variables
func TestLoadConfig_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LMSAUTHZ_STORE_TYPE", "Postgres")
	t.Setenv("LMSAUTHZ_STORE_DSN", "postgres://localhost/lms?sslmode=disable")
	t.Setenv("LMSAUTHZ_STORE_MAX_OPEN_CONNS", "25")
	t.Setenv("LMSAUTHZ_DEFINITIONS_SOURCE", "s3")
	t.Setenv("LMSAUTHZ_S3_BUCKET", "lms-config")
	t.Setenv("LMSAUTHZ_S3_KEY", "authz/roles.yaml")
	t.Setenv("LMSAUTHZ_S3_USE_PATH_STYLE", "true")
	t.Setenv("LMSAUTHZ_STRICT_CONTRACTS", "false")
	t.Setenv("LMSAUTHZ_SWEEP_SCHEDULE", "@every 5m")
	t.Setenv("LMSAUTHZ_AUDIT_SQL", "true")
	t.Setenv("LMSAUTHZ_AUDIT_DIR", "/tmp/audit")
	t.Setenv("LMSAUTHZ_LOG_LEVEL", "debug")
	t.Setenv("LMSAUTHZ_OTEL_ENABLED", "true")
	t.Setenv("LMSAUTHZ_OTEL_SAMPLE_RATIO", "0.1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Store.Type != StorePostgres {
		t.Errorf("Store.Type = %v, want postgres", cfg.Store.Type)
	}
	if cfg.Store.MaxOpenConns != 25 {
		t.Errorf("Store.MaxOpenConns = %v, want 25", cfg.Store.MaxOpenConns)
	}
	if cfg.Definitions.S3.Bucket != "lms-config" || !cfg.Definitions.S3.UsePathStyle {
		t.Errorf("Definitions.S3 = %+v", cfg.Definitions.S3)
	}
	if cfg.Engine.StrictContracts {
		t.Error("Engine.StrictContracts should be false")
	}
	if cfg.Sweeper.Schedule != "@every 5m" {
		t.Errorf("Sweeper.Schedule = %v", cfg.Sweeper.Schedule)
	}
	if !cfg.Audit.SQLEnabled || cfg.Audit.FileDir != "/tmp/audit" {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.Observability.LogLevel)
	}
	if cfg.Observability.OTelSampleRatio != 0.1 {
		t.Errorf("OTelSampleRatio = %v, want 0.1", cfg.Observability.OTelSampleRatio)
	}
}

// TestLoadConfig_Invalid tests that validation failures surface from LoadConfig
func TestLoadConfig_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("LMSAUTHZ_STORE_TYPE", "cassandra")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() should fail for an unknown store type")
	}
}

func validConfig() *Config {
	return &Config{
		Store:       StoreConfig{Type: StoreMemory},
		Definitions: DefinitionsConfig{Source: SourceBuiltin},
		Sweeper:     SweeperConfig{Enabled: true, Schedule: "*/15 * * * *"},
	}
}

// TestValidate tests configuration validation
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid defaults", mutate: func(c *Config) {}},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Store.Type = "mongo" },
			wantErr: "invalid store type",
		},
		{
			name:    "sqlite without dsn",
			mutate:  func(c *Config) { c.Store.Type = StoreSQLite },
			wantErr: "DSN is required for sqlite",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Store.Type = StorePostgres },
			wantErr: "DSN is required for postgres",
		},
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.Store.Type = StoreRedis },
			wantErr: "redis URL is required",
		},
		{
			name: "redis with url",
			mutate: func(c *Config) {
				c.Store.Type = StoreRedis
				c.Store.RedisURL = "redis://localhost:6379"
			},
		},
		{
			name:    "file source without path",
			mutate:  func(c *Config) { c.Definitions.Source = SourceFile },
			wantErr: "definitions path is required",
		},
		{
			name: "s3 source without key",
			mutate: func(c *Config) {
				c.Definitions.Source = SourceS3
				c.Definitions.S3.Bucket = "lms-config"
			},
			wantErr: "S3 bucket and key are required",
		},
		{
			name:    "unknown source",
			mutate:  func(c *Config) { c.Definitions.Source = "consul" },
			wantErr: "invalid definitions source",
		},
		{
			name:    "watch without file source",
			mutate:  func(c *Config) { c.Definitions.Watch = true },
			wantErr: "requires the file source",
		},
		{
			name:    "bad sweep schedule",
			mutate:  func(c *Config) { c.Sweeper.Schedule = "whenever" },
			wantErr: "invalid sweep schedule",
		},
		{
			name: "bad schedule ignored when sweeper disabled",
			mutate: func(c *Config) {
				c.Sweeper.Enabled = false
				c.Sweeper.Schedule = "whenever"
			},
		},
		{
			name:    "sql audit on memory store",
			mutate:  func(c *Config) { c.Audit.SQLEnabled = true },
			wantErr: "SQL audit requires",
		},
		{
			name: "otel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelServiceName = "lmsauthz"
			},
			wantErr: "endpoint is required",
		},
		{
			name: "otel without service name",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = "localhost:4317"
			},
			wantErr: "service name is required",
		},
		{
			name: "otlp metrics without otel",
			mutate: func(c *Config) {
				c.Observability.OTelMetrics = true
			},
			wantErr: "OTLP metric export requires",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
