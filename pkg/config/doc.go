// Package config loads engine configuration from environment variables.
//
// # Overview
//
// Every setting has a default, so an empty environment yields an in-memory
// engine serving the built-in LMS roles.
//
// # Configuration Structure
//
// Store settings:
//
//	LMSAUTHZ_STORE_TYPE="postgres"  # memory, sqlite, postgres, redis
//	LMSAUTHZ_STORE_DSN="postgres://localhost/lms?sslmode=disable"
//	LMSAUTHZ_STORE_MAX_OPEN_CONNS="10"
//	LMSAUTHZ_REDIS_URL="redis://localhost:6379/0"
//	LMSAUTHZ_REDIS_PREFIX="lmsauthz"
//
// Definition settings:
//
//	LMSAUTHZ_DEFINITIONS_SOURCE="file"  # builtin, file, s3
//	LMSAUTHZ_DEFINITIONS_PATH="/etc/lmsauthz/roles.yaml"
//	LMSAUTHZ_DEFINITIONS_WATCH="true"
//	LMSAUTHZ_S3_BUCKET="lms-config"
//	LMSAUTHZ_S3_KEY="authz/roles.yaml"
//
// Engine and sweeper settings:
//
//	LMSAUTHZ_STRICT_CONTRACTS="true"
//	LMSAUTHZ_ROLE_SET_CACHE_SIZE="1024"
//	LMSAUTHZ_SWEEP_ENABLED="true"
//	LMSAUTHZ_SWEEP_SCHEDULE="*/15 * * * *"
//
// Audit settings:
//
//	LMSAUTHZ_AUDIT_DIR="/var/log/lmsauthz/audit"
//	LMSAUTHZ_AUDIT_SQL="true"
//
// Observability settings:
//
//	LMSAUTHZ_LOG_LEVEL="info"  # debug, info, warn, error
//	LMSAUTHZ_METRICS_ENABLED="true"
//	LMSAUTHZ_OTEL_ENABLED="true"
//	LMSAUTHZ_OTEL_ENDPOINT="otel-collector:4317"
//	LMSAUTHZ_OTEL_METRICS_ENABLED="true"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	manager, err := authz.New(ctx, cfg)
package config
