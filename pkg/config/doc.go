// Package config loads the server configuration from environment variables.
//
// Server settings:
//
//	APIEVOLVE_HOST="0.0.0.0"
//	APIEVOLVE_PORT="8080"
//	APIEVOLVE_HEALTH_PORT="9090"
//	APIEVOLVE_MAX_BODY_BYTES="4194304"
//
// Storage settings:
//
//	APIEVOLVE_STORAGE_TYPE="postgres"  # filesystem, postgres, sqlite
//	APIEVOLVE_FILESYSTEM_ROOT="/var/lib/apievolve"
//	APIEVOLVE_DATABASE_URL="postgres://localhost/apievolve?sslmode=disable"
//	APIEVOLVE_DATABASE_REPLICA_URLS="postgres://replica/apievolve"
//	APIEVOLVE_S3_BUCKET="apievolve-definitions"  # keep documents in S3
//	APIEVOLVE_REDIS_URL="localhost:6379"         # read-through cache
//
// History cache and warm-up:
//
//	APIEVOLVE_HISTORY_CACHE_SIZE="128"
//	APIEVOLVE_HISTORY_CACHE_TTL="10m"
//	APIEVOLVE_WARM_SCHEDULE="@every 15m"
//	APIEVOLVE_WATCH_FILESYSTEM="true"
//
// Observability:
//
//	APIEVOLVE_LOG_LEVEL="info"
//	APIEVOLVE_OTEL_ENABLED="true"
//	APIEVOLVE_OTEL_ENDPOINT="otel-collector:4317"
//	APIEVOLVE_OTEL_SAMPLE_RATIO="0.1"
//
// LoadConfig validates the result; an unknown log level or a storage type
// without its required settings is an error.
package config
