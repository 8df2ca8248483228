package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/apievolve/pkg/observability"
	"github.com/platinummonkey/apievolve/pkg/service"
	"github.com/platinummonkey/apievolve/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Resolution service configuration
	Service ServiceConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// RateLimit is the number of API requests per minute and client, 0
	// disables rate limiting
	RateLimit      int
	RateLimitBurst int

	// Health/metrics server (separate port for k8s liveness and readiness)
	HealthPort string
}

// ServiceConfig holds history cache and warm-up settings
type ServiceConfig struct {
	Cache service.Config

	// WarmSchedule is a cron expression, empty disables warm-up
	WarmSchedule    string
	WarmConcurrency int

	// WatchFilesystem invalidates cached histories when another process
	// writes to a filesystem store
	WatchFilesystem bool
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
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	obs, err := loadObservabilityConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Service:       loadServiceConfig(),
		Observability: obs,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("APIEVOLVE_HOST", "0.0.0.0"),
		Port:            getEnv("APIEVOLVE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("APIEVOLVE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("APIEVOLVE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("APIEVOLVE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("APIEVOLVE_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("APIEVOLVE_MAX_BODY_BYTES", 4<<20),
		RateLimit:       getEnvInt("APIEVOLVE_RATE_LIMIT", 0),
		RateLimitBurst:  getEnvInt("APIEVOLVE_RATE_LIMIT_BURST", 10),
		HealthPort:      getEnv("APIEVOLVE_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("APIEVOLVE_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}

	if fsRoot := getEnv("APIEVOLVE_FILESYSTEM_ROOT", ""); fsRoot != "" {
		cfg.FilesystemRoot = fsRoot
	}

	// SQL config
	if dbURL := getEnv("APIEVOLVE_DATABASE_URL", ""); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if replicaURLs := getEnv("APIEVOLVE_DATABASE_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.ReplicaURLs = splitList(replicaURLs)
	}
	if maxConns := getEnvInt("APIEVOLVE_DATABASE_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("APIEVOLVE_DATABASE_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("APIEVOLVE_DATABASE_TIMEOUT", 0); timeout > 0 {
		cfg.ConnectTimeout = timeout
	}
	if lifetime := getEnvDuration("APIEVOLVE_DATABASE_CONN_MAX_LIFETIME", 0); lifetime > 0 {
		cfg.ConnMaxLifetime = lifetime
	}
	if idle := getEnvDuration("APIEVOLVE_DATABASE_CONN_MAX_IDLE_TIME", 0); idle > 0 {
		cfg.ConnMaxIdleTime = idle
	}

	// S3 config
	if s3Endpoint := getEnv("APIEVOLVE_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("APIEVOLVE_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("APIEVOLVE_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("APIEVOLVE_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("APIEVOLVE_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	cfg.S3UsePathStyle = getEnvBool("APIEVOLVE_S3_USE_PATH_STYLE", cfg.S3UsePathStyle)

	// Redis config
	if redisURL := getEnv("APIEVOLVE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("APIEVOLVE_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("APIEVOLVE_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("APIEVOLVE_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("APIEVOLVE_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	if ttl := getEnvDuration("APIEVOLVE_REDIS_CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL = ttl
	}

	return cfg
}

func loadServiceConfig() ServiceConfig {
	cache := service.DefaultConfig()
	if size := getEnvInt("APIEVOLVE_HISTORY_CACHE_SIZE", 0); size > 0 {
		cache.CacheSize = size
	}
	if ttl := getEnvDuration("APIEVOLVE_HISTORY_CACHE_TTL", 0); ttl > 0 {
		cache.CacheTTL = ttl
	}

	return ServiceConfig{
		Cache:           cache,
		WarmSchedule:    getEnv("APIEVOLVE_WARM_SCHEDULE", ""),
		WarmConcurrency: getEnvInt("APIEVOLVE_WARM_CONCURRENCY", 4),
		WatchFilesystem: getEnvBool("APIEVOLVE_WATCH_FILESYSTEM", false),
	}
}

func loadObservabilityConfig() (ObservabilityConfig, error) {
	level, err := observability.ParseLogLevel(getEnv("APIEVOLVE_LOG_LEVEL", "info"))
	if err != nil {
		return ObservabilityConfig{}, fmt.Errorf("APIEVOLVE_LOG_LEVEL: %w", err)
	}

	return ObservabilityConfig{
		LogLevel:           level,
		MetricsEnabled:     getEnvBool("APIEVOLVE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("APIEVOLVE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("APIEVOLVE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("APIEVOLVE_OTEL_SERVICE_NAME", observability.DefaultServiceName),
		OTelServiceVersion: getEnv("APIEVOLVE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("APIEVOLVE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("APIEVOLVE_OTEL_SAMPLE_RATIO", 1),
	}, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body size must be positive")
	}
	if c.Server.RateLimit < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit and burst must not be negative")
	}

	switch c.Storage.Type {
	case "filesystem":
		if c.Storage.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem storage")
		}
		if c.Storage.S3Bucket != "" || c.Storage.RedisURL != "" {
			return fmt.Errorf("S3 and Redis are only supported with sql storage")
		}
	case "postgres", "sqlite":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for %s storage", c.Storage.Type)
		}
		if c.Storage.Type == "sqlite" && len(c.Storage.ReplicaURLs) > 0 {
			return fmt.Errorf("read replicas are not supported with sqlite storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be filesystem, postgres, or sqlite)", c.Storage.Type)
	}

	if c.Service.WatchFilesystem && c.Storage.Type != "filesystem" {
		return fmt.Errorf("filesystem watching requires filesystem storage")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
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

// splitList splits a comma separated list and drops empty entries
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
