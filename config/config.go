// Package config loads runtime configuration for the storage and
// provider-router binaries from the environment. There is no
// configuration framework here by design: both binaries in this module
// follow the rest of the platform's services in reading os.Getenv
// directly with small typed helpers, rather than layering in a config
// library the services never needed.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds HTTP server settings shared by both binaries.
type ServerConfig struct {
	Port            int
	Environment     string
	ReadTimeout     int // seconds
	WriteTimeout    int // seconds
	IdleTimeout     int // seconds
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host          string
	Port          int
	Name          string
	User          string
	Password      string
	SSLMode       string
	MaxConns      int
	MinConns      int
	ConnMaxLife   time.Duration
}

// DSN builds a libpq-style connection string from the discrete fields.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings, used for the quota
// reservation cache and for mirroring provider health across router
// replicas.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// S3Config holds object storage backend settings. Works against any
// S3-compatible backend (AWS S3, MinIO) via a custom endpoint resolver.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKey       string
	SecretKey       string
	Bucket          string
	UsePathStyle    bool
	PresignDuration time.Duration
}

// StorageConfig holds object-size and dedup policy settings.
type StorageConfig struct {
	MaxUploadSize        int64
	ChunkSize            int64
	DeduplicationEnabled bool
	DedupQuarantine      time.Duration
	DedupMinSize         int64
	DedupMaxSize         int64
}

// QuotaConfig holds default quota allocations and thresholds.
type QuotaConfig struct {
	DefaultOrgQuota      int64
	DefaultDomainQuota   int64
	DefaultUserQuota     int64
	DefaultMailboxQuota  int64
	SoftLimitPct         int
	HardLimitPct         int
	ReconcileInterval    time.Duration
}

// RetentionConfig holds retention sweep settings.
type RetentionConfig struct {
	SweepInterval time.Duration
	BatchSize     int
}

// ExportConfig holds export job settings: temp directory, size limit,
// download link lifetimes and retry count.
type ExportConfig struct {
	TempDir         string
	MaxSize         int64
	URLExpiration   time.Duration
	DefaultTTL      time.Duration
	MaxRetries      int
}

// WorkerConfig holds background worker settings for both binaries.
type WorkerConfig struct {
	Enabled                  bool
	ExportWorkers            int
	DeletionWorkers          int
	RetentionIntervalMinutes int
	PollInterval             time.Duration
}

// ProviderConfig holds LLM provider router settings (cmd/router).
type ProviderConfig struct {
	FallbackChain      string
	DefaultAnalysis    string
	DefaultEmbedding   string
	DefaultSmartReply  string
	HealthInterval     time.Duration
	TimeoutChat        time.Duration
	TimeoutEmbed       time.Duration
	TimeoutAvailability time.Duration
	MaxInFlightLocal   int

	OpenAIAPIKey       string
	OpenAIOrg          string
	OpenAIBaseURL      string
	OpenAIModel        string
	OpenAIEmbedModel   string

	AnthropicAPIKey string
	AnthropicBaseURL string
	AnthropicModel   string

	OllamaBaseURL string
	OllamaModel   string
}

// Config aggregates every settings group for both binaries.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	S3        S3Config
	Storage   StorageConfig
	Quota     QuotaConfig
	Retention RetentionConfig
	Export    ExportConfig
	Workers   WorkerConfig
	Provider  ProviderConfig
}

// Load builds a Config from the environment. It returns an error
// instead of exiting directly so callers can log with full context and
// fail startup loudly, per the platform's error-handling policy.
func Load() (*Config, error) {
	dbHost, err := requireEnv("DB_HOST")
	if err != nil {
		return nil, err
	}
	dbName, err := requireEnv("DB_NAME")
	if err != nil {
		return nil, err
	}
	dbUser, err := requireEnv("DB_USER")
	if err != nil {
		return nil, err
	}
	dbPassword, err := requireEnv("DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getInt("PORT", 8085),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ReadTimeout:     getInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:    getInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:     getInt("SERVER_IDLE_TIMEOUT", 120),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:        dbHost,
			Port:        getInt("DB_PORT", 5432),
			Name:        dbName,
			User:        dbUser,
			Password:    dbPassword,
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    getInt("MAX_DB_CONNS", 25),
			MinConns:    getInt("MIN_DB_CONNS", 5),
			ConnMaxLife: getDuration("DB_CONN_MAX_LIFE", time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		S3: S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", "http://localhost:9000"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			AccessKey:       getEnv("S3_ACCESS_KEY", ""),
			SecretKey:       getEnv("S3_SECRET_KEY", ""),
			Bucket:          getEnv("S3_BUCKET", "email-storage"),
			UsePathStyle:    getBool("S3_USE_PATH_STYLE", true),
			PresignDuration: clampDuration(getDuration("S3_PRESIGN_DURATION", 15*time.Minute), time.Minute, 7*24*time.Hour),
		},
		Storage: StorageConfig{
			MaxUploadSize:        getInt64("MAX_UPLOAD_SIZE", 50*1024*1024),
			ChunkSize:            getInt64("CHUNK_SIZE", 5*1024*1024),
			DeduplicationEnabled: getBool("DEDUPLICATION_ENABLED", true),
			DedupQuarantine:      getDuration("DEDUP_QUARANTINE", 24*time.Hour),
			DedupMinSize:         getInt64("DEDUP_MIN_SIZE", 1024),
			DedupMaxSize:         getInt64("DEDUP_MAX_SIZE", 100*1024*1024),
		},
		Quota: QuotaConfig{
			DefaultOrgQuota:     getInt64("DEFAULT_ORG_QUOTA", 1024*1024*1024*1024),
			DefaultDomainQuota:  getInt64("DEFAULT_DOMAIN_QUOTA", 100*1024*1024*1024),
			DefaultUserQuota:    getInt64("DEFAULT_USER_QUOTA", 10*1024*1024*1024),
			DefaultMailboxQuota: getInt64("DEFAULT_MAILBOX_QUOTA", 5*1024*1024*1024),
			SoftLimitPct:        getInt("QUOTA_SOFT_PCT", 85),
			HardLimitPct:        getInt("QUOTA_HARD_PCT", 100),
			ReconcileInterval:   getDuration("QUOTA_RECONCILE_INTERVAL", 6*time.Hour),
		},
		Retention: RetentionConfig{
			SweepInterval: getDuration("RETENTION_SWEEP_INTERVAL", time.Hour),
			BatchSize:     getInt("RETENTION_BATCH_SIZE", 1000),
		},
		Export: ExportConfig{
			TempDir:       getEnv("EXPORT_TEMP_DIR", "/tmp/exports"),
			MaxSize:       getInt64("EXPORT_MAX_SIZE", 10*1024*1024*1024),
			URLExpiration: getDuration("EXPORT_URL_EXPIRATION", 24*time.Hour),
			DefaultTTL:    clampDuration(getDuration("EXPORT_DOWNLOAD_TTL", 15*time.Minute), time.Minute, 7*24*time.Hour),
			MaxRetries:    getInt("EXPORT_MAX_RETRIES", 3),
		},
		Workers: WorkerConfig{
			Enabled:                  getBool("WORKERS_ENABLED", true),
			ExportWorkers:            getInt("EXPORT_WORKERS", 4),
			DeletionWorkers:          getInt("DELETION_WORKERS", 4),
			RetentionIntervalMinutes: getInt("RETENTION_INTERVAL_MINUTES", 60),
			PollInterval:             getDuration("WORKER_POLL_INTERVAL", 30*time.Second),
		},
		Provider: ProviderConfig{
			FallbackChain:       getEnv("PROVIDER_FALLBACK_CHAIN", "openai,anthropic,ollama"),
			DefaultAnalysis:     getEnv("PROVIDER_DEFAULT_ANALYSIS", "openai"),
			DefaultEmbedding:    getEnv("PROVIDER_DEFAULT_EMBEDDING", "openai"),
			DefaultSmartReply:   getEnv("PROVIDER_DEFAULT_SMART_REPLY", "openai"),
			HealthInterval:      getDuration("PROVIDER_HEALTH_INTERVAL", 30*time.Second),
			TimeoutChat:         getDuration("PROVIDER_TIMEOUT_CHAT", 30*time.Second),
			TimeoutEmbed:        getDuration("PROVIDER_TIMEOUT_EMBED", 30*time.Second),
			TimeoutAvailability: getDuration("PROVIDER_TIMEOUT_AVAILABILITY", 5*time.Second),
			MaxInFlightLocal:    getInt("PROVIDER_LOCAL_MAX_INFLIGHT", 1),

			OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIOrg:        getEnv("OPENAI_ORGANIZATION", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIEmbedModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),

			AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
			AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),

			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func requireEnv(key string) (string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return value, nil
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
