package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server ServerConfig
	Vendor VendorConfig
	R2     R2Config
	Redis  RedisConfig
	Tasks  TasksConfig
	Queue  QueueConfig
	NATS   NATSConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	BodyLimitMB int
}

// VendorConfig configures the generative-media vendor
type VendorConfig struct {
	APIKey      string
	BaseURL     string
	AuthScheme  string
	Timeout     int // seconds, per HTTP call
	TaskTimeout int // seconds, whole background job
	MaxMediaMB  int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	Endpoint        string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TasksConfig configures task storage and expiry
type TasksConfig struct {
	Store         string // memory | redis
	Retention     int    // hours, for effects without their own window
	SweepInterval int    // minutes
}

// QueueConfig selects how background work is dispatched
type QueueConfig struct {
	Backend     string // local | asynq
	Concurrency int
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// RetentionDuration returns the default retention window
func (c TasksConfig) RetentionDuration() time.Duration {
	return time.Duration(c.Retention) * time.Hour
}

// SweepDuration returns the expiry sweep interval
func (c TasksConfig) SweepDuration() time.Duration {
	return time.Duration(c.SweepInterval) * time.Minute
}

// TimeoutDuration returns the per-request vendor timeout
func (c VendorConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// TaskTimeoutDuration returns the bound on one background job
func (c VendorConfig) TaskTimeoutDuration() time.Duration {
	return time.Duration(c.TaskTimeout) * time.Second
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("VENDOR_API_KEY")
	readSecret("REDIS_PASSWORD")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.body_limit_mb", "BODY_LIMIT_MB")
	_ = v.BindEnv("vendor.api_key", "VENDOR_API_KEY")
	_ = v.BindEnv("vendor.base_url", "VENDOR_BASE_URL")
	_ = v.BindEnv("vendor.auth_scheme", "VENDOR_AUTH_SCHEME")
	_ = v.BindEnv("vendor.timeout", "VENDOR_TIMEOUT")
	_ = v.BindEnv("vendor.task_timeout", "VENDOR_TASK_TIMEOUT")
	_ = v.BindEnv("vendor.max_media_mb", "VENDOR_MAX_MEDIA_MB")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("r2.endpoint", "R2_ENDPOINT")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("tasks.store", "TASK_STORE")
	_ = v.BindEnv("tasks.retention", "TASK_RETENTION")
	_ = v.BindEnv("tasks.sweep_interval", "TASK_SWEEP_INTERVAL")
	_ = v.BindEnv("queue.backend", "QUEUE_BACKEND")
	_ = v.BindEnv("queue.concurrency", "QUEUE_CONCURRENCY")
	_ = v.BindEnv("nats.url", "NATS_URL")
	_ = v.BindEnv("nats.subject_prefix", "NATS_SUBJECT_PREFIX")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.body_limit_mb", 10)

	// Vendor defaults
	v.SetDefault("vendor.base_url", "https://fal.run")
	v.SetDefault("vendor.auth_scheme", "Key")
	v.SetDefault("vendor.timeout", 300)
	v.SetDefault("vendor.task_timeout", 900)
	v.SetDefault("vendor.max_media_mb", 20)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Task defaults
	v.SetDefault("tasks.store", "memory")
	v.SetDefault("tasks.retention", 2)
	v.SetDefault("tasks.sweep_interval", 10)

	v.SetDefault("queue.backend", "local")
	v.SetDefault("queue.concurrency", 10)

	v.SetDefault("nats.subject_prefix", "fxgateway.tasks")

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			Env:         v.GetString("server.env"),
			LogLevel:    v.GetString("server.log_level"),
			BodyLimitMB: v.GetInt("server.body_limit_mb"),
		},
		Vendor: VendorConfig{
			APIKey:      v.GetString("vendor.api_key"),
			BaseURL:     strings.TrimRight(v.GetString("vendor.base_url"), "/"),
			AuthScheme:  v.GetString("vendor.auth_scheme"),
			Timeout:     v.GetInt("vendor.timeout"),
			TaskTimeout: v.GetInt("vendor.task_timeout"),
			MaxMediaMB:  v.GetInt("vendor.max_media_mb"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       strings.TrimRight(v.GetString("r2.public_url"), "/"),
			Endpoint:        v.GetString("r2.endpoint"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Tasks: TasksConfig{
			Store:         strings.ToLower(v.GetString("tasks.store")),
			Retention:     v.GetInt("tasks.retention"),
			SweepInterval: v.GetInt("tasks.sweep_interval"),
		},
		Queue: QueueConfig{
			Backend:     strings.ToLower(v.GetString("queue.backend")),
			Concurrency: v.GetInt("queue.concurrency"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("nats.url"),
			SubjectPrefix: v.GetString("nats.subject_prefix"),
		},
	}

	return cfg, nil
}
