package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

const (
	GatewayFCM  = "fcm"
	GatewayAPNS = "apns"

	maxBatchSize = 500
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// DispatchConfig bounds outbound gateway traffic.
type DispatchConfig struct {
	BatchSize        int
	MaxConcurrency   int
	BatchesPerSecond float64
}

type RetentionConfig struct {
	HorizonDays     int
	DeleteBatchSize int
	// Schedule is a five-field cron expression evaluated in Timezone.
	Schedule   string
	Timezone   string
	RunTimeout time.Duration
}

type APNSConfig struct {
	KeyID        string
	TeamID       string
	BundleID     string
	P8KeyContent string
	Sandbox      bool
}

type GatewayConfig struct {
	// Kind is "fcm" or "apns".
	Kind string
	APNS APNSConfig
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	IdentityServiceURL     string

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	Dispatch   DispatchConfig
	Retention  RetentionConfig
	Gateway    GatewayConfig

	WelcomeDelay time.Duration
	// AdminURNs may send promotional campaigns.
	AdminURNs []string

	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}
	if val := os.Getenv("IDENTITY_SERVICE_URL"); val != "" {
		cfg.IdentityServiceURL = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Dispatch Overrides
	if val := os.Getenv("DISPATCH_BATCH_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			logger.Debug("Overriding config value", "key", "DISPATCH_BATCH_SIZE", "source", "env")
			cfg.Dispatch.BatchSize = n
		}
	}
	if val := os.Getenv("DISPATCH_MAX_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			logger.Debug("Overriding config value", "key", "DISPATCH_MAX_CONCURRENCY", "source", "env")
			cfg.Dispatch.MaxConcurrency = n
		}
	}
	if val := os.Getenv("DISPATCH_BATCHES_PER_SECOND"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Dispatch.BatchesPerSecond = f
		}
	}

	// Retention Overrides
	if val := os.Getenv("RETENTION_HORIZON_DAYS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			logger.Debug("Overriding config value", "key", "RETENTION_HORIZON_DAYS", "source", "env")
			cfg.Retention.HorizonDays = n
		}
	}
	if val := os.Getenv("RETENTION_SCHEDULE"); val != "" {
		cfg.Retention.Schedule = val
	}
	if val := os.Getenv("RETENTION_TIMEZONE"); val != "" {
		cfg.Retention.Timezone = val
	}
	if val := os.Getenv("WELCOME_DELAY"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid WELCOME_DELAY %q: %w", val, err)
		}
		cfg.WelcomeDelay = d
	}

	// Gateway Overrides
	if val := os.Getenv("GATEWAY_KIND"); val != "" {
		logger.Debug("Overriding config value", "key", "GATEWAY_KIND", "source", "env")
		cfg.Gateway.Kind = val
	}
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		cfg.Gateway.APNS.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		cfg.Gateway.APNS.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		cfg.Gateway.APNS.BundleID = val
	}
	if val := os.Getenv("APNS_P8_KEY"); val != "" {
		cfg.Gateway.APNS.P8KeyContent = val
	}

	if val := os.Getenv("ADMIN_URNS"); val != "" {
		logger.Debug("Overriding config value", "key", "ADMIN_URNS", "source", "env")
		cfg.AdminURNs = splitList(val)
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		cfg.CorsConfig.AllowedOrigins = splitList(corsOrigins)
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.Dispatch.BatchSize > maxBatchSize {
		return nil, fmt.Errorf("dispatch batch_size %d exceeds the gateway limit of %d", cfg.Dispatch.BatchSize, maxBatchSize)
	}
	switch cfg.Gateway.Kind {
	case "":
		cfg.Gateway.Kind = GatewayFCM
	case GatewayFCM:
	case GatewayAPNS:
		a := cfg.Gateway.APNS
		if a.KeyID == "" || a.TeamID == "" || a.BundleID == "" || a.P8KeyContent == "" {
			return nil, fmt.Errorf("apns gateway requires key_id, team_id, bundle_id and a p8 key")
		}
	default:
		return nil, fmt.Errorf("unknown gateway kind %q (want %q or %q)", cfg.Gateway.Kind, GatewayFCM, GatewayAPNS)
	}
	for _, admin := range cfg.AdminURNs {
		if _, err := urn.Parse(admin); err != nil {
			return nil, fmt.Errorf("invalid admin urn %q: %w", admin, err)
		}
	}
	if len(cfg.AdminURNs) == 0 {
		logger.Warn("No admin URNs configured; campaigns are disabled")
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.IdentityServiceURL == "" {
		cfg.IdentityServiceURL = "http://localhost:3000"
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}
	if cfg.Dispatch.BatchSize <= 0 {
		cfg.Dispatch.BatchSize = maxBatchSize
	}
	if cfg.Dispatch.MaxConcurrency <= 0 {
		cfg.Dispatch.MaxConcurrency = 10
	}
	if cfg.Retention.HorizonDays <= 0 {
		cfg.Retention.HorizonDays = 30
	}
	if cfg.Retention.DeleteBatchSize <= 0 {
		cfg.Retention.DeleteBatchSize = maxBatchSize
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = "0 2 * * *"
	}
	if cfg.Retention.Timezone == "" {
		cfg.Retention.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(cfg.Retention.Timezone); err != nil {
		return nil, fmt.Errorf("invalid retention timezone %q: %w", cfg.Retention.Timezone, err)
	}
	if cfg.Retention.RunTimeout <= 0 {
		cfg.Retention.RunTimeout = 9 * time.Minute
	}
	if cfg.WelcomeDelay <= 0 {
		cfg.WelcomeDelay = 5 * time.Second
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
