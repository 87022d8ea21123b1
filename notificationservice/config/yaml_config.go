package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
	TTL      string `yaml:"ttl"`
}

type YamlDispatchConfig struct {
	BatchSize        int     `yaml:"batch_size"`
	MaxConcurrency   int     `yaml:"max_concurrency"`
	BatchesPerSecond float64 `yaml:"batches_per_second"`
}

type YamlRetentionConfig struct {
	HorizonDays     int    `yaml:"horizon_days"`
	DeleteBatchSize int    `yaml:"delete_batch_size"`
	Schedule        string `yaml:"schedule"`
	Timezone        string `yaml:"timezone"`
	RunTimeout      string `yaml:"run_timeout"`
}

type YamlAPNSConfig struct {
	KeyID    string `yaml:"key_id"`
	TeamID   string `yaml:"team_id"`
	BundleID string `yaml:"bundle_id"`
	Sandbox  bool   `yaml:"sandbox"`
}

type YamlGatewayConfig struct {
	Kind string         `yaml:"kind"`
	APNS YamlAPNSConfig `yaml:"apns"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string              `yaml:"project_id"`
	ListenAddr             string              `yaml:"listen_addr"`
	TopicID                string              `yaml:"topic_id"`
	SubscriptionID         string              `yaml:"subscription_id"`
	SubscriptionDLQTopicID string              `yaml:"subscription_dlq_topic_id"`
	NumPipelineWorkers     int                 `yaml:"num_pipeline_workers"`
	IdentityServiceURL     string              `yaml:"identity_service_url"`
	CorsConfig             YamlCorsConfig      `yaml:"cors"`
	RedisConfig            YamlRedisConfig     `yaml:"redis"`
	DispatchConfig         YamlDispatchConfig  `yaml:"dispatch"`
	RetentionConfig        YamlRetentionConfig `yaml:"retention"`
	GatewayConfig          YamlGatewayConfig   `yaml:"gateway"`
	WelcomeDelay           string              `yaml:"welcome_delay"`
	AdminURNs              []string            `yaml:"admin_urns"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
// The APNs private key is never read from YAML; it comes from APNS_P8_KEY.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	redisTTL, err := parseDuration("redis.ttl", baseCfg.RedisConfig.TTL)
	if err != nil {
		return nil, err
	}
	runTimeout, err := parseDuration("retention.run_timeout", baseCfg.RetentionConfig.RunTimeout)
	if err != nil {
		return nil, err
	}
	welcomeDelay, err := parseDuration("welcome_delay", baseCfg.WelcomeDelay)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectID:              baseCfg.ProjectID,
		ListenAddr:             baseCfg.ListenAddr,
		TopicID:                baseCfg.TopicID,
		SubscriptionID:         baseCfg.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
		IdentityServiceURL:     baseCfg.IdentityServiceURL,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TTL:      redisTTL,
		},
		Dispatch: DispatchConfig{
			BatchSize:        baseCfg.DispatchConfig.BatchSize,
			MaxConcurrency:   baseCfg.DispatchConfig.MaxConcurrency,
			BatchesPerSecond: baseCfg.DispatchConfig.BatchesPerSecond,
		},
		Retention: RetentionConfig{
			HorizonDays:     baseCfg.RetentionConfig.HorizonDays,
			DeleteBatchSize: baseCfg.RetentionConfig.DeleteBatchSize,
			Schedule:        baseCfg.RetentionConfig.Schedule,
			Timezone:        baseCfg.RetentionConfig.Timezone,
			RunTimeout:      runTimeout,
		},
		Gateway: GatewayConfig{
			Kind: baseCfg.GatewayConfig.Kind,
			APNS: APNSConfig{
				KeyID:    baseCfg.GatewayConfig.APNS.KeyID,
				TeamID:   baseCfg.GatewayConfig.APNS.TeamID,
				BundleID: baseCfg.GatewayConfig.APNS.BundleID,
				Sandbox:  baseCfg.GatewayConfig.APNS.Sandbox,
			},
		},
		WelcomeDelay: welcomeDelay,
		AdminURNs:    baseCfg.AdminURNs,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
		"gateway", cfg.Gateway.Kind,
	)
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
