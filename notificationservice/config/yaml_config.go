package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlExpoConfig struct {
	AccessToken string `yaml:"access_token"`
	BaseURL     string `yaml:"base_url"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type YamlFirestoreConfig struct {
	Collection string `yaml:"collection"`
	Document   string `yaml:"document"`
}

type YamlCacheConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	TTL      string `yaml:"ttl"`
}

type YamlStorageConfig struct {
	Driver    string              `yaml:"driver"`
	Path      string              `yaml:"path"`
	Redis     YamlRedisConfig     `yaml:"redis"`
	Firestore YamlFirestoreConfig `yaml:"firestore"`
	Cache     YamlCacheConfig     `yaml:"cache"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string            `yaml:"project_id"`
	ListenAddr             string            `yaml:"listen_addr"`
	TopicID                string            `yaml:"topic_id"`
	SubscriptionID         string            `yaml:"subscription_id"`
	SubscriptionDLQTopicID string            `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig    `yaml:"cors"`
	ExpoConfig             YamlExpoConfig    `yaml:"expo"`
	StorageConfig          YamlStorageConfig `yaml:"storage"`
	NumPipelineWorkers     int               `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	storage := baseCfg.StorageConfig
	var cacheTTL time.Duration
	if storage.Cache.TTL != "" {
		ttl, err := time.ParseDuration(storage.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid storage.cache.ttl %q: %w", storage.Cache.TTL, err)
		}
		cacheTTL = ttl
	}

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Expo: ExpoConfig{
			AccessToken: baseCfg.ExpoConfig.AccessToken,
			BaseURL:     baseCfg.ExpoConfig.BaseURL,
		},
		Storage: dispatch.DriverConfig{
			Driver: storage.Driver,
			File:   dispatch.FileDriverConfig{Path: storage.Path},
			Redis: dispatch.RedisDriverConfig{
				Addr:     storage.Redis.Addr,
				Password: storage.Redis.Password,
				DB:       storage.Redis.DB,
				Key:      storage.Redis.Key,
			},
			Firestore: dispatch.FirestoreDriverConfig{
				Collection: storage.Firestore.Collection,
				Document:   storage.Firestore.Document,
			},
			Cache: dispatch.CacheConfig{
				Addr:     storage.Cache.Addr,
				Password: storage.Cache.Password,
				DB:       storage.Cache.DB,
				Key:      storage.Cache.Key,
				TTL:      cacheTTL,
			},
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
		"storage_driver", cfg.Storage.Driver,
	)

	return cfg, nil
}
