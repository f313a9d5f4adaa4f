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

	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

// ExpoConfig holds the Expo push API settings.
type ExpoConfig struct {
	AccessToken string
	BaseURL     string
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	CorsConfig middleware.CorsConfig
	Expo       ExpoConfig
	Storage    dispatch.DriverConfig

	TopicID              string
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
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// Expo Overrides
	if val := os.Getenv("EXPO_ACCESS_TOKEN"); val != "" {
		logger.Debug("Overriding config value", "key", "EXPO_ACCESS_TOKEN", "source", "env")
		cfg.Expo.AccessToken = val
	}
	if val := os.Getenv("EXPO_BASE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "EXPO_BASE_URL", "source", "env")
		cfg.Expo.BaseURL = val
	}

	// Storage Overrides
	if val := os.Getenv("STORAGE_DRIVER"); val != "" {
		logger.Debug("Overriding config value", "key", "STORAGE_DRIVER", "source", "env")
		cfg.Storage.Driver = val
	}
	if val := os.Getenv("STORAGE_PATH"); val != "" {
		cfg.Storage.File.Path = val
	}
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Storage.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Storage.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Storage.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_KEY"); val != "" {
		cfg.Storage.Redis.Key = val
	}
	if val := os.Getenv("FIRESTORE_COLLECTION"); val != "" {
		cfg.Storage.Firestore.Collection = val
	}
	if val := os.Getenv("FIRESTORE_DOCUMENT"); val != "" {
		cfg.Storage.Firestore.Document = val
	}
	if val := os.Getenv("CACHE_ADDR"); val != "" {
		cfg.Storage.Cache.Addr = val
	}
	if val := os.Getenv("CACHE_TTL"); val != "" {
		ttl, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid CACHE_TTL %q: %w", val, err)
		}
		cfg.Storage.Cache.TTL = ttl
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = dispatch.DriverFirestore
	}
	if cfg.Storage.Firestore.ProjectID == "" {
		cfg.Storage.Firestore.ProjectID = cfg.ProjectID
	}
	if cfg.Storage.Driver == dispatch.DriverFile && cfg.Storage.File.Path == "" {
		return nil, fmt.Errorf("storage path is required for the file driver (set via YAML or STORAGE_PATH env var)")
	}
	if cfg.Storage.Driver == dispatch.DriverRedis && cfg.Storage.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required for the redis driver (set via YAML or REDIS_ADDR env var)")
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully", "storage_driver", cfg.Storage.Driver)
	return cfg, nil
}
