// Package storage opens the DocumentStorage backend named in a DriverConfig.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/tinywideclouds/go-expo-push/internal/storage/cache"
	"github.com/tinywideclouds/go-expo-push/internal/storage/file"
	fs "github.com/tinywideclouds/go-expo-push/internal/storage/firestore"
	"github.com/tinywideclouds/go-expo-push/internal/storage/memory"
	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

// Open creates the configured driver. The returned close func releases any client
// the driver opened and may be nil.
func Open(ctx context.Context, cfg dispatch.DriverConfig, logger *slog.Logger) (dispatch.DocumentStorage, func() error, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	logger.Info("Opening subscription storage", "driver", driver)

	switch driver {
	case dispatch.DriverFile:
		d, err := file.NewDriver(ctx, cfg.File.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return d, nil, nil

	case dispatch.DriverRedis:
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return cache.NewDriver(client, cfg.Redis.Key, logger), client.Close, nil

	case dispatch.DriverFirestore:
		client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		d := fs.NewDriver(client, cfg.Firestore.Collection, cfg.Firestore.Document, logger)
		if cfg.Cache.Addr == "" {
			return d, d.Close, nil
		}

		redisClient, err := cache.NewRedisClient(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
		if err != nil {
			_ = d.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis cache: %w", err)
		}
		logger.Info("Subscription cache enabled", "addr", cfg.Cache.Addr, "ttl", cfg.Cache.TTL)
		closeAll := func() error {
			cerr := redisClient.Close()
			if err := d.Close(); err != nil {
				return err
			}
			return cerr
		}
		return cache.NewCachedStorage(d, redisClient, cfg.Cache.Key, cfg.Cache.TTL, logger), closeAll, nil

	case dispatch.DriverMemory:
		return memory.NewDriver(), nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", dispatch.ErrUnsupportedDriver, cfg.Driver)
	}
}
