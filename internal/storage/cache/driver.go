// Package cache holds the redis-backed storage: a DocumentStorage driver and a
// read-aside cache in front of another driver.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

// DefaultKey is the redis key holding the subscription document.
const DefaultKey = "expo:subscriptions"

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or ErrCacheMiss if not found.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// Driver implements dispatch.DocumentStorage with the document stored as JSON
// under a single redis key.
type Driver struct {
	client CacheClient
	key    string
	logger *slog.Logger
}

// NewDriver creates a Driver. An empty key uses DefaultKey.
func NewDriver(client CacheClient, key string, logger *slog.Logger) *Driver {
	if key == "" {
		key = DefaultKey
	}
	return &Driver{
		client: client,
		key:    key,
		logger: logger.With("component", "RedisDriver", "key", key),
	}
}

// Read returns the stored document; a missing key is an empty document.
func (d *Driver) Read(ctx context.Context) (dispatch.Document, error) {
	raw, err := d.client.Get(ctx, d.key)
	if errors.Is(err, ErrCacheMiss) {
		return dispatch.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dispatch.ErrUnableToRead, err)
	}
	return dispatch.DecodeDocument(raw)
}

func (d *Driver) Write(ctx context.Context, doc dispatch.Document) error {
	raw, err := dispatch.EncodeDocument(doc)
	if err != nil {
		return err
	}
	if err := d.client.Set(ctx, d.key, raw, 0); err != nil {
		d.logger.Error("Failed to write subscription document", "err", err)
		return fmt.Errorf("%w: %v", dispatch.ErrUnableToWrite, err)
	}
	return nil
}

func (d *Driver) Empty(ctx context.Context) error {
	return d.Write(ctx, dispatch.Document{})
}
