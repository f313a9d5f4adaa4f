package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

// Manager implements dispatch.SubscriptionManager: it normalizes channel names
// and token input, then hands the set algebra to a SubscriptionStore.
type Manager struct {
	store  dispatch.SubscriptionStore
	logger *slog.Logger
}

// NewManager creates a Manager over store.
func NewManager(store dispatch.SubscriptionStore, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With("component", "SubscriptionManager"),
	}
}

// Subscribe adds tokens to channel. Already-subscribed tokens are not an error.
func (m *Manager) Subscribe(ctx context.Context, channel string, tokens any) error {
	name, list, err := normalize(channel, tokens)
	if err != nil {
		return err
	}
	if err := m.store.Store(ctx, name, list); err != nil {
		m.logger.Error("Failed to store subscription", "channel", name, "err", err)
		return fmt.Errorf("subscribe to %q: %w", name, err)
	}
	m.logger.Debug("Subscribed tokens", "channel", name, "count", len(list))
	return nil
}

// Unsubscribe removes tokens from channel.
func (m *Manager) Unsubscribe(ctx context.Context, channel string, tokens any) error {
	name, list, err := normalize(channel, tokens)
	if err != nil {
		return err
	}
	if err := m.store.Forget(ctx, name, list); err != nil {
		m.logger.Error("Failed to remove subscription", "channel", name, "err", err)
		return fmt.Errorf("unsubscribe from %q: %w", name, err)
	}
	m.logger.Debug("Unsubscribed tokens", "channel", name, "count", len(list))
	return nil
}

// Subscriptions returns the channel's tokens, nil when it has none.
func (m *Manager) Subscriptions(ctx context.Context, channel string) ([]string, error) {
	name, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	return m.store.Retrieve(ctx, name)
}

// NormalizeChannel trims and lowercases a channel name.
func NormalizeChannel(channel string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(channel))
	if name == "" {
		return "", dispatch.ErrInvalidChannel
	}
	return name, nil
}

// NormalizeTokens accepts a string or a non-empty list of strings. Token format is
// not checked here.
func NormalizeTokens(tokens any) ([]string, error) {
	switch v := tokens.(type) {
	case string:
		return []string{v}, nil
	case []string:
		if len(v) == 0 {
			return nil, dispatch.ErrInvalidTokenInput
		}
		return append([]string(nil), v...), nil
	case []any:
		if len(v) == 0 {
			return nil, dispatch.ErrInvalidTokenInput
		}
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: list element of type %T", dispatch.ErrInvalidTokenInput, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: got %T", dispatch.ErrInvalidTokenInput, tokens)
	}
}

func normalize(channel string, tokens any) (string, []string, error) {
	name, err := NormalizeChannel(channel)
	if err != nil {
		return "", nil, err
	}
	list, err := NormalizeTokens(tokens)
	if err != nil {
		return "", nil, err
	}
	return name, list, nil
}
