package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-expo-push/pkg/expo"
)

// NewProcessor creates the logic that resolves recipients and pushes a batch.
// Each message gets its own fork of client, so workers never share a queue.
func NewProcessor(client *expo.Client, logger *slog.Logger) messagepipeline.StreamProcessor[PushBatch] {
	logger = logger.With("component", "PushProcessor")

	return func(ctx context.Context, original messagepipeline.Message, batch *PushBatch) error {
		procLogger := logger.With(
			"channel", batch.Channel,
			"pubsub_msg_id", original.ID,
		)
		c := client.Fork()

		fromChannel, err := resolveRecipients(ctx, c, batch)
		if err != nil {
			if isPermanent(err) {
				procLogger.Warn("Dropping push request with unusable recipients", "err", err)
				return nil
			}
			procLogger.Error("Failed to resolve recipients", "err", err)
			return err
		}

		// Self-Healing: tokens Expo no longer knows are dropped from the channel
		// they were resolved from.
		if fromChannel {
			err := c.OnDevicesNotRegistered(func(ctx context.Context, tokens []string) {
				procLogger.Info("Cleaning up unregistered tokens", "count", len(tokens))
				if err := c.Unsubscribe(ctx, batch.Channel, tokens); err != nil {
					procLogger.Warn("Failed to unsubscribe tokens", "err", err)
				}
			})
			if err != nil {
				return err
			}
		}

		resp, err := c.Send(batch.Messages...).Push(ctx)
		if err != nil {
			if isPermanent(err) {
				procLogger.Warn("Dropping push request rejected before delivery", "err", err)
				return nil
			}
			procLogger.Error("Expo push failed", "err", err)
			return err // Retryable
		}

		procLogger.Info("Push request dispatched", "status", resp.StatusCode)
		return nil
	}
}

// resolveRecipients sets the fork's default recipients and reports whether they
// came from the channel.
func resolveRecipients(ctx context.Context, c *expo.Client, batch *PushBatch) (bool, error) {
	switch {
	case batch.To != nil:
		return false, c.To(batch.To)
	case batch.Channel != "":
		return true, c.ToChannel(ctx, batch.Channel)
	}
	return false, nil
}

// isPermanent reports failures that redelivery cannot fix. A ticket count mismatch
// means Expo already accepted the batch, so resending would duplicate it.
func isPermanent(err error) bool {
	var apiErr *expo.RemoteAPIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError &&
			apiErr.StatusCode != http.StatusTooManyRequests
	}
	var dispatchErr *expo.DispatchError
	var countErr *expo.UnexpectedTicketCountError
	return errors.As(err, &dispatchErr) ||
		errors.As(err, &countErr) ||
		errors.Is(err, expo.ErrNoRecipient) ||
		errors.Is(err, expo.ErrNoValidTokens) ||
		errors.Is(err, expo.ErrInvalidTokenInput) ||
		errors.Is(err, expo.ErrInvalidChannel)
}
