// Package pipeline contains the core message processing components for the service.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-expo-push/pkg/expo"
)

// ErrEmptyPushRequest is returned for a request carrying no messages.
var ErrEmptyPushRequest = errors.New("push request has no messages")

// PushRequest is the JSON payload published to the ingestion topic.
//
// Recipients come from To when present, otherwise from the Channel's subscribers.
// A message's own "to" always wins over both.
type PushRequest struct {
	Channel  string           `json:"channel,omitempty"`
	To       any              `json:"to,omitempty"`
	Messages []map[string]any `json:"messages"`
}

// PushBatch is a decoded PushRequest with its messages built and validated.
type PushBatch struct {
	Channel  string
	To       any
	Messages []*expo.Message
}

// PushRequestTransformer is a dataflow Transformer that unmarshals a raw payload
// into a PushBatch. Malformed payloads and invalid messages set skip=true so the
// StreamingService can handle the Nack/DLQ logic.
func PushRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*PushBatch, bool, error) {
	var req PushRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal push request from message %s: %w", msg.ID, err)
	}
	if len(req.Messages) == 0 {
		return nil, true, fmt.Errorf("message %s: %w", msg.ID, ErrEmptyPushRequest)
	}

	batch := &PushBatch{
		Channel:  req.Channel,
		To:       req.To,
		Messages: make([]*expo.Message, 0, len(req.Messages)),
	}
	for i, attrs := range req.Messages {
		m, err := expo.NewMessage(attrs)
		if err != nil {
			return nil, true, fmt.Errorf("invalid push message %d in message %s: %w", i, msg.ID, err)
		}
		batch.Messages = append(batch.Messages, m)
	}
	return batch, false, nil
}
