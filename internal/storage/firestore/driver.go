// Package firestore persists the subscription document in Google Cloud Firestore.
package firestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

const (
	DefaultCollection = "expo"
	DefaultDocument   = "subscriptions"
)

// subscriptionRecord is the internal DB representation.
type subscriptionRecord struct {
	Channels  map[string][]string `firestore:"channels"`
	UpdatedAt time.Time           `firestore:"updated_at"`
}

// Driver implements dispatch.DocumentStorage with every channel kept in one
// Firestore document, so each write replaces the whole mapping at once.
type Driver struct {
	client *firestore.Client
	ref    *firestore.DocumentRef
	logger *slog.Logger
}

// NewDriver creates a Driver for collection/document. Empty names use the defaults.
func NewDriver(client *firestore.Client, collection, document string, logger *slog.Logger) *Driver {
	if collection == "" {
		collection = DefaultCollection
	}
	if document == "" {
		document = DefaultDocument
	}
	return &Driver{
		client: client,
		ref:    client.Collection(collection).Doc(document),
		logger: logger.With("component", "FirestoreDriver", "doc", collection+"/"+document),
	}
}

// Read returns the stored document; a missing Firestore document is an empty one.
func (d *Driver) Read(ctx context.Context) (dispatch.Document, error) {
	snap, err := d.ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return dispatch.Document{}, nil
		}
		return nil, fmt.Errorf("%w: %v", dispatch.ErrUnableToRead, err)
	}

	var record subscriptionRecord
	if err := snap.DataTo(&record); err != nil {
		return nil, fmt.Errorf("%w: %v", dispatch.ErrUnableToRead, err)
	}
	doc := make(dispatch.Document, len(record.Channels))
	for channel, tokens := range record.Channels {
		doc[channel] = tokens
	}
	return doc, nil
}

func (d *Driver) Write(ctx context.Context, doc dispatch.Document) error {
	channels := make(map[string][]string, len(doc))
	for channel, tokens := range doc {
		if !validUTF8(channel, tokens) {
			return fmt.Errorf("%w: channel %q", dispatch.ErrUnencodableDocument, channel)
		}
		channels[channel] = tokens
	}

	record := subscriptionRecord{Channels: channels, UpdatedAt: time.Now()}
	if _, err := d.ref.Set(ctx, record); err != nil {
		d.logger.Error("Failed to write subscription document", "err", err)
		return fmt.Errorf("%w: %v", dispatch.ErrUnableToWrite, err)
	}
	return nil
}

func (d *Driver) Empty(ctx context.Context) error {
	return d.Write(ctx, dispatch.Document{})
}

// Close releases the Firestore client.
func (d *Driver) Close() error {
	return d.client.Close()
}

func validUTF8(channel string, tokens []string) bool {
	if !utf8.ValidString(channel) {
		return false
	}
	for _, t := range tokens {
		if !utf8.ValidString(t) {
			return false
		}
	}
	return true
}
