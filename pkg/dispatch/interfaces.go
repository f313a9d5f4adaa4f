// Package dispatch contains the public contracts shared by the Expo client and its
// storage and transport collaborators.
package dispatch

import (
	"context"
	"net/http"
)

// RawResponse is what a Transport hands back: the status code and the decoded
// (already decompressed) body.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// Transport defines the contract for the component that talks HTTP to the Expo push API.
// Implementations own default headers, compression, retries and timeouts.
type Transport interface {
	// Post sends body to url. headers are merged over the transport defaults and may be nil.
	Post(ctx context.Context, url string, headers http.Header, body []byte) (*RawResponse, error)
}

// DocumentStorage defines the contract for the backend that persists the whole
// channel -> tokens document. Every call reads or replaces the complete document.
type DocumentStorage interface {
	// Read returns the current document. An empty resource yields an empty document.
	Read(ctx context.Context) (Document, error)

	// Write replaces the whole document.
	Write(ctx context.Context, doc Document) error

	// Empty is shorthand for Write with an empty document.
	Empty(ctx context.Context) error
}

// SubscriptionStore defines the set operations over channel subscriptions.
type SubscriptionStore interface {
	// Store merges tokens into the channel's set.
	Store(ctx context.Context, channel string, tokens []string) error

	// Retrieve returns the channel's tokens, or nil if the channel does not exist.
	Retrieve(ctx context.Context, channel string) ([]string, error)

	// Forget removes tokens from the channel's set, deleting the channel once empty.
	Forget(ctx context.Context, channel string, tokens []string) error
}

// SubscriptionManager normalizes channel names and token input before delegating to
// a SubscriptionStore.
type SubscriptionManager interface {
	// Subscribe adds tokens (a string or a list of strings) to channel.
	Subscribe(ctx context.Context, channel string, tokens any) error

	// Unsubscribe removes tokens from channel. Unknown channels are a no-op.
	Unsubscribe(ctx context.Context, channel string, tokens any) error

	// Subscriptions returns the channel's tokens, or nil if the channel does not exist.
	Subscriptions(ctx context.Context, channel string) ([]string, error)
}
