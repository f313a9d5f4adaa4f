package expo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-expo-push/internal/platform/expoapi"
	"github.com/tinywideclouds/go-expo-push/internal/storage"
	"github.com/tinywideclouds/go-expo-push/internal/storage/subscription"
	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

// DefaultBaseURL is the Expo push API root.
const DefaultBaseURL = "https://exp.host/--/api/v2"

// Client queues messages and recipients and pushes them to Expo in one batch.
//
// A Client is not safe for concurrent Send/To/Push calls. Use Fork to obtain an
// independent queue that shares the transport, subscriptions and hooks.
type Client struct {
	transport     dispatch.Transport
	subscriptions dispatch.SubscriptionManager
	hooks         *Hooks
	root          *slog.Logger
	logger        *slog.Logger
	baseURL       string
	accessToken   string
	closers       []func() error

	messages   []*Message
	recipients []string
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the default HTTP transport.
func WithTransport(t dispatch.Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithSubscriptions enables channel subscriptions and ToChannel.
func WithSubscriptions(m dispatch.SubscriptionManager) Option {
	return func(c *Client) { c.subscriptions = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.root = logger }
}

// WithBaseURL points the client at a different API root, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAccessToken configures the bearer token used by the default transport.
func WithAccessToken(token string) Option {
	return func(c *Client) { c.accessToken = token }
}

// New creates a client. Without WithTransport it talks to Expo over HTTP.
func New(opts ...Option) *Client {
	c := &Client{
		hooks:   newHooks(),
		root:    slog.Default(),
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.root.With("component", "ExpoClient")
	if c.transport == nil {
		cfg := expoapi.DefaultConfig()
		cfg.AccessToken = c.accessToken
		c.transport = expoapi.NewTransport(cfg, c.root)
	}
	return c
}

// NewFromConfig creates a client with subscriptions persisted by the storage driver
// named in cfg. Close releases the driver's connections.
func NewFromConfig(ctx context.Context, cfg dispatch.DriverConfig, opts ...Option) (*Client, error) {
	c := New(opts...)
	docs, closeFn, err := storage.Open(ctx, cfg, c.root)
	if err != nil {
		return nil, err
	}
	c.subscriptions = subscription.NewManager(subscription.NewStore(docs), c.root)
	if closeFn != nil {
		c.closers = append(c.closers, closeFn)
	}
	return c, nil
}

// Close releases resources opened by NewFromConfig.
func (c *Client) Close() error {
	var errs []error
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Fork returns a client with an empty queue sharing this client's collaborators.
// Hooks are copied so registrations on the fork do not leak back.
func (c *Client) Fork() *Client {
	return &Client{
		transport:     c.transport,
		subscriptions: c.subscriptions,
		hooks:         c.hooks.clone(),
		root:          c.root,
		logger:        c.logger,
		baseURL:       c.baseURL,
		accessToken:   c.accessToken,
	}
}

// Hooks exposes the event callback table.
func (c *Client) Hooks() *Hooks {
	return c.hooks
}

// OnDevicesNotRegistered registers fn for the devicesNotRegistered event.
func (c *Client) OnDevicesNotRegistered(fn HookFunc) error {
	return c.hooks.Register(EventDevicesNotRegistered, fn)
}

// SetAccessToken updates the bearer token on transports that support it.
func (c *Client) SetAccessToken(token string) {
	c.accessToken = token
	if t, ok := c.transport.(interface{ SetAccessToken(string) }); ok {
		t.SetAccessToken(token)
	}
}

// --- Subscriptions ---

func (c *Client) Subscribe(ctx context.Context, channel string, tokens any) error {
	if c.subscriptions == nil {
		return ErrNoSubscriptionStore
	}
	return c.subscriptions.Subscribe(ctx, channel, tokens)
}

func (c *Client) Unsubscribe(ctx context.Context, channel string, tokens any) error {
	if c.subscriptions == nil {
		return ErrNoSubscriptionStore
	}
	return c.subscriptions.Unsubscribe(ctx, channel, tokens)
}

// Subscriptions returns the channel's tokens, nil when the channel is unknown.
func (c *Client) Subscriptions(ctx context.Context, channel string) ([]string, error) {
	if c.subscriptions == nil {
		return nil, ErrNoSubscriptionStore
	}
	return c.subscriptions.Subscriptions(ctx, channel)
}

// --- Queue ---

// Send queues messages for the next Push.
func (c *Client) Send(msgs ...*Message) *Client {
	for _, m := range msgs {
		if m != nil {
			c.messages = append(c.messages, m)
		}
	}
	return c
}

// To sets the default recipients used by queued messages without their own `to`.
func (c *Client) To(recipients any) error {
	valid, err := ValidateTokens(recipients)
	if err != nil {
		return err
	}
	c.recipients = valid
	return nil
}

// ToChannel uses the channel's subscribers as default recipients. An unknown
// channel leaves no defaults, so messages without `to` fail at Push.
func (c *Client) ToChannel(ctx context.Context, channel string) error {
	tokens, err := c.Subscriptions(ctx, channel)
	if err != nil {
		return err
	}
	c.recipients = tokens
	return nil
}

func (c *Client) reset() {
	c.messages = nil
	c.recipients = nil
}

// --- Push ---

// Push expands every queued message into one entry per recipient, sends the batch
// and reconciles the returned tickets. The queue is cleared once the batch is built,
// before the request goes out.
func (c *Client) Push(ctx context.Context) (*Response, error) {
	if len(c.messages) == 0 {
		return nil, ErrEmptyMessageList
	}

	batch, err := c.expand()
	if err != nil {
		return nil, err
	}
	c.reset()

	batchID := uuid.NewString()
	log := c.logger.With("batch_id", batchID, "entries", len(batch))
	log.Debug("Sending push batch")

	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode push batch: %w", err)
	}
	raw, err := c.transport.Post(ctx, c.baseURL+"/push/send", nil, body)
	if err != nil {
		log.Error("Push request failed", "err", err)
		return nil, fmt.Errorf("expo push request failed: %w", err)
	}

	resp := newResponse(raw)
	if err := resp.Err(); err != nil {
		log.Warn("Expo rejected push batch", "status", resp.StatusCode, "err", err)
		return nil, err
	}

	tickets, err := resp.Tickets()
	if err != nil {
		return nil, fmt.Errorf("failed to decode push tickets: %w", err)
	}
	if len(tickets) != len(batch) {
		return nil, &UnexpectedTicketCountError{Expected: len(batch), Actual: len(tickets)}
	}

	if c.hooks.Has(EventDevicesNotRegistered) {
		if gone := notRegisteredTokens(tickets, batch); len(gone) > 0 {
			log.Info("Expo reported unregistered devices", "count", len(gone))
			c.hooks.Invoke(ctx, EventDevicesNotRegistered, gone)
		}
	}

	log.Info("Push batch dispatched")
	return resp, nil
}

// expand validates recipients and builds the ordered batch: messages in queue order,
// each followed by its recipients in order. Ticket i answers entry i.
func (c *Client) expand() ([]map[string]any, error) {
	var defaults []string
	if c.recipients != nil {
		valid, err := ValidateTokens(c.recipients)
		if err != nil {
			return nil, &DispatchError{Msg: "default recipients are no longer valid", Err: err}
		}
		defaults = valid
	}

	batch := make([]map[string]any, 0, len(c.messages))
	for i, msg := range c.messages {
		fields := msg.ToMap()
		source := defaults
		if to, ok := fields["to"].([]string); ok {
			source = to
		}
		if len(source) == 0 {
			return nil, fmt.Errorf("message %d: %w", i, ErrNoRecipient)
		}
		tokens, err := ValidateTokens(source)
		if err != nil {
			return nil, &DispatchError{Msg: fmt.Sprintf("message %d has no valid recipients", i), Err: err}
		}

		for _, token := range tokens {
			entry := make(map[string]any, len(fields))
			for k, v := range fields {
				entry[k] = v
			}
			entry["to"] = token
			batch = append(batch, entry)
		}
	}
	return batch, nil
}

// notRegisteredTokens collects the tokens of DeviceNotRegistered tickets, preferring
// the token echoed in the ticket and falling back to the entry at the same index.
func notRegisteredTokens(tickets []Ticket, batch []map[string]any) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for i, t := range tickets {
		if !t.DeviceNotRegistered() {
			continue
		}
		token := t.Details.ExpoPushToken
		if token == "" {
			token, _ = batch[i]["to"].(string)
		}
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens
}

// --- Receipts ---

// GetReceipts fetches receipts for ticket ids. Only string ids are sent; other
// values in the list are dropped.
func (c *Client) GetReceipts(ctx context.Context, ticketIDs any) (map[string]Receipt, error) {
	body, err := json.Marshal(map[string][]string{"ids": filterTicketIDs(ticketIDs)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt request: %w", err)
	}
	raw, err := c.transport.Post(ctx, c.baseURL+"/push/getReceipts", nil, body)
	if err != nil {
		return nil, fmt.Errorf("expo receipts request failed: %w", err)
	}

	resp := newResponse(raw)
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Receipts()
}

func filterTicketIDs(input any) []string {
	ids := make([]string, 0)
	switch v := input.(type) {
	case []string:
		ids = append(ids, v...)
	case []any:
		for _, id := range v {
			if s, ok := id.(string); ok {
				ids = append(ids, s)
			}
		}
	case string:
		ids = append(ids, v)
	}
	return ids
}
