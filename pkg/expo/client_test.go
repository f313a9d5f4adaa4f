package expo_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-expo-push/internal/storage/memory"
	"github.com/tinywideclouds/go-expo-push/internal/storage/subscription"
	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
	"github.com/tinywideclouds/go-expo-push/pkg/expo"
)

// --- Mocks ---

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Post(ctx context.Context, url string, headers http.Header, body []byte) (*dispatch.RawResponse, error) {
	args := m.Called(ctx, url, headers, body)
	resp, _ := args.Get(0).(*dispatch.RawResponse)
	return resp, args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okTickets(n int) *dispatch.RawResponse {
	tickets := make([]string, n)
	for i := range tickets {
		tickets[i] = `{"status":"ok","id":"t"}`
	}
	return &dispatch.RawResponse{StatusCode: 200, Body: []byte(`{"data":[` + strings.Join(tickets, ",") + `]}`)}
}

// captureBatch decodes the entries posted to push/send.
func captureBatch(t *testing.T, into *[]map[string]any) func(mock.Arguments) {
	return func(args mock.Arguments) {
		require.NoError(t, json.Unmarshal(args.Get(3).([]byte), into))
	}
}

func newClient(transport dispatch.Transport) *expo.Client {
	return expo.New(expo.WithTransport(transport), expo.WithLogger(newTestLogger()))
}

func message(t *testing.T, attrs map[string]any) *expo.Message {
	t.Helper()
	m, err := expo.NewMessage(attrs)
	require.NoError(t, err)
	return m
}

func TestClient_Push(t *testing.T) {
	ctx := context.Background()
	sendURL := expo.DefaultBaseURL + "/push/send"

	t.Run("expands one entry per message and recipient in order", func(t *testing.T) {
		transport := new(MockTransport)
		client := newClient(transport)

		var batch []map[string]any
		transport.On("Post", ctx, sendURL, http.Header(nil), mock.Anything).
			Run(captureBatch(t, &batch)).
			Return(okTickets(5), nil)

		first := message(t, map[string]any{"title": "first"})
		second := message(t, map[string]any{"title": "second", "to": []string{tokenD, tokenE}})
		require.NoError(t, client.To([]string{tokenA, tokenB, tokenC}))

		resp, err := client.Send(first, second).Push(ctx)
		require.NoError(t, err)
		assert.True(t, resp.Ok())

		require.Len(t, batch, 5)
		wantTo := []string{tokenA, tokenB, tokenC, tokenD, tokenE}
		wantTitle := []string{"first", "first", "first", "second", "second"}
		for i, entry := range batch {
			assert.Equal(t, wantTo[i], entry["to"])
			assert.Equal(t, wantTitle[i], entry["title"])
			assert.Equal(t, "default", entry["priority"])
			assert.Equal(t, false, entry["_contentAvailable"])
		}
		transport.AssertExpectations(t)
	})

	t.Run("ticket count mismatch", func(t *testing.T) {
		transport := new(MockTransport)
		client := newClient(transport)
		transport.On("Post", ctx, sendURL, http.Header(nil), mock.Anything).Return(okTickets(4), nil)

		require.NoError(t, client.To([]string{tokenA, tokenB, tokenC}))
		client.Send(message(t, nil), message(t, map[string]any{"to": []string{tokenD, tokenE}}))

		_, err := client.Push(ctx)
		var countErr *expo.UnexpectedTicketCountError
		require.ErrorAs(t, err, &countErr)
		assert.Equal(t, 5, countErr.Expected)
		assert.Equal(t, 4, countErr.Actual)
		assert.Equal(t, "expected expo to respond with 5 tickets but received 4", err.Error())
	})

	t.Run("singular ticket wording", func(t *testing.T) {
		transport := new(MockTransport)
		client := newClient(transport)
		transport.On("Post", ctx, sendURL, http.Header(nil), mock.Anything).Return(okTickets(0), nil)

		client.Send(message(t, map[string]any{"to": tokenA}))
		_, err := client.Push(ctx)
		require.Error(t, err)
		assert.Equal(t, "expected expo to respond with 1 ticket but received 0", err.Error())
	})

	t.Run("empty queue", func(t *testing.T) {
		client := newClient(new(MockTransport))
		_, err := client.Push(ctx)
		assert.ErrorIs(t, err, expo.ErrEmptyMessageList)
	})

	t.Run("message without recipients", func(t *testing.T) {
		transport := new(MockTransport)
		client := newClient(transport)
		client.Send(message(t, map[string]any{"title": "lonely"}))

		_, err := client.Push(ctx)
		assert.ErrorIs(t, err, expo.ErrNoRecipient)
		transport.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("queue is reset before the request goes out", func(t *testing.T) {
		transport := new(MockTransport)
		client := newClient(transport)
		transport.On("Post", ctx, sendURL, http.Header(nil), mock.Anything).Return(nil, errors.New("network down"))

		require.NoError(t, client.To(tokenA))
		client.Send(message(t, nil))
		_, err := client.Push(ctx)
		require.Error(t, err)

		_, err = client.Push(ctx)
		assert.ErrorIs(t, err, expo.ErrEmptyMessageList)

		client.Send(message(t, nil))
		_, err = client.Push(ctx)
		assert.ErrorIs(t, err, expo.ErrNoRecipient)
	})

	t.Run("api errors are surfaced", func(t *testing.T) {
		transport := new(MockTransport)
		client := newClient(transport)
		transport.On("Post", ctx, sendURL, http.Header(nil), mock.Anything).Return(&dispatch.RawResponse{
			StatusCode: 400,
			Body:       []byte(`{"errors":[{"code":"VALIDATION_ERROR","message":"\"to\" must be a token"}]}`),
		}, nil)

		client.Send(message(t, map[string]any{"to": tokenA}))
		_, err := client.Push(ctx)
		var apiErr *expo.RemoteAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 400, apiErr.Code)
		assert.True(t, strings.HasPrefix(apiErr.Message, "VALIDATION_ERROR: "))
	})
}

func TestClient_DevicesNotRegisteredHook(t *testing.T) {
	ctx := context.Background()
	body := `{"data":[
		{"status":"ok","id":"1"},
		{"status":"error","details":{"error":"DeviceNotRegistered","expoPushToken":"` + tokenB + `"}},
		{"status":"error","details":{"error":"DeviceNotRegistered"}},
		{"status":"error","details":{"error":"MessageTooBig"}},
		{"status":"error","details":{"error":"DeviceNotRegistered"}}
	]}`

	t.Run("invoked once with deduplicated tokens", func(t *testing.T) {
		transport := new(MockTransport)
		client := newClient(transport)
		transport.On("Post", ctx, mock.Anything, mock.Anything, mock.Anything).
			Return(&dispatch.RawResponse{StatusCode: 200, Body: []byte(body)}, nil)

		var calls [][]string
		require.NoError(t, client.OnDevicesNotRegistered(func(_ context.Context, tokens []string) {
			calls = append(calls, tokens)
		}))

		require.NoError(t, client.To([]string{tokenA, tokenB, tokenC, tokenD, tokenC}))
		_, err := client.Send(message(t, nil)).Push(ctx)
		require.NoError(t, err)

		require.Len(t, calls, 1)
		assert.ElementsMatch(t, []string{tokenB, tokenC}, calls[0])
	})

	t.Run("not invoked when nothing was unregistered", func(t *testing.T) {
		transport := new(MockTransport)
		client := newClient(transport)
		transport.On("Post", ctx, mock.Anything, mock.Anything, mock.Anything).Return(okTickets(1), nil)

		called := false
		require.NoError(t, client.OnDevicesNotRegistered(func(context.Context, []string) { called = true }))
		_, err := client.Send(message(t, map[string]any{"to": tokenA})).Push(ctx)
		require.NoError(t, err)
		assert.False(t, called)
	})

	t.Run("unknown events are rejected", func(t *testing.T) {
		client := newClient(new(MockTransport))
		err := client.Hooks().Register("messageTooBig", func(context.Context, []string) {})
		assert.ErrorIs(t, err, expo.ErrUnsupportedHook)
		assert.ErrorIs(t, client.OnDevicesNotRegistered(nil), expo.ErrUnsupportedHook)
	})

	t.Run("forks copy hooks without sharing registrations", func(t *testing.T) {
		client := newClient(new(MockTransport))
		fork := client.Fork()
		require.NoError(t, fork.OnDevicesNotRegistered(func(context.Context, []string) {}))
		assert.True(t, fork.Hooks().Has(expo.EventDevicesNotRegistered))
		assert.False(t, client.Hooks().Has(expo.EventDevicesNotRegistered))
	})
}

func TestClient_GetReceipts(t *testing.T) {
	ctx := context.Background()
	receiptsURL := expo.DefaultBaseURL + "/push/getReceipts"

	t.Run("sends only string ids", func(t *testing.T) {
		transport := new(MockTransport)
		client := newClient(transport)
		transport.On("Post", ctx, receiptsURL, http.Header(nil), []byte(`{"ids":["a","b"]}`)).
			Return(&dispatch.RawResponse{StatusCode: 200, Body: []byte(`{"data":{"a":{"status":"ok"},"b":{"status":"error","details":{"error":"DeviceNotRegistered"}}}}`)}, nil)

		receipts, err := client.GetReceipts(ctx, []any{"a", 3, "b", nil})
		require.NoError(t, err)
		require.Len(t, receipts, 2)
		assert.Equal(t, expo.StatusOK, receipts["a"].Status)
		assert.Equal(t, expo.ErrorDeviceNotRegistered, receipts["b"].Details.Error)
		transport.AssertExpectations(t)
	})

	t.Run("non-map data", func(t *testing.T) {
		transport := new(MockTransport)
		client := newClient(transport)
		transport.On("Post", ctx, receiptsURL, http.Header(nil), []byte(`{"ids":[]}`)).
			Return(&dispatch.RawResponse{StatusCode: 200, Body: []byte(`{"data":["a"]}`)}, nil)

		_, err := client.GetReceipts(ctx, []any{1})
		assert.ErrorIs(t, err, expo.ErrUnexpectedReceipts)
	})
}

func TestClient_Subscriptions(t *testing.T) {
	ctx := context.Background()

	t.Run("without storage", func(t *testing.T) {
		client := newClient(new(MockTransport))
		assert.ErrorIs(t, client.Subscribe(ctx, "news", tokenA), expo.ErrNoSubscriptionStore)
		assert.ErrorIs(t, client.Unsubscribe(ctx, "news", tokenA), expo.ErrNoSubscriptionStore)
		_, err := client.Subscriptions(ctx, "news")
		assert.ErrorIs(t, err, expo.ErrNoSubscriptionStore)
		assert.ErrorIs(t, client.ToChannel(ctx, "news"), expo.ErrNoSubscriptionStore)
	})

	t.Run("push to a channel", func(t *testing.T) {
		transport := new(MockTransport)
		manager := subscription.NewManager(subscription.NewStore(memory.NewDriver()), newTestLogger())
		client := expo.New(
			expo.WithTransport(transport),
			expo.WithSubscriptions(manager),
			expo.WithLogger(newTestLogger()),
		)

		var batch []map[string]any
		transport.On("Post", ctx, mock.Anything, mock.Anything, mock.Anything).
			Run(captureBatch(t, &batch)).
			Return(okTickets(2), nil)

		require.NoError(t, client.Subscribe(ctx, "News", []string{tokenA, tokenB}))
		require.NoError(t, client.ToChannel(ctx, " news"))
		_, err := client.Send(message(t, map[string]any{"body": "hi"})).Push(ctx)
		require.NoError(t, err)

		require.Len(t, batch, 2)
		assert.Equal(t, tokenA, batch[0]["to"])
		assert.Equal(t, tokenB, batch[1]["to"])
	})

	t.Run("stale channel tokens fail as a dispatch error", func(t *testing.T) {
		transport := new(MockTransport)
		manager := subscription.NewManager(subscription.NewStore(memory.NewDriver()), newTestLogger())
		client := expo.New(
			expo.WithTransport(transport),
			expo.WithSubscriptions(manager),
			expo.WithLogger(newTestLogger()),
		)

		require.NoError(t, client.Subscribe(ctx, "news", "junk"))
		require.NoError(t, client.ToChannel(ctx, "news"))
		_, err := client.Send(message(t, map[string]any{"to": tokenA, "body": "hi"})).Push(ctx)

		var dispatchErr *expo.DispatchError
		require.ErrorAs(t, err, &dispatchErr)
		assert.ErrorIs(t, err, expo.ErrNoValidTokens)
		assert.Equal(t, "default recipients are no longer valid: no valid expo push tokens provided", err.Error())
		transport.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("from config", func(t *testing.T) {
		client, err := expo.NewFromConfig(ctx, dispatch.DriverConfig{Driver: dispatch.DriverMemory},
			expo.WithTransport(new(MockTransport)), expo.WithLogger(newTestLogger()))
		require.NoError(t, err)
		defer func() { assert.NoError(t, client.Close()) }()

		require.NoError(t, client.Subscribe(ctx, "news", tokenA))
		tokens, err := client.Subscriptions(ctx, "NEWS")
		require.NoError(t, err)
		assert.Equal(t, []string{tokenA}, tokens)

		_, err = expo.NewFromConfig(ctx, dispatch.DriverConfig{Driver: "sqlite"}, expo.WithLogger(newTestLogger()))
		assert.ErrorIs(t, err, expo.ErrUnsupportedDriver)
	})
}

func TestClient_DefaultTransport(t *testing.T) {
	var auth, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":[{"status":"ok","id":"x"}]}`))
	}))
	defer server.Close()

	client := expo.New(
		expo.WithBaseURL(server.URL+"/"),
		expo.WithAccessToken("first"),
		expo.WithLogger(newTestLogger()),
	)
	client.SetAccessToken("second")

	_, err := client.Send(message(t, map[string]any{"to": tokenA})).Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer second", auth)
	assert.Equal(t, "/push/send", path)
}
