// Package expoapi is the HTTP transport for the Expo push API: default headers,
// request compression, retries and a circuit breaker.
package expoapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/sony/gobreaker/v2"

	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

const (
	// CompressionThreshold is the body size above which requests are gzipped.
	CompressionThreshold = 1024
	// CompressionLevel is the gzip level used for request bodies.
	CompressionLevel = 6
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request.
var ErrCircuitOpen = errors.New("expo api circuit breaker is open")

// ServerError is a 5xx answer from Expo. It drives retries and trips the breaker.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "expo server error: " + http.StatusText(e.StatusCode)
}

// BreakerConfig configures the circuit breaker around the Expo API.
type BreakerConfig struct {
	// MaxRequests allowed while half-open.
	MaxRequests uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// MinRequests and FailureRatio decide when the breaker trips.
	MinRequests  uint32
	FailureRatio float64
}

// Config holds the transport settings.
type Config struct {
	AccessToken     string
	Timeout         time.Duration
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Breaker         BreakerConfig
	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// DefaultConfig returns the settings used when the client builds its own transport.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Breaker: BreakerConfig{
			MaxRequests:  1,
			Timeout:      60 * time.Second,
			MinRequests:  5,
			FailureRatio: 0.5,
		},
	}
}

// Transport implements dispatch.Transport over net/http.
type Transport struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*dispatch.RawResponse]
	cfg        Config
	logger     *slog.Logger

	mu          sync.RWMutex
	accessToken string
}

// NewTransport creates a Transport. Zero values in cfg fall back to DefaultConfig.
func NewTransport(cfg Config, logger *slog.Logger) *Transport {
	def := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.Breaker == (BreakerConfig{}) {
		cfg.Breaker = def.Breaker
	}

	t := &Transport{
		cfg:         cfg,
		logger:      logger.With("component", "ExpoTransport"),
		accessToken: cfg.AccessToken,
	}

	t.httpClient = cfg.HTTPClient
	if t.httpClient == nil {
		t.httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	breaker := cfg.Breaker
	t.breaker = gobreaker.NewCircuitBreaker[*dispatch.RawResponse](gobreaker.Settings{
		Name:        "expo-push",
		MaxRequests: breaker.MaxRequests,
		Timeout:     breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breaker.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= breaker.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return t
}

// SetAccessToken replaces the bearer token used for subsequent requests.
func (t *Transport) SetAccessToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accessToken = token
}

// CircuitBreakerState reports the breaker state.
func (t *Transport) CircuitBreakerState() gobreaker.State {
	return t.breaker.State()
}

// Post sends body to rawURL, retrying network failures and 5xx answers. When the
// retries run out on a 5xx, that last response is returned without error.
func (t *Transport) Post(ctx context.Context, rawURL string, headers http.Header, body []byte) (*dispatch.RawResponse, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid expo url %q: %w", rawURL, err)
	}

	payload, compressed, err := compressBody(body)
	if err != nil {
		return nil, err
	}
	reqHeaders := t.headers(target, headers, compressed)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.cfg.InitialInterval
	bo.MaxInterval = t.cfg.MaxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, t.cfg.MaxRetries), ctx)

	var last *dispatch.RawResponse
	operation := func() error {
		resp, err := t.breaker.Execute(func() (*dispatch.RawResponse, error) {
			return t.do(ctx, target, reqHeaders, payload)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if resp != nil {
				last = resp
			}
			t.logger.Debug("Expo request attempt failed", "url", rawURL, "err", err)
			return err
		}
		last = resp
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		var serverErr *ServerError
		if last != nil && errors.As(err, &serverErr) {
			return last, nil
		}
		return nil, err
	}
	return last, nil
}

// do performs a single attempt. The request is rebuilt from payload every time.
func (t *Transport) do(ctx context.Context, target *url.URL, headers http.Header, payload []byte) (*dispatch.RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header = headers.Clone()
	req.Host = target.Host

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	raw := &dispatch.RawResponse{StatusCode: resp.StatusCode, Body: data}
	if resp.StatusCode >= 500 {
		return raw, &ServerError{StatusCode: resp.StatusCode}
	}
	return raw, nil
}

func (t *Transport) headers(target *url.URL, extra http.Header, compressed bool) http.Header {
	h := http.Header{}
	h.Set("Host", target.Host)
	h.Set("Accept", "application/json")
	h.Set("Accept-Encoding", "gzip, deflate")
	h.Set("Content-Type", "application/json")
	if compressed {
		h.Set("Content-Encoding", "gzip")
	}

	t.mu.RLock()
	token := t.accessToken
	t.mu.RUnlock()
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}

	for k, vs := range extra {
		h.Del(k)
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	return h
}

func compressBody(body []byte) ([]byte, bool, error) {
	if len(body) <= CompressionThreshold {
		return body, false, nil
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, CompressionLevel)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := zw.Write(body); err != nil {
		return nil, false, fmt.Errorf("failed to compress request body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to compress request body: %w", err)
	}
	return buf.Bytes(), true, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip response: %w", err)
		}
		defer zr.Close()
		r = zr
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open deflate response: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read expo response: %w", err)
	}
	return data, nil
}
