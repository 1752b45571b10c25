package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"storeapi/internal/domain/model"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	DefaultURL     = "https://fakestoreapi.com/products"
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 32 << 20
)

var ErrUnavailable = errors.New("feed unavailable")

type Config struct {
	URL     string
	Timeout time.Duration
}

// 外部フィード(JSON配列)の取得。失敗が続いたらbreakerで早めに諦める。
type Client struct {
	url    string
	http   *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// DI
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        "ProductFeed",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// 呼び出し元のキャンセルはフィードの障害として数えない
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		url:    cfg.URL,
		http:   &http.Client{Timeout: cfg.Timeout},
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

// Fetch は全件を取得する。どんな失敗も ErrUnavailable で包む。
func (c *Client) Fetch(ctx context.Context) ([]model.FeedProduct, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("feed circuit open", zap.String("url", c.url))
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return res.([]model.FeedProduct), nil
}

func (c *Client) fetch(ctx context.Context) ([]model.FeedProduct, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", c.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: unexpected status %d", c.url, resp.StatusCode)
	}

	var items []model.FeedProduct
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return items, nil
}
