package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tallybook/internal/config"
	"tallybook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	transactionsPath = "/api/v1/transactions"
	healthPath       = "/health"
	listCacheKey     = "remote:transactions"
)

// Client talks to the remote datastore over its JSON HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

type createResponse struct {
	ID string `json:"id"`
}

type listResponse struct {
	Transactions []models.RemoteTransaction `json:"transactions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient constructs a client for cfg.BaseURL.
func NewClient(cfg config.RemoteConfig, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit.RPS > 0 {
		limit = rate.Limit(cfg.RateLimit.RPS)
	}
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

// UseRedisCache configures optional Redis caching for List.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// Create submits payload and returns the server-assigned id. The idempotency key
// lets the remote collapse resubmissions of the same local write.
func (c *Client) Create(ctx context.Context, idempotencyKey string, payload models.Transaction) (string, error) {
	const op = "create transaction"

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: encode payload: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transactionsPath, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	var resp createResponse
	if err := c.do(op, req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%s: %w", op, ErrMissingServerID)
	}

	c.invalidateCache(ctx)
	return resp.ID, nil
}

// List returns the transactions stored remotely.
func (c *Client) List(ctx context.Context) ([]models.RemoteTransaction, error) {
	const op = "list transactions"

	var resp listResponse
	if c.readCache(ctx, listCacheKey, &resp) {
		return resp.Transactions, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+transactionsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := c.do(op, req, &resp); err != nil {
		return nil, err
	}

	c.writeCache(ctx, listCacheKey, resp)
	return resp.Transactions, nil
}

// Health checks that the remote answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	return c.do("health", req, nil)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return &NetworkError{Op: op, Err: err}
	}

	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(body))
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		message = parsed.Error
	}

	if retryableStatus(resp.StatusCode) {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(message)}
	}
	return &APIError{Op: op, StatusCode: resp.StatusCode, Message: message}
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Debug().Err(err).Msg("remote cache write failed")
	}
}

func (c *Client) invalidateCache(ctx context.Context) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, listCacheKey).Err(); err != nil {
		c.logger.Debug().Err(err).Msg("remote cache invalidation failed")
	}
}
