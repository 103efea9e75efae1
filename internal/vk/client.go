// Package vk fetches the most recent posts of a community wall through the
// VK API wall.get method.
package vk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"wrestfed/internal/task/retry"
	logx "wrestfed/pkg/logx"
)

const maxCount = 100

type Config struct {
	AccessToken    string
	GroupID        int64
	APIVersion     string
	BaseURL        string
	Count          int
	RequestTimeout time.Duration

	MaxAttempts   int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	policy  retry.Policy
	metrics *Metrics
	log     logx.Logger
}

// New builds a client. A nil httpClient gets one with cfg.RequestTimeout;
// a nil metrics value disables instrumentation.
func New(cfg Config, httpClient *http.Client, metrics *Metrics, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	log = log.With(logx.String("comp", "vk"))
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		metrics: metrics,
		log:     log,
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     retry.Exponential(cfg.RetryBase, cfg.RetryMaxDelay),
			Retryable:   retry.Transport,
			Log:         log,
		},
	}
}

// Fetch returns up to count posts, most recent first. count <= 0 uses the
// configured default. An empty wall yields an empty slice and no error.
func (c *Client) Fetch(ctx context.Context, count int) ([]Post, error) {
	if count <= 0 {
		count = c.cfg.Count
	}
	count = min(max(count, 1), maxCount)

	c.log.Info("fetching wall", logx.Int64("group_id", c.cfg.GroupID), logx.Int("count", count))

	var posts []Post
	err := c.policy.Do(ctx, "vk.wall.get", func(ctx context.Context, attempt int) error {
		p, err := c.wallGet(ctx, count)
		if err != nil {
			return err
		}
		posts = p
		return nil
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.log.Error("vk api error", logx.Int("code", apiErr.Code), logx.String("msg", apiErr.Message))
		}
		return nil, err
	}
	if posts == nil {
		posts = []Post{}
	}
	return posts, nil
}

func (c *Client) wallGet(ctx context.Context, count int) (posts []Post, err error) {
	start := time.Now()
	defer func() {
		status := statusSuccess
		if err != nil {
			status = statusError
		}
		c.metrics.observe(status, time.Since(start).Seconds())
	}()

	q := url.Values{}
	q.Set("access_token", c.cfg.AccessToken)
	q.Set("v", c.cfg.APIVersion)
	q.Set("owner_id", "-"+strconv.FormatInt(c.cfg.GroupID, 10))
	q.Set("count", strconv.Itoa(count))
	q.Set("extended", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/wall.get?"+q.Encode(), nil)
	if err != nil {
		return nil, retry.NoRetry(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, retry.NoRetry(fmt.Errorf("vk wall.get: unexpected status %d", resp.StatusCode))
	}

	var body wallResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("vk wall.get: decode response: %w", err)
	}
	if body.Error != nil {
		return nil, retry.NoRetry(body.Error)
	}
	if body.Response == nil {
		return nil, nil
	}
	return body.Response.Items, nil
}
