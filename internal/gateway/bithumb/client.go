package bithumb

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"breakbot/internal/config"
	"breakbot/internal/logger"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Client wraps the Bithumb REST API calls breakbot needs.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
	apiSecret  string
	maxRetries int
	retryDelay time.Duration

	nowFn   func() time.Time
	nonceFn func() string
}

func NewClient(cfg config.ExchangeConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.APIURL)
	if raw == "" {
		return nil, fmt.Errorf("exchange.api_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 exchange.api_url 失败: %w", err)
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiSecret:  strings.TrimSpace(cfg.APISecret),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay(),
		nowFn:      time.Now,
		nonceFn:    func() string { return uuid.NewString() },
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// doPublic issues an unsigned GET and returns the parsed body.
func (c *Client) doPublic(ctx context.Context, path string, params url.Values) (gjson.Result, error) {
	var out gjson.Result
	err := c.withRetry(ctx, func() error {
		endpoint := *c.baseURL
		endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + path
		endpoint.RawQuery = params.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return err
		}
		body, err := c.execute(req)
		if err != nil {
			return err
		}
		out = body
		return nil
	})
	return out, err
}

// doPrivate issues a signed POST. The signature covers the sorted form query
// plus nonce and timestamp, HMAC-SHA512 over the API secret, base64-encoded.
func (c *Client) doPrivate(ctx context.Context, path string, params url.Values) (gjson.Result, error) {
	if c.apiKey == "" || c.apiSecret == "" {
		return gjson.Result{}, &APIError{Status: statusAuthFailed, Message: "api credentials not configured"}
	}
	var out gjson.Result
	err := c.withRetry(ctx, func() error {
		nonce := c.nonceFn()
		timestamp := strconv.FormatInt(c.nowFn().UnixMilli(), 10)
		form := sortedQuery(params)
		signed := form + "&nonce=" + nonce + "&timestamp=" + timestamp

		endpoint := *c.baseURL
		endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + path

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(form))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Api-Key", c.apiKey)
		req.Header.Set("Api-Sign", c.sign(signed))
		req.Header.Set("Api-Nonce", nonce)
		req.Header.Set("Api-Timestamp", timestamp)

		body, err := c.execute(req)
		if err != nil {
			return err
		}
		out = body
		return nil
	})
	return out, err
}

func (c *Client) execute(req *http.Request) (gjson.Result, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("调用 bithumb 失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode >= 500 {
		return gjson.Result{}, &APIError{
			Status:    resp.Status,
			Message:   strings.TrimSpace(string(data)),
			Transient: true,
		}
	}
	if resp.StatusCode >= 300 {
		return gjson.Result{}, &APIError{Status: resp.Status, Message: strings.TrimSpace(string(data))}
	}
	body := gjson.ParseBytes(data)
	if status := body.Get("status").String(); status != "" && status != statusOK {
		return gjson.Result{}, newStatusError(status, body.Get("message").String())
	}
	return body, nil
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	attempts := c.maxRetries
	if attempts < 1 {
		attempts = 1
	}
	delay := c.retryDelay
	if delay <= 0 {
		delay = time.Second
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if i == attempts-1 {
			break
		}
		logger.Warnf("bithumb: attempt %d/%d failed: %v, retry in %s", i+1, attempts, lastErr, delay)
		if !sleepWithContext(ctx, delay) {
			return ctx.Err()
		}
		delay = nextDelay(delay)
	}
	return lastErr
}

func (c *Client) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(c.apiSecret))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func sortedQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params.Get(k))
	}
	return strings.Join(parts, "&")
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
