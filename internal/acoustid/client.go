// Package acoustid looks up audio fingerprints in the AcoustID web service
package acoustid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/franz/cismu/internal/config"
	"github.com/franz/cismu/internal/util"
)

const (
	// BaseURL is the AcoustID API base URL
	BaseURL = "https://api.acoustid.org/v2"

	// UserAgent identifies this application to AcoustID
	UserAgent = "cismu/0.1 (https://github.com/franz/cismu)"

	// RateLimit keeps us at the three requests per second AcoustID allows
	RateLimit = 334 * time.Millisecond

	defaultTimeout = 30 * time.Second
)

// Recording is a MusicBrainz recording linked to a fingerprint
type Recording struct {
	ID string `json:"id"`
}

// Result is one AcoustID track matching the fingerprint
type Result struct {
	ID         string      `json:"id"`
	Score      float64     `json:"score"`
	Recordings []Recording `json:"recordings"`
}

// LookupResponse is the body of a /lookup response
type LookupResponse struct {
	Status  string   `json:"status"`
	Results []Result `json:"results"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client handles AcoustID API requests with rate limiting
type Client struct {
	httpClient  *http.Client
	baseURL     string
	clientKey   string
	userAgent   string
	rateLimiter *time.Ticker
	retry       *util.RetryConfig
}

// NewClient creates a new AcoustID client from the library configuration
func NewClient(cfg config.AcoustIDConfig) (*Client, error) {
	if strings.TrimSpace(cfg.ClientKey) == "" {
		return nil, fmt.Errorf("%w: acoustid.client_key is not set", util.ErrInvalidConfig)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURL
	}
	rate := cfg.RateLimit
	if rate <= 0 {
		rate = RateLimit
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		clientKey:   cfg.ClientKey,
		userAgent:   UserAgent,
		rateLimiter: time.NewTicker(rate),
		retry:       util.HTTPRetryConfig(),
	}, nil
}

// Close releases resources used by the client
func (c *Client) Close() {
	if c.rateLimiter != nil {
		c.rateLimiter.Stop()
	}
}

// Lookup sends a fingerprint and returns every matching result. Rate limit
// responses and server errors are retried with backoff.
func (c *Client) Lookup(ctx context.Context, fingerprint string, durationSec int) ([]Result, error) {
	if fingerprint == "" {
		return nil, fmt.Errorf("fingerprint cannot be empty")
	}

	return util.RetryWithBackoff(ctx, c.retry, func() ([]Result, error) {
		return c.lookupOnce(ctx, fingerprint, durationSec)
	}, "acoustid lookup")
}

func (c *Client) lookupOnce(ctx context.Context, fingerprint string, durationSec int) ([]Result, error) {
	if err := c.waitForRateLimit(ctx); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("client", c.clientKey)
	form.Set("meta", "recordings")
	form.Set("duration", strconv.Itoa(durationSec))
	form.Set("fingerprint", fingerprint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/lookup", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	util.DebugLog("AcoustID API: lookup (duration %ds, %d byte fingerprint)", durationSec, len(fingerprint))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, util.MarkRetryable(fmt.Errorf("AcoustID service unavailable (%d)", resp.StatusCode))
	}

	var result LookupResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Status != "ok" {
		msg := "unknown error"
		if result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		return nil, fmt.Errorf("AcoustID lookup failed: %s", msg)
	}

	util.DebugLog("AcoustID: %d results", len(result.Results))
	return result.Results, nil
}

func (c *Client) waitForRateLimit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.rateLimiter.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BestMatch returns the highest scoring result, or nil when there is none
func BestMatch(results []Result) *Result {
	var best *Result
	for i := range results {
		if results[i].ID == "" {
			continue
		}
		if best == nil || results[i].Score > best.Score {
			best = &results[i]
		}
	}
	return best
}
