// Package bdl provides the BallDontLie score feeds for NBA and NFL.
package bdl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// maxThrottleRetries bounds how often one page is retried after a 429.
const maxThrottleRetries = 2

// StatusError is a non-200 answer from BDL.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bdl %s: status %d: %s", e.Path, e.Code, e.Body)
}

// Client issues authenticated, rate-limited requests against one BDL base URL.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a BDL client. requestsPerMinute <= 0 means 60.
func NewClient(baseURL, apiKey string, requestsPerMinute int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		logger:  logger,
	}
}

// gamesPage is one cursor page of /games.
type gamesPage struct {
	Data []bdlGameRaw `json:"data"`
	Meta struct {
		NextCursor *int `json:"next_cursor"`
	} `json:"meta"`
}

// fetchGamesPage GETs one page, waiting out 429s up to maxThrottleRetries.
func (c *Client) fetchGamesPage(ctx context.Context, path string, params url.Values) (*gamesPage, error) {
	for attempt := 0; ; attempt++ {
		page, retryAfter, err := c.getOnce(ctx, path, params)
		if err == nil {
			return page, nil
		}
		if retryAfter <= 0 || attempt >= maxThrottleRetries {
			return nil, err
		}

		c.logger.Warn("BDL throttled, backing off", "path", path, "retry_after", retryAfter, "attempt", attempt+1)
		t := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// getOnce performs a single request. A positive duration means the request
// was throttled and may be retried after that long.
func (c *Client) getOnce(ctx context.Context, path string, params url.Values) (*gamesPage, time.Duration, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		serr := &StatusError{Path: path, Code: resp.StatusCode, Body: string(snippet)}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, retryAfter(resp.Header.Get("Retry-After")), serr
		}
		return nil, 0, serr
	}

	var page gamesPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	c.logger.Debug("BDL page", "path", path, "games", len(page.Data), "next_cursor", page.Meta.NextCursor)
	return &page, 0, nil
}

// retryAfter parses a Retry-After seconds value, defaulting to one second
// and capping at thirty.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return time.Second
	}
	if secs > 30 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}
