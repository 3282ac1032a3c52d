// Package sdk provides typed access to the gamifyd HTTP and WebSocket API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"gamifyd/core"
)

// Option configures the Client.
type Option func(*Client)

// Client talks to one tenant of a gamifyd server.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL
// (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAPIKey adds the tenant's X-API-Key header to all requests (HTTP + WS).
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithAuthToken sends the API key as Authorization: Bearer instead.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// IncrementMetric records a metric event for a user and returns the full
// progression outcome.
func (c *Client) IncrementMetric(ctx context.Context, userID, metricID string, value int64) (IncrementResult, error) {
	if strings.TrimSpace(userID) == "" {
		return IncrementResult{}, ErrEmptyUserID
	}
	var out IncrementResult
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/users/%s/increments", url.PathEscape(userID)),
		map[string]any{"metric_id": metricID, "value": value}, &out)
	return out, err
}

// ClaimReward claims a reward against the user's spendable XP.
func (c *Client) ClaimReward(ctx context.Context, userID, rewardID string) (UserReward, error) {
	if strings.TrimSpace(userID) == "" {
		return UserReward{}, ErrEmptyUserID
	}
	var out UserReward
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/users/%s/claims", url.PathEscape(userID)),
		map[string]any{"reward_id": rewardID}, &out)
	return out, err
}

// GetUser fetches a user's current XP, level and metadata.
func (c *Client) GetUser(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrEmptyUserID
	}
	var out User
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &out)
	return out, err
}

// History lists a user's increments for one metric, newest first.
func (c *Client) History(ctx context.Context, userID, metricID string, page, limit int) ([]MetricHistory, PageInfo, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, PageInfo{}, ErrEmptyUserID
	}
	q := url.Values{}
	q.Set("metric_id", metricID)
	if page > 0 {
		q.Set("page", fmt.Sprintf("%d", page))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	var out struct {
		Docs     []MetricHistory `json:"docs"`
		PageInfo PageInfo        `json:"page_info"`
	}
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/users/%s/history?%s", url.PathEscape(userID), q.Encode()), nil, &out)
	return out.Docs, out.PageInfo, err
}

// LeaderboardTop returns the company's n best-ranked users.
func (c *Client) LeaderboardTop(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	path := "/leaderboard"
	if n > 0 {
		path = fmt.Sprintf("/leaderboard?limit=%d", n)
	}
	var out struct {
		Entries []LeaderboardEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Entries, err
}

// LeaderboardRank returns one user's position.
func (c *Client) LeaderboardRank(ctx context.Context, userID string) (Rank, error) {
	if strings.TrimSpace(userID) == "" {
		return Rank{}, ErrEmptyUserID
	}
	var out Rank
	err := c.do(ctx, http.MethodGet, "/leaderboard/"+url.PathEscape(userID), nil, &out)
	return out, err
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var out HealthStatus
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &out)
	return out, err
}

// SubscribeEvents connects to the WebSocket stream and emits the tenant's
// events. The returned channel closes when ctx is done or the connection
// drops.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return err
		}
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
