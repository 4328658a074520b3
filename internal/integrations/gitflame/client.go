// Package gitflame exposes GitFlame repository and issue operations as dispatchable actions.
// Calls go through the blocking pool and are throttled per system.
package gitflame

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/morezero/actions-dispatcher/pkg/action"
	"github.com/morezero/actions-dispatcher/pkg/blocking"
	"github.com/morezero/actions-dispatcher/pkg/ratelimit"
)

const logPrefix = "gitflame:client"

// SystemName is the registry system and the auth context key for GitFlame.
const SystemName = "GitFlame"

// DefaultBaseURL is the public GitFlame API.
const DefaultBaseURL = "https://api.gitflame.ru/api/v1"

const maxResponseBytes = 4 << 20

// Client calls the GitFlame REST API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *ratelimit.MapLimiter
	pool    *blocking.Pool
}

// NewClientParams holds parameters for NewClient. Zero values use defaults.
type NewClientParams struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *ratelimit.MapLimiter
	Pool       *blocking.Pool
}

// NewClient creates a Client.
func NewClient(params NewClientParams) *Client {
	base := strings.TrimRight(params.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := params.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: base, http: hc, limiter: params.Limiter, pool: params.Pool}
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// call performs one authenticated request and returns the parsed body when the status
// matches expect. what names the operation in error messages.
func (c *Client) call(ctx context.Context, auth action.AuthContext, what, method, path string, body any, expect int) (gjson.Result, error) {
	token, err := auth.Token(SystemName)
	if err != nil {
		return gjson.Result{}, err
	}
	if err := c.limiter.Wait(ctx, SystemName); err != nil {
		return gjson.Result{}, err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("%s - encode %s request: %w", logPrefix, what, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s - build %s request: %w", logPrefix, what, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug(fmt.Sprintf("%s - %s %s", logPrefix, method, path))
	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to %s: %w", what, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s - read %s response: %w", logPrefix, what, err)
	}
	if resp.StatusCode != expect {
		return gjson.Result{}, fmt.Errorf("failed to %s. Status Code: %d. Details: %s", what, resp.StatusCode, string(data))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("failed to %s: response is not valid JSON", what)
	}
	return gjson.ParseBytes(data), nil
}
