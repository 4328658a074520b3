// Package llm is a minimal client for the completion service the extraction actions call.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const logPrefix = "llm:client"

// Request is one completion request.
type Request struct {
	Prompt      string   `json:"prompt"`
	Stop        []string `json:"stop,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature"`
	TeamID      string   `json:"team_id,omitempty"`
}

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client posts completion requests to an HTTP endpoint.
type Client struct {
	endpoint string
	teamID   string
	http     *http.Client
}

// NewClientParams holds parameters for NewClient.
type NewClientParams struct {
	Endpoint   string
	TeamID     string
	HTTPClient *http.Client
}

// NewClient creates a Client.
func NewClient(params NewClientParams) *Client {
	hc := params.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{endpoint: params.Endpoint, teamID: params.TeamID, http: hc}
}

// Complete sends req and returns the generated text. The service may answer with a JSON
// object carrying "answer", "response" or "text", a JSON string, or plain text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("%s - no completion endpoint configured", logPrefix)
	}
	if req.TeamID == "" {
		req.TeamID = c.teamID
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%s - encode request: %w", logPrefix, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%s - build request: %w", logPrefix, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s - completion request failed: %w", logPrefix, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%s - read response: %w", logPrefix, err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%s - completion service returned %d: %s", logPrefix, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return ParseAnswer(body), nil
}

// ParseAnswer extracts the generated text from a completion response body.
func ParseAnswer(body []byte) string {
	if gjson.ValidBytes(body) {
		r := gjson.ParseBytes(body)
		switch {
		case r.Type == gjson.String:
			return strings.TrimSpace(r.String())
		case r.IsObject():
			for _, key := range []string{"answer", "response", "text"} {
				if v := r.Get(key); v.Exists() {
					return strings.TrimSpace(v.String())
				}
			}
		}
	}
	return strings.TrimSpace(string(body))
}

// PreparePrompt substitutes the user's request into a template's {USER_REQUEST} placeholder.
func PreparePrompt(template, userRequest string) string {
	return strings.ReplaceAll(template, "{USER_REQUEST}", userRequest)
}
