// Package platform is a thin client for the streaming platform's Helix-style
// REST API, covering the calls made by identity resolution and operations.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// Config configures a Client.
type Config struct {
	BaseURL  string
	ClientID string
	Token    string
	// RequestsPerSecond bounds outgoing calls; 0 means 10/s.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client implements the platform calls over HTTP/JSON.
type Client struct {
	baseURL    string
	clientID   string
	token      string
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient creates a client. Missing fields take defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		clientID:   cfg.ClientID,
		token:      cfg.Token,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 5),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// LookupIDByName returns the platform id for a login name, or
// ErrPrincipalUnknown when no such account exists.
func (c *Client) LookupIDByName(ctx context.Context, name string) (string, error) {
	var resp struct {
		Data []struct {
			ID    string `json:"id"`
			Login string `json:"login"`
		} `json:"data"`
	}
	q := url.Values{"login": {strings.ToLower(name)}}
	if err := c.doJSON(ctx, http.MethodGet, "/users?"+q.Encode(), nil, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].ID == "" {
		return "", fmt.Errorf("%w: %s", types.ErrPrincipalUnknown, name)
	}
	return resp.Data[0].ID, nil
}

// Commercial is the platform's answer to a commercial request.
type Commercial struct {
	Length     int    `json:"length"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// StartCommercial runs an ad break of seconds on the broadcaster's channel.
func (c *Client) StartCommercial(ctx context.Context, broadcasterID string, seconds int) (*Commercial, error) {
	body := map[string]any{"broadcaster_id": broadcasterID, "length": seconds}
	var resp struct {
		Data []Commercial `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/channels/commercial", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return &Commercial{Length: seconds}, nil
	}
	return &resp.Data[0], nil
}

// Clip identifies a newly created clip.
type Clip struct {
	ID      string `json:"id"`
	EditURL string `json:"edit_url"`
}

// URL is the public link of the clip.
func (c Clip) URL() string {
	return "https://clips.twitch.tv/" + c.ID
}

// CreateClip captures a clip of the broadcaster's live stream.
func (c *Client) CreateClip(ctx context.Context, broadcasterID string, hasDelay bool) (*Clip, error) {
	q := url.Values{
		"broadcaster_id": {broadcasterID},
		"has_delay":      {strconv.FormatBool(hasDelay)},
	}
	var resp struct {
		Data []Clip `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/clips?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].ID == "" {
		return nil, fmt.Errorf("create clip: empty response")
	}
	return &resp.Data[0], nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.clientID != "" {
		req.Header.Set("Client-Id", c.clientID)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
