package guildboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Guildboard HTTP API client. Schedulers set APIKey;
// members set BearerToken.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. All-tenant runs can be slow, so
// the default timeout is generous.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  5 * time.Minute,
	}
}

// Achievement is one evaluated achievement in a sync response.
type Achievement struct {
	AchievementID string  `json:"achievement_id"`
	CurrentValue  int64   `json:"current_value"`
	IsUnlocked    bool    `json:"is_unlocked"`
	UnlockedAt    *string `json:"unlocked_at,omitempty"`
}

type SyncResult struct {
	Success      bool          `json:"success"`
	Updated      int           `json:"updated"`
	Achievements []Achievement `json:"achievements"`
}

type SyncAllResult struct {
	Success             bool   `json:"success"`
	RunID               string `json:"runId"`
	Clans               int    `json:"clans"`
	AchievementsUpdated int    `json:"achievementsUpdated"`
	Failed              int    `json:"failed"`
}

// Progress is one catalogue entry with the group's latest value.
type Progress struct {
	AchievementID    string  `json:"achievement_id"`
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	RequirementType  string  `json:"requirement_type"`
	RequirementValue int64   `json:"requirement_value"`
	CurrentValue     int64   `json:"current_value"`
	IsUnlocked       bool    `json:"is_unlocked"`
	UnlockedAt       *string `json:"unlocked_at,omitempty"`
	UpdatedAt        string  `json:"updated_at"`
}

type GroupProgress struct {
	GroupID      string     `json:"group_id"`
	Achievements []Progress `json:"achievements"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Sync recalculates one group's achievements. Requires a bearer token for an
// admin or officer of the group.
func (c *Client) Sync(ctx context.Context, groupID string) (SyncResult, error) {
	var resp SyncResult
	err := c.do(ctx, http.MethodPost, "achievements/sync", map[string]string{"tenantId": groupID}, &resp)
	return resp, err
}

// SyncAll recalculates every group. Requires the scheduler API key unless the
// server runs with an unauthenticated scheduler.
func (c *Client) SyncAll(ctx context.Context) (SyncAllResult, error) {
	var resp SyncAllResult
	err := c.do(ctx, http.MethodPost, "achievements/sync-all", nil, &resp)
	return resp, err
}

// Progress returns the latest stored progress for a group.
func (c *Client) Progress(ctx context.Context, groupID string) (GroupProgress, error) {
	var resp GroupProgress
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("groups/%s/achievements", url.PathEscape(groupID)), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
