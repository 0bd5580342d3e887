// Package sonarr implements the client for the download orchestrator's
// queue and history REST API.
package sonarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a queue or history entry does not exist.
// This is an expected race, not a fault: the orchestrator may consume a
// queue entry at any time.
var ErrNotFound = errors.New("sonarr: not found")

// Config holds the connection settings for the Sonarr API.
type Config struct {
	URL    string
	APIKey string
}

// Client talks to the Sonarr v3 API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// QueueItem is the orchestrator's transient handle on an in-progress
// download.
type QueueItem struct {
	ID         int64  `json:"id"`
	DownloadID string `json:"downloadId"`
	Title      string `json:"title"`
}

// HistoryRecord is the orchestrator's durable log entry for a past event.
type HistoryRecord struct {
	ID         int64  `json:"id"`
	DownloadID string `json:"downloadId"`
	EventType  string `json:"eventType"`
}

// EventTypeGrabbed is the history event type written when a release is
// grabbed.
const EventTypeGrabbed = "grabbed"

// NewClient creates a new Sonarr API client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/") + "/api/v3",
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "sonarr").Logger(),
	}
}

// GetQueueItem finds the queue entry whose downloadId matches the given
// hash. Hash comparison is case-insensitive since torrent hashes appear in
// both cases in the wild. Returns ErrNotFound when the queue has no match.
func (c *Client) GetQueueItem(ctx context.Context, downloadID string) (*QueueItem, error) {
	var page struct {
		Records []QueueItem `json:"records"`
	}
	params := url.Values{"pageSize": {"1000"}}
	if err := c.get(ctx, "/queue", params, &page); err != nil {
		return nil, err
	}

	for i := range page.Records {
		if strings.EqualFold(page.Records[i].DownloadID, downloadID) {
			return &page.Records[i], nil
		}
	}

	c.logger.Debug().
		Str("downloadId", downloadID).
		Int("queueSize", len(page.Records)).
		Msg("no queue entry for download")

	return nil, ErrNotFound
}

// RemoveQueueItem deletes a queue entry, always removing the download from
// the client as well, and optionally blocklisting the release.
func (c *Client) RemoveQueueItem(ctx context.Context, queueID int64, blocklist bool) error {
	params := url.Values{
		"removeFromClient": {"true"},
		"blocklist":        {fmt.Sprintf("%t", blocklist)},
	}

	path := fmt.Sprintf("/queue/%d", queueID)
	return c.do(ctx, http.MethodDelete, path, params, nil, nil)
}

// GetHistory returns history records for a download, filtered by event
// type, most recent first (the API's default ordering).
func (c *Client) GetHistory(ctx context.Context, downloadID, eventType string) ([]HistoryRecord, error) {
	var page struct {
		Records []HistoryRecord `json:"records"`
	}
	params := url.Values{
		"downloadId": {downloadID},
		"eventType":  {eventType},
		"pageSize":   {"100"},
	}
	if err := c.get(ctx, "/history", params, &page); err != nil {
		return nil, err
	}

	return page.Records, nil
}

// MarkHistoryFailed marks a grabbed history record as failed, which is the
// only blocklisting mechanism the API supports. A direct blocklist insert
// does not exist and must not be attempted.
func (c *Client) MarkHistoryFailed(ctx context.Context, historyID int64) error {
	path := fmt.Sprintf("/history/failed/%d", historyID)
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, params, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, out any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reader *strings.Reader
	if body != nil {
		reader = strings.NewReader(string(body))
	} else {
		reader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("sonarr rejected API key (status %d)", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
