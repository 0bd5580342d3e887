// Package qbittorrent implements a qBittorrent Web API client.
package qbittorrent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/grabgate/grabgate/internal/downloader/types"
)

type Client struct {
	config     types.ClientConfig
	httpClient *http.Client

	mu            sync.Mutex // guards authenticated; calls may run concurrently
	authenticated bool
}

var _ types.Client = (*Client)(nil)

func NewFromConfig(cfg *types.ClientConfig) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		config: *cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

func (c *Client) Type() types.ClientType {
	return types.ClientTypeQBittorrent
}

func (c *Client) Connect(ctx context.Context) error {
	return c.authenticate(ctx)
}

// FindByHash resolves an info hash via /torrents/info. qBittorrent uses the
// lowercase info hash as its torrent identifier.
func (c *Client) FindByHash(ctx context.Context, hash string) (string, error) {
	lowerHash := strings.ToLower(hash)

	body, err := c.get(ctx, "/api/v2/torrents/info", url.Values{"hashes": {lowerHash}})
	if err != nil {
		return "", err
	}

	var torrents []struct {
		Hash string `json:"hash"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &torrents); err != nil {
		return "", fmt.Errorf("failed to unmarshal torrent list: %w", err)
	}

	for _, t := range torrents {
		if strings.EqualFold(t.Hash, lowerHash) {
			return strings.ToLower(t.Hash), nil
		}
	}

	return "", types.ErrNotFound
}

func (c *Client) Files(ctx context.Context, id string) ([]string, error) {
	body, err := c.get(ctx, "/api/v2/torrents/files", url.Values{"hash": {strings.ToLower(id)}})
	if err != nil {
		return nil, err
	}

	var files []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &files); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file list: %w", err)
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}

	return names, nil
}

func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	form := url.Values{
		"hashes":      {strings.ToLower(id)},
		"deleteFiles": {fmt.Sprintf("%t", deleteFiles)},
	}

	_, err := c.post(ctx, "/api/v2/torrents/delete", form)
	return err
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path+"?"+params.Encode(), "", "")
}

func (c *Client) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, form.Encode(), "application/x-www-form-urlencoded")
}

// do executes an authenticated request. A 403 means the session cookie
// expired; re-authenticate once and retry before giving up.
func (c *Client) do(ctx context.Context, method, pathAndQuery, body, contentType string) ([]byte, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	respBody, status, err := c.execute(ctx, method, pathAndQuery, body, contentType)
	if err != nil {
		return nil, err
	}

	if status == http.StatusForbidden {
		c.invalidateSession()
		if err := c.ensureAuthenticated(ctx); err != nil {
			return nil, err
		}
		respBody, status, err = c.execute(ctx, method, pathAndQuery, body, contentType)
		if err != nil {
			return nil, err
		}
		if status == http.StatusForbidden {
			return nil, types.ErrAuthFailed
		}
	}

	if status == http.StatusNotFound {
		return nil, types.ErrNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", status)
	}

	return respBody, nil
}

func (c *Client) execute(ctx context.Context, method, pathAndQuery, body, contentType string) ([]byte, int, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+pathAndQuery, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	c.setCSRFHeaders(req)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

func (c *Client) ensureAuthenticated(ctx context.Context) error {
	c.mu.Lock()
	authenticated := c.authenticated
	c.mu.Unlock()

	if authenticated {
		return nil
	}
	return c.authenticate(ctx)
}

func (c *Client) authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The jar is created once and never reassigned: other goroutines
	// read it inside httpClient.Do without holding the mutex. The login
	// response overwrites any stale session cookie in place.

	form := url.Values{
		"username": {c.config.Username},
		"password": {c.config.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}

	c.setCSRFHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}

	// qBittorrent answers 200 with a literal "Ok." on success and
	// "Fails." on bad credentials.
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "Ok." {
		return types.ErrAuthFailed
	}

	c.authenticated = true
	return nil
}

func (c *Client) invalidateSession() {
	c.mu.Lock()
	c.authenticated = false
	c.mu.Unlock()
}

// setCSRFHeaders sets the Referer and Origin headers qBittorrent requires
// for CSRF protection. Referer needs a trailing slash, Origin does not.
func (c *Client) setCSRFHeaders(req *http.Request) {
	base := c.baseURL()
	req.Header.Set("Referer", base+"/")
	req.Header.Set("Origin", base)
}

func (c *Client) baseURL() string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}

	base := fmt.Sprintf("%s://%s:%d", scheme, c.config.Host, c.config.Port)
	if c.config.URLBase != "" {
		base += "/" + strings.Trim(c.config.URLBase, "/")
	}

	return base
}
