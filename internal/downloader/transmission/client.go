// Package transmission implements a Transmission RPC client.
package transmission

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/grabgate/grabgate/internal/downloader/types"
)

const sessionIDHeader = "X-Transmission-Session-Id"

type Client struct {
	config     types.ClientConfig
	httpClient *http.Client

	mu        sync.Mutex // guards sessionID; calls may run concurrently
	sessionID string
}

var _ types.Client = (*Client)(nil)

func NewFromConfig(cfg *types.ClientConfig) *Client {
	return &Client{
		config: *cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Type() types.ClientType {
	return types.ClientTypeTransmission
}

func (c *Client) Connect(ctx context.Context) error {
	_, err := c.call(ctx, "session-get", nil)
	return err
}

// FindByHash resolves an info hash to Transmission's torrent identifier,
// which is the lowercase hash string itself.
func (c *Client) FindByHash(ctx context.Context, hash string) (string, error) {
	torrents, err := c.torrentGet(ctx, hash, []string{"hashString", "name"})
	if err != nil {
		return "", err
	}
	if len(torrents) == 0 {
		return "", types.ErrNotFound
	}

	if hashString, ok := torrents[0]["hashString"].(string); ok && hashString != "" {
		return strings.ToLower(hashString), nil
	}

	return "", types.ErrNotFound
}

func (c *Client) Files(ctx context.Context, id string) ([]string, error) {
	torrents, err := c.torrentGet(ctx, id, []string{"files"})
	if err != nil {
		return nil, err
	}
	if len(torrents) == 0 {
		return nil, types.ErrNotFound
	}

	filesRaw, ok := torrents[0]["files"].([]any)
	if !ok {
		return []string{}, nil
	}

	names := make([]string, 0, len(filesRaw))
	for _, f := range filesRaw {
		file, ok := f.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := file["name"].(string); ok {
			names = append(names, name)
		}
	}

	return names, nil
}

func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	args := map[string]any{
		"ids":               []string{strings.ToLower(id)},
		"delete-local-data": deleteFiles,
	}

	_, err := c.call(ctx, "torrent-remove", args)
	return err
}

func (c *Client) torrentGet(ctx context.Context, id string, fields []string) ([]map[string]any, error) {
	args := map[string]any{
		"ids":    []string{strings.ToLower(id)},
		"fields": fields,
	}

	resp, err := c.call(ctx, "torrent-get", args)
	if err != nil {
		return nil, err
	}

	torrentsRaw, ok := resp.Arguments["torrents"].([]any)
	if !ok {
		return nil, nil
	}

	torrents := make([]map[string]any, 0, len(torrentsRaw))
	for _, t := range torrentsRaw {
		if torrent, ok := t.(map[string]any); ok {
			torrents = append(torrents, torrent)
		}
	}

	return torrents, nil
}

type rpcRequest struct {
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type rpcResponse struct {
	Result    string         `json:"result"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, args map[string]any) (*rpcResponse, error) {
	resp, status, err := c.doCall(ctx, method, args)
	if err != nil {
		return nil, err
	}

	// 409 carries the session ID to use; retry once with it.
	if status == http.StatusConflict {
		resp, status, err = c.doCall(ctx, method, args)
		if err != nil {
			return nil, err
		}
		if status == http.StatusConflict {
			return nil, fmt.Errorf("session ID handshake failed")
		}
	}

	if status == http.StatusUnauthorized {
		return nil, types.ErrAuthFailed
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", status)
	}

	if resp.Result != "success" {
		return nil, fmt.Errorf("RPC error: %s", resp.Result)
	}

	return resp, nil
}

func (c *Client) doCall(ctx context.Context, method string, args map[string]any) (*rpcResponse, int, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Arguments: args})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL(), bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	c.mu.Lock()
	if c.sessionID != "" {
		req.Header.Set(sessionIDHeader, c.sessionID)
	}
	c.mu.Unlock()
	if c.config.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.config.Username + ":" + c.config.Password))
		req.Header.Set("Authorization", "Basic "+auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		sessionID := resp.Header.Get(sessionIDHeader)
		if sessionID == "" {
			return nil, 0, fmt.Errorf("received 409 but no session ID in response")
		}
		c.mu.Lock()
		c.sessionID = sessionID
		c.mu.Unlock()
		return nil, resp.StatusCode, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	rpcResp := &rpcResponse{}
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(respBody, rpcResp); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return rpcResp, resp.StatusCode, nil
}

func (c *Client) rpcURL() string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}

	rpcPath := "/transmission/rpc"
	if c.config.URLBase != "" {
		rpcPath = "/" + strings.Trim(c.config.URLBase, "/") + "/rpc"
	}

	return fmt.Sprintf("%s://%s:%d%s", scheme, c.config.Host, c.config.Port, rpcPath)
}
