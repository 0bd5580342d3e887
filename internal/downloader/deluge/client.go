// Package deluge implements a Deluge Web JSON-RPC client.
package deluge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grabgate/grabgate/internal/downloader/types"
)

type Client struct {
	config     types.ClientConfig
	httpClient *http.Client

	mu        sync.Mutex // guards requestID; calls may run concurrently
	requestID int
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
	return types.ClientTypeDeluge
}

func (c *Client) Connect(ctx context.Context) error {
	return c.authenticate(ctx)
}

// FindByHash checks whether the torrent is known to Deluge. Deluge keys
// torrents by lowercase info hash.
func (c *Client) FindByHash(ctx context.Context, hash string) (string, error) {
	lowerHash := strings.ToLower(hash)

	resp, err := c.call(ctx, "core.get_torrent_status", []any{lowerHash, []string{"hash", "name"}})
	if err != nil {
		return "", err
	}

	status, ok := resp.(map[string]any)
	if !ok || len(status) == 0 {
		return "", types.ErrNotFound
	}

	return lowerHash, nil
}

func (c *Client) Files(ctx context.Context, id string) ([]string, error) {
	resp, err := c.call(ctx, "web.get_torrent_files", []any{strings.ToLower(id)})
	if err != nil {
		return nil, err
	}

	root, ok := resp.(map[string]any)
	if !ok || len(root) == 0 {
		return nil, types.ErrNotFound
	}

	// web.get_torrent_files returns a nested contents tree; flatten it
	// into the full file paths. The tree is an unordered JSON object, so
	// unlike the other clients there is no wire order to preserve; sort
	// for a stable manifest.
	names := flattenContents("", root)
	sort.Strings(names)
	return names, nil
}

func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	resp, err := c.call(ctx, "core.remove_torrent", []any{strings.ToLower(id), deleteFiles})
	if err != nil {
		return err
	}

	if removed, ok := resp.(bool); ok && !removed {
		return types.ErrNotFound
	}

	return nil
}

// flattenContents walks the "contents" tree of a web.get_torrent_files
// response collecting leaf paths.
func flattenContents(prefix string, node map[string]any) []string {
	contents, ok := node["contents"].(map[string]any)
	if !ok {
		// Leaf node: a file entry.
		if t, ok := node["type"].(string); ok && t == "file" {
			if path, ok := node["path"].(string); ok && path != "" {
				return []string{path}
			}
			return []string{prefix}
		}
		return nil
	}

	var names []string
	for name, child := range contents {
		childNode, ok := child.(map[string]any)
		if !ok {
			continue
		}
		childPath := name
		if prefix != "" {
			childPath = prefix + "/" + name
		}
		names = append(names, flattenContents(childPath, childNode)...)
	}
	return names
}

func (c *Client) authenticate(ctx context.Context) error {
	// The jar is created once and never reassigned: other goroutines
	// read it inside httpClient.Do without holding the mutex. auth.login
	// overwrites any stale session cookie in place.
	resp, err := c.doCall(ctx, "auth.login", []any{c.config.Password})
	if err != nil {
		return err
	}

	success, ok := resp.(bool)
	if !ok || !success {
		return types.ErrAuthFailed
	}

	connected, err := c.doCall(ctx, "web.connected", []any{})
	if err != nil {
		return err
	}

	if isConnected, ok := connected.(bool); ok && isConnected {
		return nil
	}

	return c.connectToDaemon(ctx)
}

func (c *Client) connectToDaemon(ctx context.Context) error {
	hostsResp, err := c.doCall(ctx, "web.get_hosts", []any{})
	if err != nil {
		return err
	}

	hosts, ok := hostsResp.([]any)
	if !ok {
		return fmt.Errorf("unexpected response from web.get_hosts")
	}

	hostID := findLocalHostID(hosts)
	if hostID == "" {
		return fmt.Errorf("no local daemon found")
	}

	_, err = c.doCall(ctx, "web.connect", []any{hostID})
	return err
}

func findLocalHostID(hosts []any) string {
	for _, h := range hosts {
		host, ok := h.([]any)
		if !ok || len(host) < 2 {
			continue
		}
		id, _ := host[0].(string)
		ip, _ := host[1].(string)
		if id != "" && ip == "127.0.0.1" {
			return id
		}
	}
	return ""
}

// call runs an RPC method, transparently re-authenticating once when the
// session expired. A second auth failure is surfaced to the caller.
func (c *Client) call(ctx context.Context, method string, params []any) (any, error) {
	result, err := c.doCall(ctx, method, params)
	if err != nil {
		if isAuthError(err) {
			if authErr := c.authenticate(ctx); authErr != nil {
				return nil, authErr
			}
			return c.doCall(ctx, method, params)
		}
		return nil, err
	}
	return result, nil
}

func (c *Client) doCall(ctx context.Context, method string, params []any) (any, error) {
	c.mu.Lock()
	c.requestID++
	reqID := c.requestID
	c.mu.Unlock()

	reqBody := map[string]any{
		"method": method,
		"params": params,
		"id":     reqID,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(), bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp struct {
		Result any              `json:"result"`
		Error  *json.RawMessage `json:"error"`
		ID     int              `json:"id"`
	}

	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, c.parseRPCError(*rpcResp.Error)
	}

	return rpcResp.Result, nil
}

func (c *Client) buildURL() string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}

	urlPath := "/json"
	if c.config.URLBase != "" {
		urlPath = "/" + strings.Trim(c.config.URLBase, "/") + "/json"
	}

	return fmt.Sprintf("%s://%s:%d%s", scheme, c.config.Host, c.config.Port, urlPath)
}

func (c *Client) parseRPCError(raw json.RawMessage) error {
	var errObj struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	}
	if err := json.Unmarshal(raw, &errObj); err == nil {
		// Codes 1 and 2 are "not authenticated" / "unknown session".
		if errObj.Code == 1 || errObj.Code == 2 {
			return &authError{msg: errObj.Message}
		}
		return fmt.Errorf("RPC error: %s (code %d)", errObj.Message, errObj.Code)
	}
	return fmt.Errorf("RPC error: %s", string(raw))
}

type authError struct {
	msg string
}

func (e *authError) Error() string {
	return e.msg
}

func (e *authError) Is(target error) bool {
	return target == types.ErrAuthFailed
}

func isAuthError(err error) bool {
	var authErr *authError
	return errors.As(err, &authErr)
}
