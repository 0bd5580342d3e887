// Package mock provides an in-memory download client for tests and
// developer mode.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/grabgate/grabgate/internal/downloader/types"
)

// Torrent is an in-memory torrent entry.
type Torrent struct {
	Hash  string
	Files []string
}

type Client struct {
	mu       sync.Mutex
	torrents map[string]Torrent

	// FindErr, FilesErr and RemoveErr override the next result of the
	// corresponding call when set.
	FindErr   error
	FilesErr  error
	RemoveErr error

	FindCalls   int
	FilesCalls  int
	RemoveCalls int
	Removed     []string
}

var _ types.Client = (*Client)(nil)

func NewFromConfig(_ *types.ClientConfig) *Client {
	return New()
}

func New() *Client {
	return &Client{torrents: make(map[string]Torrent)}
}

// AddTorrent seeds the client with a torrent.
func (c *Client) AddTorrent(hash string, files []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash = strings.ToLower(hash)
	c.torrents[hash] = Torrent{Hash: hash, Files: files}
}

func (c *Client) Type() types.ClientType {
	return types.ClientTypeMock
}

func (c *Client) Connect(_ context.Context) error {
	return nil
}

func (c *Client) FindByHash(_ context.Context, hash string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.FindCalls++
	if c.FindErr != nil {
		return "", c.FindErr
	}

	hash = strings.ToLower(hash)
	if _, ok := c.torrents[hash]; !ok {
		return "", types.ErrNotFound
	}
	return hash, nil
}

func (c *Client) Files(_ context.Context, id string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.FilesCalls++
	if c.FilesErr != nil {
		return nil, c.FilesErr
	}

	t, ok := c.torrents[strings.ToLower(id)]
	if !ok {
		return nil, types.ErrNotFound
	}
	return append([]string(nil), t.Files...), nil
}

func (c *Client) Remove(_ context.Context, id string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.RemoveCalls++
	if c.RemoveErr != nil {
		return c.RemoveErr
	}

	id = strings.ToLower(id)
	if _, ok := c.torrents[id]; !ok {
		return types.ErrNotFound
	}
	delete(c.torrents, id)
	c.Removed = append(c.Removed, id)
	return nil
}
