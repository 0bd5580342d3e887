// Package types defines shared types for download clients.
package types

import (
	"context"
	"errors"
)

// Common errors for download clients.
var (
	ErrNotConnected = errors.New("client not connected")
	ErrAuthFailed   = errors.New("authentication failed")
	ErrNotFound     = errors.New("torrent not found")
)

// ClientType represents the type of download client.
type ClientType string

const (
	ClientTypeQBittorrent  ClientType = "qbittorrent"
	ClientTypeTransmission ClientType = "transmission"
	ClientTypeDeluge       ClientType = "deluge"
	ClientTypeMock         ClientType = "mock" // Mock client for tests and developer mode
)

// ClientConfig holds common configuration for all download clients.
type ClientConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
	URLBase  string // URL prefix for clients behind a reverse proxy
}

// Client defines the capability set needed from a download client:
// resolve a torrent by its info hash, list its files, and remove it.
// Constructing a client never dials the remote; the first call does.
type Client interface {
	Type() ClientType

	// Connect validates connectivity and authentication. Used by health
	// checks; regular operations authenticate lazily on first use.
	Connect(ctx context.Context) error

	// FindByHash resolves an info hash to the client's torrent ID.
	// Returns ErrNotFound if the torrent is not (yet) known to the client.
	FindByHash(ctx context.Context, hash string) (string, error)

	// Files returns the file names contained in a torrent.
	// Returns ErrNotFound if the torrent is unknown; an empty slice means
	// the client knows the torrent but has not resolved its metadata yet.
	Files(ctx context.Context, id string) ([]string, error)

	// Remove deletes a torrent, optionally with its downloaded data.
	Remove(ctx context.Context, id string, deleteFiles bool) error
}
