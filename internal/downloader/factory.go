// Package downloader provides download client construction and selection.
package downloader

import (
	"errors"
	"fmt"

	"github.com/grabgate/grabgate/internal/downloader/deluge"
	"github.com/grabgate/grabgate/internal/downloader/mock"
	"github.com/grabgate/grabgate/internal/downloader/qbittorrent"
	"github.com/grabgate/grabgate/internal/downloader/transmission"
	"github.com/grabgate/grabgate/internal/downloader/types"
)

// Re-exported so callers outside this package don't need to import types.
type (
	Client       = types.Client
	ClientType   = types.ClientType
	ClientConfig = types.ClientConfig
)

const (
	ClientTypeQBittorrent  = types.ClientTypeQBittorrent
	ClientTypeTransmission = types.ClientTypeTransmission
	ClientTypeDeluge       = types.ClientTypeDeluge
	ClientTypeMock         = types.ClientTypeMock
)

// ErrUnsupportedClient is returned for unknown client types.
var ErrUnsupportedClient = errors.New("unsupported download client")

// NewClient creates a new download client of the specified type.
// Returns the client interface so callers can use polymorphism.
func NewClient(clientType ClientType, config *ClientConfig) (Client, error) {
	switch clientType {
	case ClientTypeQBittorrent:
		return qbittorrent.NewFromConfig(config), nil
	case ClientTypeTransmission:
		return transmission.NewFromConfig(config), nil
	case ClientTypeDeluge:
		return deluge.NewFromConfig(config), nil
	case ClientTypeMock:
		return mock.NewFromConfig(config), nil
	default:
		return nil, fmt.Errorf("%w: unknown client type %s", ErrUnsupportedClient, clientType)
	}
}

// SupportedClientTypes returns a list of all supported client types.
func SupportedClientTypes() []ClientType {
	return []ClientType{
		ClientTypeQBittorrent,
		ClientTypeTransmission,
		ClientTypeDeluge,
	}
}

// ParseClientType validates a configured client type string.
func ParseClientType(s string) (ClientType, error) {
	for _, ct := range SupportedClientTypes() {
		if string(ct) == s {
			return ct, nil
		}
	}
	if s == string(ClientTypeMock) {
		return ClientTypeMock, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedClient, s)
}
