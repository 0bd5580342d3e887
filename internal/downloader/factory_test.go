package downloader

import (
	"errors"
	"testing"
)

func TestNewClient_AllSupportedTypes(t *testing.T) {
	cfg := &ClientConfig{Host: "localhost", Port: 8080}

	for _, ct := range SupportedClientTypes() {
		client, err := NewClient(ct, cfg)
		if err != nil {
			t.Errorf("NewClient(%s) failed: %v", ct, err)
			continue
		}
		if client.Type() != ct {
			t.Errorf("expected type %s, got %s", ct, client.Type())
		}
	}
}

func TestNewClient_Mock(t *testing.T) {
	client, err := NewClient(ClientTypeMock, &ClientConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Type() != ClientTypeMock {
		t.Errorf("expected mock, got %s", client.Type())
	}
}

func TestNewClient_Unknown(t *testing.T) {
	_, err := NewClient("utorrent", &ClientConfig{})
	if !errors.Is(err, ErrUnsupportedClient) {
		t.Errorf("expected ErrUnsupportedClient, got %v", err)
	}
}

func TestParseClientType(t *testing.T) {
	tests := []struct {
		input   string
		want    ClientType
		wantErr bool
	}{
		{"qbittorrent", ClientTypeQBittorrent, false},
		{"transmission", ClientTypeTransmission, false},
		{"deluge", ClientTypeDeluge, false},
		{"mock", ClientTypeMock, false},
		{"QBittorrent", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseClientType(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseClientType(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClientType(%q): unexpected error %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseClientType(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}
