package transmission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"

	"github.com/grabgate/grabgate/internal/downloader/types"
)

func createClientFromServer(t *testing.T, server *httptest.Server) *Client {
	t.Helper()

	parsedURL, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}

	portInt := 0
	if _, err := fmt.Sscanf(parsedURL.Port(), "%d", &portInt); err != nil {
		t.Fatalf("failed to parse port: %v", err)
	}

	return NewFromConfig(&types.ClientConfig{
		Host: parsedURL.Hostname(),
		Port: portInt,
	})
}

// sessionAware wraps a handler with Transmission's 409 session handshake.
func sessionAware(next func(w http.ResponseWriter, req rpcRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(sessionIDHeader) != "session-1" {
			w.Header().Set(sessionIDHeader, "session-1")
			w.WriteHeader(http.StatusConflict)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		next(w, req)
	}
}

func TestClient_Type(t *testing.T) {
	client := NewFromConfig(&types.ClientConfig{Host: "localhost", Port: 9091})

	if client.Type() != types.ClientTypeTransmission {
		t.Errorf("expected transmission, got %s", client.Type())
	}
}

func TestConnect_SessionHandshake(t *testing.T) {
	calls := 0
	server := httptest.NewServer(sessionAware(func(w http.ResponseWriter, req rpcRequest) {
		calls++
		if req.Method != "session-get" {
			t.Errorf("expected session-get, got %s", req.Method)
		}
		json.NewEncoder(w).Encode(rpcResponse{Result: "success"})
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected one authorized call after handshake, got %d", calls)
	}
}

func TestFindByHash(t *testing.T) {
	server := httptest.NewServer(sessionAware(func(w http.ResponseWriter, req rpcRequest) {
		json.NewEncoder(w).Encode(map[string]any{
			"result": "success",
			"arguments": map[string]any{
				"torrents": []map[string]any{
					{"hashString": "ABC123", "name": "Show.S01E01"},
				},
			},
		})
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	id, err := client.FindByHash(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "abc123" {
		t.Errorf("expected lowercase hash, got %q", id)
	}
}

func TestFindByHash_NotFound(t *testing.T) {
	server := httptest.NewServer(sessionAware(func(w http.ResponseWriter, req rpcRequest) {
		json.NewEncoder(w).Encode(map[string]any{
			"result":    "success",
			"arguments": map[string]any{"torrents": []any{}},
		})
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	_, err := client.FindByHash(context.Background(), "missing")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFiles(t *testing.T) {
	server := httptest.NewServer(sessionAware(func(w http.ResponseWriter, req rpcRequest) {
		if req.Method != "torrent-get" {
			t.Errorf("expected torrent-get, got %s", req.Method)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result": "success",
			"arguments": map[string]any{
				"torrents": []map[string]any{
					{"files": []map[string]any{
						{"name": "Show.S01/Show.S01E01.mkv"},
						{"name": "Show.S01/shortcut.lnk"},
					}},
				},
			},
		})
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	files, err := client.Files(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"Show.S01/Show.S01E01.mkv", "Show.S01/shortcut.lnk"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("expected %v, got %v", want, files)
	}
}

func TestRemove(t *testing.T) {
	var gotReq rpcRequest
	server := httptest.NewServer(sessionAware(func(w http.ResponseWriter, req rpcRequest) {
		gotReq = req
		json.NewEncoder(w).Encode(rpcResponse{Result: "success"})
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	if err := client.Remove(context.Background(), "ABC123", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotReq.Method != "torrent-remove" {
		t.Errorf("expected torrent-remove, got %s", gotReq.Method)
	}
	if gotReq.Arguments["delete-local-data"] != true {
		t.Error("expected delete-local-data=true")
	}
}

func TestCall_RPCError(t *testing.T) {
	server := httptest.NewServer(sessionAware(func(w http.ResponseWriter, req rpcRequest) {
		json.NewEncoder(w).Encode(rpcResponse{Result: "method not recognized"})
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	if err := client.Connect(context.Background()); err == nil {
		t.Error("expected error for non-success result")
	}
}

func TestCall_AuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	err := client.Connect(context.Background())
	if !errors.Is(err, types.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}
