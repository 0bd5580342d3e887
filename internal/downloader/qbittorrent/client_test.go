package qbittorrent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
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
		Host:     parsedURL.Hostname(),
		Port:     portInt,
		Username: "admin",
		Password: "secret",
	})
}

// loginHandler answers the auth endpoint and dispatches everything else.
func loginHandler(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/auth/login" {
			r.ParseForm()
			if r.FormValue("username") == "admin" && r.FormValue("password") == "secret" {
				w.Write([]byte("Ok."))
			} else {
				w.Write([]byte("Fails."))
			}
			return
		}
		next(w, r)
	}
}

func TestClient_Type(t *testing.T) {
	client := NewFromConfig(&types.ClientConfig{Host: "localhost", Port: 8080})

	if client.Type() != types.ClientTypeQBittorrent {
		t.Errorf("expected qbittorrent, got %s", client.Type())
	}
}

func TestConnect_Success(t *testing.T) {
	server := httptest.NewServer(loginHandler(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	if err := client.Connect(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestConnect_BadCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Fails."))
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	err := client.Connect(context.Background())
	if !errors.Is(err, types.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}

func TestConnect_SetsCSRFHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") == "" || r.Header.Get("Origin") == "" {
			t.Error("missing CSRF headers on login request")
		}
		w.Write([]byte("Ok."))
	}))
	defer server.Close()

	client := createClientFromServer(t, server)
	client.Connect(context.Background())
}

func TestFindByHash(t *testing.T) {
	server := httptest.NewServer(loginHandler(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/torrents/info" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"hash": "abc123", "name": "Show.S01E01"},
		})
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	id, err := client.FindByHash(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "abc123" {
		t.Errorf("expected lowercase hash, got %q", id)
	}
}

func TestFindByHash_NotFound(t *testing.T) {
	server := httptest.NewServer(loginHandler(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]any{})
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	_, err := client.FindByHash(context.Background(), "missing")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFiles(t *testing.T) {
	server := httptest.NewServer(loginHandler(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/torrents/files" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("hash") != "abc123" {
			t.Errorf("unexpected hash param: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"name": "Show.S01E01.mkv"},
			{"name": "shortcut.lnk"},
		})
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	files, err := client.Files(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 || files[1] != "shortcut.lnk" {
		t.Errorf("unexpected files: %v", files)
	}
}

func TestRemove(t *testing.T) {
	var gotForm url.Values
	server := httptest.NewServer(loginHandler(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/torrents/delete" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		r.ParseForm()
		gotForm = r.PostForm
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	if err := client.Remove(context.Background(), "ABC123", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotForm.Get("hashes") != "abc123" {
		t.Errorf("expected lowercase hash, got %q", gotForm.Get("hashes"))
	}
	if gotForm.Get("deleteFiles") != "true" {
		t.Errorf("expected deleteFiles=true, got %q", gotForm.Get("deleteFiles"))
	}
}

func TestSessionExpiry_ReauthenticatesOnce(t *testing.T) {
	logins := 0
	infoCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/auth/login":
			logins++
			w.Write([]byte("Ok."))
		case "/api/v2/torrents/info":
			infoCalls++
			// First data request hits an expired session.
			if infoCalls == 1 {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			json.NewEncoder(w).Encode([]map[string]any{{"hash": "abc123"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	id, err := client.FindByHash(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "abc123" {
		t.Errorf("unexpected id %q", id)
	}
	if logins != 2 {
		t.Errorf("expected re-login after 403, got %d logins", logins)
	}
}

func TestConcurrentCalls_SessionExpiry(t *testing.T) {
	var logins atomic.Int32
	var expiredOnce atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/auth/login":
			logins.Add(1)
			http.SetCookie(w, &http.Cookie{Name: "SID", Value: "session"})
			w.Write([]byte("Ok."))
		case "/api/v2/torrents/info":
			// Exactly one caller hits an expired session.
			if expiredOnce.CompareAndSwap(false, true) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			json.NewEncoder(w).Encode([]map[string]any{{"hash": "abc123"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.FindByHash(context.Background(), "abc123")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if logins.Load() < 2 {
		t.Errorf("expected a re-login after the expired session, got %d logins", logins.Load())
	}
}

func TestSessionExpiry_PersistentForbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/auth/login" {
			w.Write([]byte("Ok."))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := createClientFromServer(t, server)

	_, err := client.FindByHash(context.Background(), "abc123")
	if !errors.Is(err, types.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed after retry, got %v", err)
	}
}
