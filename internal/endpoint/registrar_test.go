package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPRegistrarReportsReadyOnSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode registration body: %v", err)
		}
		if body["account_id"] != "acct-1" {
			t.Errorf("unexpected account_id %q", body["account_id"])
		}
		if r.Header.Get("Authorization") != "key-1" {
			t.Errorf("missing api key header")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registrar, err := NewHTTPRegistrar(Config{
		Endpoint:  server.URL,
		AccountID: "acct-1",
		APIKey:    "key-1",
	}, nil)
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}
	if !registrar.Register(context.Background()) {
		t.Fatalf("expected successful registration")
	}
}

func TestHTTPRegistrarFoldsFailuresToNotReady(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	registrar, err := NewHTTPRegistrar(Config{Endpoint: server.URL, AccountID: "acct-2"}, nil)
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}
	if registrar.Register(context.Background()) {
		t.Fatalf("expected 503 to report not ready")
	}

	refusing, err := NewHTTPRegistrar(Config{Endpoint: server.URL, AccountID: "acct-2"}, clientFunc(func(_ *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("connection refused")
	}))
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}
	if refusing.Register(context.Background()) {
		t.Fatalf("expected transport error to report not ready")
	}
}

func TestHTTPRegistrarHonorsTimeout(t *testing.T) {
	t.Parallel()

	// release lets the handler return once Register has given up; the body
	// is drained first so the connection can observe the client disconnect.
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-release
	}))
	defer server.Close()

	registrar, err := NewHTTPRegistrar(Config{
		Endpoint:  server.URL,
		AccountID: "acct-3",
		Timeout:   50 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}

	done := make(chan bool, 1)
	go func() { done <- registrar.Register(context.Background()) }()

	select {
	case ready := <-done:
		if ready {
			t.Fatalf("expected timed-out registration to report not ready")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("registration did not respect its timeout")
	}
	close(release)
}

func TestNewHTTPRegistrarValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPRegistrar(Config{AccountID: "a"}, nil); err == nil {
		t.Fatalf("expected missing endpoint to fail")
	}
	if _, err := NewHTTPRegistrar(Config{Endpoint: "http://x"}, nil); err == nil {
		t.Fatalf("expected missing account_id to fail")
	}
}

type clientFunc func(req *http.Request) (*http.Response, error)

func (f clientFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }
