package coordinator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	apicoordinator "github.com/tiger/push-call-responder/api/coordinator"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   []byte
}

func newRecordingServer(t *testing.T, status int) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	requests := []recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			body:   body,
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	return server, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedRequest, len(requests))
		copy(out, requests)
		return out
	}
}

func TestSendCallResponse(t *testing.T) {
	t.Parallel()

	server, recorded := newRecordingServer(t, http.StatusOK)
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "key-1"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	response := apicoordinator.CallResponse{
		ReportID:  "rep-1",
		Available: true,
		Payload:   map[string]any{"type": "call", "call_id": "c-1"},
	}
	if err := client.SendCallResponse(context.Background(), response); err != nil {
		t.Fatalf("send call response: %v", err)
	}

	requests := recorded()
	if len(requests) != 1 {
		t.Fatalf("expected one request, got %d", len(requests))
	}
	req := requests[0]
	if req.method != http.MethodPost || req.path != "/v1/call-responses" {
		t.Fatalf("unexpected route: %s %s", req.method, req.path)
	}
	if req.auth != "key-1" {
		t.Fatalf("missing api key header")
	}

	var body apicoordinator.CallResponse
	if err := json.Unmarshal(req.body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if !body.Available || body.Payload["call_id"] != "c-1" {
		t.Fatalf("payload not echoed for correlation: %+v", body)
	}
}

func TestDeviceRegistrationRoutes(t *testing.T) {
	t.Parallel()

	server, recorded := newRecordingServer(t, http.StatusNoContent)
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	registration := apicoordinator.DeviceRegistration{PushToken: "tok-1", AccountID: "acct-1"}
	if err := client.UpsertDeviceRegistration(context.Background(), registration); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := client.DeleteDeviceRegistration(context.Background(), registration); err != nil {
		t.Fatalf("delete: %v", err)
	}

	requests := recorded()
	if len(requests) != 2 {
		t.Fatalf("expected two requests, got %d", len(requests))
	}
	if requests[0].method != http.MethodPut || requests[0].path != "/v1/device-registrations" {
		t.Fatalf("unexpected upsert route: %s %s", requests[0].method, requests[0].path)
	}
	if requests[1].method != http.MethodDelete || requests[1].path != "/v1/device-registrations" {
		t.Fatalf("unexpected delete route: %s %s", requests[1].method, requests[1].path)
	}
}

func TestClientNormalizesFailures(t *testing.T) {
	t.Parallel()

	server, _ := newRecordingServer(t, http.StatusForbidden)
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	registration := apicoordinator.DeviceRegistration{PushToken: "tok-2", AccountID: "acct-2"}
	err = client.UpsertDeviceRegistration(context.Background(), registration)
	if err == nil || !strings.Contains(err.Error(), "coordinator_auth_rejected") {
		t.Fatalf("expected auth rejection, got %v", err)
	}

	server.Close()
	err = client.UpsertDeviceRegistration(context.Background(), registration)
	if err == nil || !strings.Contains(err.Error(), "coordinator_transport_error") {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestClientValidatesBeforeSending(t *testing.T) {
	t.Parallel()

	server, recorded := newRecordingServer(t, http.StatusOK)
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.SendCallResponse(context.Background(), apicoordinator.CallResponse{ReportID: "r"}); err == nil {
		t.Fatalf("expected invalid response to fail before sending")
	}
	if err := client.DeleteDeviceRegistration(context.Background(), apicoordinator.DeviceRegistration{PushToken: "tok"}); err == nil {
		t.Fatalf("expected invalid registration to fail before sending")
	}
	if got := recorded(); len(got) != 0 {
		t.Fatalf("invalid artifacts must not reach the wire, got %d requests", len(got))
	}
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}, nil); err == nil {
		t.Fatalf("expected empty base url to fail")
	}
	if _, err := NewClient(Config{BaseURL: "coordinator.local"}, nil); err == nil {
		t.Fatalf("expected schemeless base url to fail")
	}
}
