package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/storeforge/storeforge/internal/model"
	"github.com/storeforge/storeforge/internal/store"
)

// fakeOrchestrator records pipeline launches without running anything.
type fakeOrchestrator struct {
	mu          sync.Mutex
	provisioned []string
	deleted     []string
}

func (f *fakeOrchestrator) Provision(storeID, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provisioned = append(f.provisioned, storeID)
}

func (f *fakeOrchestrator) Delete(storeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, storeID)
}

func (f *fakeOrchestrator) provisionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.provisioned)
}

func (f *fakeOrchestrator) deleteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

func newTestServer(t *testing.T) (*Server, *fakeOrchestrator) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	orch := &fakeOrchestrator{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	srv := NewServer(":0", s, orch, logger, Options{
		MaxActiveStores:     10,
		OwnerQuota:          5,
		ProvisioningTimeout: 10 * time.Minute,
	})
	return srv, orch
}

// seedStore inserts a store record directly, bypassing the handlers.
func seedStore(t *testing.T, srv *Server, name, owner, status string) *model.Store {
	t.Helper()
	now := time.Now().UTC()
	deadline := now.Add(10 * time.Minute)
	st := &model.Store{
		ID:                    model.NewStoreID(),
		Name:                  name,
		Status:                status,
		OwnerID:               owner,
		CreatedAt:             now,
		UpdatedAt:             now,
		ProvisioningStartedAt: &now,
		ProvisioningDeadline:  &deadline,
	}
	if err := srv.store.CreateStore(context.Background(), st); err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	return st
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestPanicRecovery(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Router().Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/panic")
	if err != nil {
		t.Fatalf("GET /panic: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest("OPTIONS", ts.URL+"/v1/stores", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /v1/stores: %v", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
}

func TestCreateRateLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Distinct callers keep the per-user quota out of the way; the
	// creation rate limit is keyed on the client IP alone.
	var last int
	for i := range 6 {
		resp := postJSON(t, ts.URL+"/v1/stores", createStoreRequest{Name: fmt.Sprintf("Shop %d", i)}, map[string]string{
			"X-User-Id": fmt.Sprintf("user-%d", i),
		})
		last = resp.StatusCode
		resp.Body.Close()

		if i < 5 && last != http.StatusAccepted {
			t.Fatalf("request %d: status = %d, want 202", i, last)
		}
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("sixth creation status = %d, want 429", last)
	}
}
