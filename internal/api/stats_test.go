package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storeforge/storeforge/internal/model"
	"github.com/storeforge/storeforge/internal/store"
)

func TestStatsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var stats store.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("total = %d, want 0", stats.Total)
	}
}

func TestStatsPopulated(t *testing.T) {
	srv, _ := newTestServer(t)

	seedStore(t, srv, "Shop A", "alice", model.StatusReady)
	seedStore(t, srv, "Shop B", "bob", model.StatusProvisioning)
	seedStore(t, srv, "Shop C", "carol", model.StatusFailed)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var stats store.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
	if stats.Ready != 1 {
		t.Errorf("ready = %d, want 1", stats.Ready)
	}
	if stats.Provisioning != 1 {
		t.Errorf("provisioning = %d, want 1", stats.Provisioning)
	}
	if stats.Failed != 1 {
		t.Errorf("failed = %d, want 1", stats.Failed)
	}
}
