package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storeforge/storeforge/internal/model"
)

func appendAudit(t *testing.T, srv *Server, userID, action, storeID string) {
	t.Helper()
	entry := &model.AuditEntry{
		UserID:    userID,
		Action:    action,
		StoreID:   storeID,
		StoreName: "Shop",
		IPAddress: "127.0.0.1",
	}
	if err := srv.store.AppendAudit(context.Background(), entry); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
}

func TestListAuditFilters(t *testing.T) {
	srv, _ := newTestServer(t)

	appendAudit(t, srv, "alice", model.ActionStoreCreated, "store-1")
	appendAudit(t, srv, "alice", model.ActionStoreDeleted, "store-1")
	appendAudit(t, srv, "bob", model.ActionStoreCreated, "store-2")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	cases := []struct {
		name  string
		query string
		want  int
	}{
		{"all", "", 3},
		{"by user", "?user_id=alice", 2},
		{"by action", "?action=store_created", 2},
		{"user and action", "?user_id=alice&action=store_created", 1},
		{"no match", "?user_id=carol", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/v1/audit" + tc.query)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}

			var body listAuditResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Total != tc.want {
				t.Errorf("total = %d, want %d", body.Total, tc.want)
			}
		})
	}
}

func TestListAuditBadTimestamp(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/audit?from=yesterday")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestQuotaEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	seedStore(t, srv, "Shop A", "alice", model.StatusReady)
	seedStore(t, srv, "Shop B", "alice", model.StatusProvisioning)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/audit/quota/alice")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body quotaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Used != 2 {
		t.Errorf("used = %d, want 2", body.Used)
	}
	if body.Limit != 5 {
		t.Errorf("limit = %d, want 5", body.Limit)
	}
	if body.Remaining != 3 {
		t.Errorf("remaining = %d, want 3", body.Remaining)
	}
}

func TestActivityEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	st := seedStore(t, srv, "Shop", "alice", model.StatusReady)

	for _, typ := range []string{model.EventProvisioningStarted, model.EventPodRunning, model.EventProvisioningComplete} {
		ev := &model.Event{StoreID: st.ID, Type: typ, Message: typ, Severity: model.SeverityInfo}
		if err := srv.store.AppendEvent(context.Background(), ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/activity?limit=2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body activityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(body.Events))
	}
	// Newest first.
	if body.Events[0].Type != model.EventProvisioningComplete {
		t.Errorf("first event = %q, want provisioning_complete", body.Events[0].Type)
	}
	if body.Events[0].StoreName != "Shop" {
		t.Errorf("store name = %q, want Shop", body.Events[0].StoreName)
	}
}
