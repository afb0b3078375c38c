package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storeforge/storeforge/internal/engine"
	"github.com/storeforge/storeforge/internal/model"
	"github.com/storeforge/storeforge/internal/store"
)

func createExpiredStore(t *testing.T, s store.Store, name string) *model.Store {
	t.Helper()
	started := time.Now().UTC().Add(-20 * time.Minute)
	deadline := started.Add(10 * time.Minute)
	st := &model.Store{
		ID:                    model.NewStoreID(),
		Name:                  name,
		Status:                model.StatusProvisioning,
		OwnerID:               "default-user",
		CreatedAt:             started,
		UpdatedAt:             started,
		ProvisioningStartedAt: &started,
		ProvisioningDeadline:  &deadline,
	}
	if err := s.CreateStore(context.Background(), st); err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	return st
}

func newTestReaper(t *testing.T, inst *fakeInstaller) (*engine.Reaper, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return engine.NewReaper(s, inst, testLogger(), time.Minute), s
}

func TestReaperFailsExpiredStore(t *testing.T) {
	inst := &fakeInstaller{}
	reaper, s := newTestReaper(t, inst)

	st := createExpiredStore(t, s, "Slow Shop")
	if err := reaper.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got, err := s.GetStore(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("GetStore: %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Fatalf("Status = %q, want failed", got.Status)
	}
	if got.StatusMessage != "provisioning timeout exceeded" {
		t.Errorf("StatusMessage = %q, want %q", got.StatusMessage, "provisioning timeout exceeded")
	}
	if got.Error == "" {
		t.Error("Error empty, want timeout detail")
	}
	if inst.uninstallCount(st.ID) != 1 {
		t.Errorf("uninstall calls = %d, want 1", inst.uninstallCount(st.ID))
	}

	events, err := s.ListEvents(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].Type != model.EventProvisioningTimeout {
		t.Fatalf("events = %v, want single provisioning_timeout", eventTypes(t, s, st.ID))
	}
	if events[0].Severity != model.SeverityError {
		t.Errorf("severity = %q, want error", events[0].Severity)
	}
}

func TestReaperTickIsIdempotent(t *testing.T) {
	inst := &fakeInstaller{}
	reaper, s := newTestReaper(t, inst)

	st := createExpiredStore(t, s, "Slow Shop")
	if err := reaper.Tick(context.Background()); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	if err := reaper.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick: %v", err)
	}

	events, err := s.ListEvents(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("events after second tick = %d, want 1", len(events))
	}
	if inst.uninstallCount(st.ID) != 1 {
		t.Errorf("uninstall calls = %d, want 1", inst.uninstallCount(st.ID))
	}
}

func TestReaperIgnoresHealthyStores(t *testing.T) {
	inst := &fakeInstaller{}
	reaper, s := newTestReaper(t, inst)

	st := createProvisioningStore(t, s, "Fresh Shop")
	if err := reaper.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got, err := s.GetStore(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("GetStore: %v", err)
	}
	if got.Status != model.StatusProvisioning {
		t.Errorf("Status = %q, want still provisioning", got.Status)
	}
	if types := eventTypes(t, s, st.ID); len(types) != 0 {
		t.Errorf("events = %v, want none", types)
	}
}

func TestReaperContinuesPastUninstallError(t *testing.T) {
	inst := &fakeInstaller{uninstallErr: errors.New("cluster unreachable")}
	reaper, s := newTestReaper(t, inst)

	first := createExpiredStore(t, s, "Shop A")
	second := createExpiredStore(t, s, "Shop B")

	if err := reaper.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	for _, id := range []string{first.ID, second.ID} {
		got, err := s.GetStore(context.Background(), id)
		if err != nil {
			t.Fatalf("GetStore(%s): %v", id, err)
		}
		if got.Status != model.StatusFailed {
			t.Errorf("store %s status = %q, want failed despite uninstall error", id, got.Status)
		}
	}
}
