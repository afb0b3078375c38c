package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/storeforge/storeforge/internal/cluster"
	"github.com/storeforge/storeforge/internal/engine"
	"github.com/storeforge/storeforge/internal/model"
	"github.com/storeforge/storeforge/internal/store"
)

// fakeInstaller is a configurable installer for engine tests.
type fakeInstaller struct {
	mu            sync.Mutex
	installErr    error
	uninstallErr  error
	installGate   chan struct{}
	installCalls  int
	uninstalled   []string
}

func (f *fakeInstaller) Install(ctx context.Context, storeID, _ string) (cluster.InstallResult, error) {
	f.mu.Lock()
	f.installCalls++
	gate := f.installGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return cluster.InstallResult{}, ctx.Err()
		}
	}
	if f.installErr != nil {
		return cluster.InstallResult{}, f.installErr
	}
	return cluster.InstallResult{
		Namespace: storeID,
		Secrets:   map[string]string{"mysql-password": "secret"},
	}, nil
}

func (f *fakeInstaller) Uninstall(_ context.Context, storeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uninstalled = append(f.uninstalled, storeID)
	return f.uninstallErr
}

func (f *fakeInstaller) Status(context.Context, string) (cluster.ReleaseState, error) {
	return cluster.ReleaseDeployed, nil
}

func (f *fakeInstaller) uninstallCount(storeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.uninstalled {
		if id == storeID {
			n++
		}
	}
	return n
}

// fakeProber reports fixed readiness answers.
type fakeProber struct {
	podRunning bool
	jobState   cluster.JobState
}

func (f *fakeProber) PodRunning(context.Context, string, string) (bool, error) {
	return f.podRunning, nil
}

func (f *fakeProber) JobStatus(context.Context, string, string) (cluster.JobState, error) {
	return f.jobState, nil
}

func (f *fakeProber) PodName(context.Context, string, string) (string, error) {
	return "storefront-1", nil
}

// fakeSeeder records invocations.
type fakeSeeder struct {
	mu     sync.Mutex
	err    error
	stores []string
}

func (f *fakeSeeder) Seed(_ context.Context, storeID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stores = append(f.stores, storeID)
	return f.err
}

func (f *fakeSeeder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stores)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testOptions() engine.Options {
	return engine.Options{
		IngressDomain:   "127.0.0.1.nip.io",
		IngressPort:     8080,
		PodPollInterval: 5 * time.Millisecond,
		JobPollInterval: 5 * time.Millisecond,
		PodWaitBudget:   100 * time.Millisecond,
		JobWaitBudget:   100 * time.Millisecond,
	}
}

func newTestEngine(t *testing.T, inst *fakeInstaller, prober *fakeProber, seeder *fakeSeeder) (*engine.Engine, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	eng := engine.New(s, inst, prober, seeder, testLogger(), testOptions())
	return eng, s
}

func createProvisioningStore(t *testing.T, s store.Store, name string) *model.Store {
	t.Helper()
	now := time.Now().UTC()
	deadline := now.Add(10 * time.Minute)
	st := &model.Store{
		ID:                    model.NewStoreID(),
		Name:                  name,
		Status:                model.StatusProvisioning,
		OwnerID:               "default-user",
		CreatedAt:             now,
		UpdatedAt:             now,
		ProvisioningStartedAt: &now,
		ProvisioningDeadline:  &deadline,
	}
	if err := s.CreateStore(context.Background(), st); err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	return st
}

// waitForStatus polls the store until the record reaches the expected status.
func waitForStatus(t *testing.T, s store.Store, id, expected string, timeout time.Duration) *model.Store {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		st, err := s.GetStore(context.Background(), id)
		if err != nil {
			t.Fatalf("GetStore: %v", err)
		}
		if st.Status == expected {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("store %s did not reach status %q within %v", id, expected, timeout)
	return nil
}

func eventTypes(t *testing.T, s store.Store, id string) []string {
	t.Helper()
	events, err := s.ListEvents(context.Background(), id)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func assertEventOrder(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestProvisionHappyPath(t *testing.T) {
	inst := &fakeInstaller{}
	seeder := &fakeSeeder{}
	eng, s := newTestEngine(t, inst, &fakeProber{podRunning: true, jobState: cluster.JobSucceeded}, seeder)

	st := createProvisioningStore(t, s, "Shop")
	eng.Provision(st.ID, st.Name)
	eng.Wait()

	got := waitForStatus(t, s, st.ID, model.StatusReady, time.Second)
	if got.URL == "" || got.AdminURL == "" {
		t.Errorf("URL = %q, AdminURL = %q, want both populated", got.URL, got.AdminURL)
	}
	if got.Namespace != st.ID {
		t.Errorf("Namespace = %q, want %q", got.Namespace, st.ID)
	}
	if got.StatusMessage != "" {
		t.Errorf("StatusMessage = %q, want cleared", got.StatusMessage)
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want cleared", got.Error)
	}
	if seeder.calls() != 1 {
		t.Errorf("seeder calls = %d, want 1", seeder.calls())
	}

	assertEventOrder(t, eventTypes(t, s, st.ID), []string{
		model.EventProvisioningStarted,
		model.EventWorkloadInstalled,
		model.EventPodRunning,
		model.EventSetupComplete,
		model.EventProvisioningComplete,
	})
}

func TestProvisionInstallFailure(t *testing.T) {
	inst := &fakeInstaller{installErr: errors.New("chart render exploded")}
	seeder := &fakeSeeder{}
	eng, s := newTestEngine(t, inst, &fakeProber{podRunning: true, jobState: cluster.JobSucceeded}, seeder)

	st := createProvisioningStore(t, s, "Shop")
	eng.Provision(st.ID, st.Name)
	eng.Wait()

	got := waitForStatus(t, s, st.ID, model.StatusFailed, time.Second)
	if got.Error == "" {
		t.Error("Error empty, want install failure detail")
	}
	if seeder.calls() != 0 {
		t.Errorf("seeder calls = %d, want 0", seeder.calls())
	}

	types := eventTypes(t, s, st.ID)
	assertEventOrder(t, types, []string{
		model.EventProvisioningStarted,
		model.EventProvisioningFailed,
	})

	events, err := s.ListEvents(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if events[1].Severity != model.SeverityError {
		t.Errorf("provisioning_failed severity = %q, want error", events[1].Severity)
	}
}

func TestProvisionPodNeverRuns(t *testing.T) {
	eng, s := newTestEngine(t, &fakeInstaller{}, &fakeProber{podRunning: false}, &fakeSeeder{})

	st := createProvisioningStore(t, s, "Shop")
	eng.Provision(st.ID, st.Name)
	eng.Wait()

	got := waitForStatus(t, s, st.ID, model.StatusFailed, time.Second)
	if got.Error == "" {
		t.Error("Error empty, want pod startup failure detail")
	}

	assertEventOrder(t, eventTypes(t, s, st.ID), []string{
		model.EventProvisioningStarted,
		model.EventWorkloadInstalled,
		model.EventProvisioningFailed,
	})
}

func TestProvisionSetupJobFails(t *testing.T) {
	seeder := &fakeSeeder{}
	eng, s := newTestEngine(t, &fakeInstaller{}, &fakeProber{podRunning: true, jobState: cluster.JobFailed}, seeder)

	st := createProvisioningStore(t, s, "Shop")
	eng.Provision(st.ID, st.Name)
	eng.Wait()

	// Setup failure is degraded, not fatal: the store still goes ready.
	waitForStatus(t, s, st.ID, model.StatusReady, time.Second)

	if seeder.calls() != 0 {
		t.Errorf("seeder calls = %d, want 0 after setup failure", seeder.calls())
	}

	events, err := s.ListEvents(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	var sawSetupFailed bool
	for _, ev := range events {
		if ev.Type == model.EventSetupFailed {
			sawSetupFailed = true
			if ev.Severity != model.SeverityWarning {
				t.Errorf("setup_failed severity = %q, want warning", ev.Severity)
			}
		}
	}
	if !sawSetupFailed {
		t.Errorf("events = %v, want setup_failed present", eventTypes(t, s, st.ID))
	}
}

func TestProvisionSeederFailureStillReady(t *testing.T) {
	seeder := &fakeSeeder{err: errors.New("wp-cli unreachable")}
	eng, s := newTestEngine(t, &fakeInstaller{}, &fakeProber{podRunning: true, jobState: cluster.JobSucceeded}, seeder)

	st := createProvisioningStore(t, s, "Shop")
	eng.Provision(st.ID, st.Name)
	eng.Wait()

	waitForStatus(t, s, st.ID, model.StatusReady, time.Second)

	var sawSeedFailed bool
	for _, typ := range eventTypes(t, s, st.ID) {
		if typ == model.EventSeedFailed {
			sawSeedFailed = true
		}
	}
	if !sawSeedFailed {
		t.Errorf("events = %v, want seed_failed present", eventTypes(t, s, st.ID))
	}
}

func TestLateReadyWriteDoesNotResurrectReapedStore(t *testing.T) {
	gate := make(chan struct{})
	inst := &fakeInstaller{installGate: gate}
	eng, s := newTestEngine(t, inst, &fakeProber{podRunning: true, jobState: cluster.JobSucceeded}, &fakeSeeder{})

	st := createProvisioningStore(t, s, "Shop")
	eng.Provision(st.ID, st.Name)

	// Wait for the pipeline to reach the blocked install call.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		inst.mu.Lock()
		calls := inst.installCalls
		inst.mu.Unlock()
		if calls > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Reaper force-fails the store while the pipeline is mid-flight.
	applied, err := s.UpdateStatusFrom(context.Background(), st.ID, model.StatusProvisioning, model.StatusFailed, store.StatusUpdate{
		StatusMessage: strPtr("provisioning timeout exceeded"),
	})
	if err != nil || !applied {
		t.Fatalf("UpdateStatusFrom: applied=%v err=%v", applied, err)
	}

	close(gate)
	eng.Wait()

	got, err := s.GetStore(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("GetStore: %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Errorf("Status = %q, want failed (late ready write must be discarded)", got.Status)
	}
	for _, typ := range eventTypes(t, s, st.ID) {
		if typ == model.EventProvisioningComplete {
			t.Error("provisioning_complete emitted for a reaped store")
		}
	}
}

func TestDeleteHappyPath(t *testing.T) {
	inst := &fakeInstaller{}
	eng, s := newTestEngine(t, inst, &fakeProber{}, &fakeSeeder{})

	st := createProvisioningStore(t, s, "Shop")
	mustSetStatus(t, s, st.ID, model.StatusReady)
	mustSetStatus(t, s, st.ID, model.StatusDeleting)

	eng.Delete(st.ID)
	eng.Wait()

	waitForStatus(t, s, st.ID, model.StatusDeleted, time.Second)
	if inst.uninstallCount(st.ID) != 1 {
		t.Errorf("uninstall calls = %d, want 1", inst.uninstallCount(st.ID))
	}

	assertEventOrder(t, eventTypes(t, s, st.ID), []string{
		model.EventDeletionStarted,
		model.EventDeletionComplete,
	})
}

func TestDeleteUninstallFailure(t *testing.T) {
	inst := &fakeInstaller{uninstallErr: errors.New("cluster unreachable")}
	eng, s := newTestEngine(t, inst, &fakeProber{}, &fakeSeeder{})

	st := createProvisioningStore(t, s, "Shop")
	mustSetStatus(t, s, st.ID, model.StatusReady)
	mustSetStatus(t, s, st.ID, model.StatusDeleting)

	eng.Delete(st.ID)
	eng.Wait()

	// The record still reaches deleted; the leak is reported as an event.
	waitForStatus(t, s, st.ID, model.StatusDeleted, time.Second)

	events, err := s.ListEvents(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	assertEventOrder(t, eventTypes(t, s, st.ID), []string{
		model.EventDeletionStarted,
		model.EventDeletionFailed,
	})
	if events[1].Severity != model.SeverityError {
		t.Errorf("deletion_failed severity = %q, want error", events[1].Severity)
	}
}

func TestCloseCancelsPolling(t *testing.T) {
	// Pod never runs; Close must unwind the polling pipeline early.
	eng, s := newTestEngine(t, &fakeInstaller{}, &fakeProber{podRunning: false}, &fakeSeeder{})

	st := createProvisioningStore(t, s, "Shop")
	eng.Provision(st.ID, st.Name)

	done := make(chan struct{})
	go func() {
		eng.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return while pipeline was polling")
	}
}

func mustSetStatus(t *testing.T, s store.Store, id, status string) {
	t.Helper()
	if err := s.UpdateStatus(context.Background(), id, status, store.StatusUpdate{}); err != nil {
		t.Fatalf("UpdateStatus(%s): %v", status, err)
	}
}

func strPtr(v string) *string { return &v }
