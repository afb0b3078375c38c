// testserver starts a storeforge API server against stub cluster adapters,
// so the full HTTP surface can be exercised without a Kubernetes cluster.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/storeforge/storeforge/internal/api"
	"github.com/storeforge/storeforge/internal/cluster"
	"github.com/storeforge/storeforge/internal/config"
	"github.com/storeforge/storeforge/internal/engine"
	"github.com/storeforge/storeforge/internal/store"
)

// stubInstaller simulates a cluster install with a short fixed delay.
type stubInstaller struct {
	delay time.Duration
}

func (s *stubInstaller) Install(ctx context.Context, storeID, _ string) (cluster.InstallResult, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return cluster.InstallResult{}, ctx.Err()
	}
	return cluster.InstallResult{
		Namespace: storeID,
		Secrets:   map[string]string{"mysql-password": "stub"},
	}, nil
}

func (s *stubInstaller) Uninstall(context.Context, string) error { return nil }

func (s *stubInstaller) Status(context.Context, string) (cluster.ReleaseState, error) {
	return cluster.ReleaseDeployed, nil
}

// stubProber reports everything as immediately healthy.
type stubProber struct{}

func (stubProber) PodRunning(context.Context, string, string) (bool, error) { return true, nil }

func (stubProber) JobStatus(context.Context, string, string) (cluster.JobState, error) {
	return cluster.JobSucceeded, nil
}

func (stubProber) PodName(context.Context, string, string) (string, error) {
	return "storefront-stub", nil
}

// stubSeeder skips catalog generation entirely.
type stubSeeder struct{}

func (stubSeeder) Seed(context.Context, string, string) error { return nil }

func main() {
	addr := ":8080"
	if v := os.Getenv("STOREFORGE_LISTEN_ADDR"); v != "" {
		addr = v
	}

	logger := config.NewLogger(os.Stdout, config.Load().LogLevel)

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	installer := &stubInstaller{delay: 200 * time.Millisecond}

	eng := engine.New(db, installer, stubProber{}, stubSeeder{}, logger, engine.Options{
		IngressDomain:   "127.0.0.1.nip.io",
		IngressPort:     8080,
		PodPollInterval: 50 * time.Millisecond,
		JobPollInterval: 50 * time.Millisecond,
		PodWaitBudget:   5 * time.Second,
		JobWaitBudget:   5 * time.Second,
	})
	defer eng.Close()

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()

	reaper := engine.NewReaper(db, installer, logger, 5*time.Second)
	go reaper.Run(reaperCtx)

	srv := api.NewServer(addr, db, eng, logger, api.Options{
		MaxActiveStores:     10,
		OwnerQuota:          5,
		ProvisioningTimeout: time.Minute,
	})

	logger.Info("testserver listening", "addr", addr)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
