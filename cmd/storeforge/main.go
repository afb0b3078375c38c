package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/storeforge/storeforge/internal/api"
	"github.com/storeforge/storeforge/internal/cluster/kube"
	"github.com/storeforge/storeforge/internal/config"
	"github.com/storeforge/storeforge/internal/engine"
	"github.com/storeforge/storeforge/internal/seed"
	"github.com/storeforge/storeforge/internal/store"
)

func main() {
	// Optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("storeforge: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"ingress_domain", cfg.IngressDomain,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	client, err := kube.NewClient()
	if err != nil {
		log.Fatalf("failed to connect to cluster: %v", err)
	}

	installer := kube.NewInstaller(client)
	prober := kube.NewProber(client)
	seeder := seed.NewPodSeeder(prober, kube.NewExec(client), logger)

	eng := engine.New(db, installer, prober, seeder, logger, engine.Options{
		IngressDomain:   cfg.IngressDomain,
		IngressPort:     cfg.IngressPort,
		PodPollInterval: cfg.PodPollInterval,
		JobPollInterval: cfg.JobPollInterval,
		PodWaitBudget:   cfg.PodWaitBudget,
		JobWaitBudget:   cfg.JobWaitBudget,
	})
	defer eng.Close()

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()

	reaper := engine.NewReaper(db, installer, logger, cfg.ReapInterval)
	go reaper.Run(reaperCtx)

	srv := api.NewServer(cfg.ListenAddr, db, eng, logger, api.Options{
		MaxActiveStores:     cfg.MaxActiveStores,
		OwnerQuota:          cfg.OwnerQuota,
		ProvisioningTimeout: cfg.ProvisioningTimeout,
	})

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
