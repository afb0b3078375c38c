package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storeforge/storeforge/internal/cluster"
	"github.com/storeforge/storeforge/internal/model"
	"github.com/storeforge/storeforge/internal/seed"
	"github.com/storeforge/storeforge/internal/store"
)

// Options carries the engine's timing knobs and URL naming scheme.
type Options struct {
	// IngressDomain and IngressPort drive the deterministic store address:
	// http://<store-id>.<domain>:<port>.
	IngressDomain string
	IngressPort   int

	PodPollInterval time.Duration
	JobPollInterval time.Duration
	PodWaitBudget   time.Duration
	JobWaitBudget   time.Duration
}

// Engine orchestrates asynchronous store provisioning and deletion. Each
// Provision or Delete call runs as its own goroutine with an error boundary
// at the pipeline edge: failures become a status transition plus an event,
// never a propagated error.
type Engine struct {
	store     store.Store
	installer cluster.Installer
	prober    cluster.Prober
	seeder    seed.Seeder
	logger    *slog.Logger
	opts      Options

	wg sync.WaitGroup

	// base is the lifetime context for all pipelines; cancelled on Close so
	// polling loops unwind at shutdown.
	base   context.Context
	cancel context.CancelFunc
}

// New creates a lifecycle engine. The capability interfaces are injected so
// tests can run full pipelines against fakes.
func New(s store.Store, installer cluster.Installer, prober cluster.Prober, seeder seed.Seeder, logger *slog.Logger, opts Options) *Engine {
	base, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:     s,
		installer: installer,
		prober:    prober,
		seeder:    seeder,
		logger:    logger,
		opts:      opts,
		base:      base,
		cancel:    cancel,
	}
}

// Provision launches the provisioning pipeline for an already-created store
// record and returns immediately.
func (e *Engine) Provision(storeID, displayName string) {
	e.wg.Go(func() {
		e.provision(e.base, storeID, displayName)
	})
}

// Delete launches the deletion pipeline for a store already marked deleting
// and returns immediately.
func (e *Engine) Delete(storeID string) {
	e.wg.Go(func() {
		e.delete(e.base, storeID)
	})
}

// Wait blocks until all in-flight pipelines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close cancels all in-flight pipelines and waits for them to unwind.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// storeURL computes the externally reachable address for a store from its
// identifier.
func (e *Engine) storeURL(storeID string) string {
	return fmt.Sprintf("http://%s.%s:%d", storeID, e.opts.IngressDomain, e.opts.IngressPort)
}

// provision runs the provisioning pipeline:
// install -> pod running -> setup job -> seed -> ready.
func (e *Engine) provision(ctx context.Context, storeID, displayName string) {
	e.logger.Info("provisioning started", "store_id", storeID, "name", displayName)

	if err := e.progress(ctx, storeID, "installing workload"); err != nil {
		e.logger.Error("set provisioning status", "store_id", storeID, "error", err)
		e.fail(ctx, storeID, fmt.Sprintf("failed to start provisioning: %v", err))
		return
	}
	e.event(ctx, storeID, model.EventProvisioningStarted, "Starting storefront provisioning", model.SeverityInfo)

	result, err := e.installer.Install(ctx, storeID, displayName)
	if err != nil {
		e.fail(ctx, storeID, fmt.Sprintf("workload install failed: %v", err))
		return
	}
	namespace := result.Namespace
	if namespace == "" {
		namespace = storeID
	}
	e.event(ctx, storeID, model.EventWorkloadInstalled, "Workload release installed", model.SeverityInfo)

	url := e.storeURL(storeID)
	adminURL := url + "/wp-admin"

	if err := e.progress(ctx, storeID, "starting application"); err != nil {
		e.logger.Error("update status message", "store_id", storeID, "error", err)
	}

	running := pollUntil(ctx, e.opts.PodPollInterval, e.opts.PodWaitBudget, func(ctx context.Context) bool {
		ok, err := e.prober.PodRunning(ctx, namespace, cluster.StorefrontSelector)
		if err != nil {
			e.logger.Debug("pod probe", "store_id", storeID, "error", err)
			return false
		}
		return ok
	})
	if !running {
		e.fail(ctx, storeID, fmt.Sprintf("application pod did not reach running phase within %s", e.opts.PodWaitBudget))
		return
	}
	e.event(ctx, storeID, model.EventPodRunning, "Application pod is running", model.SeverityInfo)

	if err := e.progress(ctx, storeID, "configuring application"); err != nil {
		e.logger.Error("update status message", "store_id", storeID, "error", err)
	}

	// Setup job failure is degraded service, not a provisioning failure:
	// the store still goes ready, just without seeded content.
	switch e.waitForSetupJob(ctx, storeID, namespace) {
	case cluster.JobSucceeded:
		e.event(ctx, storeID, model.EventSetupComplete, "Store configured successfully", model.SeverityInfo)
		e.seedCatalog(ctx, storeID, displayName)
	default:
		e.logger.Warn("setup job did not succeed", "store_id", storeID)
		e.event(ctx, storeID, model.EventSetupFailed, "Store setup job failed", model.SeverityWarning)
	}

	applied, err := e.store.UpdateStatusFrom(ctx, storeID, model.StatusProvisioning, model.StatusReady, store.StatusUpdate{
		StatusMessage: strPtr(""),
		Error:         strPtr(""),
		URL:           strPtr(url),
		AdminURL:      strPtr(adminURL),
		Namespace:     strPtr(namespace),
	})
	if err != nil {
		e.logger.Error("transition to ready", "store_id", storeID, "error", err)
		return
	}
	if !applied {
		// The reaper (or a deletion request) won the race; do not resurrect.
		e.logger.Warn("store no longer provisioning, discarding ready transition", "store_id", storeID)
		provisionsTotal.WithLabelValues("discarded").Inc()
		return
	}

	e.event(ctx, storeID, model.EventProvisioningComplete, "Store ready at "+url, model.SeverityInfo)
	provisionsTotal.WithLabelValues("ready").Inc()
	e.logger.Info("provisioning complete", "store_id", storeID, "url", url)
}

// waitForSetupJob polls the setup job until it reaches a terminal state or
// the wait budget runs out. A timeout is reported as pending.
func (e *Engine) waitForSetupJob(ctx context.Context, storeID, namespace string) cluster.JobState {
	jobName := storeID + "-setup"
	state := cluster.JobPending

	pollUntil(ctx, e.opts.JobPollInterval, e.opts.JobWaitBudget, func(ctx context.Context) bool {
		s, err := e.prober.JobStatus(ctx, namespace, jobName)
		if err != nil {
			e.logger.Debug("job probe", "store_id", storeID, "error", err)
			return false
		}
		state = s
		return s != cluster.JobPending
	})

	return state
}

// seedCatalog invokes the catalog seeder. Seeding is best-effort: failure
// produces a warning event and never fails the store.
func (e *Engine) seedCatalog(ctx context.Context, storeID, displayName string) {
	if err := e.progress(ctx, storeID, "generating content"); err != nil {
		e.logger.Error("update status message", "store_id", storeID, "error", err)
	}

	if err := e.seeder.Seed(ctx, storeID, displayName); err != nil {
		e.logger.Warn("catalog seeding failed", "store_id", storeID, "error", err)
		e.event(ctx, storeID, model.EventSeedFailed, fmt.Sprintf("Catalog seeding failed: %v", err), model.SeverityWarning)
	}
}

// delete runs the deletion pipeline for a store already in deleting status.
// Uninstall failures are logged and reported as an event, but the record
// always reaches deleted: leaked cluster resources must not block teardown.
func (e *Engine) delete(ctx context.Context, storeID string) {
	e.logger.Info("deletion started", "store_id", storeID)
	e.event(ctx, storeID, model.EventDeletionStarted, "Starting store deletion", model.SeverityInfo)

	uninstallErr := e.installer.Uninstall(ctx, storeID)
	if uninstallErr != nil {
		e.logger.Error("uninstall failed", "store_id", storeID, "error", uninstallErr)
	}

	applied, err := e.store.UpdateStatusFrom(ctx, storeID, model.StatusDeleting, model.StatusDeleted, store.StatusUpdate{
		StatusMessage: strPtr(""),
	})
	if err != nil {
		e.logger.Error("transition to deleted", "store_id", storeID, "error", err)
		return
	}
	if !applied {
		e.logger.Warn("store not in deleting status, skipping deleted transition", "store_id", storeID)
		return
	}

	if uninstallErr != nil {
		e.event(ctx, storeID, model.EventDeletionFailed, fmt.Sprintf("Workload uninstall failed: %v", uninstallErr), model.SeverityError)
		deletionsTotal.WithLabelValues("leaked").Inc()
	} else {
		e.event(ctx, storeID, model.EventDeletionComplete, "Store deleted successfully", model.SeverityInfo)
		deletionsTotal.WithLabelValues("clean").Inc()
	}
	e.logger.Info("deletion complete", "store_id", storeID)
}

// progress updates the status message of a store that is still
// provisioning. The guarded write never touches a row the reaper or a
// deletion request already moved on.
func (e *Engine) progress(ctx context.Context, storeID, message string) error {
	_, err := e.store.UpdateStatusFrom(ctx, storeID, model.StatusProvisioning, model.StatusProvisioning, store.StatusUpdate{
		StatusMessage: strPtr(message),
	})
	return err
}

// fail transitions a store to failed with the given reason, provided it is
// still provisioning. A store the reaper already failed is left untouched.
func (e *Engine) fail(ctx context.Context, storeID, reason string) {
	applied, err := e.store.UpdateStatusFrom(ctx, storeID, model.StatusProvisioning, model.StatusFailed, store.StatusUpdate{
		StatusMessage: strPtr(""),
		Error:         strPtr(reason),
	})
	if err != nil {
		e.logger.Error("transition to failed", "store_id", storeID, "error", err)
		return
	}
	if !applied {
		e.logger.Warn("store no longer provisioning, skipping failed transition", "store_id", storeID)
		return
	}

	e.event(ctx, storeID, model.EventProvisioningFailed, reason, model.SeverityError)
	provisionsTotal.WithLabelValues("failed").Inc()
	e.logger.Error("provisioning failed", "store_id", storeID, "reason", reason)
}

// event appends a lifecycle event. Event persistence failures are logged
// and swallowed so they never abort a pipeline step.
func (e *Engine) event(ctx context.Context, storeID, eventType, message, severity string) {
	ev := &model.Event{
		StoreID:  storeID,
		Type:     eventType,
		Message:  message,
		Severity: severity,
	}
	if err := e.store.AppendEvent(ctx, ev); err != nil {
		e.logger.Error("append event", "store_id", storeID, "event_type", eventType, "error", err)
	}
}

// pollUntil invokes fn at a fixed interval until it reports true, the wait
// budget is exhausted, or ctx is cancelled. fn runs once immediately.
func pollUntil(ctx context.Context, interval, budget time.Duration, fn func(context.Context) bool) bool {
	deadline := time.Now().Add(budget)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if fn(ctx) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func strPtr(s string) *string { return &s }
