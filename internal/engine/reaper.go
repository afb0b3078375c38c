package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storeforge/storeforge/internal/cluster"
	"github.com/storeforge/storeforge/internal/model"
	"github.com/storeforge/storeforge/internal/store"
)

// Reaper enforces the provisioning deadline. It runs as a single periodic
// task; ticks are processed serially, so two scans never overlap.
type Reaper struct {
	store     store.Store
	installer cluster.Installer
	logger    *slog.Logger
	interval  time.Duration
}

// NewReaper creates a reaper scanning at the given interval.
func NewReaper(s store.Store, installer cluster.Installer, logger *slog.Logger, interval time.Duration) *Reaper {
	return &Reaper{
		store:     s,
		installer: installer,
		logger:    logger,
		interval:  interval,
	}
}

// Run scans for timed-out stores until ctx is cancelled. A tick that takes
// longer than the interval simply delays the next one.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("timeout reaper started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("timeout reaper stopped")
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.logger.Error("reaper tick", "error", err)
			}
		}
	}
}

// Tick performs one scan: every store still provisioning past its deadline
// is force-failed, gets a timeout event, and has its cluster resources
// reclaimed best-effort. A store another writer already moved out of
// provisioning is skipped, which makes repeated ticks idempotent.
func (r *Reaper) Tick(ctx context.Context) error {
	timedOut, err := r.store.ListTimedOut(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("list timed out stores: %w", err)
	}
	if len(timedOut) == 0 {
		return nil
	}

	r.logger.Info("found timed-out stores", "count", len(timedOut))

	for _, st := range timedOut {
		r.reap(ctx, st)
	}
	return nil
}

func (r *Reaper) reap(ctx context.Context, st *model.Store) {
	applied, err := r.store.UpdateStatusFrom(ctx, st.ID, model.StatusProvisioning, model.StatusFailed, store.StatusUpdate{
		StatusMessage: strPtr("provisioning timeout exceeded"),
		Error:         strPtr("provisioning timeout exceeded"),
	})
	if err != nil {
		r.logger.Error("force-fail store", "store_id", st.ID, "error", err)
		return
	}
	if !applied {
		// Lost the race against the pipeline or a deletion request.
		return
	}

	r.logger.Warn("store exceeded provisioning deadline", "store_id", st.ID, "name", st.Name)

	ev := &model.Event{
		StoreID:  st.ID,
		Type:     model.EventProvisioningTimeout,
		Message:  "Provisioning exceeded the deadline",
		Severity: model.SeverityError,
	}
	if err := r.store.AppendEvent(ctx, ev); err != nil {
		r.logger.Error("append timeout event", "store_id", st.ID, "error", err)
	}

	reapedTotal.Inc()

	// Best-effort cleanup: a failed uninstall leaks cluster resources but
	// must not block the remaining stores in this tick.
	if err := r.installer.Uninstall(ctx, st.ID); err != nil {
		r.logger.Error("cleanup timed-out store", "store_id", st.ID, "error", err)
		return
	}
	r.logger.Info("cleaned up timed-out store", "store_id", st.ID)
}
