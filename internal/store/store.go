package store

import (
	"context"
	"errors"
	"time"

	"github.com/storeforge/storeforge/internal/model"
)

// ErrNotFound is returned when a store is not found.
var ErrNotFound = errors.New("store not found")

// ErrDuplicate is returned when creating a store whose id already exists.
var ErrDuplicate = errors.New("store id already exists")

// ErrInvalidTransition is returned when a status transition is not allowed
// by the lifecycle state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// StatusUpdate carries the optional fields of a partial status update.
// Nil pointers mean "leave untouched"; a pointer to the empty string
// clears the column.
type StatusUpdate struct {
	StatusMessage *string
	URL           *string
	AdminURL      *string
	Namespace     *string
	Error         *string
}

// AuditFilter narrows an audit log query. Zero values mean "no filter".
type AuditFilter struct {
	UserID string
	Action string
	From   time.Time
	To     time.Time
	Limit  int
}

// Stats holds aggregate platform statistics.
type Stats struct {
	Total            int     `json:"total"`
	Ready            int     `json:"ready"`
	Provisioning     int     `json:"provisioning"`
	Failed           int     `json:"failed"`
	AvgProvisionSecs float64 `json:"avg_provision_seconds"`
}

// Store defines the persistence operations for stores, lifecycle events,
// and the audit trail. The orchestrator and reaper are the only status
// writers; everything else reads.
type Store interface {
	CreateStore(ctx context.Context, st *model.Store) error
	GetStore(ctx context.Context, id string) (*model.Store, error)
	ListStores(ctx context.Context) ([]*model.Store, error)
	ListTimedOut(ctx context.Context, now time.Time) ([]*model.Store, error)

	// UpdateStatus sets the status unconditionally and applies the partial
	// update. updated_at is always refreshed.
	UpdateStatus(ctx context.Context, id, status string, upd StatusUpdate) error

	// UpdateStatusFrom sets the status only if the row's current status
	// equals from. It reports whether the update was applied. A false
	// return with a nil error means another writer got there first.
	UpdateStatusFrom(ctx context.Context, id, from, to string, upd StatusUpdate) (bool, error)

	CountActive(ctx context.Context) (int, error)
	CountOwned(ctx context.Context, ownerID string) (int, error)

	AppendEvent(ctx context.Context, ev *model.Event) error
	ListEvents(ctx context.Context, storeID string) ([]model.Event, error)
	ListActivity(ctx context.Context, limit int) ([]model.Event, error)

	AppendAudit(ctx context.Context, entry *model.AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter) ([]model.AuditEntry, error)

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
