package model

import "time"

// Store status constants.
const (
	StatusProvisioning = "provisioning"
	StatusReady        = "ready"
	StatusFailed       = "failed"
	StatusDeleting     = "deleting"
	StatusDeleted      = "deleted"
)

// Event severity constants.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Lifecycle event types emitted by the orchestrator and reaper.
const (
	EventProvisioningStarted  = "provisioning_started"
	EventWorkloadInstalled    = "workload_installed"
	EventPodRunning           = "pod_running"
	EventSetupComplete        = "setup_complete"
	EventSetupFailed          = "setup_failed"
	EventSeedFailed           = "seed_failed"
	EventProvisioningComplete = "provisioning_complete"
	EventProvisioningFailed   = "provisioning_failed"
	EventProvisioningTimeout  = "provisioning_timeout"
	EventDeletionStarted      = "deletion_started"
	EventDeletionComplete     = "deletion_complete"
	EventDeletionFailed       = "deletion_failed"
)

// Audit action constants.
const (
	ActionStoreCreated = "store_created"
	ActionStoreDeleted = "store_deleted"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusProvisioning: {
		StatusReady:    true,
		StatusFailed:   true,
		StatusDeleting: true,
	},
	StatusReady: {
		StatusDeleting: true,
	},
	// A failed store can still be deleted on request to release its record.
	StatusFailed: {
		StatusDeleting: true,
	},
	StatusDeleting: {
		StatusDeleted: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether a status admits no further automatic transition.
// Ready stores may still be deleted on request, but the orchestrator and
// reaper never move a store out of ready, failed, or deleted on their own.
func Terminal(status string) bool {
	return status == StatusReady || status == StatusFailed || status == StatusDeleted
}

// Store represents one tenant storefront deployment.
type Store struct {
	ID                    string     `json:"store_id"`
	Name                  string     `json:"name"`
	Status                string     `json:"status"`
	StatusMessage         string     `json:"status_message,omitempty"`
	URL                   string     `json:"url,omitempty"`
	AdminURL              string     `json:"admin_url,omitempty"`
	Namespace             string     `json:"namespace,omitempty"`
	Error                 string     `json:"error,omitempty"`
	OwnerID               string     `json:"owner_id"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ProvisioningStartedAt *time.Time `json:"provisioning_started_at,omitempty"`
	ProvisioningDeadline  *time.Time `json:"provisioning_deadline,omitempty"`
}

// Event represents a single immutable lifecycle event for a store.
type Event struct {
	ID        int64     `json:"id"`
	StoreID   string    `json:"store_id"`
	StoreName string    `json:"store_name,omitempty"`
	Type      string    `json:"event_type"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry records one create or delete action attributed to a caller.
type AuditEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	StoreID   string    `json:"store_id"`
	StoreName string    `json:"store_name"`
	IPAddress string    `json:"ip_address,omitempty"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
