package cluster

import "context"

// StorefrontSelector is the label selector identifying the storefront
// application pod inside a store's namespace.
const StorefrontSelector = "app=storefront"

// ReleaseState describes the state of an installed workload release.
type ReleaseState string

const (
	ReleaseDeployed ReleaseState = "deployed"
	ReleaseFailed   ReleaseState = "failed"
	ReleasePending  ReleaseState = "pending"
	ReleaseNotFound ReleaseState = "not_found"
)

// JobState describes the outcome of a batch job.
type JobState string

const (
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobPending   JobState = "pending"
)

// InstallResult holds what an installer reports back after a successful
// install: the namespace the release landed in and any generated secrets
// (database credentials and the like).
type InstallResult struct {
	Namespace string
	Secrets   map[string]string
}

// Installer installs and uninstalls a packaged storefront release in its
// own cluster namespace.
type Installer interface {
	// Install deploys the release for the given store. The returned result
	// is only meaningful when err is nil.
	Install(ctx context.Context, storeID, storeName string) (InstallResult, error)

	// Uninstall tears down the release and its namespace. Implementations
	// must tolerate the release not existing.
	Uninstall(ctx context.Context, storeID string) error

	// Status reports the release state for the given store.
	Status(ctx context.Context, storeID string) (ReleaseState, error)
}

// Prober reports workload readiness within a namespace. Absence of the
// target resource is not an error: PodRunning reports false and JobStatus
// reports JobPending until the resource shows up.
type Prober interface {
	PodRunning(ctx context.Context, namespace, selector string) (bool, error)
	JobStatus(ctx context.Context, namespace, jobName string) (JobState, error)

	// PodName returns the name of the first pod matching the selector.
	PodName(ctx context.Context, namespace, selector string) (string, error)
}

// PodExec runs a command inside a running pod. Commands are structured
// argv slices; implementations never go through a shell.
type PodExec interface {
	Exec(ctx context.Context, namespace, pod, container string, argv []string) (string, error)
}
