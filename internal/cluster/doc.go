// Package cluster defines the capability interfaces the lifecycle
// orchestrator and reaper depend on: installing a storefront workload into
// an isolated cluster namespace, probing pod and job readiness, and
// executing commands inside a running pod. Implementations live in
// subpackages; tests inject fakes.
package cluster
