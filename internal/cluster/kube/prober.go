package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/storeforge/storeforge/internal/cluster"
)

// Compile-time interface satisfaction check.
var _ cluster.Prober = (*Prober)(nil)

// Prober reports pod and job readiness from the cluster. A resource that
// does not exist yet is reported as not-ready, never as an error, so
// callers can poll from the moment the install call returns.
type Prober struct {
	client *Client
}

// NewProber returns a Prober backed by the given client.
func NewProber(c *Client) *Prober {
	return &Prober{client: c}
}

// PodRunning reports whether any pod matching the selector has reached the
// Running or Succeeded phase.
func (p *Prober) PodRunning(ctx context.Context, namespace, selector string) (bool, error) {
	pods, err := p.client.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("list pods: %w", err)
	}

	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodRunning || pod.Status.Phase == corev1.PodSucceeded {
			return true, nil
		}
	}
	return false, nil
}

// JobStatus reports the state of the named job. A missing job is pending.
func (p *Prober) JobStatus(ctx context.Context, namespace, jobName string) (cluster.JobState, error) {
	job, err := p.client.clientset.BatchV1().Jobs(namespace).Get(ctx, jobName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return cluster.JobPending, nil
	}
	if err != nil {
		return cluster.JobPending, fmt.Errorf("get job %s: %w", jobName, err)
	}

	if job.Status.Succeeded >= 1 {
		return cluster.JobSucceeded, nil
	}
	if job.Status.Failed > 0 {
		return cluster.JobFailed, nil
	}
	return cluster.JobPending, nil
}

// PodName returns the name of the first pod matching the selector.
func (p *Prober) PodName(ctx context.Context, namespace, selector string) (string, error) {
	pods, err := p.client.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return "", fmt.Errorf("list pods: %w", err)
	}
	if len(pods.Items) == 0 {
		return "", fmt.Errorf("no pod matching %q in namespace %s", selector, namespace)
	}
	return pods.Items[0].Name, nil
}
