package kube

import (
	"bytes"
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/storeforge/storeforge/internal/cluster"
)

// Compile-time interface satisfaction check.
var _ cluster.PodExec = (*Exec)(nil)

// Exec runs commands inside running pods over the Kubernetes exec
// subresource. Commands are argv slices; nothing is routed through a shell.
type Exec struct {
	client *Client
}

// NewExec returns an Exec backed by the given client. The client must carry
// a rest config (NewClientForTesting clients cannot exec).
func NewExec(c *Client) *Exec {
	return &Exec{client: c}
}

// Exec runs argv in the named container and returns combined stdout.
func (e *Exec) Exec(ctx context.Context, namespace, pod, container string, argv []string) (string, error) {
	if e.client.restConfig == nil {
		return "", fmt.Errorf("exec unavailable: client has no rest config")
	}

	req := e.client.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   argv,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(e.client.restConfig, "POST", req.URL())
	if err != nil {
		return "", fmt.Errorf("create executor: %w", err)
	}

	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		return stdout.String(), fmt.Errorf("exec %v in %s/%s: %w: %s", argv, namespace, pod, err, stderr.String())
	}
	return stdout.String(), nil
}
