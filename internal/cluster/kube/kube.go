// Package kube implements the cluster capability interfaces against a
// Kubernetes cluster using client-go. The installer lays down the
// storefront workload (database, application, setup job) directly with
// typed API calls rather than templating an external packaging tool.
package kube

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client bundles the clientset and rest config shared by the kube-backed
// capability implementations.
type Client struct {
	clientset  kubernetes.Interface
	restConfig *rest.Config
}

// NewClient builds a client from the ambient environment: in-cluster config
// first, then the local kubeconfig (KUBECONFIG or $HOME/.kube/config).
func NewClient() (*Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}

	return &Client{clientset: clientset, restConfig: cfg}, nil
}

// NewClientForTesting wraps an existing clientset. Used by tests with the
// fake clientset; restConfig stays nil, so Exec is unavailable.
func NewClientForTesting(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset}
}

func loadConfig() (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		clientcmd.NewDefaultClientConfigLoadingRules(),
		&clientcmd.ConfigOverrides{},
	).ClientConfig()
}
