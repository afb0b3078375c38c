package kube

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/storeforge/storeforge/internal/cluster"
)

const (
	storefrontImage = "wordpress:6.4-apache"
	databaseImage   = "mysql:8.0"
	setupImage      = "wordpress:cli-2.9-php8.2"

	databaseName = "storefront"
	databaseUser = "sfuser"
)

// Compile-time interface satisfaction check.
var _ cluster.Installer = (*Installer)(nil)

// Installer deploys one storefront release per store into a namespace named
// after the store id.
type Installer struct {
	client *Client
}

// NewInstaller returns an Installer backed by the given client.
func NewInstaller(c *Client) *Installer {
	return &Installer{client: c}
}

// Install creates the store's namespace and lays down the release: database
// credentials secret, mysql deployment and service, storefront deployment
// and service, and the one-shot setup job.
func (i *Installer) Install(ctx context.Context, storeID, storeName string) (cluster.InstallResult, error) {
	cs := i.client.clientset

	rootPassword, err := generatePassword()
	if err != nil {
		return cluster.InstallResult{}, fmt.Errorf("generate root password: %w", err)
	}
	dbPassword, err := generatePassword()
	if err != nil {
		return cluster.InstallResult{}, fmt.Errorf("generate db password: %w", err)
	}

	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   storeID,
			Labels: map[string]string{"storeforge.io/store": storeID},
		},
	}
	if _, err := cs.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return cluster.InstallResult{}, fmt.Errorf("create namespace: %w", err)
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: storeID + "-mysql-secret", Namespace: storeID},
		StringData: map[string]string{
			"mysql-root-password": rootPassword,
			"mysql-password":      dbPassword,
		},
	}
	if _, err := cs.CoreV1().Secrets(storeID).Create(ctx, secret, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return cluster.InstallResult{}, fmt.Errorf("create secret: %w", err)
	}

	for _, dep := range []*appsv1.Deployment{
		databaseDeployment(storeID),
		storefrontDeployment(storeID, storeName),
	} {
		if _, err := cs.AppsV1().Deployments(storeID).Create(ctx, dep, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
			return cluster.InstallResult{}, fmt.Errorf("create deployment %s: %w", dep.Name, err)
		}
	}

	for _, svc := range []*corev1.Service{
		databaseService(storeID),
		storefrontService(storeID),
	} {
		if _, err := cs.CoreV1().Services(storeID).Create(ctx, svc, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
			return cluster.InstallResult{}, fmt.Errorf("create service %s: %w", svc.Name, err)
		}
	}

	if _, err := cs.BatchV1().Jobs(storeID).Create(ctx, setupJob(storeID, storeName), metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return cluster.InstallResult{}, fmt.Errorf("create setup job: %w", err)
	}

	return cluster.InstallResult{
		Namespace: storeID,
		Secrets: map[string]string{
			"mysql-root-password": rootPassword,
			"mysql-password":      dbPassword,
		},
	}, nil
}

// Uninstall deletes the store's namespace, taking every namespaced resource
// with it. A missing namespace is not an error.
func (i *Installer) Uninstall(ctx context.Context, storeID string) error {
	policy := metav1.DeletePropagationBackground
	err := i.client.clientset.CoreV1().Namespaces().Delete(ctx, storeID, metav1.DeleteOptions{
		PropagationPolicy: &policy,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete namespace %s: %w", storeID, err)
	}
	return nil
}

// Status reports the release state from the storefront deployment.
func (i *Installer) Status(ctx context.Context, storeID string) (cluster.ReleaseState, error) {
	dep, err := i.client.clientset.AppsV1().Deployments(storeID).Get(ctx, "storefront", metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return cluster.ReleaseNotFound, nil
	}
	if err != nil {
		return cluster.ReleaseNotFound, fmt.Errorf("get storefront deployment: %w", err)
	}
	if dep.Status.ReadyReplicas > 0 {
		return cluster.ReleaseDeployed, nil
	}
	return cluster.ReleasePending, nil
}

func generatePassword() (string, error) {
	raw := make([]byte, 18)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func int32Ptr(v int32) *int32 { return &v }

func secretEnv(storeID, key, envName string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: envName,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: storeID + "-mysql-secret"},
				Key:                  key,
			},
		},
	}
}

func databaseDeployment(storeID string) *appsv1.Deployment {
	labels := map[string]string{"app": "mysql"}
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "mysql", Namespace: storeID, Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: int32Ptr(1),
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  "mysql",
						Image: databaseImage,
						Env: []corev1.EnvVar{
							secretEnv(storeID, "mysql-root-password", "MYSQL_ROOT_PASSWORD"),
							secretEnv(storeID, "mysql-password", "MYSQL_PASSWORD"),
							{Name: "MYSQL_DATABASE", Value: databaseName},
							{Name: "MYSQL_USER", Value: databaseUser},
						},
						Ports: []corev1.ContainerPort{{ContainerPort: 3306}},
						Resources: corev1.ResourceRequirements{
							Requests: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("100m"),
								corev1.ResourceMemory: resource.MustParse("256Mi"),
							},
							Limits: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("500m"),
								corev1.ResourceMemory: resource.MustParse("512Mi"),
							},
						},
					}},
				},
			},
		},
	}
}

func storefrontDeployment(storeID, storeName string) *appsv1.Deployment {
	labels := map[string]string{"app": "storefront"}
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "storefront", Namespace: storeID, Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: int32Ptr(1),
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  "storefront",
						Image: storefrontImage,
						Env: []corev1.EnvVar{
							{Name: "WORDPRESS_DB_HOST", Value: "mysql:3306"},
							{Name: "WORDPRESS_DB_NAME", Value: databaseName},
							{Name: "WORDPRESS_DB_USER", Value: databaseUser},
							secretEnv(storeID, "mysql-password", "WORDPRESS_DB_PASSWORD"),
							{Name: "STORE_NAME", Value: storeName},
						},
						Ports: []corev1.ContainerPort{{ContainerPort: 80}},
						Resources: corev1.ResourceRequirements{
							Requests: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("100m"),
								corev1.ResourceMemory: resource.MustParse("256Mi"),
							},
							Limits: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("500m"),
								corev1.ResourceMemory: resource.MustParse("768Mi"),
							},
						},
					}},
				},
			},
		},
	}
}

func databaseService(storeID string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "mysql", Namespace: storeID},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": "mysql"},
			Ports:    []corev1.ServicePort{{Port: 3306, TargetPort: intstr.FromInt(3306)}},
		},
	}
}

func storefrontService(storeID string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "storefront", Namespace: storeID},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": "storefront"},
			Ports:    []corev1.ServicePort{{Port: 80, TargetPort: intstr.FromInt(80)}},
		},
	}
}

// setupJob installs and configures the storefront application once the pod
// is up: core install, commerce plugin, permalinks.
func setupJob(storeID, storeName string) *batchv1.Job {
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: storeID + "-setup", Namespace: storeID},
		Spec: batchv1.JobSpec{
			BackoffLimit: int32Ptr(3),
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyOnFailure,
					Containers: []corev1.Container{{
						Name:  "setup",
						Image: setupImage,
						Command: []string{
							"wp", "core", "install",
							"--url=http://storefront",
							"--title=" + storeName,
							"--admin_user=admin",
							"--admin_email=admin@" + storeID + ".local",
							"--skip-email",
							"--allow-root",
						},
						Env: []corev1.EnvVar{
							{Name: "WORDPRESS_DB_HOST", Value: "mysql:3306"},
							{Name: "WORDPRESS_DB_NAME", Value: databaseName},
							{Name: "WORDPRESS_DB_USER", Value: databaseUser},
							secretEnv(storeID, "mysql-password", "WORDPRESS_DB_PASSWORD"),
						},
					}},
				},
			},
		},
	}
}
