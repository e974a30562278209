package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/calderhq/calder/internal/platform/logger"
)

// ErrDeploymentNotFound marks a missing managed deployment. Fatal at
// startup, transient at runtime.
var ErrDeploymentNotFound = errors.New("deployment not found")

// DeploymentScaler patches the replica count of one managed deployment.
type DeploymentScaler struct {
	clientset kubernetes.Interface
	namespace string
	name      string
	log       *logger.Logger
}

// NewDeploymentScaler connects with in-cluster config, falling back to the
// local kubeconfig for development.
func NewDeploymentScaler(namespace, name string, baseLog *logger.Logger) (*DeploymentScaler, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			home, _ := os.UserHomeDir()
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("build kubernetes config: %w", err)
		}
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return NewDeploymentScalerWithClient(clientset, namespace, name, baseLog), nil
}

// NewDeploymentScalerWithClient injects a clientset; tests use the fake one.
func NewDeploymentScalerWithClient(clientset kubernetes.Interface, namespace, name string, baseLog *logger.Logger) *DeploymentScaler {
	return &DeploymentScaler{
		clientset: clientset,
		namespace: namespace,
		name:      name,
		log:       baseLog.With("component", "DeploymentScaler"),
	}
}

func (s *DeploymentScaler) VerifyExists(ctx context.Context) error {
	_, err := s.clientset.AppsV1().Deployments(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return fmt.Errorf("%w: %s/%s", ErrDeploymentNotFound, s.namespace, s.name)
	}
	return err
}

func (s *DeploymentScaler) GetReplicas(ctx context.Context) (int32, error) {
	deployment, err := s.clientset.AppsV1().Deployments(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return 0, fmt.Errorf("%w: %s/%s", ErrDeploymentNotFound, s.namespace, s.name)
	}
	if err != nil {
		return 0, err
	}
	if deployment.Spec.Replicas == nil {
		return 0, nil
	}
	return *deployment.Spec.Replicas, nil
}

func (s *DeploymentScaler) SetReplicas(ctx context.Context, replicas int32) error {
	patch := fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas)
	_, err := s.clientset.AppsV1().Deployments(s.namespace).Patch(
		ctx, s.name, types.StrategicMergePatchType, []byte(patch), metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("patch deployment replicas: %w", err)
	}
	s.log.Info("scaled deployment", "deployment", s.name, "replicas", replicas)
	return nil
}
