// Package kubernetes launches build workers as Kubernetes Jobs.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/utils/ptr"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/executor"
)

const (
	backendName    = "kubernetes"
	jobPrefix      = "build-"
	projectLabel   = "maybe-vercel.dev/project-id"
	componentLabel = "app.kubernetes.io/component"
	maxNameLength  = 63
)

// Options configures the Job template.
type Options struct {
	Namespace string
	Image     string
	Env       []string
	TTL       time.Duration
}

// Executor creates one Job per project. Jobs never retry; a failed build
// stays failed.
type Executor struct {
	client kubernetes.Interface
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

var _ executor.Executor = (*Executor)(nil)

// NewClientset prefers in-cluster configuration and falls back to kubeconfig.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		if strings.TrimSpace(kubeconfig) == "" {
			kubeconfig = strings.TrimSpace(os.Getenv("KUBECONFIG"))
		}
		if kubeconfig == "" {
			return nil, fmt.Errorf("create in-cluster config: %w", err)
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("create kubeconfig client: %w", err)
		}
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return clientset, nil
}

// New wraps client.
func New(client kubernetes.Interface, opts Options, logger *slog.Logger) (*Executor, error) {
	if client == nil {
		return nil, fmt.Errorf("kubernetes client not initialized")
	}
	if strings.TrimSpace(opts.Image) == "" {
		return nil, fmt.Errorf("builder image cannot be empty")
	}
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{client: client, opts: opts, logger: logger, now: time.Now}, nil
}

// Launch submits the build Job and returns its name.
func (e *Executor) Launch(ctx context.Context, spec executor.Spec) (executor.Handle, error) {
	if err := spec.Validate(); err != nil {
		return executor.Handle{}, err
	}
	job := e.buildJob(spec)
	created, err := e.client.BatchV1().Jobs(e.opts.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			return executor.Handle{}, fmt.Errorf("build job %s already exists: %w", job.Name, err)
		}
		return executor.Handle{}, fmt.Errorf("create build job: %w", err)
	}
	e.logger.Info("build job created", "project_id", spec.ProjectID, "job", created.Name, "namespace", e.opts.Namespace)
	return executor.Handle{ID: created.Name, Backend: backendName, LaunchedAt: e.now().UTC()}, nil
}

func (e *Executor) buildJob(spec executor.Spec) *batchv1.Job {
	labels := map[string]string{
		projectLabel:             spec.ProjectID,
		"app.kubernetes.io/name": "builder",
		componentLabel:           "build",
	}
	env := make([]corev1.EnvVar, 0, len(e.opts.Env)+2)
	for _, kv := range append(append([]string{}, e.opts.Env...), spec.Env()...) {
		key, value, _ := strings.Cut(kv, "=")
		env = append(env, corev1.EnvVar{Name: key, Value: value})
	}
	jobSpec := batchv1.JobSpec{
		BackoffLimit: ptr.To[int32](0),
		Template: corev1.PodTemplateSpec{
			ObjectMeta: metav1.ObjectMeta{Labels: labels},
			Spec: corev1.PodSpec{
				RestartPolicy: corev1.RestartPolicyNever,
				Containers: []corev1.Container{{
					Name:  "builder",
					Image: e.opts.Image,
					Env:   env,
				}},
			},
		},
	}
	if e.opts.TTL > 0 {
		jobSpec.TTLSecondsAfterFinished = ptr.To(int32(e.opts.TTL.Seconds()))
	}
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName(spec.ProjectID),
			Namespace: e.opts.Namespace,
			Labels:    labels,
		},
		Spec: jobSpec,
	}
}

func jobName(projectID string) string {
	name := strings.ToLower(jobPrefix + projectID)
	if len(name) > maxNameLength {
		name = strings.TrimRight(name[:maxNameLength], "-")
	}
	return name
}
