package ha

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
	"k8s.io/klog/v2"
)

// LeaderElector runs singleton background work (scheduled imports, the
// import job workers, access log retention) on one replica at a time.
type LeaderElector struct {
	config   *HAConfig
	client   kubernetes.Interface
	identity string
	logger   *slog.Logger

	mu       sync.RWMutex
	isLeader bool
	onStart  func(ctx context.Context)
	onStop   func()
}

// NewLeaderElector creates a LeaderElector for cfg.Identity.
func NewLeaderElector(cfg *HAConfig, client kubernetes.Interface, logger *slog.Logger) *LeaderElector {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaderElector{
		config:   cfg,
		client:   client,
		identity: cfg.Identity,
		logger:   logger,
	}
}

// OnStartLeading registers the work to run while leading. Its context is
// cancelled when the lease is lost.
func (le *LeaderElector) OnStartLeading(fn func(ctx context.Context)) {
	le.mu.Lock()
	defer le.mu.Unlock()
	le.onStart = fn
}

// OnStopLeading registers a callback for losing the lease.
func (le *LeaderElector) OnStopLeading(fn func()) {
	le.mu.Lock()
	defer le.mu.Unlock()
	le.onStop = fn
}

// IsLeader reports whether this replica currently holds the lease.
func (le *LeaderElector) IsLeader() bool {
	le.mu.RLock()
	defer le.mu.RUnlock()
	return le.isLeader
}

func (le *LeaderElector) started(ctx context.Context) {
	le.mu.Lock()
	le.isLeader = true
	fn := le.onStart
	le.mu.Unlock()

	le.logger.Info("acquired importer lease", "identity", le.identity)
	if fn != nil {
		fn(ctx)
	}
}

func (le *LeaderElector) stopped() {
	le.mu.Lock()
	le.isLeader = false
	fn := le.onStop
	le.mu.Unlock()

	le.logger.Info("released importer lease", "identity", le.identity)
	if fn != nil {
		fn()
	}
}

// Run campaigns for the lease until ctx is cancelled.
func (le *LeaderElector) Run(ctx context.Context) error {
	// client-go logs through klog; route it to the same handler.
	klog.SetLogger(logr.FromSlogHandler(le.logger.Handler()))

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      le.config.LeaseName,
			Namespace: le.config.LeaseNamespace,
		},
		Client:     le.client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{Identity: le.identity},
	}

	elector, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   le.config.LeaseDuration,
		RenewDeadline:   le.config.RenewDeadline,
		RetryPeriod:     le.config.RetryPeriod,
		ReleaseOnCancel: true,
		Name:            le.config.LeaseName,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: le.started,
			OnStoppedLeading: le.stopped,
			OnNewLeader: func(identity string) {
				if identity != le.identity {
					le.logger.Info("importer lease held elsewhere", "leader", identity)
				}
			},
		},
	})
	if err != nil {
		return fmt.Errorf("configure leader election: %w", err)
	}

	le.logger.Info("campaigning for importer lease",
		"identity", le.identity,
		"lease", le.config.LeaseName,
		"namespace", le.config.LeaseNamespace)
	elector.Run(ctx)
	return nil
}

// NewClientset builds a Kubernetes client from cfg.Kubeconfig, or from the
// in-cluster service account when it is empty.
func NewClientset(cfg *HAConfig) (kubernetes.Interface, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if cfg.Kubeconfig != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("kubernetes client config: %w", err)
	}
	return kubernetes.NewForConfig(restCfg)
}

// RunSingleton runs fn on the elected replica. With leader election disabled
// fn runs immediately with ctx. RunSingleton blocks until ctx is cancelled.
// Losing the lease cancels fn's context; the replica campaigns again.
func RunSingleton(ctx context.Context, cfg *HAConfig, client kubernetes.Interface, logger *slog.Logger, fn func(ctx context.Context)) error {
	if !cfg.LeaderElectionEnabled {
		fn(ctx)
		return nil
	}
	if client == nil {
		return fmt.Errorf("leader election enabled without a kubernetes client")
	}
	le := NewLeaderElector(cfg, client, logger)
	le.OnStartLeading(fn)
	for ctx.Err() == nil {
		if err := le.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}
