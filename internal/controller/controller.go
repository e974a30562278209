package controller

import (
	"context"
	"time"

	"github.com/calderhq/calder/internal/platform/logger"
)

// Controller reconciles the worker deployment's replica count against queue
// depth. One reconciliation per poll interval; a failed tick is logged and
// skipped, never retried within the tick — the next tick converges.
type Controller struct {
	cfg     Config
	metrics *MetricsClient
	scaler  *DeploymentScaler
	state   *State
	log     *logger.Logger
}

func New(cfg Config, metrics *MetricsClient, scaler *DeploymentScaler, baseLog *logger.Logger) *Controller {
	return &Controller{
		cfg:     cfg,
		metrics: metrics,
		scaler:  scaler,
		state:   NewState(),
		log:     baseLog.With("component", "Controller"),
	}
}

// Run verifies the deployment, then reconciles until ctx is cancelled. A
// missing deployment at startup is fatal; once running, failures are
// transient.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info("starting worker controller",
		"tenant_id", c.cfg.TenantID,
		"machine_group", c.cfg.MachineGroup,
		"deployment", c.cfg.DeploymentNamespace+"/"+c.cfg.DeploymentName,
		"min_replicas", c.cfg.MinReplicas,
		"max_replicas", c.cfg.MaxReplicas,
		"target_pending_per_worker", c.cfg.TargetPendingPerWorker,
		"poll_interval", c.cfg.PollInterval,
		"scale_down_delay", c.cfg.ScaleDownDelay)

	if err := c.scaler.VerifyExists(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.Reconcile(ctx); err != nil {
			c.log.Error("reconciliation failed", "error", err)
		}
		select {
		case <-ctx.Done():
			c.log.Info("shutdown requested, stopping controller")
			return nil
		case <-ticker.C:
		}
	}
}

// Reconcile runs one scaling decision: fetch metrics, compute the desired
// replica count, and patch the deployment when allowed.
func (c *Controller) Reconcile(ctx context.Context) error {
	metrics, err := c.metrics.GetQueueMetrics(ctx, c.cfg.MachineGroup)
	if err != nil {
		return err
	}
	c.log.Info("got queue metrics",
		"pending", metrics.PendingFragments,
		"running", metrics.RunningFragments,
		"active_workers", metrics.ActiveWorkers)

	current, err := c.scaler.GetReplicas(ctx)
	if err != nil {
		return err
	}
	c.state.SetCurrentReplicas(current)

	desired := DesiredReplicas(ScalingConfig{
		MinReplicas:            c.cfg.MinReplicas,
		MaxReplicas:            c.cfg.MaxReplicas,
		TargetPendingPerWorker: c.cfg.TargetPendingPerWorker,
	}, metrics.PendingFragments)

	target, ok := c.state.ShouldScale(desired, c.cfg.ScaleDownDelay)
	if !ok {
		if desired != current {
			c.log.Info("scale-down blocked by cooldown", "current", current, "desired", desired)
		}
		return nil
	}

	if err := c.scaler.SetReplicas(ctx, target); err != nil {
		return err
	}
	if target < current {
		c.state.RecordScaleDown()
	}
	c.state.SetCurrentReplicas(target)
	c.log.Info("scaled deployment", "from", current, "to", target)
	return nil
}
