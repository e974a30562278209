package monitor

import (
	"context"
	"time"

	"github.com/calderhq/calder/internal/pkg/dbctx"
	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/repos"
	"github.com/calderhq/calder/internal/services"
	"github.com/calderhq/calder/internal/types"
)

// Config controls how aggressively silent workers are reaped.
type Config struct {
	HeartbeatTimeout time.Duration
	CheckInterval    time.Duration
	MaxRetryAttempts int
}

// Instruments is the slice of service metrics the monitor reports. May be
// nil when the caller runs without telemetry.
type Instruments interface {
	WorkerReaped()
}

// Monitor watches worker heartbeats and recovers the fragments of workers
// that went silent. Every orchestrator replica runs one; sweeps are
// idempotent, so overlap between replicas is harmless.
type Monitor struct {
	cfg       Config
	log       *logger.Logger
	workers   repos.WorkerRepo
	scheduler services.SchedulerService
	metrics   Instruments
}

func New(cfg Config, baseLog *logger.Logger, workers repos.WorkerRepo, scheduler services.SchedulerService, metrics Instruments) *Monitor {
	return &Monitor{
		cfg:       cfg,
		log:       baseLog.With("component", "LivenessMonitor"),
		workers:   workers,
		scheduler: scheduler,
		metrics:   metrics,
	}
}

func (m *Monitor) Start(ctx context.Context) {
	m.log.Info("starting liveness monitor",
		"heartbeat_timeout", m.cfg.HeartbeatTimeout,
		"check_interval", m.cfg.CheckInterval,
		"max_retry_attempts", m.cfg.MaxRetryAttempts)
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("liveness monitor stopped")
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.log.Error("liveness sweep panic", "panic", r)
					}
				}()
				if err := m.Sweep(ctx); err != nil {
					m.log.Warn("liveness sweep failed", "error", err)
				}
			}()
		}
	}
}

// Sweep marks every worker whose heartbeat is older than the timeout as
// errored and settles whatever it was running: back to the queue while the
// attempt budget lasts, failed for good once it is spent.
func (m *Monitor) Sweep(ctx context.Context) error {
	dbc := dbctx.New(ctx)

	dead, err := m.workers.FindDead(dbc, m.cfg.HeartbeatTimeout)
	if err != nil {
		return err
	}

	for _, worker := range dead {
		m.log.Warn("worker heartbeat lost",
			"worker_id", worker.ID,
			"machine_group", worker.MachineGroup,
			"last_heartbeat_at", worker.LastHeartbeatAt)

		if err := m.workers.MarkStatus(dbc, worker.ID, types.WorkerStatusError); err != nil {
			m.log.Error("mark worker errored", "worker_id", worker.ID, "error", err)
			continue
		}
		if m.metrics != nil {
			m.metrics.WorkerReaped()
		}

		if worker.CurrentFragmentID != nil {
			status, err := m.scheduler.SettleAbandoned(dbc, worker.ID, *worker.CurrentFragmentID, m.cfg.MaxRetryAttempts)
			if err != nil {
				m.log.Error("settle abandoned fragment",
					"worker_id", worker.ID,
					"fragment_id", *worker.CurrentFragmentID,
					"error", err)
			} else {
				m.log.Info("abandoned fragment settled",
					"worker_id", worker.ID,
					"fragment_id", *worker.CurrentFragmentID,
					"status", status)
			}
		}

		if err := m.workers.ClearAssignment(dbc, worker.ID); err != nil {
			m.log.Error("clear worker assignment", "worker_id", worker.ID, "error", err)
		}
	}
	return nil
}
