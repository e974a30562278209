package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/pkg/dbctx"
	pkgerrors "github.com/calderhq/calder/internal/pkg/errors"
	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/repos"
	"github.com/calderhq/calder/internal/types"
)

// WorkerService covers the worker lifecycle outside of scheduling: joining
// the fleet, proving liveness, and exposing busy state to the autoscaler.
type WorkerService interface {
	Register(dbc dbctx.Context, tenantID uuid.UUID, machineGroup *string) (*types.Worker, error)
	Heartbeat(dbc dbctx.Context, workerID uuid.UUID) (*time.Time, error)
	Busy(dbc dbctx.Context, workerID uuid.UUID) (bool, *uuid.UUID, error)
}

type workerService struct {
	log     *logger.Logger
	workers repos.WorkerRepo
}

func NewWorkerService(log *logger.Logger, workers repos.WorkerRepo) WorkerService {
	return &workerService{
		log:     log.With("service", "WorkerService"),
		workers: workers,
	}
}

func (s *workerService) Register(dbc dbctx.Context, tenantID uuid.UUID, machineGroup *string) (*types.Worker, error) {
	worker := types.NewWorker(tenantID, machineGroup)
	if err := s.workers.Create(dbc, worker); err != nil {
		return nil, err
	}
	s.log.Info("worker registered",
		"worker_id", worker.ID,
		"tenant_id", tenantID,
		"machine_group", machineGroup)
	return worker, nil
}

// Heartbeat stamps the worker's last_heartbeat_at and returns the new
// timestamp. Unknown workers get ErrWorkerNotFound so they know to
// re-register.
func (s *workerService) Heartbeat(dbc dbctx.Context, workerID uuid.UUID) (*time.Time, error) {
	return s.workers.Heartbeat(dbc, workerID)
}

func (s *workerService) Busy(dbc dbctx.Context, workerID uuid.UUID) (bool, *uuid.UUID, error) {
	worker, err := s.workers.GetByID(dbc, workerID)
	if err != nil {
		return false, nil, err
	}
	if worker == nil {
		return false, nil, pkgerrors.ErrWorkerNotFound
	}
	return worker.CurrentFragmentID != nil, worker.CurrentFragmentID, nil
}
