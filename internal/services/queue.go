package services

import (
	"github.com/calderhq/calder/internal/pkg/dbctx"
	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/repos"
	"github.com/calderhq/calder/internal/types"
)

// QueueMetrics is the load snapshot the fleet controller scales on.
type QueueMetrics struct {
	PendingFragments int64 `json:"pending_fragments"`
	RunningFragments int64 `json:"running_fragments"`
	ActiveWorkers    int64 `json:"active_workers"`
}

type QueueService interface {
	Metrics(dbc dbctx.Context, machineGroup *string) (*QueueMetrics, error)
}

type queueService struct {
	log       *logger.Logger
	fragments repos.FragmentRepo
	workers   repos.WorkerRepo
}

func NewQueueService(log *logger.Logger, fragments repos.FragmentRepo, workers repos.WorkerRepo) QueueService {
	return &queueService{
		log:       log.With("service", "QueueService"),
		fragments: fragments,
		workers:   workers,
	}
}

func (s *queueService) Metrics(dbc dbctx.Context, machineGroup *string) (*QueueMetrics, error) {
	pending, err := s.fragments.CountByStatus(dbc, types.FragmentStatusPending, machineGroup)
	if err != nil {
		return nil, err
	}
	running, err := s.fragments.CountByStatus(dbc, types.FragmentStatusRunning, machineGroup)
	if err != nil {
		return nil, err
	}
	workers, err := s.workers.CountActive(dbc, machineGroup)
	if err != nil {
		return nil, err
	}
	return &QueueMetrics{
		PendingFragments: pending,
		RunningFragments: running,
		ActiveWorkers:    workers,
	}, nil
}
