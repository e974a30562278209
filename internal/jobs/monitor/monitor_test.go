package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/pkg/dbctx"
	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/services"
	"github.com/calderhq/calder/internal/types"
)

func monitorHarness(t *testing.T, dead ...*types.Worker) (*Monitor, *fakeWorkers, *fakeScheduler, *fakeInstruments) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	workers := &fakeWorkers{dead: dead}
	scheduler := &fakeScheduler{}
	instruments := &fakeInstruments{}
	m := New(Config{
		HeartbeatTimeout: 30 * time.Second,
		CheckInterval:    10 * time.Second,
		MaxRetryAttempts: 3,
	}, log, workers, scheduler, instruments)
	return m, workers, scheduler, instruments
}

func TestSweepReapsDeadWorker(t *testing.T) {
	fragID := uuid.New()
	worker := types.NewWorker(uuid.New(), nil)
	worker.CurrentFragmentID = &fragID
	past := time.Now().UTC().Add(-time.Minute)
	worker.LastHeartbeatAt = &past

	m, workers, scheduler, instruments := monitorHarness(t, worker)

	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if len(workers.marked) != 1 || workers.marked[worker.ID] != types.WorkerStatusError {
		t.Fatalf("worker status: want=error got=%v", workers.marked)
	}
	if instruments.reaped != 1 {
		t.Fatalf("reaped counter: want=1 got=%d", instruments.reaped)
	}
	if len(scheduler.settled) != 1 {
		t.Fatalf("settle calls: want=1 got=%d", len(scheduler.settled))
	}
	call := scheduler.settled[0]
	if call.workerID != worker.ID || call.fragmentID != fragID {
		t.Fatalf("settle call: got=%+v", call)
	}
	if call.maxAttempts != 3 {
		t.Fatalf("settle max attempts: want=3 got=%d", call.maxAttempts)
	}
	if workers.cleared != 1 {
		t.Fatalf("clear calls: want=1 got=%d", workers.cleared)
	}
}

func TestSweepIdleDeadWorker(t *testing.T) {
	worker := types.NewWorker(uuid.New(), nil)
	past := time.Now().UTC().Add(-time.Minute)
	worker.LastHeartbeatAt = &past

	m, workers, scheduler, instruments := monitorHarness(t, worker)

	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if workers.marked[worker.ID] != types.WorkerStatusError {
		t.Fatalf("worker status: want=error got=%v", workers.marked)
	}
	if len(scheduler.settled) != 0 {
		t.Fatalf("settle calls: want=0 got=%d", len(scheduler.settled))
	}
	if workers.cleared != 1 {
		t.Fatalf("clear calls: want=1 got=%d", workers.cleared)
	}
	if instruments.reaped != 1 {
		t.Fatalf("reaped counter: want=1 got=%d", instruments.reaped)
	}
}

func TestSweepNothingToDo(t *testing.T) {
	m, workers, scheduler, instruments := monitorHarness(t)

	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(workers.marked) != 0 || len(scheduler.settled) != 0 || workers.cleared != 0 {
		t.Fatalf("sweep touched state with no dead workers")
	}
	if instruments.reaped != 0 {
		t.Fatalf("reaped counter: want=0 got=%d", instruments.reaped)
	}
}

type fakeInstruments struct {
	reaped int
}

func (f *fakeInstruments) WorkerReaped() { f.reaped++ }

type fakeWorkers struct {
	dead    []*types.Worker
	marked  map[uuid.UUID]types.WorkerStatus
	cleared int
}

func (f *fakeWorkers) Create(_ dbctx.Context, _ *types.Worker) error { return nil }

func (f *fakeWorkers) GetByID(_ dbctx.Context, _ uuid.UUID) (*types.Worker, error) {
	return nil, nil
}

func (f *fakeWorkers) Heartbeat(_ dbctx.Context, _ uuid.UUID) (*time.Time, error) {
	return nil, nil
}

func (f *fakeWorkers) AssignFragment(_ dbctx.Context, _, _ uuid.UUID) error { return nil }

func (f *fakeWorkers) ClearAssignment(_ dbctx.Context, _ uuid.UUID) error {
	f.cleared++
	return nil
}

func (f *fakeWorkers) MarkStatus(_ dbctx.Context, workerID uuid.UUID, status types.WorkerStatus) error {
	if f.marked == nil {
		f.marked = map[uuid.UUID]types.WorkerStatus{}
	}
	f.marked[workerID] = status
	return nil
}

func (f *fakeWorkers) FindDead(_ dbctx.Context, _ time.Duration) ([]*types.Worker, error) {
	return f.dead, nil
}

func (f *fakeWorkers) CountActive(_ dbctx.Context, _ *string) (int64, error) { return 0, nil }

type settleCall struct {
	workerID    uuid.UUID
	fragmentID  uuid.UUID
	maxAttempts int
}

type fakeScheduler struct {
	settled []settleCall
}

func (f *fakeScheduler) FindAndClaimWork(_ dbctx.Context, _ uuid.UUID) (*services.WorkAssignment, error) {
	return nil, nil
}

func (f *fakeScheduler) ReportResult(_ dbctx.Context, _, _ uuid.UUID, _ bool, _ *int, _ *string) (types.FragmentStatus, error) {
	return types.FragmentStatusCompleted, nil
}

func (f *fakeScheduler) SettleAbandoned(_ dbctx.Context, workerID, fragmentID uuid.UUID, maxAttempts int) (types.FragmentStatus, error) {
	f.settled = append(f.settled, settleCall{workerID: workerID, fragmentID: fragmentID, maxAttempts: maxAttempts})
	return types.FragmentStatusPending, nil
}
