package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/pkg/dbctx"
	pkgerrors "github.com/calderhq/calder/internal/pkg/errors"
	"github.com/calderhq/calder/internal/types"
)

func testCtx() dbctx.Context {
	return dbctx.New(context.Background())
}

// fakeStore backs the repo fakes with plain maps. Rows go in and out by
// value so callers see the same copy semantics the real database layer has.
type fakeStore struct {
	chains    map[uuid.UUID]types.Chain
	fragments map[uuid.UUID]types.Fragment
	workers   map[uuid.UUID]types.Worker
	inserted  map[uuid.UUID]int
	nextSeq   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chains:    map[uuid.UUID]types.Chain{},
		fragments: map[uuid.UUID]types.Fragment{},
		workers:   map[uuid.UUID]types.Worker{},
		inserted:  map[uuid.UUID]int{},
	}
}

func (s *fakeStore) addChain(c *types.Chain) {
	s.chains[c.ID] = *c
}

func (s *fakeStore) addFragment(f *types.Fragment) {
	s.fragments[f.ID] = *f
	s.inserted[f.ID] = s.nextSeq
	s.nextSeq++
}

func (s *fakeStore) addWorker(w *types.Worker) {
	s.workers[w.ID] = *w
}

func (s *fakeStore) fragment(id uuid.UUID) types.Fragment {
	return s.fragments[id]
}

func (s *fakeStore) chain(id uuid.UUID) types.Chain {
	return s.chains[id]
}

func (s *fakeStore) worker(id uuid.UUID) types.Worker {
	return s.workers[id]
}

func (s *fakeStore) sortFragments(frags []*types.Fragment) {
	sort.Slice(frags, func(i, j int) bool {
		if frags[i].SequenceOrder != frags[j].SequenceOrder {
			return frags[i].SequenceOrder < frags[j].SequenceOrder
		}
		return s.inserted[frags[i].ID] < s.inserted[frags[j].ID]
	})
}

type fakeChainRepo struct {
	s *fakeStore
}

func (r *fakeChainRepo) Create(_ dbctx.Context, c *types.Chain) error {
	r.s.chains[c.ID] = *c
	return nil
}

func (r *fakeChainRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Chain, error) {
	c, ok := r.s.chains[id]
	if !ok {
		return nil, nil
	}
	out := c
	return &out, nil
}

func (r *fakeChainRepo) MarkStarted(_ dbctx.Context, id uuid.UUID) error {
	c, ok := r.s.chains[id]
	if !ok || c.StartedAt != nil {
		return nil
	}
	now := time.Now().UTC()
	c.Status = types.ChainStatusRunning
	c.StartedAt = &now
	r.s.chains[id] = c
	return nil
}

func (r *fakeChainRepo) MarkCompleted(_ dbctx.Context, id uuid.UUID) error {
	return r.close(id, types.ChainStatusCompleted)
}

func (r *fakeChainRepo) MarkFailed(_ dbctx.Context, id uuid.UUID) error {
	return r.close(id, types.ChainStatusFailed)
}

func (r *fakeChainRepo) close(id uuid.UUID, status types.ChainStatus) error {
	c, ok := r.s.chains[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	c.Status = status
	c.CompletedAt = &now
	r.s.chains[id] = c
	return nil
}

func (r *fakeChainRepo) CreateWithFragments(dbc dbctx.Context, chain *types.Chain, frags []*types.Fragment) error {
	r.s.chains[chain.ID] = *chain
	for _, f := range frags {
		r.s.addFragment(f)
	}
	return nil
}

type fakeFragmentRepo struct {
	s *fakeStore
}

func (r *fakeFragmentRepo) Create(_ dbctx.Context, frags []*types.Fragment) error {
	for _, f := range frags {
		r.s.addFragment(f)
	}
	return nil
}

func (r *fakeFragmentRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Fragment, error) {
	f, ok := r.s.fragments[id]
	if !ok {
		return nil, nil
	}
	out := f
	return &out, nil
}

func (r *fakeFragmentRepo) FindPendingByMachine(_ dbctx.Context, machineGroup *string) ([]*types.Fragment, error) {
	var out []*types.Fragment
	for _, f := range r.s.fragments {
		if f.Status != types.FragmentStatusPending || f.FragmentType != types.FragmentTypeInline {
			continue
		}
		if machineGroup != nil && (f.MachineGroup == nil || *f.MachineGroup != *machineGroup) {
			continue
		}
		cp := f
		out = append(out, &cp)
	}
	r.s.sortFragments(out)
	return out, nil
}

func (r *fakeFragmentRepo) FindSiblings(_ dbctx.Context, chainID uuid.UUID, parentID *uuid.UUID) ([]*types.Fragment, error) {
	var out []*types.Fragment
	for _, f := range r.s.fragments {
		if f.ChainID != chainID {
			continue
		}
		if parentID == nil {
			if f.ParentFragmentID != nil {
				continue
			}
		} else if f.ParentFragmentID == nil || *f.ParentFragmentID != *parentID {
			continue
		}
		cp := f
		out = append(out, &cp)
	}
	r.s.sortFragments(out)
	return out, nil
}

func (r *fakeFragmentRepo) FindByChain(_ dbctx.Context, chainID uuid.UUID) ([]*types.Fragment, error) {
	var out []*types.Fragment
	for _, f := range r.s.fragments {
		if f.ChainID != chainID {
			continue
		}
		cp := f
		out = append(out, &cp)
	}
	r.s.sortFragments(out)
	return out, nil
}

func (r *fakeFragmentRepo) TryClaim(_ dbctx.Context, fragmentID, workerID uuid.UUID) (*types.Fragment, error) {
	f, ok := r.s.fragments[fragmentID]
	if !ok || f.Status != types.FragmentStatusPending {
		return nil, nil
	}
	now := time.Now().UTC()
	wid := workerID
	f.Status = types.FragmentStatusRunning
	f.AssignedWorkerID = &wid
	f.StartedAt = &now
	r.s.fragments[fragmentID] = f
	out := f
	return &out, nil
}

func (r *fakeFragmentRepo) CompleteExecution(_ dbctx.Context, id uuid.UUID, exitCode int) (*types.Fragment, error) {
	f, ok := r.s.fragments[id]
	if !ok {
		return nil, nil
	}
	status := types.FragmentStatusCompleted
	if exitCode != 0 {
		status = types.FragmentStatusFailed
	}
	now := time.Now().UTC()
	code := exitCode
	f.Status = status
	f.ExitCode = &code
	f.AssignedWorkerID = nil
	f.CompletedAt = &now
	r.s.fragments[id] = f
	out := f
	return &out, nil
}

func (r *fakeFragmentRepo) FailExecution(_ dbctx.Context, id uuid.UUID, message string, exitCode *int) (*types.Fragment, error) {
	f, ok := r.s.fragments[id]
	if !ok {
		return nil, nil
	}
	now := time.Now().UTC()
	msg := message
	f.Status = types.FragmentStatusFailed
	f.ErrorMessage = &msg
	f.AssignedWorkerID = nil
	f.CompletedAt = &now
	if exitCode != nil {
		code := *exitCode
		f.ExitCode = &code
	}
	r.s.fragments[id] = f
	out := f
	return &out, nil
}

func (r *fakeFragmentRepo) MarkStatus(_ dbctx.Context, id uuid.UUID, status types.FragmentStatus) error {
	f, ok := r.s.fragments[id]
	if !ok {
		return nil
	}
	f.Status = status
	if status.Terminal() {
		now := time.Now().UTC()
		f.CompletedAt = &now
	}
	r.s.fragments[id] = f
	return nil
}

func (r *fakeFragmentRepo) ResetForRetry(_ dbctx.Context, id uuid.UUID) (*types.Fragment, error) {
	f, ok := r.s.fragments[id]
	if !ok {
		return nil, nil
	}
	f.Status = types.FragmentStatusPending
	f.AssignedWorkerID = nil
	f.StartedAt = nil
	f.CompletedAt = nil
	f.ExitCode = nil
	f.ErrorMessage = nil
	f.Attempt++
	r.s.fragments[id] = f
	out := f
	return &out, nil
}

func (r *fakeFragmentRepo) CountByStatus(_ dbctx.Context, status types.FragmentStatus, machineGroup *string) (int64, error) {
	var n int64
	for _, f := range r.s.fragments {
		if f.Status != status {
			continue
		}
		if machineGroup != nil && (f.MachineGroup == nil || *f.MachineGroup != *machineGroup) {
			continue
		}
		n++
	}
	return n, nil
}

type fakeWorkerRepo struct {
	s *fakeStore

	// assignErr makes AssignFragment fail, for exercising the claim
	// compensation path.
	assignErr error
}

func (r *fakeWorkerRepo) Create(_ dbctx.Context, w *types.Worker) error {
	r.s.workers[w.ID] = *w
	return nil
}

func (r *fakeWorkerRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Worker, error) {
	w, ok := r.s.workers[id]
	if !ok {
		return nil, nil
	}
	out := w
	return &out, nil
}

func (r *fakeWorkerRepo) Heartbeat(_ dbctx.Context, id uuid.UUID) (*time.Time, error) {
	w, ok := r.s.workers[id]
	if !ok {
		return nil, pkgerrors.ErrWorkerNotFound
	}
	now := time.Now().UTC()
	w.LastHeartbeatAt = &now
	r.s.workers[id] = w
	return &now, nil
}

func (r *fakeWorkerRepo) AssignFragment(_ dbctx.Context, workerID, fragmentID uuid.UUID) error {
	if r.assignErr != nil {
		return r.assignErr
	}
	w, ok := r.s.workers[workerID]
	if !ok {
		return nil
	}
	fid := fragmentID
	w.CurrentFragmentID = &fid
	r.s.workers[workerID] = w
	return nil
}

func (r *fakeWorkerRepo) ClearAssignment(_ dbctx.Context, workerID uuid.UUID) error {
	w, ok := r.s.workers[workerID]
	if !ok {
		return nil
	}
	w.CurrentFragmentID = nil
	r.s.workers[workerID] = w
	return nil
}

func (r *fakeWorkerRepo) MarkStatus(_ dbctx.Context, workerID uuid.UUID, status types.WorkerStatus) error {
	w, ok := r.s.workers[workerID]
	if !ok {
		return nil
	}
	w.Status = status
	r.s.workers[workerID] = w
	return nil
}

func (r *fakeWorkerRepo) FindDead(_ dbctx.Context, threshold time.Duration) ([]*types.Worker, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	var out []*types.Worker
	for _, w := range r.s.workers {
		if w.Status != types.WorkerStatusActive || w.LastHeartbeatAt == nil {
			continue
		}
		if w.LastHeartbeatAt.Before(cutoff) {
			cp := w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeWorkerRepo) CountActive(_ dbctx.Context, machineGroup *string) (int64, error) {
	var n int64
	for _, w := range r.s.workers {
		if w.Status != types.WorkerStatusActive {
			continue
		}
		if machineGroup != nil && (w.MachineGroup == nil || *w.MachineGroup != *machineGroup) {
			continue
		}
		n++
	}
	return n, nil
}
