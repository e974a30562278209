package services

import (
	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/pkg/dbctx"
	pkgerrors "github.com/calderhq/calder/internal/pkg/errors"
	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/repos"
	"github.com/calderhq/calder/internal/types"
)

// WorkAssignment is what a worker receives from a successful work request.
// RunScript is nil only for group fragments, which are never dispatched, so
// in practice it is always set.
type WorkAssignment struct {
	FragmentID uuid.UUID `json:"fragment_id"`
	ChainID    uuid.UUID `json:"chain_id"`
	RunScript  *string   `json:"run_script"`
	Attempt    int       `json:"attempt"`
}

// SchedulerService hands out pending fragments to polling workers and folds
// their results back into chain state. All coordination goes through the
// database: the claim is a conditional update, so any number of orchestrator
// replicas can run this concurrently without handing the same fragment to
// two workers.
type SchedulerService interface {
	FindAndClaimWork(dbc dbctx.Context, workerID uuid.UUID) (*WorkAssignment, error)
	ReportResult(dbc dbctx.Context, workerID, fragmentID uuid.UUID, success bool, exitCode *int, errorMessage *string) (types.FragmentStatus, error)
	SettleAbandoned(dbc dbctx.Context, workerID, fragmentID uuid.UUID, maxAttempts int) (types.FragmentStatus, error)
}

type schedulerService struct {
	log       *logger.Logger
	chains    repos.ChainRepo
	fragments repos.FragmentRepo
	workers   repos.WorkerRepo
}

func NewSchedulerService(log *logger.Logger, chains repos.ChainRepo, fragments repos.FragmentRepo, workers repos.WorkerRepo) SchedulerService {
	return &schedulerService{
		log:       log.With("service", "SchedulerService"),
		chains:    chains,
		fragments: fragments,
		workers:   workers,
	}
}

// FindAndClaimWork scans pending fragments for the worker's machine group in
// sequence order and claims the first one that is ready to run. Fragments
// whose condition evaluates false are completed in place without ever
// reaching a worker; fragments whose condition cannot be evaluated fail in
// place. Returns nil when nothing is ready.
func (s *schedulerService) FindAndClaimWork(dbc dbctx.Context, workerID uuid.UUID) (*WorkAssignment, error) {
	worker, err := s.workers.GetByID(dbc, workerID)
	if err != nil {
		return nil, err
	}
	if worker == nil {
		return nil, pkgerrors.ErrWorkerNotFound
	}

	candidates, err := s.fragments.FindPendingByMachine(dbc, worker.MachineGroup)
	if err != nil {
		return nil, err
	}

	chainCache := map[uuid.UUID]*types.Chain{}

	for _, candidate := range candidates {
		ready, err := s.eligible(dbc, candidate)
		if err != nil {
			return nil, err
		}
		if !ready {
			continue
		}

		// Claim before evaluating the condition so the evaluation sees the
		// current row and no other replica can settle the fragment under us.
		claimed, err := s.fragments.TryClaim(dbc, candidate.ID, worker.ID)
		if err != nil {
			return nil, err
		}
		if claimed == nil {
			// Another worker got there first.
			continue
		}

		if claimed.Condition != nil {
			run, err := s.applyCondition(dbc, claimed, chainCache)
			if err != nil {
				return nil, err
			}
			if !run {
				continue
			}
		}

		if err := s.workers.AssignFragment(dbc, worker.ID, claimed.ID); err != nil {
			s.releaseClaim(dbc, claimed.ID)
			return nil, err
		}
		if err := s.chains.MarkStarted(dbc, claimed.ChainID); err != nil {
			s.releaseClaim(dbc, claimed.ID)
			return nil, err
		}

		s.log.Info("assigned fragment",
			"worker_id", worker.ID,
			"fragment_id", claimed.ID,
			"chain_id", claimed.ChainID,
			"attempt", claimed.Attempt)

		return &WorkAssignment{
			FragmentID: claimed.ID,
			ChainID:    claimed.ChainID,
			RunScript:  claimed.RunScript,
			Attempt:    claimed.Attempt,
		}, nil
	}

	return nil, nil
}

// releaseClaim returns a claimed fragment to the queue when the assignment
// bookkeeping fails after TryClaim. Without it the fragment would sit running
// with no worker back-pointer, which the liveness monitor cannot recover
// (recovery keys off the worker's current fragment). Costs the fragment one
// attempt.
func (s *schedulerService) releaseClaim(dbc dbctx.Context, fragmentID uuid.UUID) {
	if _, err := s.fragments.ResetForRetry(dbc, fragmentID); err != nil {
		s.log.Error("release claimed fragment", "fragment_id", fragmentID, "error", err)
	}
}

// eligible reports whether a pending fragment's ordering constraints are
// satisfied. Children of a parallel group run as soon as they are pending;
// everything else waits for all lower-sequence siblings to reach a terminal
// status. A failed sibling does not block its successors.
func (s *schedulerService) eligible(dbc dbctx.Context, frag *types.Fragment) (bool, error) {
	if frag.ParentFragmentID != nil {
		parent, err := s.fragments.GetByID(dbc, *frag.ParentFragmentID)
		if err != nil {
			return false, err
		}
		if parent != nil && parent.IsParallel {
			return true, nil
		}
	}

	siblings, err := s.fragments.FindSiblings(dbc, frag.ChainID, frag.ParentFragmentID)
	if err != nil {
		return false, err
	}
	for _, sibling := range siblings {
		if sibling.SequenceOrder < frag.SequenceOrder && !sibling.Status.Terminal() {
			return false, nil
		}
	}
	return true, nil
}

// applyCondition settles a freshly claimed conditional fragment. A true
// condition keeps the claim and lets the fragment go out to the worker. A
// false condition completes it with exit code zero; an evaluation error
// fails it. In both of the latter cases the terminal status rolls up before
// the scan moves on, so successors become eligible immediately.
func (s *schedulerService) applyCondition(dbc dbctx.Context, frag *types.Fragment, chainCache map[uuid.UUID]*types.Chain) (bool, error) {
	chain, ok := chainCache[frag.ChainID]
	if !ok {
		var err error
		chain, err = s.chains.GetByID(dbc, frag.ChainID)
		if err != nil {
			return false, err
		}
		if chain == nil {
			return false, pkgerrors.ErrChainNotFound
		}
		chainCache[frag.ChainID] = chain
	}

	run, evalErr := evalCondition(*frag.Condition, conditionEnv(chain, frag))
	if evalErr != nil {
		s.log.Warn("condition evaluation failed",
			"fragment_id", frag.ID,
			"condition", *frag.Condition,
			"error", evalErr)
		failed, err := s.fragments.FailExecution(dbc, frag.ID, evalErr.Error(), nil)
		if err != nil {
			return false, err
		}
		return false, s.rollUp(dbc, failed)
	}
	if run {
		return true, nil
	}

	s.log.Info("condition false, skipping fragment",
		"fragment_id", frag.ID,
		"chain_id", frag.ChainID,
		"condition", *frag.Condition)
	completed, err := s.fragments.CompleteExecution(dbc, frag.ID, 0)
	if err != nil {
		return false, err
	}
	return false, s.rollUp(dbc, completed)
}

// ReportResult records a worker's verdict on a fragment it was assigned. The
// report only lands while the fragment is still running under the reporting
// worker; a duplicate report, or one arriving after the liveness monitor
// already reassigned the fragment, leaves the row untouched and returns the
// status it found. Either way the worker's assignment is cleared so it can
// poll again.
func (s *schedulerService) ReportResult(dbc dbctx.Context, workerID, fragmentID uuid.UUID, success bool, exitCode *int, errorMessage *string) (types.FragmentStatus, error) {
	worker, err := s.workers.GetByID(dbc, workerID)
	if err != nil {
		return "", err
	}
	if worker == nil {
		return "", pkgerrors.ErrWorkerNotFound
	}

	frag, err := s.fragments.GetByID(dbc, fragmentID)
	if err != nil {
		return "", err
	}
	if frag == nil {
		return "", pkgerrors.ErrFragmentNotFound
	}

	if frag.Status != types.FragmentStatusRunning || frag.AssignedWorkerID == nil || *frag.AssignedWorkerID != workerID {
		s.log.Warn("ignoring stale result report",
			"worker_id", workerID,
			"fragment_id", fragmentID,
			"status", frag.Status)
		if err := s.workers.ClearAssignment(dbc, workerID); err != nil {
			return "", err
		}
		return frag.Status, nil
	}

	var updated *types.Fragment
	if success {
		code := 0
		if exitCode != nil {
			code = *exitCode
		}
		updated, err = s.fragments.CompleteExecution(dbc, frag.ID, code)
	} else {
		message := "script execution failed"
		if errorMessage != nil && *errorMessage != "" {
			message = *errorMessage
		}
		updated, err = s.fragments.FailExecution(dbc, frag.ID, message, exitCode)
	}
	if err != nil {
		return "", err
	}

	if err := s.workers.ClearAssignment(dbc, workerID); err != nil {
		return "", err
	}

	s.log.Info("fragment result recorded",
		"worker_id", workerID,
		"fragment_id", frag.ID,
		"success", success,
		"status", updated.Status)

	if err := s.rollUp(dbc, updated); err != nil {
		return "", err
	}
	return updated.Status, nil
}

// SettleAbandoned handles a fragment whose worker stopped heartbeating.
// While the attempt budget lasts the fragment goes back to pending for
// another worker to pick up; once it is spent the fragment fails for good
// and the failure propagates like any other. No-op unless the fragment is
// still running under the dead worker.
func (s *schedulerService) SettleAbandoned(dbc dbctx.Context, workerID, fragmentID uuid.UUID, maxAttempts int) (types.FragmentStatus, error) {
	frag, err := s.fragments.GetByID(dbc, fragmentID)
	if err != nil {
		return "", err
	}
	if frag == nil {
		return "", pkgerrors.ErrFragmentNotFound
	}
	if frag.Status != types.FragmentStatusRunning || frag.AssignedWorkerID == nil || *frag.AssignedWorkerID != workerID {
		return frag.Status, nil
	}

	if frag.Attempt < maxAttempts {
		reset, err := s.fragments.ResetForRetry(dbc, frag.ID)
		if err != nil {
			return "", err
		}
		s.log.Info("fragment requeued after worker death",
			"fragment_id", frag.ID,
			"worker_id", workerID,
			"attempt", reset.Attempt)
		return reset.Status, nil
	}

	failed, err := s.fragments.FailExecution(dbc, frag.ID, "worker died and max retry attempts exceeded", nil)
	if err != nil {
		return "", err
	}
	s.log.Warn("fragment out of retry attempts",
		"fragment_id", frag.ID,
		"worker_id", workerID,
		"attempt", frag.Attempt)
	if err := s.rollUp(dbc, failed); err != nil {
		return "", err
	}
	return failed.Status, nil
}

// rollUp propagates a fragment's terminal status upward. Each enclosing
// group whose children are all terminal becomes completed, or failed if any
// child failed; when every fragment in the chain is terminal the chain
// closes the same way.
func (s *schedulerService) rollUp(dbc dbctx.Context, frag *types.Fragment) error {
	current := frag
	for current.ParentFragmentID != nil {
		parent, err := s.fragments.GetByID(dbc, *current.ParentFragmentID)
		if err != nil {
			return err
		}
		if parent == nil || parent.Status.Terminal() {
			break
		}

		children, err := s.fragments.FindSiblings(dbc, parent.ChainID, &parent.ID)
		if err != nil {
			return err
		}

		anyFailed := false
		for _, child := range children {
			if !child.Status.Terminal() {
				return nil
			}
			if child.Status == types.FragmentStatusFailed {
				anyFailed = true
			}
		}

		status := types.FragmentStatusCompleted
		if anyFailed {
			status = types.FragmentStatusFailed
		}
		if err := s.fragments.MarkStatus(dbc, parent.ID, status); err != nil {
			return err
		}
		s.log.Debug("group settled", "group_id", parent.ID, "status", status)
		current = parent
	}

	return s.closeChainIfDone(dbc, current.ChainID)
}

func (s *schedulerService) closeChainIfDone(dbc dbctx.Context, chainID uuid.UUID) error {
	fragments, err := s.fragments.FindByChain(dbc, chainID)
	if err != nil {
		return err
	}

	anyFailed := false
	for _, frag := range fragments {
		if !frag.Status.Terminal() {
			return nil
		}
		if frag.Status == types.FragmentStatusFailed {
			anyFailed = true
		}
	}

	if anyFailed {
		s.log.Warn("chain failed", "chain_id", chainID)
		return s.chains.MarkFailed(dbc, chainID)
	}
	s.log.Info("chain completed", "chain_id", chainID)
	return s.chains.MarkCompleted(dbc, chainID)
}
