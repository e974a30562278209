package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calderhq/calder/internal/pkg/httpx"
	"github.com/calderhq/calder/internal/platform/logger"
)

// ErrNotRegistered is returned when the runner gives up before the
// orchestrator ever acknowledged the worker.
var ErrNotRegistered = errors.New("worker is not registered")

// Runner is the worker's main loop: register, heartbeat, poll, execute,
// report. Cancelling the context stops polling and kills any script still
// running; the result of the killed execution is delivered before exit.
type Runner struct {
	cfg      Config
	client   *Client
	executor *Executor
	log      *logger.Logger

	workerID uuid.UUID
}

func NewRunner(cfg Config, client *Client, executor *Executor, baseLog *logger.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		client:   client,
		executor: executor,
		log:      baseLog.With("component", "Runner"),
	}
}

func (r *Runner) Run(ctx context.Context) error {
	if err := r.register(ctx); err != nil {
		return err
	}
	r.log = r.log.With("worker_id", r.workerID)
	r.log.Info("worker registered and running")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.heartbeatLoop(gctx)
		return nil
	})
	g.Go(func() error {
		return r.workLoop(gctx)
	})
	return g.Wait()
}

// register retries with exponential backoff until the orchestrator answers,
// rejects the registration outright, or the context is cancelled.
func (r *Runner) register(ctx context.Context) error {
	policy := r.newBackoff(ctx)
	resp, err := backoff.RetryWithData(func() (*RegisterResponse, error) {
		resp, err := r.client.Register(ctx, r.cfg.TenantID, r.cfg.MachineGroup)
		if err != nil {
			if rejected(err) {
				r.log.Error("registration rejected", "error", err)
				return nil, backoff.Permanent(err)
			}
			r.log.Warn("registration failed, retrying", "error", err)
			return nil, err
		}
		return resp, nil
	}, policy)
	if err != nil {
		return errors.Join(ErrNotRegistered, err)
	}
	r.workerID = resp.WorkerID
	return nil
}

func (r *Runner) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("heartbeat loop stopping")
			return
		case <-ticker.C:
			if err := r.client.Heartbeat(ctx, r.workerID); err != nil {
				r.log.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

func (r *Runner) workLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.log.Info("work loop stopping")
			return nil
		default:
		}

		hadWork, err := r.workCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error("work cycle failed", "error", err)
			if !sleepCtx(ctx, r.cfg.PollInterval) {
				return nil
			}
			continue
		}
		if !hadWork {
			if !sleepCtx(ctx, r.cfg.PollInterval) {
				return nil
			}
		}
	}
}

// workCycle requests one fragment, executes it, and reports the outcome.
// Reports survive context cancellation: a completed execution is always
// delivered (with retries), and delivery never re-executes the script.
func (r *Runner) workCycle(ctx context.Context) (bool, error) {
	work, err := r.client.RequestWork(ctx, r.workerID)
	if err != nil {
		return false, err
	}
	if work == nil {
		return false, nil
	}

	r.log.Info("received work",
		"fragment_id", work.FragmentID,
		"chain_id", work.ChainID,
		"attempt", work.Attempt)

	var result *Result
	if work.RunScript != nil {
		result = r.executor.Execute(ctx, work.FragmentID, *work.RunScript)
	} else {
		// Group fragments are never dispatched; a payload without a script
		// is an orchestrator bug but must still be answered.
		r.log.Warn("fragment has no run_script", "fragment_id", work.FragmentID)
		msg := "no script to execute"
		result = &Result{Stderr: msg, ExitCode: 1}
	}

	if err := r.report(work.FragmentID, result); err != nil {
		return true, err
	}

	r.log.Info("work completed and reported",
		"fragment_id", work.FragmentID,
		"success", result.Success,
		"exit_code", result.ExitCode)
	return true, nil
}

func (r *Runner) report(fragmentID uuid.UUID, result *Result) error {
	// A fresh context so a shutdown does not drop the result of a script
	// that already ran.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	exitCode := result.ExitCode
	policy := r.newBackoff(ctx)
	return backoff.Retry(func() error {
		err := r.client.ReportResult(ctx, r.workerID, fragmentID, result.Success, &exitCode, result.ErrorMessage())
		if err != nil {
			if rejected(err) {
				r.log.Error("result report rejected", "fragment_id", fragmentID, "error", err)
				return backoff.Permanent(err)
			}
			r.log.Warn("result report failed, retrying", "fragment_id", fragmentID, "error", err)
		}
		return err
	}, policy)
}

// rejected reports whether the orchestrator answered with a status that will
// never succeed on retry. Transport failures and retryable statuses keep the
// backoff going.
func rejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && !httpx.IsRetryableError(err)
}

func (r *Runner) newBackoff(ctx context.Context) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 60 * time.Second
	policy.MaxElapsedTime = 0
	return backoff.WithContext(policy, ctx)
}

// sleepCtx waits for d, returning false when ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
