package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calderhq/calder/internal/pkg/dbctx"
	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/types"
)

type FragmentRepo interface {
	Create(dbc dbctx.Context, frags []*types.Fragment) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Fragment, error)
	FindPendingByMachine(dbc dbctx.Context, machineGroup *string) ([]*types.Fragment, error)
	FindSiblings(dbc dbctx.Context, chainID uuid.UUID, parentID *uuid.UUID) ([]*types.Fragment, error)
	FindByChain(dbc dbctx.Context, chainID uuid.UUID) ([]*types.Fragment, error)
	TryClaim(dbc dbctx.Context, fragmentID, workerID uuid.UUID) (*types.Fragment, error)
	CompleteExecution(dbc dbctx.Context, id uuid.UUID, exitCode int) (*types.Fragment, error)
	FailExecution(dbc dbctx.Context, id uuid.UUID, message string, exitCode *int) (*types.Fragment, error)
	MarkStatus(dbc dbctx.Context, id uuid.UUID, status types.FragmentStatus) error
	ResetForRetry(dbc dbctx.Context, id uuid.UUID) (*types.Fragment, error)
	CountByStatus(dbc dbctx.Context, status types.FragmentStatus, machineGroup *string) (int64, error)
}

type fragmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFragmentRepo(db *gorm.DB, baseLog *logger.Logger) FragmentRepo {
	return &fragmentRepo{
		db:  db,
		log: baseLog.With("repo", "FragmentRepo"),
	}
}

func (r *fragmentRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *fragmentRepo) Create(dbc dbctx.Context, frags []*types.Fragment) error {
	if len(frags) == 0 {
		return nil
	}
	return r.handle(dbc).Create(&frags).Error
}

func (r *fragmentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Fragment, error) {
	var frag types.Fragment
	err := r.handle(dbc).Where("id = ?", id).First(&frag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &frag, nil
}

// FindPendingByMachine returns claimable fragments in execution order. Group
// containers are excluded; only inline fragments carry scripts.
func (r *fragmentRepo) FindPendingByMachine(dbc dbctx.Context, machineGroup *string) ([]*types.Fragment, error) {
	q := r.handle(dbc).
		Where("status = ? AND fragment_type = ?", types.FragmentStatusPending, types.FragmentTypeInline)
	if machineGroup != nil {
		q = q.Where("machine_group = ?", *machineGroup)
	}
	var out []*types.Fragment
	if err := q.Order("sequence_order ASC, created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fragmentRepo) FindSiblings(dbc dbctx.Context, chainID uuid.UUID, parentID *uuid.UUID) ([]*types.Fragment, error) {
	q := r.handle(dbc).Where("chain_id = ?", chainID)
	if parentID == nil {
		q = q.Where("parent_fragment_id IS NULL")
	} else {
		q = q.Where("parent_fragment_id = ?", *parentID)
	}
	var out []*types.Fragment
	if err := q.Order("sequence_order ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fragmentRepo) FindByChain(dbc dbctx.Context, chainID uuid.UUID) ([]*types.Fragment, error) {
	var out []*types.Fragment
	err := r.handle(dbc).
		Where("chain_id = ?", chainID).
		Order("sequence_order ASC, created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TryClaim is the scheduling sync point: a single conditional update that only
// one caller can win. Returns nil when the fragment was not pending anymore.
// Orchestrator replicas coordinate through this and nothing else.
func (r *fragmentRepo) TryClaim(dbc dbctx.Context, fragmentID, workerID uuid.UUID) (*types.Fragment, error) {
	now := time.Now().UTC()
	res := r.handle(dbc).Model(&types.Fragment{}).
		Where("id = ? AND status = ?", fragmentID, types.FragmentStatusPending).
		Updates(map[string]interface{}{
			"status":             types.FragmentStatusRunning,
			"assigned_worker_id": workerID,
			"started_at":         now,
			"updated_at":         now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetByID(dbc, fragmentID)
}

// CompleteExecution records a finished run. A worker claim only exists while
// the fragment runs, so the assignment is released here.
func (r *fragmentRepo) CompleteExecution(dbc dbctx.Context, id uuid.UUID, exitCode int) (*types.Fragment, error) {
	status := types.FragmentStatusCompleted
	if exitCode != 0 {
		status = types.FragmentStatusFailed
	}
	now := time.Now().UTC()
	err := r.handle(dbc).Model(&types.Fragment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":             status,
			"exit_code":          exitCode,
			"assigned_worker_id": nil,
			"completed_at":       now,
			"updated_at":         now,
		}).Error
	if err != nil {
		return nil, err
	}
	return r.GetByID(dbc, id)
}

// FailExecution marks a fragment failed outright. exitCode is recorded when
// the failure came from a script that did exit; infrastructure failures
// (dead worker, condition errors) pass nil.
func (r *fragmentRepo) FailExecution(dbc dbctx.Context, id uuid.UUID, message string, exitCode *int) (*types.Fragment, error) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":             types.FragmentStatusFailed,
		"error_message":      message,
		"assigned_worker_id": nil,
		"completed_at":       now,
		"updated_at":         now,
	}
	if exitCode != nil {
		updates["exit_code"] = *exitCode
	}
	err := r.handle(dbc).Model(&types.Fragment{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}
	return r.GetByID(dbc, id)
}

// MarkStatus is the bare transition used by group rollup. Terminal statuses
// also stamp completed_at.
func (r *fragmentRepo) MarkStatus(dbc dbctx.Context, id uuid.UUID, status types.FragmentStatus) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}
	if status.Terminal() {
		updates["completed_at"] = now
	}
	return r.handle(dbc).Model(&types.Fragment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ResetForRetry requeues a fragment after its worker died: back to pending
// with execution state cleared and the attempt counter bumped.
func (r *fragmentRepo) ResetForRetry(dbc dbctx.Context, id uuid.UUID) (*types.Fragment, error) {
	err := r.handle(dbc).Model(&types.Fragment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":             types.FragmentStatusPending,
			"assigned_worker_id": nil,
			"started_at":         nil,
			"completed_at":       nil,
			"exit_code":          nil,
			"error_message":      nil,
			"attempt":            gorm.Expr("attempt + 1"),
			"updated_at":         time.Now().UTC(),
		}).Error
	if err != nil {
		return nil, err
	}
	return r.GetByID(dbc, id)
}

func (r *fragmentRepo) CountByStatus(dbc dbctx.Context, status types.FragmentStatus, machineGroup *string) (int64, error) {
	q := r.handle(dbc).Model(&types.Fragment{}).
		Where("status = ? AND fragment_type = ?", status, types.FragmentTypeInline)
	if machineGroup != nil {
		q = q.Where("machine_group = ?", *machineGroup)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
