package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calderhq/calder/internal/pkg/dbctx"
	pkgerrors "github.com/calderhq/calder/internal/pkg/errors"
	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/types"
)

type WorkerRepo interface {
	Create(dbc dbctx.Context, w *types.Worker) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Worker, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) (*time.Time, error)
	AssignFragment(dbc dbctx.Context, workerID, fragmentID uuid.UUID) error
	ClearAssignment(dbc dbctx.Context, workerID uuid.UUID) error
	MarkStatus(dbc dbctx.Context, workerID uuid.UUID, status types.WorkerStatus) error
	FindDead(dbc dbctx.Context, threshold time.Duration) ([]*types.Worker, error)
	CountActive(dbc dbctx.Context, machineGroup *string) (int64, error)
}

type workerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkerRepo(db *gorm.DB, baseLog *logger.Logger) WorkerRepo {
	return &workerRepo{
		db:  db,
		log: baseLog.With("repo", "WorkerRepo"),
	}
}

func (r *workerRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *workerRepo) Create(dbc dbctx.Context, w *types.Worker) error {
	return r.handle(dbc).Create(w).Error
}

func (r *workerRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Worker, error) {
	var w types.Worker
	err := r.handle(dbc).Where("id = ?", id).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Heartbeat stamps last_heartbeat_at and returns the stored timestamp.
// Repeating it is harmless; each call just moves the timestamp forward.
func (r *workerRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) (*time.Time, error) {
	now := time.Now().UTC()
	res := r.handle(dbc).Model(&types.Worker{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_heartbeat_at": now,
			"updated_at":        now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.ErrWorkerNotFound
	}
	return &now, nil
}

func (r *workerRepo) AssignFragment(dbc dbctx.Context, workerID, fragmentID uuid.UUID) error {
	return r.handle(dbc).Model(&types.Worker{}).
		Where("id = ?", workerID).
		Updates(map[string]interface{}{
			"current_fragment_id": fragmentID,
			"updated_at":          time.Now().UTC(),
		}).Error
}

func (r *workerRepo) ClearAssignment(dbc dbctx.Context, workerID uuid.UUID) error {
	return r.handle(dbc).Model(&types.Worker{}).
		Where("id = ?", workerID).
		Updates(map[string]interface{}{
			"current_fragment_id": nil,
			"updated_at":          time.Now().UTC(),
		}).Error
}

func (r *workerRepo) MarkStatus(dbc dbctx.Context, workerID uuid.UUID, status types.WorkerStatus) error {
	return r.handle(dbc).Model(&types.Worker{}).
		Where("id = ?", workerID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

// FindDead returns active workers whose heartbeat is older than the threshold.
// Workers that never heartbeated are left alone; registration stamps one.
func (r *workerRepo) FindDead(dbc dbctx.Context, threshold time.Duration) ([]*types.Worker, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	var out []*types.Worker
	err := r.handle(dbc).
		Where("status = ? AND last_heartbeat_at IS NOT NULL AND last_heartbeat_at < ?",
			types.WorkerStatusActive, cutoff).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *workerRepo) CountActive(dbc dbctx.Context, machineGroup *string) (int64, error) {
	q := r.handle(dbc).Model(&types.Worker{}).
		Where("status = ?", types.WorkerStatusActive)
	if machineGroup != nil {
		q = q.Where("machine_group = ?", *machineGroup)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
