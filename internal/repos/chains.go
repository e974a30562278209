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

type ChainRepo interface {
	Create(dbc dbctx.Context, c *types.Chain) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chain, error)
	MarkStarted(dbc dbctx.Context, id uuid.UUID) error
	MarkCompleted(dbc dbctx.Context, id uuid.UUID) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID) error
	CreateWithFragments(dbc dbctx.Context, chain *types.Chain, frags []*types.Fragment) error
}

type chainRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChainRepo(db *gorm.DB, baseLog *logger.Logger) ChainRepo {
	return &chainRepo{
		db:  db,
		log: baseLog.With("repo", "ChainRepo"),
	}
}

func (r *chainRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *chainRepo) Create(dbc dbctx.Context, c *types.Chain) error {
	return r.handle(dbc).Create(c).Error
}

func (r *chainRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chain, error) {
	var c types.Chain
	err := r.handle(dbc).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkStarted flips the chain to running when its first fragment is claimed.
// The started_at guard makes repeated calls no-ops.
func (r *chainRepo) MarkStarted(dbc dbctx.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.handle(dbc).Model(&types.Chain{}).
		Where("id = ? AND started_at IS NULL", id).
		Updates(map[string]interface{}{
			"status":     types.ChainStatusRunning,
			"started_at": now,
			"updated_at": now,
		}).Error
}

func (r *chainRepo) MarkCompleted(dbc dbctx.Context, id uuid.UUID) error {
	return r.markTerminal(dbc, id, types.ChainStatusCompleted)
}

func (r *chainRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID) error {
	return r.markTerminal(dbc, id, types.ChainStatusFailed)
}

func (r *chainRepo) markTerminal(dbc dbctx.Context, id uuid.UUID, status types.ChainStatus) error {
	now := time.Now().UTC()
	return r.handle(dbc).Model(&types.Chain{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

// CreateWithFragments persists a compiled chain atomically. A failure inserts
// nothing; parse errors must never leave partial chains behind.
func (r *chainRepo) CreateWithFragments(dbc dbctx.Context, chain *types.Chain, frags []*types.Fragment) error {
	return r.handle(dbc).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(chain).Error; err != nil {
			return err
		}
		if len(frags) == 0 {
			return nil
		}
		return tx.Create(&frags).Error
	})
}
