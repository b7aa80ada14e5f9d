package generation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/curriculum-backend/internal/domain"
	"github.com/yungbote/curriculum-backend/internal/platform/dbctx"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

var ErrRunNotFound = errors.New("generation run not found")

type RunRepo interface {
	Create(dbc dbctx.Context, runs []*domain.GenerationRun) ([]*domain.GenerationRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.GenerationRun, error)
	ListRecent(dbc dbctx.Context, limit int) ([]*domain.GenerationRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// MarkStale fails runs left running by a crashed process.
	MarkStale(dbc dbctx.Context, olderThan time.Duration) (int64, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	return &runRepo{
		db:  db,
		log: baseLog.With("repo", "GenerationRunRepo"),
	}
}

func (r *runRepo) Create(dbc dbctx.Context, runs []*domain.GenerationRun) ([]*domain.GenerationRun, error) {
	if len(runs) == 0 {
		return []*domain.GenerationRun{}, nil
	}
	for _, run := range runs {
		if run.ID == uuid.Nil {
			run.ID = uuid.New()
		}
	}
	if err := dbc.DB(r.db).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *runRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.GenerationRun, error) {
	if id == uuid.Nil {
		return nil, ErrRunNotFound
	}
	var run domain.GenerationRun
	err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, ErrRunNotFound
	}
	return &run, nil
}

func (r *runRepo) ListRecent(dbc dbctx.Context, limit int) ([]*domain.GenerationRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*domain.GenerationRun
	if err := dbc.DB(r.db).Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *runRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return ErrRunNotFound
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := dbc.DB(r.db).Model(&domain.GenerationRun{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *runRepo) MarkStale(dbc dbctx.Context, olderThan time.Duration) (int64, error) {
	now := time.Now().UTC()
	res := dbc.DB(r.db).Model(&domain.GenerationRun{}).
		Where("status IN ? AND updated_at < ?", []string{domain.RunPending, domain.RunRunning}, now.Add(-olderThan)).
		Updates(map[string]interface{}{
			"status":      domain.RunFailed,
			"error":       "interrupted",
			"finished_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Warn("marked stale generation runs failed", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
