package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/types"
)

type VariantResultRepo interface {
	Create(ctx context.Context, tx *gorm.DB, results []*types.VariantResult) ([]*types.VariantResult, error)
	ListByRun(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.VariantResult, error)
	Transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, next types.VariantStatus, extra map[string]any) error
}

type variantResultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVariantResultRepo(db *gorm.DB, baseLog *logger.Logger) VariantResultRepo {
	return &variantResultRepo{db: db, log: baseLog.With("repo", "VariantResultRepo")}
}

func (r *variantResultRepo) Create(ctx context.Context, tx *gorm.DB, results []*types.VariantResult) ([]*types.VariantResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(results) == 0 {
		return []*types.VariantResult{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *variantResultRepo) ListByRun(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.VariantResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.VariantResult
	if err := transaction.WithContext(ctx).
		Where("render_run_id = ?", runID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func legalVariantPriors(next types.VariantStatus) []types.VariantStatus {
	priors := make([]types.VariantStatus, 0, 2)
	for _, s := range []types.VariantStatus{types.VariantStatusPending, types.VariantStatusRunning} {
		if s.CanTransition(next) {
			priors = append(priors, s)
		}
	}
	return priors
}

func (r *variantResultRepo) Transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, next types.VariantStatus, extra map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	priors := legalVariantPriors(next)
	if len(priors) == 0 {
		return ErrIllegalTransition
	}
	fields := map[string]any{
		"status":     next,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		fields[k] = v
	}
	res := transaction.WithContext(ctx).
		Model(&types.VariantResult{}).
		Where("id = ? AND status IN ?", id, priors).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrIllegalTransition
	}
	return nil
}
