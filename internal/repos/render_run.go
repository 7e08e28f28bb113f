package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/types"
)

// ErrIllegalTransition is returned when a status update would move a run or
// variant out of a terminal state, or skip a state.
var ErrIllegalTransition = errors.New("illegal status transition")

type RenderRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, runs []*types.RenderRun) ([]*types.RenderRun, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.RenderRun, error)
	ListByRoomSession(ctx context.Context, tx *gorm.DB, roomSessionID uuid.UUID, limit int) ([]*types.RenderRun, error)
	// Transition moves the run to next, enforcing the legal state machine with
	// a guarded update. extra fields (duration_ms, error) are applied in the
	// same write.
	Transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, next types.RunStatus, extra map[string]any) error
}

type renderRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRenderRunRepo(db *gorm.DB, baseLog *logger.Logger) RenderRunRepo {
	return &renderRunRepo{db: db, log: baseLog.With("repo", "RenderRunRepo")}
}

func (r *renderRunRepo) Create(ctx context.Context, tx *gorm.DB, runs []*types.RenderRun) ([]*types.RenderRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(runs) == 0 {
		return []*types.RenderRun{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *renderRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.RenderRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.RenderRun
	if err := transaction.WithContext(ctx).
		Preload("Variants").
		First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *renderRunRepo) ListByRoomSession(ctx context.Context, tx *gorm.DB, roomSessionID uuid.UUID, limit int) ([]*types.RenderRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 20
	}
	var runs []*types.RenderRun
	if err := transaction.WithContext(ctx).
		Preload("Variants").
		Where("room_session_id = ?", roomSessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func legalRunPriors(next types.RunStatus) []types.RunStatus {
	priors := make([]types.RunStatus, 0, 2)
	for _, s := range []types.RunStatus{types.RunStatusPending, types.RunStatusRunning} {
		if s.CanTransition(next) {
			priors = append(priors, s)
		}
	}
	return priors
}

func (r *renderRunRepo) Transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, next types.RunStatus, extra map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	priors := legalRunPriors(next)
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
		Model(&types.RenderRun{}).
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
