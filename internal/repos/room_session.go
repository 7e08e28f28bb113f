package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/types"
)

type RoomSessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, sessions []*types.RoomSession) ([]*types.RoomSession, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.RoomSession, error)
	UpdateRemoteHandle(ctx context.Context, tx *gorm.DB, id uuid.UUID, uri string, expiry time.Time) error
}

type roomSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRoomSessionRepo(db *gorm.DB, baseLog *logger.Logger) RoomSessionRepo {
	return &roomSessionRepo{db: db, log: baseLog.With("repo", "RoomSessionRepo")}
}

func (r *roomSessionRepo) Create(ctx context.Context, tx *gorm.DB, sessions []*types.RoomSession) ([]*types.RoomSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sessions) == 0 {
		return []*types.RoomSession{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *roomSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.RoomSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var session types.RoomSession
	if err := transaction.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *roomSessionRepo) UpdateRemoteHandle(ctx context.Context, tx *gorm.DB, id uuid.UUID, uri string, expiry time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.RoomSession{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"remote_file_uri":    uri,
			"remote_file_expiry": expiry,
			"updated_at":         time.Now(),
		}).Error
}
