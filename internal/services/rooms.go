package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/clients/gcp"
	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/repos"
	"github.com/stageroom/stageroom-backend/internal/types"
)

const maxRoomPhotoBytes = 15 << 20

type RoomService interface {
	// CreateFromUpload stores a shopper's room photo and opens a room session
	// renders can target.
	CreateFromUpload(ctx context.Context, shopID uuid.UUID, photo []byte, mimeType string) (*types.RoomSession, error)
	Get(ctx context.Context, shopID, roomID uuid.UUID) (*types.RoomSession, error)
}

type roomService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.RoomSessionRepo
	bucket gcp.BucketService
}

func NewRoomService(db *gorm.DB, baseLog *logger.Logger, repo repos.RoomSessionRepo, bucket gcp.BucketService) RoomService {
	return &roomService{
		db:     db,
		log:    baseLog.With("service", "RoomService"),
		repo:   repo,
		bucket: bucket,
	}
}

func (s *roomService) CreateFromUpload(ctx context.Context, shopID uuid.UUID, photo []byte, mimeType string) (*types.RoomSession, error) {
	if len(photo) == 0 {
		return nil, &ValidationError{Field: "photo", Reason: "room photo is required"}
	}
	if len(photo) > maxRoomPhotoBytes {
		return nil, &ValidationError{Field: "photo", Reason: "room photo exceeds 15MB"}
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, &ValidationError{Field: "photo", Reason: "unsupported content type"}
	}

	key := fmt.Sprintf("rooms/%s/%s%s", shopID, uuid.New(), extensionFor(mimeType))
	if err := s.bucket.UploadBuffer(ctx, key, photo, mimeType); err != nil {
		return nil, fmt.Errorf("upload room photo: %w", err)
	}

	room := &types.RoomSession{
		ShopID:          shopID,
		PhotoStorageKey: key,
		PhotoMimeType:   mimeType,
	}
	if _, err := s.repo.Create(ctx, nil, []*types.RoomSession{room}); err != nil {
		return nil, fmt.Errorf("create room session: %w", err)
	}
	s.log.Info("room session opened", "room_session_id", room.ID, "shop_id", shopID)
	return room, nil
}

func (s *roomService) Get(ctx context.Context, shopID, roomID uuid.UUID) (*types.RoomSession, error) {
	room, err := s.repo.GetByID(ctx, nil, roomID)
	if err != nil {
		return nil, err
	}
	if room.ShopID != shopID {
		return nil, gorm.ErrRecordNotFound
	}
	return room, nil
}
