package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/types"
)

type ProductAssetRepo interface {
	Create(ctx context.Context, tx *gorm.DB, assets []*types.ProductAsset) ([]*types.ProductAsset, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ProductAsset, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error
	UpdateRemoteHandle(ctx context.Context, tx *gorm.DB, id uuid.UUID, uri string, expiry time.Time) error
}

type productAssetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProductAssetRepo(db *gorm.DB, baseLog *logger.Logger) ProductAssetRepo {
	return &productAssetRepo{db: db, log: baseLog.With("repo", "ProductAssetRepo")}
}

func (r *productAssetRepo) Create(ctx context.Context, tx *gorm.DB, assets []*types.ProductAsset) ([]*types.ProductAsset, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(assets) == 0 {
		return []*types.ProductAsset{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *productAssetRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ProductAsset, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var asset types.ProductAsset
	if err := transaction.WithContext(ctx).First(&asset, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *productAssetRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	fields["updated_at"] = time.Now()
	return transaction.WithContext(ctx).
		Model(&types.ProductAsset{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// UpdateRemoteHandle is the best-effort side write behind the file cache's
// fast path. Last writer wins under concurrent refreshes.
func (r *productAssetRepo) UpdateRemoteHandle(ctx context.Context, tx *gorm.DB, id uuid.UUID, uri string, expiry time.Time) error {
	return r.UpdateFields(ctx, tx, id, map[string]any{
		"remote_file_uri":    uri,
		"remote_file_expiry": expiry,
	})
}
