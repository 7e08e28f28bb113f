package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/types"
)

type ShopRepo interface {
	Create(ctx context.Context, tx *gorm.DB, shops []*types.Shop) ([]*types.Shop, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Shop, error)
	GetByDomain(ctx context.Context, tx *gorm.DB, domain string) (*types.Shop, error)
}

type shopRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewShopRepo(db *gorm.DB, baseLog *logger.Logger) ShopRepo {
	return &shopRepo{db: db, log: baseLog.With("repo", "ShopRepo")}
}

func (r *shopRepo) Create(ctx context.Context, tx *gorm.DB, shops []*types.Shop) ([]*types.Shop, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(shops) == 0 {
		return []*types.Shop{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&shops).Error; err != nil {
		return nil, err
	}
	return shops, nil
}

func (r *shopRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Shop, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var shop types.Shop
	if err := transaction.WithContext(ctx).First(&shop, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *shopRepo) GetByDomain(ctx context.Context, tx *gorm.DB, domain string) (*types.Shop, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var shop types.Shop
	if err := transaction.WithContext(ctx).First(&shop, "domain = ?", domain).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}
