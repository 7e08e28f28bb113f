package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/repos"
	"github.com/stageroom/stageroom-backend/internal/types"
)

type ShopService interface {
	Get(ctx context.Context, shopID uuid.UUID) (*types.Shop, error)
	// EnsureByDomain returns the shop for a storefront domain, registering
	// it on first sight with the default render limit.
	EnsureByDomain(ctx context.Context, domain string) (*types.Shop, error)
}

type shopService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.ShopRepo
}

func NewShopService(db *gorm.DB, baseLog *logger.Logger, repo repos.ShopRepo) ShopService {
	return &shopService{
		db:   db,
		log:  baseLog.With("service", "ShopService"),
		repo: repo,
	}
}

func (s *shopService) Get(ctx context.Context, shopID uuid.UUID) (*types.Shop, error) {
	return s.repo.GetByID(ctx, nil, shopID)
}

func (s *shopService) EnsureByDomain(ctx context.Context, domain string) (*types.Shop, error) {
	if domain == "" {
		return nil, &ValidationError{Field: "shop_domain", Reason: "required"}
	}
	shop, err := s.repo.GetByDomain(ctx, nil, domain)
	if err == nil {
		return shop, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup shop %q: %w", domain, err)
	}

	shop = &types.Shop{Domain: domain}
	if _, err := s.repo.Create(ctx, nil, []*types.Shop{shop}); err != nil {
		return nil, fmt.Errorf("register shop %q: %w", domain, err)
	}
	s.log.Info("shop registered", "shop_id", shop.ID, "domain", domain)
	return shop, nil
}
