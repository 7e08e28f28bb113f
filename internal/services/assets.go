package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/clients/gcp"
	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/repos"
	"github.com/stageroom/stageroom-backend/internal/types"
)

// AssetInput is the merchant-side payload for registering a product with the
// render pipeline. Cutout is the background-removed product image.
type AssetInput struct {
	Title       string
	Description string
	Tags        string
	ImageURLs   []string
	Cutout      []byte
	CutoutMime  string
}

type AssetService interface {
	Create(ctx context.Context, shopID uuid.UUID, input AssetInput) (*types.ProductAsset, error)
	Get(ctx context.Context, shopID, assetID uuid.UUID) (*types.ProductAsset, error)
}

type assetService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.ProductAssetRepo
	bucket gcp.BucketService
}

func NewAssetService(db *gorm.DB, baseLog *logger.Logger, repo repos.ProductAssetRepo, bucket gcp.BucketService) AssetService {
	return &assetService{
		db:     db,
		log:    baseLog.With("service", "AssetService"),
		repo:   repo,
		bucket: bucket,
	}
}

func (s *assetService) Create(ctx context.Context, shopID uuid.UUID, input AssetInput) (*types.ProductAsset, error) {
	if input.Title == "" {
		return nil, &ValidationError{Field: "title", Reason: "required"}
	}
	if len(input.Cutout) == 0 {
		return nil, &ValidationError{Field: "cutout", Reason: "product cutout image is required"}
	}
	mime := input.CutoutMime
	if mime == "" {
		mime = "image/png"
	}

	asset := &types.ProductAsset{
		ShopID:         shopID,
		Title:          input.Title,
		Description:    input.Description,
		Tags:           input.Tags,
		CutoutMimeType: mime,
	}
	if len(input.ImageURLs) > 0 {
		raw, err := json.Marshal(input.ImageURLs)
		if err != nil {
			return nil, fmt.Errorf("marshal image urls: %w", err)
		}
		asset.ImageURLs = datatypes.JSON(raw)
	}

	key := fmt.Sprintf("cutouts/%s/%s%s", shopID, uuid.New(), extensionFor(mime))
	if err := s.bucket.UploadBuffer(ctx, key, input.Cutout, mime); err != nil {
		return nil, fmt.Errorf("upload product cutout: %w", err)
	}
	asset.CutoutStorageKey = key

	if _, err := s.repo.Create(ctx, nil, []*types.ProductAsset{asset}); err != nil {
		return nil, fmt.Errorf("create product asset: %w", err)
	}
	s.log.Info("product asset registered", "asset_id", asset.ID, "shop_id", shopID)
	return asset, nil
}

func (s *assetService) Get(ctx context.Context, shopID, assetID uuid.UUID) (*types.ProductAsset, error) {
	asset, err := s.repo.GetByID(ctx, nil, assetID)
	if err != nil {
		return nil, err
	}
	if asset.ShopID != shopID {
		return nil, gorm.ErrRecordNotFound
	}
	return asset, nil
}
