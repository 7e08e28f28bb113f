package app

import (
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/repos"
)

type Repos struct {
	Shop          repos.ShopRepo
	ProductAsset  repos.ProductAssetRepo
	RoomSession   repos.RoomSessionRepo
	RenderRun     repos.RenderRunRepo
	VariantResult repos.VariantResultRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Shop:          repos.NewShopRepo(db, log),
		ProductAsset:  repos.NewProductAssetRepo(db, log),
		RoomSession:   repos.NewRoomSessionRepo(db, log),
		RenderRun:     repos.NewRenderRunRepo(db, log),
		VariantResult: repos.NewVariantResultRepo(db, log),
	}
}
