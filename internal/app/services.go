package app

import (
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/services"
	"github.com/stageroom/stageroom-backend/internal/sse"
)

type Services struct {
	Session   services.SessionService
	Shop      services.ShopService
	Asset     services.AssetService
	Room      services.RoomService
	Facts     services.FactsService
	FileCache services.FileCacheService
	Quota     services.QuotaService
	Generator services.VariantGenerator
	Render    services.RenderService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, reposet Repos, hub *sse.SSEHub) Services {
	log.Info("Wiring services...")

	facts := services.NewFactsService(db, log, reposet.ProductAsset, clients.GeminiClient)
	fileCache := services.NewFileCacheService(log, clients.GeminiClient)
	quota := services.NewQuotaService(log, clients.Limiter, cfg.RateLimit, cfg.RateWindow)
	generator := services.NewVariantGenerator(log, clients.GeminiClient, clients.GcpBucket)

	render := services.NewRenderService(
		db,
		log,
		reposet.ProductAsset,
		reposet.RoomSession,
		reposet.RenderRun,
		reposet.VariantResult,
		facts,
		fileCache,
		generator,
		quota,
		clients.GcpBucket,
		hub,
		clients.SSEBus,
	)

	return Services{
		Session:   services.NewSessionService(db, log, reposet.Shop, cfg.JWTSecretKey, cfg.SessionTokenTTL),
		Shop:      services.NewShopService(db, log, reposet.Shop),
		Asset:     services.NewAssetService(db, log, reposet.ProductAsset, clients.GcpBucket),
		Room:      services.NewRoomService(db, log, reposet.RoomSession, clients.GcpBucket),
		Facts:     facts,
		FileCache: fileCache,
		Quota:     quota,
		Generator: generator,
		Render:    render,
	}
}
