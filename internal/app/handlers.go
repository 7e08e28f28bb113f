package app

import (
	"github.com/gin-gonic/gin"

	"github.com/stageroom/stageroom-backend/internal/handlers"
	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/middleware"
	"github.com/stageroom/stageroom-backend/internal/server"
	"github.com/stageroom/stageroom-backend/internal/sse"
)

type Middleware struct {
	Auth *middleware.AuthMiddleware
}

type Handlers struct {
	Session *handlers.SessionHandler
	Product *handlers.ProductHandler
	Room    *handlers.RoomHandler
	Render  *handlers.RenderHandler
	Quota   *handlers.QuotaHandler
}

func wireHandlers(log *logger.Logger, serviceset Services, hub *sse.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Session: handlers.NewSessionHandler(log, serviceset.Session, serviceset.Shop),
		Product: handlers.NewProductHandler(log, serviceset.Asset, serviceset.Facts),
		Room:    handlers.NewRoomHandler(log, serviceset.Room),
		Render:  handlers.NewRenderHandler(log, serviceset.Render, serviceset.Shop, hub),
		Quota:   handlers.NewQuotaHandler(log, serviceset.Quota, serviceset.Shop),
	}
}

func wireMiddleware(log *logger.Logger, serviceset Services) Middleware {
	return Middleware{
		Auth: middleware.NewAuthMiddleware(log, serviceset.Session),
	}
}

func wireRouter(cfg Config, handlerset Handlers, mw Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AllowOrigins:   cfg.AllowOrigins,
		AuthMiddleware: mw.Auth,
		SessionHandler: handlerset.Session,
		ProductHandler: handlerset.Product,
		RoomHandler:    handlerset.Room,
		RenderHandler:  handlerset.Render,
		QuotaHandler:   handlerset.Quota,
	})
}
