package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stageroom/stageroom-backend/internal/handlers"
	"github.com/stageroom/stageroom-backend/internal/middleware"
)

type RouterConfig struct {
	AllowOrigins   []string
	AuthMiddleware *middleware.AuthMiddleware
	SessionHandler *handlers.SessionHandler
	ProductHandler *handlers.ProductHandler
	RoomHandler    *handlers.RoomHandler
	RenderHandler  *handlers.RenderHandler
	QuotaHandler   *handlers.QuotaHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/api/sessions", cfg.SessionHandler.CreateSession)

	// Protected
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireSession())
	// Products
	api.POST("/products", cfg.ProductHandler.CreateAsset)
	api.GET("/products/:id", cfg.ProductHandler.GetAsset)
	api.GET("/products/:id/facts", cfg.ProductHandler.GetFacts)
	api.PUT("/products/:id/facts", cfg.ProductHandler.UpdateFacts)
	// Rooms
	api.POST("/rooms", cfg.RoomHandler.CreateRoom)
	api.GET("/rooms/:id", cfg.RoomHandler.GetRoom)
	api.GET("/rooms/:id/renders", cfg.RenderHandler.ListRoomRenders)
	// Renders
	api.POST("/renders", cfg.RenderHandler.StartRender)
	api.GET("/renders/:id", cfg.RenderHandler.GetRun)
	api.GET("/renders/:id/stream", cfg.RenderHandler.StreamRun)
	// Quota
	api.GET("/quota", cfg.QuotaHandler.GetQuota)

	return router
}
