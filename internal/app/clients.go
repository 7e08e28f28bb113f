package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/stageroom/stageroom-backend/internal/clients/gcp"
	"github.com/stageroom/stageroom-backend/internal/clients/gemini"
	"github.com/stageroom/stageroom-backend/internal/clients/redis"
	"github.com/stageroom/stageroom-backend/internal/logger"
)

type Clients struct {
	GeminiClient gemini.Client
	GcpBucket    gcp.BucketService
	Limiter      redis.Limiter
	SSEBus       redis.SSEBus
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	// Gcs
	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init bucket client: %w", err)
	}

	// Gemini
	geminiClient, err := gemini.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init gemini client: %w", err)
	}

	// Redis
	limiter, err := redis.NewLimiter(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis limiter: %w", err)
	}
	var bus redis.SSEBus
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		b, err := redis.NewSSEBus(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		bus = b
	}

	return Clients{
		GeminiClient: geminiClient,
		GcpBucket:    bucket,
		Limiter:      limiter,
		SSEBus:       bus,
	}, nil
}
