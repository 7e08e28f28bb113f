package app

import (
	"strings"
	"time"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/utils"
)

type Config struct {
	JWTSecretKey    string
	SessionTokenTTL time.Duration
	RateLimit       int
	RateWindow      time.Duration
	AllowOrigins    []string
}

func LoadConfig(log *logger.Logger) Config {
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	sessionTTLSeconds := utils.GetEnvAsInt("SESSION_TOKEN_TTL", 86400, log)
	rateLimit := utils.GetEnvAsInt("RENDER_RATE_LIMIT", 3, log)
	rateWindowSeconds := utils.GetEnvAsInt("RENDER_RATE_WINDOW", 60, log)

	var origins []string
	for _, o := range strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		JWTSecretKey:    jwtSecretKey,
		SessionTokenTTL: time.Duration(sessionTTLSeconds) * time.Second,
		RateLimit:       rateLimit,
		RateWindow:      time.Duration(rateWindowSeconds) * time.Second,
		AllowOrigins:    origins,
	}
}
