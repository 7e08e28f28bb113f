package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stageroom/stageroom-backend/internal/clients/redis"
	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/types"
)

const (
	// quotaPeriodTTL outlives the calendar month the key covers so a counter
	// never expires mid-period.
	quotaPeriodTTL = 35 * 24 * time.Hour
)

type QuotaService interface {
	// CheckQuota fails with ErrQuotaExceeded when amount more render units
	// would push the shop past its plan limit for the current period.
	CheckQuota(ctx context.Context, shop *types.Shop, amount int64) error
	// IncrementQuota bumps the shop's counter. Called exactly once per run,
	// after the fan-out completes.
	IncrementQuota(ctx context.Context, shopID uuid.UUID, amount int64) error
	Used(ctx context.Context, shopID uuid.UUID) (int64, error)
	// CheckRateLimit counts one request for the session key and reports
	// whether it is allowed. Called once per incoming render request before
	// any other work.
	CheckRateLimit(ctx context.Context, sessionKey string) (bool, error)
}

type quotaService struct {
	log       *logger.Logger
	limiter   redis.Limiter
	rateLimit int
	rateWin   time.Duration
}

func NewQuotaService(log *logger.Logger, limiter redis.Limiter, rateLimit int, rateWindow time.Duration) QuotaService {
	return &quotaService{
		log:       log.With("service", "QuotaService"),
		limiter:   limiter,
		rateLimit: rateLimit,
		rateWin:   rateWindow,
	}
}

func quotaKey(shopID uuid.UUID) string {
	return fmt.Sprintf("quota:render:%s:%s", shopID, time.Now().UTC().Format("200601"))
}

func (s *quotaService) CheckQuota(ctx context.Context, shop *types.Shop, amount int64) error {
	used, err := s.limiter.QuotaUsed(ctx, quotaKey(shop.ID))
	if err != nil {
		return fmt.Errorf("read quota counter: %w", err)
	}
	if used+amount > int64(shop.RenderLimit) {
		return ErrQuotaExceeded
	}
	return nil
}

func (s *quotaService) IncrementQuota(ctx context.Context, shopID uuid.UUID, amount int64) error {
	if _, err := s.limiter.QuotaIncr(ctx, quotaKey(shopID), amount, quotaPeriodTTL); err != nil {
		return fmt.Errorf("increment quota counter: %w", err)
	}
	return nil
}

func (s *quotaService) Used(ctx context.Context, shopID uuid.UUID) (int64, error) {
	return s.limiter.QuotaUsed(ctx, quotaKey(shopID))
}

func (s *quotaService) CheckRateLimit(ctx context.Context, sessionKey string) (bool, error) {
	return s.limiter.Allow(ctx, "rate:render:"+sessionKey, s.rateLimit, s.rateWin)
}
