package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/requestdata"
	"github.com/stageroom/stageroom-backend/internal/services"
)

type QuotaHandler struct {
	log     *logger.Logger
	quota   services.QuotaService
	shopSvc services.ShopService
}

func NewQuotaHandler(log *logger.Logger, quota services.QuotaService, shopSvc services.ShopService) *QuotaHandler {
	return &QuotaHandler{
		log:     log.With("handler", "QuotaHandler"),
		quota:   quota,
		shopSvc: shopSvc,
	}
}

// GET /api/quota
func (h *QuotaHandler) GetQuota(c *gin.Context) {
	ctx := c.Request.Context()
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingSession)
		return
	}

	shop, err := h.shopSvc.Get(ctx, rd.ShopID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	used, err := h.quota.Used(ctx, shop.ID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	remaining := int64(shop.RenderLimit) - used
	if remaining < 0 {
		remaining = 0
	}
	RespondOK(c, gin.H{
		"limit":     shop.RenderLimit,
		"used":      used,
		"remaining": remaining,
	})
}
