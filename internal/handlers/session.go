package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/services"
)

type SessionHandler struct {
	log      *logger.Logger
	sessions services.SessionService
	shops    services.ShopService
}

func NewSessionHandler(log *logger.Logger, sessions services.SessionService, shops services.ShopService) *SessionHandler {
	return &SessionHandler{
		log:      log.With("handler", "SessionHandler"),
		sessions: sessions,
		shops:    shops,
	}
}

type createSessionRequest struct {
	ShopDomain string `json:"shop_domain" binding:"required"`
	SessionKey string `json:"session_key"`
}

// POST /api/sessions
// Called by the storefront app proxy to mint a session token for a shopper.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	shop, err := h.shops.EnsureByDomain(ctx, req.ShopDomain)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	token, err := h.sessions.IssueSessionToken(ctx, shop, req.SessionKey)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "shop_id": shop.ID})
}
