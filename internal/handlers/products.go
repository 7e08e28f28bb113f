package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/requestdata"
	"github.com/stageroom/stageroom-backend/internal/services"
	"github.com/stageroom/stageroom-backend/internal/types"
)

type ProductHandler struct {
	log    *logger.Logger
	assets services.AssetService
	facts  services.FactsService
}

func NewProductHandler(log *logger.Logger, assets services.AssetService, facts services.FactsService) *ProductHandler {
	return &ProductHandler{
		log:    log.With("handler", "ProductHandler"),
		assets: assets,
		facts:  facts,
	}
}

// POST /api/products
// Multipart: "cutout" file plus title/description/tags/image_urls fields.
func (h *ProductHandler) CreateAsset(c *gin.Context) {
	ctx := c.Request.Context()
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingSession)
		return
	}

	file, header, err := c.Request.FormFile("cutout")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	defer file.Close()
	cutout, err := io.ReadAll(file)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	input := services.AssetInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Tags:        c.PostForm("tags"),
		Cutout:      cutout,
		CutoutMime:  header.Header.Get("Content-Type"),
	}
	if raw := c.PostForm("image_urls"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input.ImageURLs); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}

	asset, err := h.assets.Create(ctx, rd.ShopID, input)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"asset": asset})
}

// GET /api/products/:id
func (h *ProductHandler) GetAsset(c *gin.Context) {
	ctx := c.Request.Context()
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingSession)
		return
	}
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	asset, err := h.assets.Get(ctx, rd.ShopID, assetID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"asset": asset})
}

// GET /api/products/:id/facts
// Runs the fact pipeline inline when the asset has no cached artifacts yet.
func (h *ProductHandler) GetFacts(c *gin.Context) {
	ctx := c.Request.Context()
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingSession)
		return
	}
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	asset, err := h.assets.Get(ctx, rd.ShopID, assetID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	resolved, set, err := h.facts.EnsurePipeline(ctx, asset)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"resolved_facts": resolved,
		"placement_set":  set,
	})
}

// PUT /api/products/:id/facts
// Stores the merchant's fact overrides and recomputes the placement set.
func (h *ProductHandler) UpdateFacts(c *gin.Context) {
	ctx := c.Request.Context()
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingSession)
		return
	}
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	var overrides types.FactOverrides
	if err := c.ShouldBindJSON(&overrides); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	asset, err := h.assets.Get(ctx, rd.ShopID, assetID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	resolved, set, err := h.facts.ApplyOverrides(ctx, asset, overrides)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"resolved_facts": resolved,
		"placement_set":  set,
	})
}
