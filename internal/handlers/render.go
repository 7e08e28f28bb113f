package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/requestdata"
	"github.com/stageroom/stageroom-backend/internal/services"
	"github.com/stageroom/stageroom-backend/internal/sse"
	"github.com/stageroom/stageroom-backend/internal/types"
)

type RenderHandler struct {
	log         *logger.Logger
	renderSvc   services.RenderService
	shopService services.ShopService
	hub         *sse.SSEHub
}

func NewRenderHandler(log *logger.Logger, renderSvc services.RenderService, shopService services.ShopService, hub *sse.SSEHub) *RenderHandler {
	return &RenderHandler{
		log:         log.With("handler", "RenderHandler"),
		renderSvc:   renderSvc,
		shopService: shopService,
		hub:         hub,
	}
}

type startRenderRequest struct {
	ProductAssetID uuid.UUID `json:"product_asset_id" binding:"required"`
	RoomSessionID  uuid.UUID `json:"room_session_id" binding:"required"`
	Stream         bool      `json:"stream"`
}

// POST /api/renders
// Starts a render run. With stream=true the response is the run's SSE event
// stream; otherwise the request blocks until the fan-out settles and returns
// the terminal run with signed URLs for the successful variants.
func (h *RenderHandler) StartRender(c *gin.Context) {
	ctx := c.Request.Context()
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingSession)
		return
	}

	var req startRenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	shop, err := h.shopService.Get(ctx, rd.ShopID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	prep, err := h.renderSvc.Prepare(ctx, shop, req.ProductAssetID, req.RoomSessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	// Subscribe before the fan-out starts so run_started is never missed.
	var client *sse.SSEClient
	if req.Stream {
		client = h.hub.NewSSEClient()
		h.hub.AddChannel(client, sse.RunChannel(prep.Run.ID))
	}

	// The fan-out outlives the HTTP request; a dropped connection must not
	// abandon variants mid-flight.
	execCtx := context.WithoutCancel(ctx)
	notifier := h.renderSvc.NewRunNotifier(prep.Run)
	done := make(chan error, 1)
	go func() {
		err := h.renderSvc.Execute(execCtx, prep, notifier)
		if err != nil {
			h.log.Warn("render run ended in failure", "run_id", prep.Run.ID, "error", err)
		}
		done <- err
	}()

	if req.Stream {
		defer h.hub.CloseClient(client)
		h.hub.ServeHTTP(c.Writer, c.Request, client)
		return
	}

	// Batch mode holds the request open until the run settles.
	if err := <-done; err != nil {
		RespondServiceError(c, err)
		return
	}
	run, err := h.renderSvc.GetRun(ctx, prep.Run.ID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"run": h.runPayload(run)})
}

// GET /api/renders/:id/stream
// Attaches to an in-flight run's event stream. A run that already reached a
// terminal status gets an immediate terminal snapshot instead.
func (h *RenderHandler) StreamRun(c *gin.Context) {
	ctx := c.Request.Context()
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingSession)
		return
	}
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	run, err := h.renderSvc.GetRun(ctx, runID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if run.ShopID != rd.ShopID {
		RespondError(c, http.StatusNotFound, "not_found", errRunNotFound)
		return
	}

	client := h.hub.NewSSEClient()
	h.hub.AddChannel(client, sse.RunChannel(run.ID))
	defer h.hub.CloseClient(client)

	if run.Status.Terminal() {
		// Late attach: replay the terminal outcome as the only frame.
		event := sse.SSEEventComplete
		if run.Status == types.RunStatusFailed {
			event = sse.SSEEventError
		}
		client.Outbound <- sse.SSEMessage{
			Channel: sse.RunChannel(run.ID),
			Event:   event,
			Data:    h.runPayload(run),
		}
	}

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}

// GET /api/renders/:id
func (h *RenderHandler) GetRun(c *gin.Context) {
	ctx := c.Request.Context()
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingSession)
		return
	}
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	run, err := h.renderSvc.GetRun(ctx, runID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if run.ShopID != rd.ShopID {
		RespondError(c, http.StatusNotFound, "not_found", errRunNotFound)
		return
	}
	RespondOK(c, gin.H{"run": h.runPayload(run)})
}

// GET /api/rooms/:id/renders
func (h *RenderHandler) ListRoomRenders(c *gin.Context) {
	ctx := c.Request.Context()
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingSession)
		return
	}
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	runs, err := h.renderSvc.ListRuns(ctx, roomID, 20)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	payloads := make([]gin.H, 0, len(runs))
	for _, run := range runs {
		if run.ShopID != rd.ShopID {
			continue
		}
		payloads = append(payloads, h.runPayload(run))
	}
	RespondOK(c, gin.H{"runs": payloads})
}

func (h *RenderHandler) runPayload(run *types.RenderRun) gin.H {
	variants := make([]gin.H, 0, len(run.Variants))
	for _, v := range run.Variants {
		renderURL, thumbURL := h.renderSvc.SignedVariantURLs(v)
		entry := gin.H{
			"variant_id": v.VariantID,
			"status":     v.Status,
			"latency_ms": v.LatencyMs,
		}
		if renderURL != "" {
			entry["url"] = renderURL
		}
		if thumbURL != "" {
			entry["thumb_url"] = thumbURL
		}
		if v.Error != nil {
			entry["error"] = *v.Error
		}
		variants = append(variants, entry)
	}
	payload := gin.H{
		"run_id":      run.ID,
		"status":      run.Status,
		"duration_ms": run.DurationMs,
		"created_at":  run.CreatedAt,
		"variants":    variants,
	}
	if run.Error != nil {
		payload["error"] = *run.Error
	}
	if run.TraceID != "" {
		payload["trace_id"] = run.TraceID
	}
	return payload
}
