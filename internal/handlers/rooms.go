package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/requestdata"
	"github.com/stageroom/stageroom-backend/internal/services"
)

type RoomHandler struct {
	log   *logger.Logger
	rooms services.RoomService
}

func NewRoomHandler(log *logger.Logger, rooms services.RoomService) *RoomHandler {
	return &RoomHandler{
		log:   log.With("handler", "RoomHandler"),
		rooms: rooms,
	}
}

// POST /api/rooms
// Multipart upload of the shopper's room photo.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingSession)
		return
	}

	file, header, err := c.Request.FormFile("photo")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	defer file.Close()
	photo, err := io.ReadAll(file)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	room, err := h.rooms.CreateFromUpload(ctx, rd.ShopID, photo, header.Header.Get("Content-Type"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

// GET /api/rooms/:id
func (h *RoomHandler) GetRoom(c *gin.Context) {
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

	room, err := h.rooms.Get(ctx, rd.ShopID, roomID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"room": room})
}
