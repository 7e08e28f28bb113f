package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/requestdata"
	"github.com/stageroom/stageroom-backend/internal/services"
)

var (
	errMissingSession = errors.New("missing session context")
	errRunNotFound    = errors.New("render run not found")
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
			TraceID: requestdata.TraceID(c.Request.Context()),
		},
	})
}

// RespondServiceError maps the service error taxonomy onto HTTP statuses.
func RespondServiceError(c *gin.Context, err error) {
	var extractorErr *services.ExtractorOutputError
	var validationErr *services.ValidationError

	switch {
	case errors.Is(err, services.ErrRateLimited):
		RespondError(c, http.StatusTooManyRequests, "rate_limited", err)
	case errors.Is(err, services.ErrQuotaExceeded):
		RespondError(c, http.StatusPaymentRequired, "quota_exceeded", err)
	case errors.As(err, &extractorErr):
		RespondError(c, http.StatusUnprocessableEntity, "pipeline_not_ready", err)
	case errors.As(err, &validationErr):
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, services.ErrRunFailed):
		RespondError(c, http.StatusBadGateway, "run_failed", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
