package services

import (
	"context"
	"fmt"
	"time"

	"github.com/stageroom/stageroom-backend/internal/clients/gemini"
	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/requestdata"
)

// handleExpiryMargin keeps a safety window before the remote store's expiry,
// so a handle that would lapse mid-generation is refreshed up front.
const handleExpiryMargin = 10 * time.Minute

// HandlePersistFunc writes a refreshed handle back onto the owning entity so
// the next render hits the fast path. Invoked detached from the render
// critical path; failures are logged, never retried inline.
type HandlePersistFunc func(ctx context.Context, uri string, expiry time.Time) error

type FileCacheService interface {
	// EnsureRemoteHandle returns a valid remote file handle for content. When
	// the existing handle is still comfortably within its expiry the call is
	// free; otherwise the content is uploaded once and the fresh handle is
	// persisted best-effort through persist.
	EnsureRemoteHandle(ctx context.Context, existingURI *string, existingExpiry *time.Time, content []byte, mimeType, filename string, persist HandlePersistFunc) (gemini.FileHandle, error)
}

type fileCacheService struct {
	log *logger.Logger
	ai  gemini.Client
}

func NewFileCacheService(log *logger.Logger, ai gemini.Client) FileCacheService {
	return &fileCacheService{
		log: log.With("service", "FileCacheService"),
		ai:  ai,
	}
}

func (s *fileCacheService) EnsureRemoteHandle(ctx context.Context, existingURI *string, existingExpiry *time.Time, content []byte, mimeType, filename string, persist HandlePersistFunc) (gemini.FileHandle, error) {
	if existingURI != nil && *existingURI != "" && existingExpiry != nil {
		if time.Until(*existingExpiry) > handleExpiryMargin {
			return gemini.FileHandle{
				URI:       *existingURI,
				MIMEType:  mimeType,
				ExpiresAt: *existingExpiry,
			}, nil
		}
	}

	handle, err := s.ai.UploadFile(ctx, content, mimeType, filename)
	if err != nil {
		return gemini.FileHandle{}, fmt.Errorf("upload %q to file store: %w", filename, err)
	}
	s.log.Debug("refreshed remote file handle",
		"filename", filename,
		"expires_at", handle.ExpiresAt,
		"trace_id", requestdata.TraceID(ctx),
	)

	if persist != nil {
		// Detached best-effort side write; the render does not wait on it.
		go func(uri string, expiry time.Time) {
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := persist(pctx, uri, expiry); err != nil {
				s.log.Warn("failed to persist refreshed file handle",
					"filename", filename,
					"error", err,
				)
			}
		}(handle.URI, handle.ExpiresAt)
	}

	return *handle, nil
}
