package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/google/uuid"
	"github.com/stageroom/stageroom-backend/internal/clients/gcp"
	"github.com/stageroom/stageroom-backend/internal/clients/gemini"
	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/types"
)

const (
	variantDeadline = 90 * time.Second
	thumbWidth      = 320
)

// VariantOutcome is the terminal record of one generation attempt. Exactly
// one of the three terminal statuses applies; StorageKey is set only on
// success.
type VariantOutcome struct {
	VariantID       string
	Status          types.VariantStatus
	StorageKey      string
	ThumbStorageKey string
	LatencyMs       int64
	Error           string
}

type VariantGenerator interface {
	// Generate runs one placement variant to a terminal outcome. The error
	// return is reserved for infrastructure faults; model refusals and
	// timeouts are reported through the outcome status.
	Generate(ctx context.Context, runID uuid.UUID, variant types.PlacementVariant, template string, product, room gemini.FileHandle) VariantOutcome
}

type variantGenerator struct {
	log    *logger.Logger
	ai     gemini.Client
	bucket gcp.BucketService
}

func NewVariantGenerator(baseLog *logger.Logger, ai gemini.Client, bucket gcp.BucketService) VariantGenerator {
	return &variantGenerator{
		log:    baseLog.With("service", "VariantGenerator"),
		ai:     ai,
		bucket: bucket,
	}
}

func (g *variantGenerator) Generate(ctx context.Context, runID uuid.UUID, variant types.PlacementVariant, template string, product, room gemini.FileHandle) VariantOutcome {
	started := time.Now()
	outcome := VariantOutcome{VariantID: variant.ID}

	vctx, cancel := context.WithTimeout(ctx, variantDeadline)
	defer cancel()

	prompt := template + " " + variant.Hint
	img, err := g.ai.GenerateImage(vctx, prompt, product, room)
	outcome.LatencyMs = time.Since(started).Milliseconds()

	switch {
	// gRPC clients wrap the deadline in a status error errors.Is cannot
	// unwrap; the expired variant context still identifies a timeout.
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(vctx.Err(), context.DeadlineExceeded)):
		outcome.Status = types.VariantStatusTimeout
		outcome.Error = fmt.Sprintf("variant exceeded %s deadline", variantDeadline)
		return outcome
	case err != nil:
		outcome.Status = types.VariantStatusFailed
		outcome.Error = err.Error()
		return outcome
	case img == nil:
		outcome.Status = types.VariantStatusFailed
		outcome.Error = "model returned no image"
		return outcome
	}

	key := fmt.Sprintf("renders/%s/%s%s", runID, variant.ID, extensionFor(img.MIMEType))
	if err := g.bucket.UploadBuffer(vctx, key, img.Data, img.MIMEType); err != nil {
		outcome.Status = types.VariantStatusFailed
		outcome.Error = fmt.Sprintf("upload render: %v", err)
		return outcome
	}
	outcome.StorageKey = key

	if thumb, err := makeThumbnail(img.Data); err != nil {
		g.log.Warn("thumbnail generation failed", "run_id", runID, "variant_id", variant.ID, "error", err)
	} else {
		thumbKey := fmt.Sprintf("renders/%s/%s_thumb.png", runID, variant.ID)
		if err := g.bucket.UploadBuffer(vctx, thumbKey, thumb, "image/png"); err != nil {
			g.log.Warn("thumbnail upload failed", "run_id", runID, "variant_id", variant.ID, "error", err)
		} else {
			outcome.ThumbStorageKey = thumbKey
		}
	}

	outcome.Status = types.VariantStatusSuccess
	outcome.LatencyMs = time.Since(started).Milliseconds()
	return outcome
}

func extensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "jpeg"), strings.Contains(mimeType, "jpg"):
		return ".jpg"
	case strings.Contains(mimeType, "webp"):
		return ".webp"
	default:
		return ".png"
	}
}

func makeThumbnail(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode render: %w", err)
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("empty image bounds")
	}
	h := bounds.Dy() * thumbWidth / bounds.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, thumbWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
