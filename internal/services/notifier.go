package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stageroom/stageroom-backend/internal/clients/redis"
	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/sse"
	"github.com/stageroom/stageroom-backend/internal/types"
)

// RenderNotifier publishes one run's lifecycle onto its hub channel and,
// when a bus is configured, onto redis so other instances can forward the
// events to their own SSE clients. It enforces the stream contract: one
// run_started, at most one first_image, exactly one terminal event.
type RenderNotifier struct {
	log     *logger.Logger
	hub     *sse.SSEHub
	bus     redis.SSEBus
	runID   uuid.UUID
	traceID string

	mu         sync.Mutex
	firstImage bool
	terminal   bool
}

func NewRenderNotifier(baseLog *logger.Logger, hub *sse.SSEHub, bus redis.SSEBus, runID uuid.UUID, traceID string) *RenderNotifier {
	return &RenderNotifier{
		log:     baseLog.With("component", "RenderNotifier", "run_id", runID),
		hub:     hub,
		bus:     bus,
		runID:   runID,
		traceID: traceID,
	}
}

func (n *RenderNotifier) publish(ctx context.Context, event sse.SSEEvent, data any) {
	msg := sse.SSEMessage{
		Channel: sse.RunChannel(n.runID),
		Event:   event,
		Data:    data,
	}
	// With a bus configured every instance, this one included, receives the
	// event through its forwarder; publishing to both would double frames.
	if n.bus != nil {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := n.bus.Publish(bctx, msg); err != nil {
			n.log.Warn("bus publish failed, falling back to local hub", "event", event, "error", err)
			n.hub.Broadcast(msg)
		}
		return
	}
	n.hub.Broadcast(msg)
}

func (n *RenderNotifier) RunStarted(ctx context.Context, run *types.RenderRun, variantCount int) {
	n.publish(ctx, sse.SSEEventRunStarted, map[string]any{
		"run_id":        run.ID,
		"variant_count": variantCount,
		"status":        run.Status,
	})
}

func (n *RenderNotifier) Progress(ctx context.Context, succeeded, failed, inFlight int) {
	n.publish(ctx, sse.SSEEventProgress, map[string]any{
		"run_id":    n.runID,
		"succeeded": succeeded,
		"failed":    failed,
		"in_flight": inFlight,
	})
}

// Variant reports one terminal variant outcome. The first successful variant
// additionally emits first_image so storefront UIs can swap the placeholder
// as soon as anything is viewable.
func (n *RenderNotifier) Variant(ctx context.Context, outcome VariantOutcome, renderURL, thumbURL string) {
	payload := map[string]any{
		"run_id":     n.runID,
		"variant_id": outcome.VariantID,
		"status":     outcome.Status,
		"latency_ms": outcome.LatencyMs,
	}
	if renderURL != "" {
		payload["url"] = renderURL
	}
	if thumbURL != "" {
		payload["thumb_url"] = thumbURL
	}
	if outcome.Error != "" {
		payload["error"] = outcome.Error
	}
	n.publish(ctx, sse.SSEEventVariant, payload)

	if outcome.Status != types.VariantStatusSuccess {
		return
	}
	n.mu.Lock()
	first := !n.firstImage
	n.firstImage = true
	n.mu.Unlock()
	if first {
		n.publish(ctx, sse.SSEEventFirstImage, payload)
	}
}

func (n *RenderNotifier) Complete(ctx context.Context, run *types.RenderRun, succeededVariantIDs []string, total int) {
	if !n.claimTerminal() {
		return
	}
	n.publish(ctx, sse.SSEEventComplete, map[string]any{
		"run_id":                run.ID,
		"status":                run.Status,
		"succeeded_variant_ids": succeededVariantIDs,
		"total":                 total,
		"duration_ms":           run.DurationMs,
	})
}

func (n *RenderNotifier) Error(ctx context.Context, code, message string) {
	if !n.claimTerminal() {
		return
	}
	payload := map[string]any{
		"run_id":  n.runID,
		"code":    code,
		"message": message,
	}
	if n.traceID != "" {
		payload["trace_id"] = n.traceID
	}
	n.publish(ctx, sse.SSEEventError, payload)
}

func (n *RenderNotifier) claimTerminal() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.terminal {
		n.log.Warn("terminal event already emitted")
		return false
	}
	n.terminal = true
	return true
}
