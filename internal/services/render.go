package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/google/uuid"
	"github.com/stageroom/stageroom-backend/internal/clients/gcp"
	"github.com/stageroom/stageroom-backend/internal/clients/gemini"
	"github.com/stageroom/stageroom-backend/internal/clients/redis"
	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/repos"
	"github.com/stageroom/stageroom-backend/internal/requestdata"
	"github.com/stageroom/stageroom-backend/internal/sse"
	"github.com/stageroom/stageroom-backend/internal/types"
)

const (
	maxConcurrentVariants = 8
	signedURLTTL          = 24 * time.Hour
)

// PreparedRun is a pending run plus everything the fan-out needs, built
// before the caller opens its event stream so run_started is never missed.
type PreparedRun struct {
	Run      *types.RenderRun
	Shop     *types.Shop
	Asset    *types.ProductAsset
	Room     *types.RoomSession
	Set      types.PlacementSet
	Variants []*types.VariantResult
}

type RenderService interface {
	// Prepare checks the rate limit and quota, runs the fact pipeline if
	// needed, and creates the pending run with one pending row per variant.
	Prepare(ctx context.Context, shop *types.Shop, assetID, roomSessionID uuid.UUID) (*PreparedRun, error)
	// Execute fans the prepared run out and drives it to a terminal status.
	// It reports through the notifier; the error return surfaces only as the
	// run's failure cause.
	Execute(ctx context.Context, prep *PreparedRun, notifier *RenderNotifier) error
	GetRun(ctx context.Context, runID uuid.UUID) (*types.RenderRun, error)
	ListRuns(ctx context.Context, roomSessionID uuid.UUID, limit int) ([]*types.RenderRun, error)
	SignedVariantURLs(v *types.VariantResult) (renderURL, thumbURL string)
	NewRunNotifier(run *types.RenderRun) *RenderNotifier
}

type renderService struct {
	db          *gorm.DB
	log         *logger.Logger
	assetRepo   repos.ProductAssetRepo
	roomRepo    repos.RoomSessionRepo
	runRepo     repos.RenderRunRepo
	variantRepo repos.VariantResultRepo
	facts       FactsService
	files       FileCacheService
	generator   VariantGenerator
	quota       QuotaService
	bucket      gcp.BucketService
	hub         *sse.SSEHub
	bus         redis.SSEBus
}

func NewRenderService(
	db *gorm.DB,
	baseLog *logger.Logger,
	assetRepo repos.ProductAssetRepo,
	roomRepo repos.RoomSessionRepo,
	runRepo repos.RenderRunRepo,
	variantRepo repos.VariantResultRepo,
	facts FactsService,
	files FileCacheService,
	generator VariantGenerator,
	quota QuotaService,
	bucket gcp.BucketService,
	hub *sse.SSEHub,
	bus redis.SSEBus,
) RenderService {
	return &renderService{
		db:          db,
		log:         baseLog.With("service", "RenderService"),
		assetRepo:   assetRepo,
		roomRepo:    roomRepo,
		runRepo:     runRepo,
		variantRepo: variantRepo,
		facts:       facts,
		files:       files,
		generator:   generator,
		quota:       quota,
		bucket:      bucket,
		hub:         hub,
		bus:         bus,
	}
}

func (s *renderService) Prepare(ctx context.Context, shop *types.Shop, assetID, roomSessionID uuid.UUID) (*PreparedRun, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		rd = &requestdata.RequestData{}
	}

	allowed, err := s.quota.CheckRateLimit(ctx, rd.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		return nil, ErrRateLimited
	}
	if err := s.quota.CheckQuota(ctx, shop, 1); err != nil {
		return nil, err
	}

	asset, err := s.assetRepo.GetByID(ctx, nil, assetID)
	if err != nil {
		return nil, fmt.Errorf("load product asset: %w", err)
	}
	room, err := s.roomRepo.GetByID(ctx, nil, roomSessionID)
	if err != nil {
		return nil, fmt.Errorf("load room session: %w", err)
	}
	if asset.ShopID != shop.ID || room.ShopID != shop.ID {
		return nil, &ValidationError{Field: "shop_id", Reason: "asset and room must belong to the requesting shop"}
	}

	_, set, err := s.facts.EnsurePipeline(ctx, asset)
	if err != nil {
		return nil, err
	}
	if len(set.Variants) == 0 {
		return nil, &ValidationError{Field: "placement_set", Reason: "placement set has no variants"}
	}

	run := &types.RenderRun{
		ShopID:              shop.ID,
		ProductAssetID:      asset.ID,
		RoomSessionID:       room.ID,
		PlacementSetVersion: set.Version,
		Status:              types.RunStatusPending,
		TraceID:             rd.TraceID,
	}
	if _, err := s.runRepo.Create(ctx, nil, []*types.RenderRun{run}); err != nil {
		return nil, fmt.Errorf("create render run: %w", err)
	}

	rows := make([]*types.VariantResult, 0, len(set.Variants))
	for _, v := range set.Variants {
		rows = append(rows, &types.VariantResult{
			RenderRunID: run.ID,
			VariantID:   v.ID,
			Status:      types.VariantStatusPending,
		})
	}
	if _, err := s.variantRepo.Create(ctx, nil, rows); err != nil {
		return nil, fmt.Errorf("create variant rows: %w", err)
	}

	return &PreparedRun{Run: run, Shop: shop, Asset: asset, Room: room, Set: set, Variants: rows}, nil
}

func (s *renderService) Execute(ctx context.Context, prep *PreparedRun, notifier *RenderNotifier) error {
	started := time.Now()
	run := prep.Run

	if err := s.runRepo.Transition(ctx, nil, run.ID, types.RunStatusRunning, nil); err != nil {
		notifier.Error(ctx, "run_failed", "run could not start")
		return fmt.Errorf("start run %s: %w", run.ID, err)
	}
	run.Status = types.RunStatusRunning
	notifier.RunStarted(ctx, run, len(prep.Variants))

	product, room, err := s.remoteHandles(ctx, prep.Asset, prep.Room)
	if err != nil {
		return s.failRun(ctx, notifier, prep, started, fmt.Errorf("prepare remote files: %w", err))
	}

	total := len(prep.Variants)
	var (
		mu           sync.Mutex
		failed       int
		succeededIDs []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentVariants)
	for _, row := range prep.Variants {
		variant, ok := findVariant(prep.Set, row.VariantID)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := s.variantRepo.Transition(gctx, nil, row.ID, types.VariantStatusRunning, nil); err != nil {
				s.log.Error("variant start transition failed", "run_id", run.ID, "variant_id", row.VariantID, "error", err)
			}

			outcome := s.generator.Generate(gctx, run.ID, variant, prep.Set.Template, product, room)
			s.persistOutcome(gctx, row, outcome)

			renderURL, thumbURL := s.SignedVariantURLs(row)
			notifier.Variant(gctx, outcome, renderURL, thumbURL)

			mu.Lock()
			if outcome.Status == types.VariantStatusSuccess {
				succeededIDs = append(succeededIDs, outcome.VariantID)
			} else {
				failed++
			}
			okCount, failCount := len(succeededIDs), failed
			mu.Unlock()
			notifier.Progress(gctx, okCount, failCount, total-okCount-failCount)

			// A variant failure never aborts the siblings.
			return nil
		})
	}
	_ = g.Wait()

	final := types.AggregateRunStatus(prep.Variants)
	extra := map[string]any{"duration_ms": time.Since(started).Milliseconds()}
	var failCause *string
	if final == types.RunStatusFailed {
		msg := "all variants failed"
		failCause = &msg
		extra["error"] = msg
	}
	if err := s.runRepo.Transition(ctx, nil, run.ID, final, extra); err != nil {
		s.log.Error("run terminal transition failed", "run_id", run.ID, "status", final, "error", err)
	}
	run.Status = final
	run.DurationMs = time.Since(started).Milliseconds()
	run.Error = failCause

	// Quota counts usage, so a run that produced nothing is free. The single
	// increment lands after the fan-out regardless of how many variants ran.
	if final == types.RunStatusComplete || final == types.RunStatusPartial {
		if err := s.quota.IncrementQuota(ctx, run.ShopID, 1); err != nil {
			s.log.Error("quota increment failed", "run_id", run.ID, "shop_id", run.ShopID, "error", err)
		}
	}

	if final == types.RunStatusFailed {
		notifier.Error(ctx, "run_failed", "all variants failed")
		return fmt.Errorf("run %s: %w", run.ID, ErrRunFailed)
	}
	notifier.Complete(ctx, run, succeededIDs, total)
	s.log.Info("render run finished",
		"run_id", run.ID,
		"status", final,
		"succeeded", len(succeededIDs),
		"total", total,
		"duration_ms", run.DurationMs,
	)
	return nil
}

func (s *renderService) remoteHandles(ctx context.Context, asset *types.ProductAsset, room *types.RoomSession) (gemini.FileHandle, gemini.FileHandle, error) {
	productBytes := func() ([]byte, error) { return s.bucket.DownloadFile(ctx, asset.CutoutStorageKey) }
	roomBytes := func() ([]byte, error) { return s.bucket.DownloadFile(ctx, room.PhotoStorageKey) }

	product, err := s.ensureHandle(ctx, asset.RemoteFileURI, asset.RemoteFileExpiry, productBytes, asset.CutoutMimeType,
		"product-"+asset.ID.String(),
		func(pctx context.Context, uri string, expiry time.Time) error {
			return s.assetRepo.UpdateRemoteHandle(pctx, nil, asset.ID, uri, expiry)
		})
	if err != nil {
		return gemini.FileHandle{}, gemini.FileHandle{}, fmt.Errorf("product cutout handle: %w", err)
	}

	roomHandle, err := s.ensureHandle(ctx, room.RemoteFileURI, room.RemoteFileExpiry, roomBytes, room.PhotoMimeType,
		"room-"+room.ID.String(),
		func(pctx context.Context, uri string, expiry time.Time) error {
			return s.roomRepo.UpdateRemoteHandle(pctx, nil, room.ID, uri, expiry)
		})
	if err != nil {
		return gemini.FileHandle{}, gemini.FileHandle{}, fmt.Errorf("room photo handle: %w", err)
	}
	return product, roomHandle, nil
}

// ensureHandle defers the object-store download until the cached handle is
// actually stale; the fast path never touches the bucket.
func (s *renderService) ensureHandle(ctx context.Context, uri *string, expiry *time.Time, fetch func() ([]byte, error), mimeType, displayName string, persist HandlePersistFunc) (gemini.FileHandle, error) {
	if uri != nil && expiry != nil && time.Until(*expiry) > handleExpiryMargin {
		return s.files.EnsureRemoteHandle(ctx, uri, expiry, nil, mimeType, displayName, persist)
	}
	content, err := fetch()
	if err != nil {
		return gemini.FileHandle{}, fmt.Errorf("download %s: %w", displayName, err)
	}
	return s.files.EnsureRemoteHandle(ctx, uri, expiry, content, mimeType, displayName, persist)
}

func (s *renderService) persistOutcome(ctx context.Context, row *types.VariantResult, outcome VariantOutcome) {
	extra := map[string]any{"latency_ms": outcome.LatencyMs}
	if outcome.StorageKey != "" {
		extra["storage_key"] = outcome.StorageKey
		row.StorageKey = &outcome.StorageKey
	}
	if outcome.ThumbStorageKey != "" {
		extra["thumb_storage_key"] = outcome.ThumbStorageKey
		row.ThumbStorageKey = &outcome.ThumbStorageKey
	}
	if outcome.Error != "" {
		extra["error"] = outcome.Error
		row.Error = &outcome.Error
	}
	// Persist under a detached context so a caller disconnect mid-variant
	// cannot strand the row in a non-terminal status.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.variantRepo.Transition(pctx, nil, row.ID, outcome.Status, extra); err != nil {
		s.log.Error("variant terminal transition failed", "variant_id", row.VariantID, "status", outcome.Status, "error", err)
	}
	row.Status = outcome.Status
	row.LatencyMs = outcome.LatencyMs
}

// failRun marks a run that died before the fan-out, settling every still
// pending variant row so nothing is left non-terminal.
func (s *renderService) failRun(ctx context.Context, notifier *RenderNotifier, prep *PreparedRun, started time.Time, cause error) error {
	run := prep.Run
	msg := cause.Error()
	extra := map[string]any{
		"duration_ms": time.Since(started).Milliseconds(),
		"error":       msg,
	}
	if err := s.runRepo.Transition(ctx, nil, run.ID, types.RunStatusFailed, extra); err != nil {
		s.log.Error("run failure transition failed", "run_id", run.ID, "error", err)
	}
	run.Status = types.RunStatusFailed
	run.Error = &msg

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	for _, row := range prep.Variants {
		if err := s.variantRepo.Transition(pctx, nil, row.ID, types.VariantStatusFailed, map[string]any{"error": msg}); err != nil {
			s.log.Error("variant failure transition failed", "run_id", run.ID, "variant_id", row.VariantID, "error", err)
		}
		row.Status = types.VariantStatusFailed
		row.Error = &msg
	}

	notifier.Error(ctx, "run_failed", msg)
	return fmt.Errorf("run %s: %w", run.ID, cause)
}

func (s *renderService) GetRun(ctx context.Context, runID uuid.UUID) (*types.RenderRun, error) {
	return s.runRepo.GetByID(ctx, nil, runID)
}

func (s *renderService) ListRuns(ctx context.Context, roomSessionID uuid.UUID, limit int) ([]*types.RenderRun, error) {
	return s.runRepo.ListByRoomSession(ctx, nil, roomSessionID, limit)
}

func (s *renderService) SignedVariantURLs(v *types.VariantResult) (string, string) {
	var renderURL, thumbURL string
	if v.StorageKey != nil {
		if u, err := s.bucket.SignedReadURL(*v.StorageKey, signedURLTTL); err == nil {
			renderURL = u
		}
	}
	if v.ThumbStorageKey != nil {
		if u, err := s.bucket.SignedReadURL(*v.ThumbStorageKey, signedURLTTL); err == nil {
			thumbURL = u
		}
	}
	return renderURL, thumbURL
}

func findVariant(set types.PlacementSet, id string) (types.PlacementVariant, bool) {
	for _, v := range set.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return types.PlacementVariant{}, false
}

// NewRunNotifier builds the notifier for one run over the service's hub and
// bus.
func (s *renderService) NewRunNotifier(run *types.RenderRun) *RenderNotifier {
	return NewRenderNotifier(s.log, s.hub, s.bus, run.ID, run.TraceID)
}
