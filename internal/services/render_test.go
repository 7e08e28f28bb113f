package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/clients/gemini"
	"github.com/stageroom/stageroom-backend/internal/sse"
	"github.com/stageroom/stageroom-backend/internal/types"
)

type fakeRunRepo struct {
	mu          sync.Mutex
	transitions []types.RunStatus
	runs        map[uuid.UUID]*types.RenderRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[uuid.UUID]*types.RenderRun)}
}

func (r *fakeRunRepo) Create(ctx context.Context, tx *gorm.DB, runs []*types.RenderRun) ([]*types.RenderRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range runs {
		if run.ID == uuid.Nil {
			run.ID = uuid.New()
		}
		r.runs[run.ID] = run
	}
	return runs, nil
}

func (r *fakeRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.RenderRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return run, nil
}

func (r *fakeRunRepo) ListByRoomSession(ctx context.Context, tx *gorm.DB, roomSessionID uuid.UUID, limit int) ([]*types.RenderRun, error) {
	return nil, nil
}

func (r *fakeRunRepo) Transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, next types.RunStatus, extra map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if !run.Status.CanTransition(next) {
		return errors.New("illegal status transition")
	}
	run.Status = next
	r.transitions = append(r.transitions, next)
	return nil
}

type fakeVariantRepo struct {
	mu          sync.Mutex
	transitions map[uuid.UUID][]types.VariantStatus
}

func newFakeVariantRepo() *fakeVariantRepo {
	return &fakeVariantRepo{transitions: make(map[uuid.UUID][]types.VariantStatus)}
}

func (r *fakeVariantRepo) Create(ctx context.Context, tx *gorm.DB, results []*types.VariantResult) ([]*types.VariantResult, error) {
	for _, row := range results {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
	}
	return results, nil
}

func (r *fakeVariantRepo) ListByRun(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.VariantResult, error) {
	return nil, nil
}

func (r *fakeVariantRepo) Transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, next types.VariantStatus, extra map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[id] = append(r.transitions[id], next)
	return nil
}

type fakeFileCache struct {
	err error
}

func (f fakeFileCache) EnsureRemoteHandle(ctx context.Context, existingURI *string, existingExpiry *time.Time, content []byte, mimeType, filename string, persist HandlePersistFunc) (gemini.FileHandle, error) {
	if f.err != nil {
		return gemini.FileHandle{}, f.err
	}
	return gemini.FileHandle{URI: "files/" + filename, MIMEType: mimeType, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type fakeGenerator struct {
	failPrefix    string
	timeoutSuffix string
}

func (g fakeGenerator) Generate(ctx context.Context, runID uuid.UUID, variant types.PlacementVariant, template string, product, room gemini.FileHandle) VariantOutcome {
	if g.timeoutSuffix != "" && strings.HasSuffix(variant.ID, g.timeoutSuffix) {
		return VariantOutcome{VariantID: variant.ID, Status: types.VariantStatusTimeout, Error: "variant exceeded 1m30s deadline", LatencyMs: 90000}
	}
	if g.failPrefix != "" && (g.failPrefix == "*" || strings.HasPrefix(variant.ID, g.failPrefix)) {
		return VariantOutcome{VariantID: variant.ID, Status: types.VariantStatusFailed, Error: "model returned no image", LatencyMs: 5}
	}
	return VariantOutcome{VariantID: variant.ID, Status: types.VariantStatusSuccess, StorageKey: "renders/" + runID.String() + "/" + variant.ID + ".png", LatencyMs: 5}
}

type fakeQuota struct {
	mu         sync.Mutex
	increments int64
	quotaErr   error
	rateOK     bool
}

func (q *fakeQuota) CheckQuota(ctx context.Context, shop *types.Shop, amount int64) error {
	return q.quotaErr
}

func (q *fakeQuota) IncrementQuota(ctx context.Context, shopID uuid.UUID, amount int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.increments += amount
	return nil
}

func (q *fakeQuota) Used(ctx context.Context, shopID uuid.UUID) (int64, error) { return 0, nil }

func (q *fakeQuota) CheckRateLimit(ctx context.Context, sessionKey string) (bool, error) {
	return q.rateOK, nil
}

func (q *fakeQuota) incrementCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.increments
}

type fakeBucket struct{}

func (fakeBucket) UploadBuffer(ctx context.Context, key string, data []byte, mimeType string) error {
	return nil
}
func (fakeBucket) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	return []byte("bytes"), nil
}
func (fakeBucket) DeleteFile(ctx context.Context, key string) error { return nil }
func (fakeBucket) SignedReadURL(key string, ttl time.Duration) (string, error) {
	return "https://cdn.test/" + key, nil
}
func (fakeBucket) GetPublicURL(key string) string { return "https://cdn.test/" + key }

func buildPrepared(t *testing.T, runRepo *fakeRunRepo, variantRepo *fakeVariantRepo) *PreparedRun {
	t.Helper()
	shop := &types.Shop{ID: uuid.New(), Domain: "demo.myshopify.com", RenderLimit: 50}
	asset := &types.ProductAsset{ID: uuid.New(), ShopID: shop.ID, CutoutStorageKey: "cutouts/a.png", CutoutMimeType: "image/png"}
	room := &types.RoomSession{ID: uuid.New(), ShopID: shop.ID, PhotoStorageKey: "rooms/r.jpg", PhotoMimeType: "image/jpeg"}
	set := BuildPlacementSet(types.ResolvedFacts{Category: "armchair", Material: "oak", Orientation: "floor"}, 1)

	run := &types.RenderRun{
		ShopID:              shop.ID,
		ProductAssetID:      asset.ID,
		RoomSessionID:       room.ID,
		PlacementSetVersion: set.Version,
		Status:              types.RunStatusPending,
		TraceID:             "trace-" + uuid.NewString(),
	}
	if _, err := runRepo.Create(context.Background(), nil, []*types.RenderRun{run}); err != nil {
		t.Fatalf("create run: %v", err)
	}
	rows := make([]*types.VariantResult, 0, len(set.Variants))
	for _, v := range set.Variants {
		rows = append(rows, &types.VariantResult{RenderRunID: run.ID, VariantID: v.ID, Status: types.VariantStatusPending})
	}
	if _, err := variantRepo.Create(context.Background(), nil, rows); err != nil {
		t.Fatalf("create variants: %v", err)
	}
	return &PreparedRun{Run: run, Shop: shop, Asset: asset, Room: room, Set: set, Variants: rows}
}

func newTestRenderService(t *testing.T, runRepo *fakeRunRepo, variantRepo *fakeVariantRepo, gen VariantGenerator, quota QuotaService, hub *sse.SSEHub) RenderService {
	t.Helper()
	log := mustServiceLogger(t)
	return NewRenderService(nil, log, nil, nil, runRepo, variantRepo, nil, fakeFileCache{}, gen, quota, fakeBucket{}, hub, nil)
}

func drainEvents(t *testing.T, client *sse.SSEClient) []sse.SSEMessage {
	t.Helper()
	var events []sse.SSEMessage
	for {
		select {
		case msg := <-client.Outbound:
			events = append(events, msg)
			if msg.Event.Terminal() {
				return events
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("stream never reached a terminal event; got %d events", len(events))
		}
	}
}

func TestExecuteAllVariantsSucceed(t *testing.T) {
	runRepo := newFakeRunRepo()
	variantRepo := newFakeVariantRepo()
	quota := &fakeQuota{rateOK: true}
	hub := sse.NewSSEHub(mustServiceLogger(t))
	svc := newTestRenderService(t, runRepo, variantRepo, fakeGenerator{}, quota, hub)

	prep := buildPrepared(t, runRepo, variantRepo)
	client := hub.NewSSEClient()
	hub.AddChannel(client, sse.RunChannel(prep.Run.ID))

	notifier := svc.NewRunNotifier(prep.Run)
	if err := svc.Execute(context.Background(), prep, notifier); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if prep.Run.Status != types.RunStatusComplete {
		t.Fatalf("run status = %s, want complete", prep.Run.Status)
	}
	for _, row := range prep.Variants {
		if row.Status != types.VariantStatusSuccess {
			t.Fatalf("variant %s status = %s, want success", row.VariantID, row.Status)
		}
	}
	if n := quota.incrementCount(); n != 1 {
		t.Fatalf("quota increments = %d, want exactly 1", n)
	}

	events := drainEvents(t, client)
	if events[0].Event != sse.SSEEventRunStarted {
		t.Fatalf("first event = %s, want run_started", events[0].Event)
	}
	last := events[len(events)-1]
	if last.Event != sse.SSEEventComplete {
		t.Fatalf("terminal event = %s, want complete", last.Event)
	}
	firstImages := 0
	for _, e := range events {
		if e.Event == sse.SSEEventFirstImage {
			firstImages++
		}
	}
	if firstImages != 1 {
		t.Fatalf("first_image events = %d, want exactly 1", firstImages)
	}
}

func TestExecutePartialSuccess(t *testing.T) {
	runRepo := newFakeRunRepo()
	variantRepo := newFakeVariantRepo()
	quota := &fakeQuota{rateOK: true}
	hub := sse.NewSSEHub(mustServiceLogger(t))
	svc := newTestRenderService(t, runRepo, variantRepo, fakeGenerator{failPrefix: "left-"}, quota, hub)

	prep := buildPrepared(t, runRepo, variantRepo)
	client := hub.NewSSEClient()
	hub.AddChannel(client, sse.RunChannel(prep.Run.ID))

	notifier := svc.NewRunNotifier(prep.Run)
	if err := svc.Execute(context.Background(), prep, notifier); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if prep.Run.Status != types.RunStatusPartial {
		t.Fatalf("run status = %s, want partial", prep.Run.Status)
	}
	succeeded, failed := 0, 0
	for _, row := range prep.Variants {
		switch row.Status {
		case types.VariantStatusSuccess:
			succeeded++
		case types.VariantStatusFailed:
			failed++
		default:
			t.Fatalf("variant %s left non-terminal: %s", row.VariantID, row.Status)
		}
	}
	if succeeded != 6 || failed != 2 {
		t.Fatalf("succeeded=%d failed=%d, want 6/2", succeeded, failed)
	}
	if n := quota.incrementCount(); n != 1 {
		t.Fatalf("quota increments = %d, want 1 for partial success", n)
	}

	events := drainEvents(t, client)
	last := events[len(events)-1]
	if last.Event != sse.SSEEventComplete {
		t.Fatalf("terminal event = %s, want complete", last.Event)
	}

	finalTally := false
	for _, e := range events {
		if e.Event != sse.SSEEventProgress {
			continue
		}
		data, ok := e.Data.(map[string]any)
		if !ok {
			t.Fatalf("progress payload is %T, want map", e.Data)
		}
		for _, key := range []string{"succeeded", "failed", "in_flight"} {
			if _, ok := data[key]; !ok {
				t.Fatalf("progress payload missing %q: %v", key, data)
			}
		}
		if data["succeeded"] == 6 && data["failed"] == 2 && data["in_flight"] == 0 {
			finalTally = true
		}
	}
	if !finalTally {
		t.Fatal("no progress event carried the settled 6/2/0 tally")
	}

	complete, ok := last.Data.(map[string]any)
	if !ok {
		t.Fatalf("complete payload is %T, want map", last.Data)
	}
	ids, ok := complete["succeeded_variant_ids"].([]string)
	if !ok {
		t.Fatalf("complete payload missing succeeded variant id list: %v", complete)
	}
	if len(ids) != 6 {
		t.Fatalf("succeeded variant ids = %d, want 6", len(ids))
	}
	for _, id := range ids {
		if strings.HasPrefix(id, "left-") {
			t.Fatalf("failed variant %s listed as succeeded", id)
		}
	}
}

func TestExecuteAllVariantsFail(t *testing.T) {
	runRepo := newFakeRunRepo()
	variantRepo := newFakeVariantRepo()
	quota := &fakeQuota{rateOK: true}
	hub := sse.NewSSEHub(mustServiceLogger(t))
	svc := newTestRenderService(t, runRepo, variantRepo, fakeGenerator{failPrefix: "*"}, quota, hub)

	prep := buildPrepared(t, runRepo, variantRepo)
	client := hub.NewSSEClient()
	hub.AddChannel(client, sse.RunChannel(prep.Run.ID))

	notifier := svc.NewRunNotifier(prep.Run)
	err := svc.Execute(context.Background(), prep, notifier)
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("Execute error = %v, want ErrRunFailed", err)
	}

	if prep.Run.Status != types.RunStatusFailed {
		t.Fatalf("run status = %s, want failed", prep.Run.Status)
	}
	for _, row := range prep.Variants {
		if !row.Status.Terminal() {
			t.Fatalf("variant %s left non-terminal: %s", row.VariantID, row.Status)
		}
	}
	if n := quota.incrementCount(); n != 0 {
		t.Fatalf("quota increments = %d, want 0 for failed run", n)
	}

	events := drainEvents(t, client)
	last := events[len(events)-1]
	if last.Event != sse.SSEEventError {
		t.Fatalf("terminal event = %s, want error", last.Event)
	}
	errData, ok := last.Data.(map[string]any)
	if !ok {
		t.Fatalf("error payload is %T, want map", last.Data)
	}
	if errData["trace_id"] != prep.Run.TraceID {
		t.Fatalf("error payload trace_id = %v, want %s", errData["trace_id"], prep.Run.TraceID)
	}
	terminals := 0
	for _, e := range events {
		if e.Event.Terminal() {
			terminals++
		}
		if e.Event == sse.SSEEventFirstImage {
			t.Fatal("first_image emitted with zero successes")
		}
	}
	if terminals != 1 {
		t.Fatalf("terminal events = %d, want exactly 1", terminals)
	}
}

func TestExecuteRecordsTerminalTransitions(t *testing.T) {
	runRepo := newFakeRunRepo()
	variantRepo := newFakeVariantRepo()
	quota := &fakeQuota{rateOK: true}
	hub := sse.NewSSEHub(mustServiceLogger(t))
	svc := newTestRenderService(t, runRepo, variantRepo, fakeGenerator{}, quota, hub)

	prep := buildPrepared(t, runRepo, variantRepo)
	notifier := svc.NewRunNotifier(prep.Run)
	if err := svc.Execute(context.Background(), prep, notifier); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	runRepo.mu.Lock()
	got := append([]types.RunStatus(nil), runRepo.transitions...)
	runRepo.mu.Unlock()
	want := []types.RunStatus{types.RunStatusRunning, types.RunStatusComplete}
	if len(got) != len(want) {
		t.Fatalf("run transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("run transitions = %v, want %v", got, want)
		}
	}

	variantRepo.mu.Lock()
	defer variantRepo.mu.Unlock()
	for _, row := range prep.Variants {
		seq := variantRepo.transitions[row.ID]
		if len(seq) != 2 || seq[0] != types.VariantStatusRunning || !seq[1].Terminal() {
			t.Fatalf("variant %s transition sequence = %v", row.VariantID, seq)
		}
	}
}

func TestExecuteTimeoutsProducePartial(t *testing.T) {
	runRepo := newFakeRunRepo()
	variantRepo := newFakeVariantRepo()
	quota := &fakeQuota{rateOK: true}
	hub := sse.NewSSEHub(mustServiceLogger(t))
	svc := newTestRenderService(t, runRepo, variantRepo, fakeGenerator{timeoutSuffix: "-larger"}, quota, hub)

	prep := buildPrepared(t, runRepo, variantRepo)
	client := hub.NewSSEClient()
	hub.AddChannel(client, sse.RunChannel(prep.Run.ID))

	notifier := svc.NewRunNotifier(prep.Run)
	if err := svc.Execute(context.Background(), prep, notifier); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if prep.Run.Status != types.RunStatusPartial {
		t.Fatalf("run status = %s, want partial", prep.Run.Status)
	}
	succeeded, timedOut := 0, 0
	for _, row := range prep.Variants {
		switch row.Status {
		case types.VariantStatusSuccess:
			succeeded++
		case types.VariantStatusTimeout:
			timedOut++
		default:
			t.Fatalf("variant %s status = %s, want success or timeout", row.VariantID, row.Status)
		}
	}
	if succeeded != 5 || timedOut != 3 {
		t.Fatalf("succeeded=%d timedOut=%d, want 5/3", succeeded, timedOut)
	}
	if n := quota.incrementCount(); n != 1 {
		t.Fatalf("quota increments = %d, want 1", n)
	}

	events := drainEvents(t, client)
	if events[len(events)-1].Event != sse.SSEEventComplete {
		t.Fatalf("terminal event = %s, want complete", events[len(events)-1].Event)
	}
}

func TestExecuteFailBeforeFanOutSettlesVariants(t *testing.T) {
	runRepo := newFakeRunRepo()
	variantRepo := newFakeVariantRepo()
	quota := &fakeQuota{rateOK: true}
	hub := sse.NewSSEHub(mustServiceLogger(t))
	log := mustServiceLogger(t)
	files := fakeFileCache{err: errors.New("remote store unavailable")}
	svc := NewRenderService(nil, log, nil, nil, runRepo, variantRepo, nil, files, fakeGenerator{}, quota, fakeBucket{}, hub, nil)

	prep := buildPrepared(t, runRepo, variantRepo)
	client := hub.NewSSEClient()
	hub.AddChannel(client, sse.RunChannel(prep.Run.ID))

	notifier := svc.NewRunNotifier(prep.Run)
	if err := svc.Execute(context.Background(), prep, notifier); err == nil {
		t.Fatal("Execute succeeded despite remote file failure")
	}

	if prep.Run.Status != types.RunStatusFailed {
		t.Fatalf("run status = %s, want failed", prep.Run.Status)
	}
	for _, row := range prep.Variants {
		if row.Status != types.VariantStatusFailed {
			t.Fatalf("variant %s left in %s, want failed", row.VariantID, row.Status)
		}
	}
	variantRepo.mu.Lock()
	for _, row := range prep.Variants {
		seq := variantRepo.transitions[row.ID]
		if len(seq) != 1 || seq[0] != types.VariantStatusFailed {
			variantRepo.mu.Unlock()
			t.Fatalf("variant %s transition sequence = %v, want [failed]", row.VariantID, seq)
		}
	}
	variantRepo.mu.Unlock()
	if n := quota.incrementCount(); n != 0 {
		t.Fatalf("quota increments = %d, want 0", n)
	}

	events := drainEvents(t, client)
	if events[len(events)-1].Event != sse.SSEEventError {
		t.Fatalf("terminal event = %s, want error", events[len(events)-1].Event)
	}
}
