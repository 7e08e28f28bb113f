package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stageroom/stageroom-backend/internal/clients/gemini"
	"github.com/stageroom/stageroom-backend/internal/logger"
)

type fakeUploader struct {
	uploads atomic.Int64
	handle  gemini.FileHandle
	err     error
}

func (f *fakeUploader) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (*gemini.FileHandle, error) {
	f.uploads.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	h := f.handle
	if h.MIMEType == "" {
		h.MIMEType = mimeType
	}
	return &h, nil
}

func (f *fakeUploader) ExtractJSON(ctx context.Context, prompt string) ([]byte, error) {
	return nil, nil
}

func (f *fakeUploader) GenerateImage(ctx context.Context, prompt string, product, room gemini.FileHandle) (*gemini.ImageResult, error) {
	return nil, nil
}

func (f *fakeUploader) Close() error { return nil }

func mustServiceLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestEnsureRemoteHandleFreshHandleSkipsUpload(t *testing.T) {
	ai := &fakeUploader{}
	svc := NewFileCacheService(mustServiceLogger(t), ai)

	uri := "files/abc123"
	expiry := time.Now().Add(2 * time.Hour)
	got, err := svc.EnsureRemoteHandle(context.Background(), &uri, &expiry, []byte("png"), "image/png", "product-1", nil)
	if err != nil {
		t.Fatalf("EnsureRemoteHandle: %v", err)
	}
	if got.URI != uri {
		t.Fatalf("URI = %q, want cached %q", got.URI, uri)
	}
	if n := ai.uploads.Load(); n != 0 {
		t.Fatalf("uploads = %d, want 0 on fast path", n)
	}
}

func TestEnsureRemoteHandleExpiredUploadsOnce(t *testing.T) {
	ai := &fakeUploader{handle: gemini.FileHandle{
		URI:       "files/fresh",
		ExpiresAt: time.Now().Add(47 * time.Hour),
	}}
	svc := NewFileCacheService(mustServiceLogger(t), ai)

	uri := "files/stale"
	expiry := time.Now().Add(1 * time.Minute) // inside the refresh margin

	var mu sync.Mutex
	var persistedURI string
	persisted := make(chan struct{})
	persist := func(ctx context.Context, u string, e time.Time) error {
		mu.Lock()
		persistedURI = u
		mu.Unlock()
		close(persisted)
		return nil
	}

	got, err := svc.EnsureRemoteHandle(context.Background(), &uri, &expiry, []byte("png"), "image/png", "product-1", persist)
	if err != nil {
		t.Fatalf("EnsureRemoteHandle: %v", err)
	}
	if got.URI != "files/fresh" {
		t.Fatalf("URI = %q, want refreshed handle", got.URI)
	}
	if n := ai.uploads.Load(); n != 1 {
		t.Fatalf("uploads = %d, want exactly 1", n)
	}

	select {
	case <-persisted:
	case <-time.After(2 * time.Second):
		t.Fatal("persist callback never invoked")
	}
	mu.Lock()
	defer mu.Unlock()
	if persistedURI != "files/fresh" {
		t.Fatalf("persisted URI = %q, want files/fresh", persistedURI)
	}
}

func TestEnsureRemoteHandleMissingHandleUploads(t *testing.T) {
	ai := &fakeUploader{handle: gemini.FileHandle{URI: "files/new", ExpiresAt: time.Now().Add(48 * time.Hour)}}
	svc := NewFileCacheService(mustServiceLogger(t), ai)

	got, err := svc.EnsureRemoteHandle(context.Background(), nil, nil, []byte("jpg"), "image/jpeg", "room-1", nil)
	if err != nil {
		t.Fatalf("EnsureRemoteHandle: %v", err)
	}
	if got.URI != "files/new" {
		t.Fatalf("URI = %q, want files/new", got.URI)
	}
	if n := ai.uploads.Load(); n != 1 {
		t.Fatalf("uploads = %d, want 1", n)
	}
}
