package gemini

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/utils"
)

// FileHandle is a remote reference to a previously uploaded binary. The URI is
// valid until ExpiresAt; after that the file must be re-uploaded.
type FileHandle struct {
	URI       string
	MIMEType  string
	ExpiresAt time.Time
}

// ImageResult is one generated image payload.
type ImageResult struct {
	Data     []byte
	MIMEType string
}

// Client wraps the generative model endpoints the render pipeline needs:
// file uploads, structured JSON extraction, and multimodal image generation.
// One long-lived instance is created at boot and injected everywhere.
type Client interface {
	UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (*FileHandle, error)
	ExtractJSON(ctx context.Context, prompt string) ([]byte, error)
	GenerateImage(ctx context.Context, prompt string, product, room FileHandle) (*ImageResult, error)
	Close() error
}

type client struct {
	log            *logger.Logger
	genaiClient    *genai.Client
	extractModel   string
	generateModel  string
	generateTokens int32
}

func NewClient(log *logger.Logger) (Client, error) {
	serviceLog := log.With("client", "Gemini")

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	extractModel := utils.GetEnv("GEMINI_EXTRACT_MODEL", "gemini-2.5-flash", log)
	generateModel := utils.GetEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image", log)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	gc, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &client{
		log:           serviceLog,
		genaiClient:   gc,
		extractModel:  extractModel,
		generateModel: generateModel,
	}, nil
}

func (c *client) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (*FileHandle, error) {
	f, err := c.genaiClient.UploadFile(ctx, "", bytes.NewReader(data), &genai.UploadFileOptions{
		DisplayName: displayName,
		MIMEType:    mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("upload file %q: %w", displayName, err)
	}
	return &FileHandle{
		URI:       f.URI,
		MIMEType:  f.MIMEType,
		ExpiresAt: f.ExpirationTime,
	}, nil
}

func (c *client) ExtractJSON(ctx context.Context, prompt string) ([]byte, error) {
	model := c.genaiClient.GenerativeModel(c.extractModel)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("extraction returned no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			return []byte(txt), nil
		}
	}
	return nil, fmt.Errorf("extraction returned no text part")
}

func (c *client) GenerateImage(ctx context.Context, prompt string, product, room FileHandle) (*ImageResult, error) {
	model := c.genaiClient.GenerativeModel(c.generateModel)

	parts := []genai.Part{
		genai.Text(prompt),
		genai.FileData{MIMEType: product.MIMEType, URI: product.URI},
		genai.FileData{MIMEType: room.MIMEType, URI: room.URI},
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generation call: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
			return &ImageResult{Data: blob.Data, MIMEType: blob.MIMEType}, nil
		}
	}
	// Model answered with text only; the caller treats this as a
	// variant-level failure, not an error.
	return nil, nil
}

func (c *client) Close() error {
	return c.genaiClient.Close()
}
