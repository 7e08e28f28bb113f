package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/clients/gemini"
	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/repos"
	"github.com/stageroom/stageroom-backend/internal/requestdata"
	"github.com/stageroom/stageroom-backend/internal/types"
)

const maxExtractionImageURLs = 3

type FactsService interface {
	// ExtractProductFacts runs the external extractor over the asset's text
	// and representative image URLs. Fail-closed: schema violations return
	// *ExtractorOutputError and persist an error marker on the asset.
	ExtractProductFacts(ctx context.Context, asset *types.ProductAsset) (*types.ProductFacts, error)
	// EnsurePipeline returns the asset's resolved facts and placement set,
	// backfilling both synchronously when missing and caching them onto the
	// asset for future requests.
	EnsurePipeline(ctx context.Context, asset *types.ProductAsset) (types.ResolvedFacts, types.PlacementSet, error)
	// ApplyOverrides stores the merchant's sparse overlay and recomputes the
	// resolved facts and a new placement set version.
	ApplyOverrides(ctx context.Context, asset *types.ProductAsset, overrides types.FactOverrides) (types.ResolvedFacts, types.PlacementSet, error)
}

type factsService struct {
	db        *gorm.DB
	log       *logger.Logger
	assetRepo repos.ProductAssetRepo
	ai        gemini.Client
}

func NewFactsService(db *gorm.DB, baseLog *logger.Logger, assetRepo repos.ProductAssetRepo, ai gemini.Client) FactsService {
	return &factsService{
		db:        db,
		log:       baseLog.With("service", "FactsService"),
		assetRepo: assetRepo,
		ai:        ai,
	}
}

func (s *factsService) ExtractProductFacts(ctx context.Context, asset *types.ProductAsset) (*types.ProductFacts, error) {
	prompt := buildExtractionPrompt(asset)

	raw, err := s.ai.ExtractJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("product facts extraction: %w", err)
	}

	facts, vErr := parseExtractedFacts(raw)
	if vErr != nil {
		s.log.Warn("extractor output failed schema validation",
			"asset_id", asset.ID,
			"reason", vErr.Reason,
			"trace_id", requestdata.TraceID(ctx),
		)
		marker := vErr.Error()
		if err := s.assetRepo.UpdateFields(ctx, nil, asset.ID, map[string]any{
			"extraction_error": marker,
		}); err != nil {
			s.log.Error("failed to persist extraction error marker", "asset_id", asset.ID, "error", err)
		}
		return nil, vErr
	}

	return facts, nil
}

func buildExtractionPrompt(asset *types.ProductAsset) string {
	var b strings.Builder
	b.WriteString("Extract structured product facts for staging this product in a room photo.\n")
	b.WriteString("Respond with a single JSON object with keys: category, material, orientation")
	b.WriteString(" (one of floor, wall_mounted, tabletop, ceiling), width_cm, height_cm, depth_cm, style.\n\n")
	b.WriteString("Title: " + asset.Title + "\n")
	if asset.Description != "" {
		b.WriteString("Description: " + asset.Description + "\n")
	}
	if asset.Tags != "" {
		b.WriteString("Tags: " + asset.Tags + "\n")
	}
	var urls []string
	if len(asset.ImageURLs) > 0 {
		_ = json.Unmarshal(asset.ImageURLs, &urls)
	}
	for i, u := range urls {
		if i >= maxExtractionImageURLs {
			break
		}
		b.WriteString("Image: " + u + "\n")
	}
	return b.String()
}

func parseExtractedFacts(raw []byte) (*types.ProductFacts, *ExtractorOutputError) {
	var facts types.ProductFacts
	if err := json.Unmarshal(raw, &facts); err != nil {
		return nil, &ExtractorOutputError{Reason: "not valid JSON: " + err.Error()}
	}
	if strings.TrimSpace(facts.Category) == "" {
		return nil, &ExtractorOutputError{Reason: "missing required field category"}
	}
	if strings.TrimSpace(facts.Material) == "" {
		return nil, &ExtractorOutputError{Reason: "missing required field material"}
	}
	switch facts.Orientation {
	case "floor", "wall_mounted", "tabletop", "ceiling":
	default:
		return nil, &ExtractorOutputError{Reason: fmt.Sprintf("orientation %q not recognized", facts.Orientation)}
	}
	if facts.WidthCm < 0 || facts.HeightCm < 0 || facts.DepthCm < 0 {
		return nil, &ExtractorOutputError{Reason: "negative dimension"}
	}
	return &facts, nil
}

// ResolveProductFacts applies the merchant override overlay. Pure and total:
// absent key inherits the extracted value, explicit null or empty string
// clears the field, any other value overrides. Same inputs always yield the
// same output.
func ResolveProductFacts(extracted types.ProductFacts, overrides types.FactOverrides) types.ResolvedFacts {
	resolved := types.ResolvedFacts(extracted)

	applyString := func(key string, dst *string) {
		v, ok := overrides[key]
		if !ok {
			return
		}
		if v == nil {
			*dst = ""
			return
		}
		if s, ok := v.(string); ok {
			*dst = s
		}
	}
	applyFloat := func(key string, dst *float64) {
		v, ok := overrides[key]
		if !ok {
			return
		}
		switch n := v.(type) {
		case nil:
			*dst = 0
		case float64:
			*dst = n
		case string:
			if n == "" {
				*dst = 0
			}
		case json.Number:
			if f, err := n.Float64(); err == nil {
				*dst = f
			}
		}
	}

	applyString("category", &resolved.Category)
	applyString("material", &resolved.Material)
	applyString("orientation", &resolved.Orientation)
	applyString("style", &resolved.Style)
	applyFloat("width_cm", &resolved.WidthCm)
	applyFloat("height_cm", &resolved.HeightCm)
	applyFloat("depth_cm", &resolved.DepthCm)

	return resolved
}

// factsDigest content-addresses resolved facts so a placement set can be
// checked against the facts that produced it.
func factsDigest(resolved types.ResolvedFacts) string {
	raw, _ := json.Marshal(resolved)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (s *factsService) EnsurePipeline(ctx context.Context, asset *types.ProductAsset) (types.ResolvedFacts, types.PlacementSet, error) {
	// Cached fast path: both artifacts present and the set matches the facts.
	if len(asset.ResolvedFacts) > 0 && len(asset.PlacementSet) > 0 {
		var resolved types.ResolvedFacts
		var set types.PlacementSet
		if json.Unmarshal(asset.ResolvedFacts, &resolved) == nil &&
			json.Unmarshal(asset.PlacementSet, &set) == nil &&
			set.FactsDigest == factsDigest(resolved) {
			return resolved, set, nil
		}
	}

	// Inline backfill. First render after preparation pays this cost once.
	var extracted types.ProductFacts
	if len(asset.ExtractedFacts) > 0 && json.Unmarshal(asset.ExtractedFacts, &extracted) == nil && extracted.Category != "" {
		// reuse prior extraction pass
	} else {
		facts, err := s.ExtractProductFacts(ctx, asset)
		if err != nil {
			return types.ResolvedFacts{}, types.PlacementSet{}, err
		}
		extracted = *facts
	}

	var overrides types.FactOverrides
	if len(asset.FactOverrides) > 0 {
		_ = json.Unmarshal(asset.FactOverrides, &overrides)
	}

	resolved := ResolveProductFacts(extracted, overrides)
	set := BuildPlacementSet(resolved, asset.PlacementSetVersion+1)

	if err := s.persistPipeline(ctx, asset, &extracted, resolved, set); err != nil {
		return types.ResolvedFacts{}, types.PlacementSet{}, err
	}
	return resolved, set, nil
}

func (s *factsService) ApplyOverrides(ctx context.Context, asset *types.ProductAsset, overrides types.FactOverrides) (types.ResolvedFacts, types.PlacementSet, error) {
	var extracted types.ProductFacts
	if len(asset.ExtractedFacts) == 0 || json.Unmarshal(asset.ExtractedFacts, &extracted) != nil || extracted.Category == "" {
		facts, err := s.ExtractProductFacts(ctx, asset)
		if err != nil {
			return types.ResolvedFacts{}, types.PlacementSet{}, err
		}
		extracted = *facts
	}

	resolved := ResolveProductFacts(extracted, overrides)
	set := BuildPlacementSet(resolved, asset.PlacementSetVersion+1)

	rawOverrides, err := json.Marshal(overrides)
	if err != nil {
		return types.ResolvedFacts{}, types.PlacementSet{}, fmt.Errorf("marshal overrides: %w", err)
	}
	asset.FactOverrides = datatypes.JSON(rawOverrides)

	if err := s.persistPipeline(ctx, asset, &extracted, resolved, set); err != nil {
		return types.ResolvedFacts{}, types.PlacementSet{}, err
	}
	return resolved, set, nil
}

func (s *factsService) persistPipeline(ctx context.Context, asset *types.ProductAsset, extracted *types.ProductFacts, resolved types.ResolvedFacts, set types.PlacementSet) error {
	rawExtracted, _ := json.Marshal(extracted)
	rawResolved, _ := json.Marshal(resolved)
	rawSet, _ := json.Marshal(set)

	fields := map[string]any{
		"extracted_facts":       datatypes.JSON(rawExtracted),
		"resolved_facts":        datatypes.JSON(rawResolved),
		"placement_set":         datatypes.JSON(rawSet),
		"placement_set_version": set.Version,
		"extraction_error":      nil,
	}
	if len(asset.FactOverrides) > 0 {
		fields["fact_overrides"] = asset.FactOverrides
	}
	if err := s.assetRepo.UpdateFields(ctx, nil, asset.ID, fields); err != nil {
		return fmt.Errorf("persist fact pipeline artifacts: %w", err)
	}

	asset.ExtractedFacts = datatypes.JSON(rawExtracted)
	asset.ResolvedFacts = datatypes.JSON(rawResolved)
	asset.PlacementSet = datatypes.JSON(rawSet)
	asset.PlacementSetVersion = set.Version
	asset.ExtractionError = nil
	asset.UpdatedAt = time.Now()
	return nil
}
