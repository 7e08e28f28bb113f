package services

import (
	"strings"
	"testing"

	"github.com/stageroom/stageroom-backend/internal/types"
)

func baseFacts() types.ProductFacts {
	return types.ProductFacts{
		Category:    "armchair",
		Material:    "oak",
		Orientation: "floor",
		WidthCm:     80,
		HeightCm:    95,
		DepthCm:     75,
		Style:       "mid-century",
	}
}

func TestResolveProductFactsNoOverridesReturnsExtracted(t *testing.T) {
	got := ResolveProductFacts(baseFacts(), nil)
	if types.ProductFacts(got) != baseFacts() {
		t.Fatalf("resolved = %+v, want extracted unchanged", got)
	}
}

func TestResolveProductFactsOverlay(t *testing.T) {
	overrides := types.FactOverrides{
		"material": "walnut",
		"width_cm": float64(90),
		"style":    nil,
		"depth_cm": "",
	}
	got := ResolveProductFacts(baseFacts(), overrides)

	if got.Material != "walnut" {
		t.Fatalf("material = %q, want overridden walnut", got.Material)
	}
	if got.WidthCm != 90 {
		t.Fatalf("width = %v, want 90", got.WidthCm)
	}
	if got.Style != "" {
		t.Fatalf("style = %q, want cleared by explicit null", got.Style)
	}
	if got.DepthCm != 0 {
		t.Fatalf("depth = %v, want cleared by empty string", got.DepthCm)
	}
	// Absent keys inherit.
	if got.Category != "armchair" || got.Orientation != "floor" || got.HeightCm != 95 {
		t.Fatalf("inherited fields changed: %+v", got)
	}
}

func TestResolveProductFactsIsPure(t *testing.T) {
	extracted := baseFacts()
	overrides := types.FactOverrides{"category": "sofa"}

	first := ResolveProductFacts(extracted, overrides)
	second := ResolveProductFacts(extracted, overrides)
	if first != second {
		t.Fatalf("same inputs produced %+v then %+v", first, second)
	}
	if extracted != baseFacts() {
		t.Fatalf("input mutated: %+v", extracted)
	}
}

func TestParseExtractedFactsFailClosed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `the product is a chair`},
		{"missing category", `{"material":"oak","orientation":"floor"}`},
		{"missing material", `{"category":"chair","orientation":"floor"}`},
		{"bad orientation", `{"category":"chair","material":"oak","orientation":"sideways"}`},
		{"negative dimension", `{"category":"chair","material":"oak","orientation":"floor","width_cm":-5}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			facts, vErr := parseExtractedFacts([]byte(tc.raw))
			if vErr == nil {
				t.Fatalf("expected schema error, got facts %+v", facts)
			}
		})
	}

	facts, vErr := parseExtractedFacts([]byte(`{"category":"chair","material":"oak","orientation":"floor","width_cm":50,"height_cm":80,"depth_cm":50,"style":"rustic"}`))
	if vErr != nil {
		t.Fatalf("valid payload rejected: %v", vErr)
	}
	if facts.Category != "chair" || facts.WidthCm != 50 {
		t.Fatalf("parsed facts wrong: %+v", facts)
	}
}

func TestBuildPlacementSetDeterministic(t *testing.T) {
	resolved := types.ResolvedFacts(baseFacts())

	first := BuildPlacementSet(resolved, 1)
	second := BuildPlacementSet(resolved, 1)

	if len(first.Variants) != len(placementCatalog) {
		t.Fatalf("variant count = %d, want %d", len(first.Variants), len(placementCatalog))
	}
	if first.FactsDigest != second.FactsDigest {
		t.Fatalf("digest not deterministic: %s vs %s", first.FactsDigest, second.FactsDigest)
	}
	if first.Template != second.Template {
		t.Fatalf("template not deterministic")
	}
	for i := range first.Variants {
		if first.Variants[i] != second.Variants[i] {
			t.Fatalf("variant %d differs between builds", i)
		}
	}

	seen := make(map[string]bool)
	for _, v := range first.Variants {
		if seen[v.ID] {
			t.Fatalf("duplicate variant id %q", v.ID)
		}
		seen[v.ID] = true
		if v.Hint == "" || v.Label == "" {
			t.Fatalf("variant %q missing hint or label", v.ID)
		}
	}
}

func TestBuildPlacementSetDigestTracksFacts(t *testing.T) {
	a := BuildPlacementSet(types.ResolvedFacts(baseFacts()), 1)

	changed := baseFacts()
	changed.Material = "steel"
	b := BuildPlacementSet(types.ResolvedFacts(changed), 1)

	if a.FactsDigest == b.FactsDigest {
		t.Fatalf("different facts produced equal digest %s", a.FactsDigest)
	}
}

func TestPromptTemplateUsesOrientationAndScale(t *testing.T) {
	wall := baseFacts()
	wall.Orientation = "wall_mounted"
	tmpl := promptTemplate(types.ResolvedFacts(wall))
	if tmpl == "" {
		t.Fatal("empty template")
	}
	if !containsAll(tmpl, "wall", "80cm", "95cm") {
		t.Fatalf("template missing orientation or dimensions: %s", tmpl)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
