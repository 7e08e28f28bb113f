package services

import (
	"fmt"
	"time"

	"github.com/stageroom/stageroom-backend/internal/types"
)

// placementCatalog is the fixed variant layout fanned out per render run.
// The placement set derived from it is the sole authority on how many
// variants a run produces.
var placementCatalog = []struct {
	id    string
	label string
	hint  string
}{
	{"center-accurate", "Centered, true to size", "Place the product at the visual center of the room at accurate real-world scale."},
	{"center-larger", "Centered, hero scale", "Place the product at the visual center of the room, scaled up roughly 20 percent for emphasis."},
	{"left-accurate", "Left side, true to size", "Place the product toward the left third of the room at accurate real-world scale."},
	{"left-larger", "Left side, hero scale", "Place the product toward the left third of the room, scaled up roughly 20 percent for emphasis."},
	{"right-accurate", "Right side, true to size", "Place the product toward the right third of the room at accurate real-world scale."},
	{"right-larger", "Right side, hero scale", "Place the product toward the right third of the room, scaled up roughly 20 percent for emphasis."},
	{"prominent", "Foreground focal point", "Place the product in the foreground as the focal point of the composition."},
	{"subtle", "Background accent", "Place the product further back so it reads as a natural accent in the room."},
}

// BuildPlacementSet derives the prompt pack for one version of an asset's
// resolved facts. Deterministic: the same facts always produce the same
// variants and digest.
func BuildPlacementSet(resolved types.ResolvedFacts, version int) types.PlacementSet {
	template := promptTemplate(resolved)
	variants := make([]types.PlacementVariant, 0, len(placementCatalog))
	for _, entry := range placementCatalog {
		variants = append(variants, types.PlacementVariant{
			ID:    entry.id,
			Label: entry.label,
			Hint:  entry.hint,
		})
	}
	return types.PlacementSet{
		Version:     version,
		FactsDigest: factsDigest(resolved),
		Template:    template,
		Variants:    variants,
		CreatedAt:   time.Now().UTC(),
	}
}

func promptTemplate(resolved types.ResolvedFacts) string {
	desc := resolved.Category
	if resolved.Material != "" {
		desc = resolved.Material + " " + desc
	}
	if resolved.Style != "" {
		desc = resolved.Style + " " + desc
	}

	t := fmt.Sprintf("Composite the provided product photo (a %s) into the provided room photo photorealistically.", desc)
	switch resolved.Orientation {
	case "wall_mounted":
		t += " Mount it on a wall at a natural height."
	case "tabletop":
		t += " Place it on a suitable flat surface such as a table or shelf."
	case "ceiling":
		t += " Suspend it from the ceiling."
	default:
		t += " Place it on the floor."
	}
	if resolved.WidthCm > 0 && resolved.HeightCm > 0 {
		t += fmt.Sprintf(" It measures %.0fcm wide by %.0fcm tall", resolved.WidthCm, resolved.HeightCm)
		if resolved.DepthCm > 0 {
			t += fmt.Sprintf(" by %.0fcm deep", resolved.DepthCm)
		}
		t += "; respect this scale against the room."
	}
	t += " Match the room's lighting, shadows and perspective. Do not alter the rest of the room."
	return t
}
