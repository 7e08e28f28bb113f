package types

import (
	"time"
)

// ProductFacts are the structured attributes the extractor derives from a
// product's title, description, tags and representative images. Immutable per
// extraction pass; a re-extraction supersedes the whole value.
type ProductFacts struct {
	Category    string  `json:"category"`
	Material    string  `json:"material"`
	Orientation string  `json:"orientation"` // floor|wall_mounted|tabletop|ceiling
	WidthCm     float64 `json:"width_cm,omitempty"`
	HeightCm    float64 `json:"height_cm,omitempty"`
	DepthCm     float64 `json:"depth_cm,omitempty"`
	Style       string  `json:"style,omitempty"`
}

// FactOverrides is the merchant's sparse overlay on top of extracted facts.
// Three-state semantics per key: absent = inherit the extracted value, explicit
// null or empty = clear the field to its zero default, present value = override.
type FactOverrides map[string]any

// ResolvedFacts is ProductFacts after the override overlay has been applied.
type ResolvedFacts ProductFacts

// PlacementVariant is one named placement configuration within a placement set.
type PlacementVariant struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Hint  string `json:"hint"`
}

// PlacementSet is the versioned, derived bundle of placement variants plus the
// templated instruction built from resolved facts. It is the single authority
// for how many variants a run fans out to.
type PlacementSet struct {
	Version     int                `json:"version"`
	FactsDigest string             `json:"facts_digest"`
	Template    string             `json:"template"`
	Variants    []PlacementVariant `json:"variants"`
	CreatedAt   time.Time          `json:"created_at"`
}
