package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ProductAsset struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ShopID uuid.UUID `gorm:"type:uuid;column:shop_id;not null;index" json:"shop_id"`

	Title       string         `gorm:"column:title;not null" json:"title"`
	Description string         `gorm:"column:description" json:"description,omitempty"`
	Tags        string         `gorm:"column:tags" json:"tags,omitempty"`
	ImageURLs   datatypes.JSON `gorm:"column:image_urls;type:jsonb" json:"image_urls,omitempty"`

	// Prepared cutout produced upstream (background removed).
	CutoutStorageKey string `gorm:"column:cutout_storage_key;not null" json:"cutout_storage_key"`
	CutoutMimeType   string `gorm:"column:cutout_mime_type;not null;default:image/png" json:"cutout_mime_type"`

	// Cached remote file handle for the cutout (see services.FileCacheService).
	RemoteFileURI    *string    `gorm:"column:remote_file_uri" json:"remote_file_uri,omitempty"`
	RemoteFileExpiry *time.Time `gorm:"column:remote_file_expiry" json:"remote_file_expiry,omitempty"`

	// Fact pipeline artifacts. Superseded, never mutated in place.
	ExtractedFacts      datatypes.JSON `gorm:"column:extracted_facts;type:jsonb" json:"extracted_facts,omitempty"`
	FactOverrides       datatypes.JSON `gorm:"column:fact_overrides;type:jsonb" json:"fact_overrides,omitempty"`
	ResolvedFacts       datatypes.JSON `gorm:"column:resolved_facts;type:jsonb" json:"resolved_facts,omitempty"`
	PlacementSet        datatypes.JSON `gorm:"column:placement_set;type:jsonb" json:"placement_set,omitempty"`
	PlacementSetVersion int            `gorm:"column:placement_set_version;not null;default:0" json:"placement_set_version"`
	ExtractionError     *string        `gorm:"column:extraction_error" json:"extraction_error,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ProductAsset) TableName() string { return "product_asset" }
