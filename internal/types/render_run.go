package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusComplete, RunStatusPartial, RunStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving to next is a legal, strictly monotonic
// step. Terminal states never transition.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case RunStatusPending:
		return next == RunStatusRunning
	case RunStatusRunning:
		return next.Terminal()
	}
	return false
}

type VariantStatus string

const (
	VariantStatusPending VariantStatus = "pending"
	VariantStatusRunning VariantStatus = "running"
	VariantStatusSuccess VariantStatus = "success"
	VariantStatusFailed  VariantStatus = "failed"
	VariantStatusTimeout VariantStatus = "timeout"
)

func (s VariantStatus) Terminal() bool {
	switch s {
	case VariantStatusSuccess, VariantStatusFailed, VariantStatusTimeout:
		return true
	}
	return false
}

func (s VariantStatus) CanTransition(next VariantStatus) bool {
	switch s {
	case VariantStatusPending:
		return next == VariantStatusRunning || next.Terminal()
	case VariantStatusRunning:
		return next.Terminal()
	}
	return false
}

// AggregateRunStatus computes a run's terminal status from its variants'
// terminal statuses: complete iff all succeeded, failed iff none did,
// partial otherwise.
func AggregateRunStatus(variants []*VariantResult) RunStatus {
	succeeded := 0
	for _, v := range variants {
		if v.Status == VariantStatusSuccess {
			succeeded++
		}
	}
	switch {
	case len(variants) > 0 && succeeded == len(variants):
		return RunStatusComplete
	case succeeded > 0:
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}

// RenderRun is one customer-triggered render request. It owns its
// VariantResult rows (cascade delete).
type RenderRun struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ShopID         uuid.UUID `gorm:"type:uuid;column:shop_id;not null;index" json:"shop_id"`
	ProductAssetID uuid.UUID `gorm:"type:uuid;column:product_asset_id;not null;index" json:"product_asset_id"`
	RoomSessionID  uuid.UUID `gorm:"type:uuid;column:room_session_id;not null;index" json:"room_session_id"`

	PlacementSetVersion int       `gorm:"column:placement_set_version;not null" json:"placement_set_version"`
	Status              RunStatus `gorm:"column:status;not null;default:pending;index" json:"status"`
	DurationMs          int64     `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	Error               *string   `gorm:"column:error" json:"error,omitempty"`
	TraceID             string    `gorm:"column:trace_id" json:"trace_id,omitempty"`

	Variants []*VariantResult `gorm:"foreignKey:RenderRunID;constraint:OnDelete:CASCADE" json:"variants,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (RenderRun) TableName() string { return "render_run" }

// VariantResult is one placement variant's outcome within a run.
type VariantResult struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RenderRunID uuid.UUID `gorm:"type:uuid;column:render_run_id;not null;index" json:"render_run_id"`

	VariantID string        `gorm:"column:variant_id;not null" json:"variant_id"`
	Status    VariantStatus `gorm:"column:status;not null;default:pending" json:"status"`
	// Object-store key of the generated image; set only on success.
	StorageKey      *string `gorm:"column:storage_key" json:"storage_key,omitempty"`
	ThumbStorageKey *string `gorm:"column:thumb_storage_key" json:"thumb_storage_key,omitempty"`
	LatencyMs       int64   `gorm:"column:latency_ms;not null;default:0" json:"latency_ms"`
	Error           *string `gorm:"column:error" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (VariantResult) TableName() string { return "variant_result" }
