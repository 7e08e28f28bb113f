package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Shop struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Domain string    `gorm:"column:domain;not null;uniqueIndex" json:"domain"`
	// Render units included in the shop's plan per billing period.
	RenderLimit int            `gorm:"column:render_limit;not null;default:50" json:"render_limit"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Shop) TableName() string { return "shop" }
