package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoomSession is one customer's room photo, uploaded through the storefront
// proxy. Renders reference it by id; the cached remote file handle lets
// repeated renders of the same room skip re-uploading the photo.
type RoomSession struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ShopID uuid.UUID `gorm:"type:uuid;column:shop_id;not null;index" json:"shop_id"`

	PhotoStorageKey string `gorm:"column:photo_storage_key;not null" json:"photo_storage_key"`
	PhotoMimeType   string `gorm:"column:photo_mime_type;not null;default:image/jpeg" json:"photo_mime_type"`

	RemoteFileURI    *string    `gorm:"column:remote_file_uri" json:"remote_file_uri,omitempty"`
	RemoteFileExpiry *time.Time `gorm:"column:remote_file_expiry" json:"remote_file_expiry,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (RoomSession) TableName() string { return "room_session" }
