package models

// LocalImage tracks one evidence photo held on local disk and its sync state.
// It corresponds to the 'local_images' table.
type LocalImage struct {
	ID                  uint    `gorm:"primaryKey" json:"id"`
	CloudID             *uint   `gorm:"index" json:"cloud_id,omitempty"` // set once bound to a catalog entry
	InstallationID      uint    `gorm:"index;not null" json:"installation_id"`
	RequiredImageTypeID uint    `gorm:"index;not null" json:"required_image_type_id"`
	LocalPath           string  `gorm:"not null" json:"local_path"` // path relative to the images storage root
	DisplayName         *string `gorm:"" json:"display_name,omitempty"`
	AddedAt             int64   `gorm:"not null" json:"added_at"` // Unix timestamp
	UploaderUserID      uint    `gorm:"not null" json:"uploader_user_id"`
	ContentHash         string  `gorm:"index;not null" json:"content_hash"` // immutable once set

	IsUploaded bool `gorm:"not null;default:false" json:"is_uploaded"`
	IsActive   bool `gorm:"not null;default:true" json:"is_active"` // soft delete

	TakenAt       *int64  `gorm:"" json:"taken_at,omitempty"` // Nullable, EXIF capture time
	ThumbnailPath *string `gorm:"" json:"thumbnail_path,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (LocalImage) TableName() string {
	return "local_images"
}
