package models

// CatalogEntry is the authoritative record of one logical image known to the
// system. Entries are never hard-deleted, only deactivated, so the evidence
// audit trail survives deletes.
type CatalogEntry struct {
	ID                  uint    `gorm:"primaryKey" json:"id"`
	InstallationID      uint    `gorm:"index;not null" json:"installation_id"`
	RequiredImageTypeID uint    `gorm:"index;not null" json:"required_image_type_id"`
	Location            string  `gorm:"not null" json:"location"`   // remote URL of the stored object
	ObjectKey           string  `gorm:"not null" json:"object_key"` // key within the object store bucket
	AddedAt             int64   `gorm:"not null" json:"added_at"`
	DisplayName         *string `gorm:"" json:"display_name,omitempty"`
	UploaderUserID      uint    `gorm:"not null" json:"uploader_user_id"`
	ContentHash         string  `gorm:"index;not null" json:"content_hash"`
	Active              bool    `gorm:"not null;default:true" json:"active"`
}

// TableName explicitly sets the table name for GORM.
func (CatalogEntry) TableName() string {
	return "catalog_entries"
}
