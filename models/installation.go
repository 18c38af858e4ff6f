package models

import "time"

// Installation is a photovoltaic site being documented.
type Installation struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Name              string    `gorm:"not null" json:"name"`
	Region            string    `gorm:"index" json:"region"`
	Address           string    `gorm:"" json:"address"`
	ResponsibleUserID uint      `gorm:"" json:"responsible_user_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RequiredImageType defines a category of evidence photo required for every
// installation (e.g. "roof-overview", minimum 2 shots).
type RequiredImageType struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"uniqueIndex;not null" json:"name"`
	MinimumCount int    `gorm:"not null;default:1" json:"minimum_count"`
	Description  string `gorm:"" json:"description"`
}
