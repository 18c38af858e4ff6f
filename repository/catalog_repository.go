package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/helio-ops/solsyncbackend/models"
)

// CatalogRepository handles database operations for CatalogEntry entities
type CatalogRepository struct {
	DB *gorm.DB
}

// NewCatalogRepository creates a new instance of CatalogRepository
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{DB: db}
}

func (r *CatalogRepository) Create(entry *models.CatalogEntry) error {
	if err := r.DB.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create catalog entry: %w", err)
	}
	return nil
}

func (r *CatalogRepository) GetByID(id uint) (*models.CatalogEntry, error) {
	var entry models.CatalogEntry
	err := r.DB.First(&entry, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get catalog entry %d: %w", id, err)
	}
	return &entry, nil
}

func (r *CatalogRepository) GetActiveEntries() ([]models.CatalogEntry, error) {
	var entries []models.CatalogEntry
	err := r.DB.Where("active = ?", true).Order("id").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active catalog entries: %w", err)
	}
	return entries, nil
}

// GetActiveByHash looks up the active entry matching a content hash within an
// installation+type scope. This is the dedup oracle the sync engine binds
// against instead of uploading duplicate bytes. Returns (nil, nil) when no
// entry matches.
func (r *CatalogRepository) GetActiveByHash(installationID, typeID uint, contentHash string) (*models.CatalogEntry, error) {
	var entry models.CatalogEntry
	err := r.DB.Where(
		"installation_id = ? AND required_image_type_id = ? AND content_hash = ? AND active = ?",
		installationID, typeID, contentHash, true,
	).First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up catalog entry by hash: %w", err)
	}
	return &entry, nil
}

func (r *CatalogRepository) Update(entry *models.CatalogEntry) error {
	if err := r.DB.Save(entry).Error; err != nil {
		return fmt.Errorf("failed to update catalog entry %d: %w", entry.ID, err)
	}
	return nil
}
