package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/helio-ops/solsyncbackend/models"
)

// LocalImageRepository handles database operations for LocalImage entities
type LocalImageRepository struct {
	DB *gorm.DB
}

// NewLocalImageRepository creates a new instance of LocalImageRepository
func NewLocalImageRepository(db *gorm.DB) *LocalImageRepository {
	return &LocalImageRepository{DB: db}
}

func (r *LocalImageRepository) Create(image *models.LocalImage) error {
	if err := r.DB.Create(image).Error; err != nil {
		return fmt.Errorf("failed to create local image record: %w", err)
	}
	return nil
}

func (r *LocalImageRepository) GetByID(id uint) (*models.LocalImage, error) {
	var image models.LocalImage
	err := r.DB.First(&image, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get local image %d: %w", id, err)
	}
	return &image, nil
}

// ListUnuploaded returns all active records that have not yet been bound to a
// catalog entry, in insertion order.
func (r *LocalImageRepository) ListUnuploaded() ([]models.LocalImage, error) {
	var images []models.LocalImage
	err := r.DB.Where("is_uploaded = ? AND is_active = ?", false, true).
		Order("id").
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unuploaded images: %w", err)
	}
	return images, nil
}

func (r *LocalImageRepository) ListByInstallation(installationID uint) ([]models.LocalImage, error) {
	var images []models.LocalImage
	err := r.DB.Where("installation_id = ?", installationID).Order("id").Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list images for installation %d: %w", installationID, err)
	}
	return images, nil
}

func (r *LocalImageRepository) ListActiveByInstallation(installationID uint) ([]models.LocalImage, error) {
	var images []models.LocalImage
	err := r.DB.Where("installation_id = ? AND is_active = ?", installationID, true).
		Order("id").
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active images for installation %d: %w", installationID, err)
	}
	return images, nil
}

// FindByCloudID returns the record bound to a catalog entry, or (nil, nil)
// when no local copy exists.
func (r *LocalImageRepository) FindByCloudID(cloudID uint) (*models.LocalImage, error) {
	var image models.LocalImage
	err := r.DB.Where("cloud_id = ?", cloudID).First(&image).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find local image by cloud id %d: %w", cloudID, err)
	}
	return &image, nil
}

// CountActive returns the number of active records for the given
// installation+type pair and for the installation as a whole. Used by the
// image store's quota validation.
func (r *LocalImageRepository) CountActive(installationID, typeID uint) (int64, int64, error) {
	var perType, perInstallation int64
	err := r.DB.Model(&models.LocalImage{}).
		Where("installation_id = ? AND required_image_type_id = ? AND is_active = ?", installationID, typeID, true).
		Count(&perType).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count images for type %d: %w", typeID, err)
	}
	err = r.DB.Model(&models.LocalImage{}).
		Where("installation_id = ? AND is_active = ?", installationID, true).
		Count(&perInstallation).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count images for installation %d: %w", installationID, err)
	}
	return perType, perInstallation, nil
}

// MarkUploaded atomically flips is_uploaded and binds the record to a catalog
// entry in a single UPDATE.
func (r *LocalImageRepository) MarkUploaded(id uint, cloudID uint) error {
	updates := map[string]interface{}{
		"is_uploaded": true,
		"cloud_id":    cloudID,
	}
	result := r.DB.Model(&models.LocalImage{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to mark local image %d uploaded: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *LocalImageRepository) UpdateThumbnailPath(id uint, thumbnailPath *string) error {
	result := r.DB.Model(&models.LocalImage{}).Where("id = ?", id).
		Update("thumbnail_path", thumbnailPath)
	if result.Error != nil {
		return fmt.Errorf("failed to update thumbnail path for image %d: %w", id, result.Error)
	}
	return nil
}

// Deactivate soft-deletes the record; deactivated rows are excluded from all
// sync operations but kept for the audit trail.
func (r *LocalImageRepository) Deactivate(id uint) error {
	result := r.DB.Model(&models.LocalImage{}).Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate local image %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
