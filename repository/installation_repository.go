package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/helio-ops/solsyncbackend/models"
)

// InstallationRepository handles database operations for Installation entities
type InstallationRepository struct {
	DB *gorm.DB
}

func NewInstallationRepository(db *gorm.DB) *InstallationRepository {
	return &InstallationRepository{DB: db}
}

func (r *InstallationRepository) Create(installation *models.Installation) error {
	if err := r.DB.Create(installation).Error; err != nil {
		return fmt.Errorf("failed to create installation: %w", err)
	}
	return nil
}

func (r *InstallationRepository) GetByID(id uint) (*models.Installation, error) {
	var installation models.Installation
	err := r.DB.First(&installation, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get installation %d: %w", id, err)
	}
	return &installation, nil
}

func (r *InstallationRepository) ListAll() ([]models.Installation, error) {
	var installations []models.Installation
	if err := r.DB.Order("id").Find(&installations).Error; err != nil {
		return nil, fmt.Errorf("failed to list installations: %w", err)
	}
	return installations, nil
}

// RequiredImageTypeRepository handles database operations for RequiredImageType entities
type RequiredImageTypeRepository struct {
	DB *gorm.DB
}

func NewRequiredImageTypeRepository(db *gorm.DB) *RequiredImageTypeRepository {
	return &RequiredImageTypeRepository{DB: db}
}

func (r *RequiredImageTypeRepository) Create(imageType *models.RequiredImageType) error {
	if err := r.DB.Create(imageType).Error; err != nil {
		return fmt.Errorf("failed to create required image type: %w", err)
	}
	return nil
}

func (r *RequiredImageTypeRepository) GetByID(id uint) (*models.RequiredImageType, error) {
	var imageType models.RequiredImageType
	err := r.DB.First(&imageType, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get required image type %d: %w", id, err)
	}
	return &imageType, nil
}

func (r *RequiredImageTypeRepository) ListAll() ([]models.RequiredImageType, error) {
	var imageTypes []models.RequiredImageType
	if err := r.DB.Order("id").Find(&imageTypes).Error; err != nil {
		return nil, fmt.Errorf("failed to list required image types: %w", err)
	}
	return imageTypes, nil
}
