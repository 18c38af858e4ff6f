package repository

import (
	"github.com/helio-ops/solsyncbackend/models"
)

// LocalImageRepositoryInterface defines the methods for the local metadata
// index tracking evidence photos held on disk.
type LocalImageRepositoryInterface interface {
	Create(image *models.LocalImage) error
	GetByID(id uint) (*models.LocalImage, error)
	ListUnuploaded() ([]models.LocalImage, error)
	ListByInstallation(installationID uint) ([]models.LocalImage, error)
	ListActiveByInstallation(installationID uint) ([]models.LocalImage, error)
	// FindByCloudID returns (nil, nil) when no record is bound to cloudID.
	FindByCloudID(cloudID uint) (*models.LocalImage, error)
	CountActive(installationID, typeID uint) (int64, int64, error) // (perType, perInstallation)
	MarkUploaded(id uint, cloudID uint) error
	UpdateThumbnailPath(id uint, thumbnailPath *string) error
	Deactivate(id uint) error
}

// CatalogRepositoryInterface defines the methods for the metadata catalog of
// active images. Entries are deactivated, never deleted.
type CatalogRepositoryInterface interface {
	Create(entry *models.CatalogEntry) error
	GetByID(id uint) (*models.CatalogEntry, error)
	GetActiveEntries() ([]models.CatalogEntry, error)
	// GetActiveByHash returns (nil, nil) when no active entry matches the
	// installation+type+hash scope.
	GetActiveByHash(installationID, typeID uint, contentHash string) (*models.CatalogEntry, error)
	Update(entry *models.CatalogEntry) error
}

// InstallationRepositoryInterface defines the methods for installation data
// operations. Read-mostly from the sync engine's perspective.
type InstallationRepositoryInterface interface {
	Create(installation *models.Installation) error
	GetByID(id uint) (*models.Installation, error)
	ListAll() ([]models.Installation, error)
}

// RequiredImageTypeRepositoryInterface defines the methods for required image
// type data operations.
type RequiredImageTypeRepositoryInterface interface {
	Create(imageType *models.RequiredImageType) error
	GetByID(id uint) (*models.RequiredImageType, error)
	ListAll() ([]models.RequiredImageType, error)
}

// UserRepositoryInterface defines the methods for user data operations.
type UserRepositoryInterface interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	ListAll() ([]models.User, error)
}
