package imagestore

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// UsageCounter reports the current number of active images for an
// installation+type pair and for the installation overall. Injected from the
// repository layer so the store doesn't depend on the database.
type UsageCounter func(installationID, typeID uint) (perType int64, perInstallation int64, err error)

// Store defines the interface for persisting evidence image files on disk
type Store interface {
	// SaveImage validates and stores the image bytes for an installation+type,
	// returning the path relative to the storage root. Nothing is written when
	// validation fails.
	SaveImage(installationID, typeID uint, data io.Reader, suggestedName string) (string, error)
	// Get retrieves a reader for a stored image
	Get(relativePath string) (io.ReadCloser, os.FileInfo, error)
	// Delete removes a stored image
	Delete(relativePath string) error
	// GetFullPath returns the absolute filesystem path for a relative image path
	GetFullPath(relativePath string) (string, error)
}

// Limits carries the validation budget enforced on every save.
type Limits struct {
	MaxSizeBytes             int64
	AllowedExtensions        []string
	MaxImagesPerType         int
	MaxImagesPerInstallation int
}

// LocalStorage implements the Store interface using the local filesystem
type LocalStorage struct {
	basePath string // absolute path to the images storage root
	limits   Limits
	usage    UsageCounter
}

// NewLocalStorage creates a new local filesystem store rooted at basePath
func NewLocalStorage(basePath string, limits Limits, usage UsageCounter) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	log.Printf("imagestore: Initialized LocalStorage at %s", absBasePath)
	return &LocalStorage{
		basePath: absBasePath,
		limits:   limits,
		usage:    usage,
	}, nil
}

func (ls *LocalStorage) extensionAllowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range ls.limits.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// SaveImage validates size/extension/quota and writes the file under
// installation-<id>/<uuid><ext>. Validation errors leave no state behind.
func (ls *LocalStorage) SaveImage(installationID, typeID uint, data io.Reader, suggestedName string) (string, error) {
	if !ls.extensionAllowed(suggestedName) {
		return "", &ValidationError{
			Reason: ReasonBadExtension,
			Detail: fmt.Sprintf("extension of '%s' is not an accepted image format", suggestedName),
		}
	}

	if ls.usage != nil {
		perType, perInstallation, err := ls.usage(installationID, typeID)
		if err != nil {
			return "", fmt.Errorf("failed to check image quota: %w", err)
		}
		if ls.limits.MaxImagesPerType > 0 && perType >= int64(ls.limits.MaxImagesPerType) {
			return "", &ValidationError{
				Reason: ReasonTypeMaxExceeded,
				Detail: fmt.Sprintf("installation %d already holds %d images for type %d", installationID, perType, typeID),
			}
		}
		if ls.limits.MaxImagesPerInstallation > 0 && perInstallation >= int64(ls.limits.MaxImagesPerInstallation) {
			return "", &ValidationError{
				Reason: ReasonInstallationQuota,
				Detail: fmt.Sprintf("installation %d already holds %d images", installationID, perInstallation),
			}
		}
	}

	targetDir := filepath.Join(ls.basePath, fmt.Sprintf("installation-%d", installationID))
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create installation directory '%s': %w", targetDir, err)
	}

	fileUUID, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID for image filename: %w", err)
	}
	finalFilename := fileUUID.String() + strings.ToLower(filepath.Ext(suggestedName))
	fullSavePath := filepath.Join(targetDir, finalFilename)

	outFile, err := os.Create(fullSavePath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file '%s': %w", fullSavePath, err)
	}

	// cap the copy one byte past the limit so oversize input is detectable
	// without buffering the whole stream
	var written int64
	if ls.limits.MaxSizeBytes > 0 {
		written, err = io.Copy(outFile, io.LimitReader(data, ls.limits.MaxSizeBytes+1))
	} else {
		written, err = io.Copy(outFile, data)
	}
	if err != nil {
		outFile.Close()
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to write image data to '%s': %w", fullSavePath, err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to finalize image file '%s': %w", fullSavePath, err)
	}

	if ls.limits.MaxSizeBytes > 0 && written > ls.limits.MaxSizeBytes {
		os.Remove(fullSavePath)
		return "", &ValidationError{
			Reason: ReasonOversize,
			Detail: fmt.Sprintf("image exceeds maximum size of %d bytes", ls.limits.MaxSizeBytes),
		}
	}

	relativePath, err := filepath.Rel(ls.basePath, fullSavePath)
	if err != nil {
		log.Printf("imagestore: Error calculating relative path for '%s' from '%s': %v", fullSavePath, ls.basePath, err)
		return "", fmt.Errorf("internal error calculating relative path: %w", err)
	}

	log.Printf("imagestore: Saved image to %s", fullSavePath)
	return filepath.ToSlash(relativePath), nil
}

func (ls *LocalStorage) Get(relativePath string) (io.ReadCloser, os.FileInfo, error) {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("image not found at '%s': %w", relativePath, err)
		}
		return nil, nil, fmt.Errorf("failed to open image '%s': %w", relativePath, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat image '%s': %w", relativePath, err)
	}

	return file, info, nil
}

// Delete removes an image file
func (ls *LocalStorage) Delete(relativePath string) error {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) { // ignore "not exist" errors
		return fmt.Errorf("failed to delete image '%s': %w", relativePath, err)
	}
	if err == nil {
		log.Printf("imagestore: Deleted image %s", fullPath)
	}
	return nil
}

// GetFullPath calculates the absolute path and performs security check
func (ls *LocalStorage) GetFullPath(relativePath string) (string, error) {
	// clean the relative path first to prevent simple traversal tricks
	cleanRelativePath := filepath.Clean(relativePath)

	fullPath := filepath.Join(ls.basePath, cleanRelativePath)

	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", relativePath, err)
	}

	if !strings.HasPrefix(absFullPath, ls.basePath) {
		return "", fmt.Errorf("invalid path: access denied for '%s'", relativePath)
	}

	return absFullPath, nil
}
