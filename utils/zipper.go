package utils

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// CreateInstallationArchive zips the given evidence image files into
// archiveSaveDir and returns the archive's full path and size. Files that
// cannot be read are skipped so one missing file never ruins the export.
func CreateInstallationArchive(installationID uint, filePaths []string, archiveSaveDir string) (string, int64, error) {
	if err := os.MkdirAll(archiveSaveDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create archive directory %s: %w", archiveSaveDir, err)
	}

	timestamp := time.Now().Unix()
	archiveUUID, _ := uuid.NewRandom()
	zipFilename := fmt.Sprintf("installation_%d_%d_%s.zip", installationID, timestamp, archiveUUID.String()[:8])
	zipFilePath := filepath.Join(archiveSaveDir, zipFilename)

	zipFile, err := os.Create(zipFilePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create archive file %s: %w", zipFilePath, err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)

	foundFiles := false
	for _, path := range filePaths {
		fileToZip, err := os.Open(path)
		if err != nil {
			log.Printf("zipper: Failed to open file %s for zipping: %v. Skipping.", path, err)
			continue
		}

		writer, err := zipWriter.Create(filepath.Base(path))
		if err != nil {
			fileToZip.Close()
			log.Printf("zipper: Failed to create entry in zip for %s: %v. Skipping.", path, err)
			continue
		}

		_, err = io.Copy(writer, fileToZip)
		fileToZip.Close()
		if err != nil {
			log.Printf("zipper: Failed to write file %s to zip: %v. Skipping.", path, err)
			continue
		}
		foundFiles = true
	}

	if !foundFiles {
		zipWriter.Close()
		zipFile.Close()
		os.Remove(zipFilePath)
		return "", 0, fmt.Errorf("no readable files to archive for installation %d", installationID)
	}

	if err := zipWriter.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to finalize archive %s: %w", zipFilePath, err)
	}

	zipInfo, err := os.Stat(zipFilePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat created archive %s: %w", zipFilePath, err)
	}

	log.Printf("Successfully created installation archive: %s (Size: %d bytes)", zipFilePath, zipInfo.Size())
	return zipFilePath, zipInfo.Size(), nil
}
