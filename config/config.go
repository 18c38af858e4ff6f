package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultImagesSubDir     = "images"
	DefaultThumbnailsSubDir = "thumbnails"
	DefaultArchivesSubDir   = "archives"
)

const (
	defaultSyncIntervalMinutes = 15
	defaultMaxUploadRetries    = 3
	defaultRetryDelaySeconds   = 30
	defaultMaxConcurrentUp     = 3
	defaultMaxUploadSizeBytes  = 32 << 20 // 32 MiB

	defaultMaxImagesPerType         = 20
	defaultMaxImagesPerInstallation = 200

	defaultThumbnailMaxSize    = 300
	defaultThumbnailQueueSize  = 200
	defaultNumThumbnailWorkers = 4
)

var defaultAllowedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

type Config struct {
	// database path
	DatabasePath string

	// media storage configuration
	MediaStoragePath string // primary root for image files and generated assets
	ImagesPath       string // full-calculated path for original evidence images
	ThumbnailsPath   string // full-calculated path for thumbnails
	ArchivesPath     string // full-calculated path for installation archives

	// sync engine settings
	SyncIntervalMinutes  int
	MaxUploadRetries     int
	RetryDelaySeconds    int
	MaxConcurrentUploads int

	// local image validation settings
	MaxUploadSizeBytes       int64
	AllowedExtensions        []string
	MaxImagesPerType         int
	MaxImagesPerInstallation int

	// thumbnail generation settings
	ThumbnailMaxSize    int
	ThumbnailQueueSize  int
	NumThumbnailWorkers int

	// remote object store (S3-compatible)
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %t. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "solsync.db")

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	imagesSubDir := getEnvOrDefault("IMAGES_SUBDIR", DefaultImagesSubDir)
	absImagesPath := filepath.Join(absMediaStorage, imagesSubDir)

	thumbSubDir := getEnvOrDefault("THUMBNAILS_SUBDIR", DefaultThumbnailsSubDir)
	absThumbnailsPath := filepath.Join(absMediaStorage, thumbSubDir)

	archiveSubDir := getEnvOrDefault("ARCHIVES_SUBDIR", DefaultArchivesSubDir)
	absArchivesPath := filepath.Join(absMediaStorage, archiveSubDir)

	allowedExt := defaultAllowedExtensions
	if raw := os.Getenv("ALLOWED_EXTENSIONS"); raw != "" {
		allowedExt = nil
		for _, e := range strings.Split(raw, ",") {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			allowedExt = append(allowedExt, e)
		}
	}

	maxUploadSize := int64(getEnvIntOrDefault("MAX_UPLOAD_SIZE_BYTES", defaultMaxUploadSizeBytes))

	cfg := Config{
		DatabasePath:     dbPath,
		MediaStoragePath: absMediaStorage,
		ImagesPath:       absImagesPath,
		ThumbnailsPath:   absThumbnailsPath,
		ArchivesPath:     absArchivesPath,

		SyncIntervalMinutes:  getEnvIntOrDefault("SYNC_INTERVAL_MINUTES", defaultSyncIntervalMinutes),
		MaxUploadRetries:     getEnvIntOrDefault("MAX_UPLOAD_RETRIES", defaultMaxUploadRetries),
		RetryDelaySeconds:    getEnvIntOrDefault("RETRY_DELAY_SECONDS", defaultRetryDelaySeconds),
		MaxConcurrentUploads: getEnvIntOrDefault("MAX_CONCURRENT_UPLOADS", defaultMaxConcurrentUp),

		MaxUploadSizeBytes:       maxUploadSize,
		AllowedExtensions:        allowedExt,
		MaxImagesPerType:         getEnvIntOrDefault("MAX_IMAGES_PER_TYPE", defaultMaxImagesPerType),
		MaxImagesPerInstallation: getEnvIntOrDefault("MAX_IMAGES_PER_INSTALLATION", defaultMaxImagesPerInstallation),

		ThumbnailMaxSize:    getEnvIntOrDefault("THUMBNAIL_MAX_SIZE", defaultThumbnailMaxSize),
		ThumbnailQueueSize:  getEnvIntOrDefault("THUMBNAIL_QUEUE_SIZE", defaultThumbnailQueueSize),
		NumThumbnailWorkers: getEnvIntOrDefault("NUM_THUMBNAIL_WORKERS", defaultNumThumbnailWorkers),

		MinioEndpoint:  getEnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:    getEnvBoolOrDefault("MINIO_USE_SSL", false),
		MinioBucket:    getEnvOrDefault("MINIO_BUCKET", "installation-images"),
	}

	return cfg, nil
}
