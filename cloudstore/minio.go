package cloudstore

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/helio-ops/solsyncbackend/config"
)

// MinioClient implements Client against any S3-compatible object store.
// Objects are keyed installation-<id>/<name> inside a single bucket.
type MinioClient struct {
	client *minio.Client
	bucket string
}

// NewMinioClient connects to the configured endpoint and ensures the bucket
// exists.
func NewMinioClient(cfg config.Config) (*MinioClient, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client for %s: %w", cfg.MinioEndpoint, err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		log.Printf("cloudstore: Created bucket %s", cfg.MinioBucket)
	}

	log.Printf("cloudstore: Connected to object store at %s (bucket %s)", cfg.MinioEndpoint, cfg.MinioBucket)
	return &MinioClient{client: client, bucket: cfg.MinioBucket}, nil
}

func installationPrefix(installationID uint) string {
	return fmt.Sprintf("installation-%d/", installationID)
}

// EnsureInstallationContainer is a no-op beyond bucket existence: S3 prefixes
// materialize with the first object. Kept to satisfy the contract and to
// fail fast when the bucket has been removed out from under us.
func (mc *MinioClient) EnsureInstallationContainer(ctx context.Context, installationID uint) error {
	exists, err := mc.client.BucketExists(ctx, mc.bucket)
	if err != nil {
		return &TransientError{Op: "container check", Err: err}
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", mc.bucket)
	}
	return nil
}

func (mc *MinioClient) Upload(ctx context.Context, installationID uint, objectName string, data io.Reader, size int64, contentType string) (UploadResult, error) {
	key := installationPrefix(installationID) + objectName
	info, err := mc.client.PutObject(ctx, mc.bucket, key, data, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return UploadResult{}, &TransientError{Op: "upload", Err: err}
	}

	location := info.Location
	if location == "" {
		location = fmt.Sprintf("%s/%s/%s", mc.client.EndpointURL().String(), mc.bucket, key)
	}
	return UploadResult{
		ObjectKey: key,
		Location:  location,
		Size:      info.Size,
	}, nil
}

func (mc *MinioClient) List(ctx context.Context, installationID uint) ([]RemoteFile, error) {
	var files []RemoteFile
	objectCh := mc.client.ListObjects(ctx, mc.bucket, minio.ListObjectsOptions{
		Prefix:    installationPrefix(installationID),
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, &TransientError{Op: "list", Err: object.Err}
		}
		files = append(files, RemoteFile{
			ObjectKey: object.Key,
			Name:      object.Key[len(installationPrefix(installationID)):],
			URL:       fmt.Sprintf("%s/%s/%s", mc.client.EndpointURL().String(), mc.bucket, object.Key),
			Size:      object.Size,
			CreatedAt: object.LastModified,
		})
	}
	return files, nil
}

func (mc *MinioClient) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	obj, err := mc.client.GetObject(ctx, mc.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, &TransientError{Op: "download", Err: err}
	}
	// GetObject is lazy; a Stat forces the first request so missing objects
	// surface here instead of on first read
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, &TransientError{Op: "download", Err: err}
	}
	return obj, nil
}

func (mc *MinioClient) Delete(ctx context.Context, objectKey string) error {
	// verify the object is gone afterwards rather than trusting RemoveObject's
	// fire-and-forget semantics
	err := mc.client.RemoveObject(ctx, mc.bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ErrObjectNotFound
		}
		return &TransientError{Op: "delete", Err: err}
	}
	_, err = mc.client.StatObject(ctx, mc.bucket, objectKey, minio.StatObjectOptions{})
	if err == nil {
		return fmt.Errorf("object %s still present after delete", objectKey)
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return &TransientError{Op: "delete verify", Err: err}
	}
	return nil
}
