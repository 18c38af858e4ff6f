package cloudstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrObjectNotFound reports a remote object that the store no longer holds.
// Pull and delete flows treat it as a per-item condition, not a pass failure.
var ErrObjectNotFound = errors.New("remote object not found")

// TransientError wraps a transport failure that is worth retrying.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// UploadResult identifies a freshly stored remote object.
type UploadResult struct {
	ObjectKey string
	Location  string
	Size      int64
}

// RemoteFile describes one object in an installation's container.
type RemoteFile struct {
	ObjectKey string
	Name      string
	URL       string
	Size      int64
	CreatedAt time.Time
}

// Client abstracts the remote object store holding the physical image bytes.
// Transport details (HTTP verbs, auth, signing) are owned by implementations;
// the sync engine only sees success, failure, and the fields above.
type Client interface {
	// EnsureInstallationContainer makes sure the installation's storage
	// location exists. Idempotent.
	EnsureInstallationContainer(ctx context.Context, installationID uint) error
	// Upload stores the image bytes under the installation's container and
	// returns the object key and URL.
	Upload(ctx context.Context, installationID uint, objectName string, data io.Reader, size int64, contentType string) (UploadResult, error)
	// List returns the installation's remote files.
	List(ctx context.Context, installationID uint) ([]RemoteFile, error)
	// Download returns a reader for the object's bytes. Returns
	// ErrObjectNotFound when the object is gone.
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)
	// Delete removes the object. Returns ErrObjectNotFound when it was
	// already gone, an error when the delete is not acknowledged.
	Delete(ctx context.Context, objectKey string) error
}
