package sync

import "fmt"

// UploadFailedError reports a record whose upload exhausted its retry budget.
// It fails that record only; the rest of the pass continues.
type UploadFailedError struct {
	LocalID  uint
	Attempts int
	Err      error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("upload failed for local image %d after %d attempt(s): %v", e.LocalID, e.Attempts, e.Err)
}

func (e *UploadFailedError) Unwrap() error { return e.Err }

// DownloadFailedError reports a catalog entry whose remote bytes could not be
// pulled down.
type DownloadFailedError struct {
	CloudID uint
	Err     error
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("download failed for catalog entry %d: %v", e.CloudID, e.Err)
}

func (e *DownloadFailedError) Unwrap() error { return e.Err }

// CatalogInconsistencyError reports local state referencing catalog state
// that does not exist (e.g. a cloud id with no matching entry). Logged and
// skipped, never fatal to a pass.
type CatalogInconsistencyError struct {
	CloudID uint
	Detail  string
}

func (e *CatalogInconsistencyError) Error() string {
	return fmt.Sprintf("catalog inconsistency for cloud id %d: %s", e.CloudID, e.Detail)
}
