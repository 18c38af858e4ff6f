package imagestore

import "fmt"

// Validation reason codes.
const (
	ReasonOversize          = "oversize"
	ReasonBadExtension      = "bad_extension"
	ReasonTypeMaxExceeded   = "type_max_exceeded"
	ReasonInstallationQuota = "installation_quota_exceeded"
)

// ValidationError reports a rejected save. Validation failures are never
// retried; the caller surfaces them immediately.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("image validation failed (%s): %s", e.Reason, e.Detail)
}
