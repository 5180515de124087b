package meshload

import (
	"errors"
	"fmt"
)

// Pipeline errors.
var (
	// ErrBusy is returned by Submit while another job is running for the
	// same caller session. Submissions are rejected, never queued.
	ErrBusy = errors.New("meshload: a load is already running for this session")

	// ErrStalled fails a job when no chunk completes within the stall
	// window.
	ErrStalled = errors.New("meshload: no chunk progress within stall window")

	// ErrUnknownJob is returned for job IDs the coordinator has never
	// seen.
	ErrUnknownJob = errors.New("meshload: unknown job")

	// ErrCoordinatorClosed is returned after Close.
	ErrCoordinatorClosed = errors.New("meshload: coordinator closed")
)

// FormatError reports a file that fails pre-flight format validation:
// a payload that is not a multiple of the record size, or a header whose
// declared record count is inconsistent with the file size. It is
// surfaced before any chunk work is scheduled; the job never enters
// Running.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("meshload: %s: %s", e.Path, e.Reason)
}

// IsFormatError reports whether err wraps a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
