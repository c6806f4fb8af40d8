package ota

import (
	"errors"
	"fmt"
)

// Outcome is the result category of one update attempt
type Outcome int

const (
	// OutcomeUnknown is the zero value; no check ran (e.g. ErrBusy)
	OutcomeUnknown Outcome = iota
	// OutcomeUpdated means a new image was flashed and a restart requested
	OutcomeUpdated
	// OutcomeUpToDate means the remote version is not newer than the running one
	OutcomeUpToDate
	// OutcomeCheckFailed means the version marker could not be read
	OutcomeCheckFailed
	// OutcomeImageFetchFailed means the image request failed
	OutcomeImageFetchFailed
	// OutcomeImageTooSmall means the declared image length is below the floor
	OutcomeImageTooSmall
	// OutcomeBeginFailed means the flash refused a staging session
	OutcomeBeginFailed
	// OutcomeWriteIncomplete means the body ended before the declared length
	OutcomeWriteIncomplete
	// OutcomeFinalizeFailed means the flash could not finalize the image
	OutcomeFinalizeFailed
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeUnknown:
		return "Unknown"
	case OutcomeUpdated:
		return "Updated"
	case OutcomeUpToDate:
		return "UpToDate"
	case OutcomeCheckFailed:
		return "CheckFailed"
	case OutcomeImageFetchFailed:
		return "ImageFetchFailed"
	case OutcomeImageTooSmall:
		return "ImageTooSmall"
	case OutcomeBeginFailed:
		return "BeginFailed"
	case OutcomeWriteIncomplete:
		return "WriteIncomplete"
	case OutcomeFinalizeFailed:
		return "FinalizeFailed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ErrBusy is returned when an update is already in progress
var ErrBusy = errors.New("ota: update already in progress")

// UpdateError describes why an update attempt did not flash a new image
type UpdateError struct {
	Outcome    Outcome // What went wrong
	Message    string  // Human-readable error message
	StatusCode int     // HTTP status code (if applicable)
	Err        error   // Underlying error (if any)
}

// Error implements the error interface
func (e *UpdateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Outcome, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Outcome, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *UpdateError) Unwrap() error {
	return e.Err
}

// OutcomeOf extracts the Outcome from an error returned by CheckAndUpdate.
// A nil error means the caller should look at Result.Outcome instead; any
// other error without an UpdateError in its chain reports ok false.
func OutcomeOf(err error) (Outcome, bool) {
	var ue *UpdateError
	if errors.As(err, &ue) {
		return ue.Outcome, true
	}
	return 0, false
}

// IsCheckFailed returns true if the version check failed
func IsCheckFailed(err error) bool {
	o, ok := OutcomeOf(err)
	return ok && o == OutcomeCheckFailed
}

// IsImageTooSmall returns true if the image was refused for its size
func IsImageTooSmall(err error) bool {
	o, ok := OutcomeOf(err)
	return ok && o == OutcomeImageTooSmall
}

// IsWriteIncomplete returns true if the image stream ended early
func IsWriteIncomplete(err error) bool {
	o, ok := OutcomeOf(err)
	return ok && o == OutcomeWriteIncomplete
}

func newError(outcome Outcome, statusCode int, err error, format string, args ...interface{}) *UpdateError {
	return &UpdateError{
		Outcome:    outcome,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
		Err:        err,
	}
}
