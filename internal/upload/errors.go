package upload

import (
	"errors"
	"fmt"
)

// ErrInvalidAttempts is returned by New when MaxAttempts is below one.
var ErrInvalidAttempts = errors.New("max attempts must be at least 1")

// OversizeError rejects an asset before any network attempt.
type OversizeError struct {
	ID    string
	Size  int
	Limit int64
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("%s: size %d bytes exceeds the limit of %d bytes", e.ID, e.Size, e.Limit)
}

// UploadError reports an asset whose every attempt failed. Err is the
// failure of the last attempt.
type UploadError struct {
	ID       string
	Attempts int
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: upload failed after %d attempt(s): %v", e.ID, e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
