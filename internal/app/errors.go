package app

import (
	"errors"

	"github.com/raysh454/zapscan/internal/reports"
)

var (
	// ErrScanNotFound is returned for unknown scan ids.
	ErrScanNotFound = reports.ErrScanNotFound
	// ErrScanFinished is returned when cancelling a COMPLETED or FAILED scan.
	ErrScanFinished = errors.New("scan has already finished")
)

// InputError reports a submission the caller must correct.
type InputError struct {
	Field string
	Err   error
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *InputError) Unwrap() error { return e.Err }

func invalid(field string, err error) *InputError {
	return &InputError{Field: field, Err: err}
}
