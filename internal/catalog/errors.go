package catalog

import "errors"

var (
	// ErrValidationSkipped marks the silent no-op taken on empty input.
	// It is never surfaced to users as an error.
	ErrValidationSkipped = errors.New("validation skipped")

	// ErrBackendUnavailable wraps store or object-store failures.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrNotFound is returned when a referenced service or file record is absent.
	ErrNotFound = errors.New("not found")

	// ErrNoFile is returned when an upload is requested without a file.
	ErrNoFile = errors.New("no file selected")

	// ErrPartialFailure is returned when the object store and the metadata
	// store disagree after an attach: the object write succeeded, the record
	// write failed, and the compensating object delete failed too.
	ErrPartialFailure = errors.New("partial failure")
)
