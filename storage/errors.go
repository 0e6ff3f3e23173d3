package storage

import "errors"

var (
	// ErrRunNotFound is returned when a run id has no stored record.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidRunID is returned for run ids that are not UUIDs.
	ErrInvalidRunID = errors.New("invalid run id")

	// ErrUnsupportedFormat is returned by ExportFindings for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
