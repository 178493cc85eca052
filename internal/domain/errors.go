package domain

import "errors"

// Validation errors for job records
var (
	// ErrInvalidAssetType is returned when an asset type is not video, animation or image.
	ErrInvalidAssetType = errors.New("invalid asset type")

	// ErrInvalidStatus is returned when a status is not part of the job lifecycle.
	ErrInvalidStatus = errors.New("invalid job status")

	// ErrInvalidJob is returned when a job record violates a structural invariant.
	ErrInvalidJob = errors.New("invalid job")
)
