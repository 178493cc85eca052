package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig is returned when the producer is constructed with
	// missing settings.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrNoAsset is returned when a generation finishes without any usable
	// output.
	ErrNoAsset = errors.New("generation returned no asset")

	// ErrContentBlocked is returned when the service filtered the output.
	ErrContentBlocked = errors.New("generated content blocked by safety filters")

	// ErrOperationFailed is returned when a long-running generation reports
	// an error.
	ErrOperationFailed = errors.New("generation operation failed")
)
