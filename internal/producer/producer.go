// Package producer defines the contract between the dispatcher and the
// services that actually generate media assets, along with the wrappers that
// bound how long and how often a producer may be called.
package producer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/domain"
)

// DefaultProvider is recorded as processed_provider when a job names none.
const DefaultProvider = "seedance"

// Producer errors
var (
	// ErrProducerTimeout is returned when a producer exceeds its deadline.
	ErrProducerTimeout = errors.New("producer timed out")

	// ErrCircuitOpen is returned without calling the producer while its
	// circuit breaker is open.
	ErrCircuitOpen = errors.New("producer circuit open")

	// ErrUnsupportedAsset is returned by producers that cannot make the
	// requested asset type.
	ErrUnsupportedAsset = errors.New("unsupported asset type")
)

// Request describes one asset to produce.
type Request struct {
	JobID     uuid.UUID
	AssetType domain.AssetType
	ModuleID  string
	LessonID  string
	Provider  string
}

// RequestFor builds the producer request for job.
func RequestFor(job *domain.Job) Request {
	return Request{
		JobID:     job.ID,
		AssetType: job.AssetType,
		ModuleID:  job.ModuleID,
		LessonID:  job.LessonID,
		Provider:  job.Provider,
	}
}

// Result is a produced asset.
type Result struct {
	OutputURL string
	MIMEType  string
}

// Producer turns a request into an output URL.
type Producer interface {
	Produce(ctx context.Context, req Request) (Result, error)
}

// Func adapts a plain function to Producer.
type Func func(ctx context.Context, req Request) (Result, error)

// Produce calls f.
func (f Func) Produce(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// ProviderLabel returns the provider recorded for req.
func ProviderLabel(req Request) string {
	if req.Provider != "" {
		return req.Provider
	}
	return DefaultProvider
}
