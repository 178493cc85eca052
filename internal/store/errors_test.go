package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "generic error", err: errors.New("some error"), expected: false},
		{name: "ErrNotFound", err: ErrNotFound, expected: true},
		{name: "ErrJobNotFound", err: ErrJobNotFound, expected: true},
		{
			name:     "wrapped ErrJobNotFound",
			err:      fmt.Errorf("failed to load job: %w", ErrJobNotFound),
			expected: true,
		},
		{name: "ErrDuplicate", err: ErrDuplicate, expected: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsNotFoundError(tc.err))
		})
	}
}

func TestIsDuplicateError(t *testing.T) {
	assert.True(t, IsDuplicateError(ErrJobExists))
	assert.True(t, IsDuplicateError(fmt.Errorf("insert: %w", ErrDuplicate)))
	assert.False(t, IsDuplicateError(ErrJobNotFound))
	assert.False(t, IsDuplicateError(nil))
}

func TestStoreError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStoreError("media_generation_job", "select", "query failed", cause)

	assert.Equal(t, "select operation on media_generation_job failed: query failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := NewStoreError("media_generation_job", "count", "bad query", nil)
	assert.Equal(t, "count operation on media_generation_job failed: bad query", bare.Error())
}

func TestJobQueryNormalize(t *testing.T) {
	q := JobQuery{}.Normalized()
	assert.Equal(t, OrderByCreatedAt, q.OrderBy)

	q = JobQuery{OrderBy: OrderByUpdatedAt, Limit: -3}.Normalized()
	assert.Equal(t, OrderByUpdatedAt, q.OrderBy)
	assert.Equal(t, 0, q.Limit)
}
