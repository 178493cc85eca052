package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// Caps on per-job detail printed in summaries
const (
	maxFailureDetails = 20
	maxPreviewEntries = 10
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

func capped[T any](items []T, max int) []T {
	if len(items) > max {
		return items[:max]
	}
	return items
}
