package domain

import (
	"encoding/json"
	"math"
	"strconv"
)

// Metadata keys written by the queue. Metadata is an audit trail only and is
// never consulted for control flow, with the exception of the monotonic
// stale requeue counter which is read to compute its next value.
const (
	MetaRunner             = "runner"
	MetaRunID              = "run_id"
	MetaStartedAt          = "started_at"
	MetaCompletedAt        = "completed_at"
	MetaFailedAt           = "failed_at"
	MetaProcessedProvider  = "processed_provider"
	MetaProcessedBy        = "processed_by"
	MetaStaleRequeueCount  = "stale_requeue_count"
	MetaStaleRequeuedAt    = "stale_requeued_at"
	MetaStaleRequeuedBy    = "stale_requeued_by"
	MetaStaleRequeueReason = "stale_requeue_reason"
	MetaStaleAgeMinutes    = "stale_age_minutes"
)

// Metadata is the open key/value map stored alongside a job.
type Metadata map[string]any

// Clone returns a shallow copy of m. A nil map clones to an empty one.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// With returns a copy of m with the given entries layered on top.
func (m Metadata) With(entries map[string]any) Metadata {
	out := m.Clone()
	for k, v := range entries {
		out[k] = v
	}
	return out
}

// Int reads key as an integer. Values decoded from JSON arrive as float64,
// json.Number or string depending on the store; anything non-numeric is 0.
func (m Metadata) Int(key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// MarshalMetadata encodes m for a JSONB column. Nil encodes as {}.
func MarshalMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// UnmarshalMetadata decodes a JSONB column. Empty input yields an empty map.
func UnmarshalMetadata(b []byte) (Metadata, error) {
	m := Metadata{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
