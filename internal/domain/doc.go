// Package domain defines the media generation job record, its lifecycle
// states, and the value types (scope keys, filters, patches) shared by the
// queue, the stores and the API. It has no dependencies on storage or
// transport.
package domain
