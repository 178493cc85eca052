// Package postgres provides the PostgreSQL implementation of store.JobStore,
// the embedded goose migrations for its schema, and the mapping from driver
// errors onto store errors.
package postgres
