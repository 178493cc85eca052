// Package store defines the persistence contract for media generation jobs.
// The job table is both the system of record and the queue: dispatchers and
// reclaimers poll it and mutate rows only through conditional updates keyed
// on the expected prior status, which keeps concurrent instances safe without
// any in-process coordination.
package store
