// Package queue implements the media job lifecycle on top of store.JobStore.
//
// The Dispatcher claims queued jobs, runs them through a producer and records
// the result. The Reclaimer returns running jobs whose updated_at has not
// moved within the staleness window to the queue. Both mutate rows only
// through conditional updates keyed on the status they expect, so any number
// of dispatchers and reclaimers may run against the same store.
//
// HealthChecker summarizes backlog, staleness and recent failures, and
// Scheduler runs dispatch and reclaim passes on cron schedules for the
// long-running server.
package queue
