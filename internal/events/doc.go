// Package events carries media job lifecycle notifications.
//
// The queue emits a JobEvent whenever a job completes, fails, or is requeued
// by the reclaimer. InMemoryEventEmitter fans each event out to registered
// handlers; KafkaPublisher is a handler that forwards events to a Kafka topic.
// Emission is best effort: callers log failures and never roll back job state
// because a notification could not be delivered.
package events
