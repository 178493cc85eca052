package queue

import "time"

// Clock supplies the current time. Staleness decisions are taken against it
// so tests can pin the boundary exactly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC, truncated to the microsecond
// precision Postgres timestamps keep.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
