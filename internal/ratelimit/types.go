package ratelimit

import (
	"context"
	"time"
)

// DefaultWindow is the fixed window length used when none is configured.
const DefaultWindow = time.Minute

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// RetryAfter returns the whole seconds until the window resets, at least one.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(r.Reset.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter provides rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error)
}

// windowBounds returns the index of the window containing now and its end.
func windowBounds(now time.Time, window time.Duration) (int64, time.Time) {
	if window <= 0 {
		window = DefaultWindow
	}
	size := int64(window / time.Second)
	if size < 1 {
		size = 1
	}
	idx := now.Unix() / size
	return idx, time.Unix((idx+1)*size, 0).UTC()
}
