package kv

import (
	"math"
	"time"
)

// now is replaced in tests.
var now = time.Now

// MaxRelativeMillis bounds relative expiries (about 3170 years). Larger
// values are clamped so the instant stays inside every backend's timestamp range.
const MaxRelativeMillis int64 = 1e14

// ClampMillis limits a relative expiry to ±MaxRelativeMillis.
func ClampMillis(ms int64) int64 {
	switch {
	case ms > MaxRelativeMillis:
		return MaxRelativeMillis
	case ms < -MaxRelativeMillis:
		return -MaxRelativeMillis
	}
	return ms
}

// SecondsToMillis converts a relative expiry without overflowing.
func SecondsToMillis(seconds int64) int64 {
	const limit = MaxRelativeMillis / 1000
	switch {
	case seconds > limit:
		return MaxRelativeMillis
	case seconds < -limit:
		return -MaxRelativeMillis
	}
	return seconds * 1000
}

// MillisToDuration converts a millisecond TTL, saturating at the largest
// representable duration.
func MillisToDuration(ms int64) time.Duration {
	const limit = int64(math.MaxInt64 / time.Millisecond)
	if ms > limit {
		return math.MaxInt64
	}
	return time.Duration(ms) * time.Millisecond
}

// SecondsFromNow returns the instant seconds after the current time.
func SecondsFromNow(seconds int64) time.Time {
	return MillisFromNow(SecondsToMillis(seconds))
}

// MillisFromNow returns the instant ms milliseconds after the current time,
// truncated to the millisecond.
func MillisFromNow(ms int64) time.Time {
	return time.UnixMilli(now().UnixMilli() + ClampMillis(ms))
}

// FromUnixSeconds converts a Unix timestamp in seconds.
func FromUnixSeconds(ts int64) time.Time {
	return time.Unix(ts, 0)
}

// FromUnixMillis converts a Unix timestamp in milliseconds.
func FromUnixMillis(ts int64) time.Time {
	return time.UnixMilli(ts)
}

// Remaining returns the TTL reply for an expiry instant; a zero instant means
// the key never expires and yields -1.
func Remaining(expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return -1
	}
	d := time.Until(expiresAt)
	if d < 0 {
		return 0
	}
	return d
}
