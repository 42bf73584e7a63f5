package space

import "time"

// FromMillis converts a persisted Unix millisecond timestamp into a time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ToMillis converts a time.Time into its persisted form.
// The zero time maps to 0.
func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Now is the clock used for server-assigned timestamps.
// Storage implementations accept an override for deterministic tests.
type Now func() time.Time

// OrDefault returns n, or time.Now when n is nil.
func (n Now) OrDefault() Now {
	if n == nil {
		return time.Now
	}
	return n
}
