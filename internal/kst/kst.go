// Package kst does all calendar-day arithmetic in Korea Standard Time
// (UTC+9) regardless of the host time zone.
package kst

import (
	"fmt"
	"time"
)

// Zone is a fixed UTC+9 offset. Korea has no daylight saving time, so a
// fixed zone avoids depending on the tzdata of the host.
var Zone = time.FixedZone("KST", 9*60*60)

// Now returns the current time in KST
func Now() time.Time {
	return time.Now().In(Zone)
}

// StartOfDay returns midnight KST of the day containing t
func StartOfDay(t time.Time) time.Time {
	k := t.In(Zone)
	return time.Date(k.Year(), k.Month(), k.Day(), 0, 0, 0, 0, Zone)
}

// DayBounds returns the half-open window [start, start+24h) of the KST day containing t
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := StartOfDay(t)
	return start, start.Add(24 * time.Hour)
}

// DateString formats t as YYYY-MM-DD in KST
func DateString(t time.Time) string {
	return t.In(Zone).Format(time.DateOnly)
}

// ParseDate parses a YYYY-MM-DD string as a KST day
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, s, Zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// OrderNumber builds the YYYYMMDDNNNN identifier for the seq-th order of t's KST day
func OrderNumber(t time.Time, seq int) string {
	return fmt.Sprintf("%s%04d", t.In(Zone).Format("20060102"), seq)
}

// NextMidnight returns the first KST midnight strictly after t
func NextMidnight(t time.Time) time.Time {
	return StartOfDay(t).Add(24 * time.Hour)
}
