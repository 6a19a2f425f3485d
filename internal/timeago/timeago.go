// Package timeago renders the coarse relative age of a post ("3 months",
// "1 hour") shown next to it in the feed.
package timeago

import (
	"fmt"
	"time"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day  // approximation, not calendar aware
	year  = 365 * day // approximation, not calendar aware
)

type unit struct {
	name string
	size time.Duration
}

// units is ordered from the largest to the smallest bucket. Seconds are the
// fallback and are not listed.
var units = []unit{
	{"year", year},
	{"month", month},
	{"week", week},
	{"day", day},
	{"hour", time.Hour},
	{"minute", time.Minute},
}

// Label returns the age of t relative to now as "{n} {unit}", using the
// largest unit that fits at least once. The unit gets a trailing "s" only
// when n > 1, so a zero-second delta renders as "0 second".
//
// Buckets:
//   - year: 365 days
//   - month: 30 days
//   - week: 7 days
//   - day, hour, minute
//   - second (fallback)
//
// A t after now (clock skew between client and server) is treated as a zero
// delta.
func Label(t, now time.Time) string {
	delta := now.Sub(t)
	if delta < 0 {
		delta = 0
	}

	for _, u := range units {
		if n := int64(delta / u.size); n >= 1 {
			return format(n, u.name)
		}
	}
	return format(int64(delta/time.Second), "second")
}

// Since is Label relative to the current wall clock.
func Since(t time.Time) string {
	return Label(t, time.Now())
}

func format(n int64, name string) string {
	if n > 1 {
		return fmt.Sprintf("%d %ss", n, name)
	}
	return fmt.Sprintf("%d %s", n, name)
}
