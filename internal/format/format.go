// Package format renders relative ages and compact counts for feed rows.
package format

import (
	"strconv"
	"time"
)

const (
	second = int64(1000)
	minute = 60 * second
	hour   = 60 * minute
	day    = 24 * hour
	week   = 7 * day
)

// DateLayout is the absolute date shown for events a week old or more.
const DateLayout = "02-01-2006"

var buckets = []struct {
	limit int64
	unit  int64
	name  string
}{
	{minute, second, "second"},
	{hour, minute, "minute"},
	{day, hour, "hour"},
	{week, day, "day"},
}

// RelativeTime describes eventMs relative to nowMs, rendering absolute dates
// in the local time zone.
func RelativeTime(nowMs, eventMs int64) string {
	return RelativeTimeIn(time.Local, nowMs, eventMs)
}

// RelativeTimeIn is RelativeTime with an explicit zone for the absolute date.
//
// Inside a bucket any ratio below two renders as one unit, so 119 999 ms is
// "1 minute ago" and 120 000 ms is "2 minutes ago".
func RelativeTimeIn(loc *time.Location, nowMs, eventMs int64) string {
	diff := nowMs - eventMs
	for _, b := range buckets {
		if diff >= b.limit {
			continue
		}
		if diff < 2*b.unit {
			return "1 " + b.name + " ago"
		}
		return strconv.FormatInt(diff/b.unit, 10) + " " + b.name + "s ago"
	}
	return time.UnixMilli(eventMs).In(loc).Format(DateLayout)
}

var magnitudes = []struct {
	limit  float64
	div    float64
	suffix string
}{
	{1e6, 1e3, "K"},
	{1e9, 1e6, "M"},
	{1e12, 1e9, "B"},
}

// ShortCount renders n plainly below 10 000 and with one decimal and a
// K, M, B or T suffix above.
func ShortCount(n int64) string {
	if n < 10000 {
		return strconv.FormatInt(n, 10)
	}
	v := float64(n)
	for _, m := range magnitudes {
		if v < m.limit {
			return strconv.FormatFloat(v/m.div, 'f', 1, 64) + m.suffix
		}
	}
	return strconv.FormatFloat(v/1e12, 'f', 1, 64) + "T"
}
