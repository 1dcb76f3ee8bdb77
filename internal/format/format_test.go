package format

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShortCount_PlainBelowTenThousand(t *testing.T) {
	for n := int64(0); n < 10000; n++ {
		if got := ShortCount(n); got != strconv.FormatInt(n, 10) {
			t.Fatalf("ShortCount(%d) = %q", n, got)
		}
	}
}

func TestShortCount_Suffixes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{10000, "10.0K"},
		{15000, "15.0K"},
		{999999, "1000.0K"},
		{1000000, "1.0M"},
		{2500000, "2.5M"},
		{1000000000, "1.0B"},
		{1000000000000, "1.0T"},
		{1234000000000000, "1234.0T"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ShortCount(tt.n))
		})
	}
}

func TestRelativeTime(t *testing.T) {
	const now = int64(1700000000000)
	tests := []struct {
		name string
		diff int64
		want string
	}{
		{"instant", 0, "1 second ago"},
		{"future", -5000, "1 second ago"},
		{"one and a half seconds", 1500, "1 second ago"},
		{"just under two seconds", 1999, "1 second ago"},
		{"two seconds", 2000, "2 seconds ago"},
		{"59 seconds", 59999, "59 seconds ago"},
		{"65 seconds", 65000, "1 minute ago"},
		{"just under two minutes", 119999, "1 minute ago"},
		{"exactly two minutes", 120000, "2 minutes ago"},
		{"ninety minutes", 90 * 60000, "1 hour ago"},
		{"five hours", 5 * 3600000, "5 hours ago"},
		{"thirty hours", 30 * 3600000, "1 day ago"},
		{"six days", 6 * 86400000, "6 days ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativeTimeIn(time.UTC, now, now-tt.diff))
		})
	}
}

func TestRelativeTime_AbsoluteDate(t *testing.T) {
	event := time.Date(2024, time.March, 9, 15, 4, 0, 0, time.UTC)
	now := event.Add(7 * 24 * time.Hour)

	got := RelativeTimeIn(time.UTC, now.UnixMilli(), event.UnixMilli())
	assert.Equal(t, "09-03-2024", got)

	got = RelativeTime(now.UnixMilli(), event.UnixMilli())
	assert.Equal(t, event.In(time.Local).Format(DateLayout), got)
}
