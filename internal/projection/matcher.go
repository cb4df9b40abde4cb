package projection

import (
	"time"

	"github.com/ngmaloney/vessel-forecast/internal/models"
)

// Layouts accepted for hourly bucket timestamps. Open-Meteo sends the first
// one when asked for iso8601 with timezone=UTC.
var bucketLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// parseBucketTime reads a response timestamp as a UTC instant. Zone-less
// layouts are taken to be UTC.
func parseBucketTime(s string) (time.Time, bool) {
	for _, layout := range bucketLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// sameHour compares calendar year, month, day and hour in UTC
func sameHour(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd && a.Hour() == b.Hour()
}

// matchIndex returns the first bucket index in the hour of target, or -1
func matchIndex(table models.Table, target time.Time) int {
	for i, ts := range table.Time {
		t, ok := parseBucketTime(ts)
		if !ok {
			continue
		}
		if sameHour(t, target) {
			return i
		}
	}
	return -1
}

// MatchHour returns the hourly field values of response for the hour
// containing targetTime, or nil when no bucket falls in that hour. Minutes
// and seconds are ignored. Null entries are left out of the map.
func MatchHour(response *models.RawResponse, targetTime time.Time) map[string]models.Value {
	if response == nil {
		return nil
	}
	i := matchIndex(response.Hourly, targetTime)
	if i < 0 {
		return nil
	}
	return response.Hourly.Row(i)
}
