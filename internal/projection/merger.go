package projection

import (
	"sort"

	"github.com/ngmaloney/vessel-forecast/internal/models"
)

// DailyProcessor turns one response into a daily forecast
type DailyProcessor func(response *models.RawResponse) []models.DailyRecord

// Merge aligns each result's response for kind onto its target hour and
// returns one record per matched, non-empty hour in ascending hour order.
// Nil results, unmatched hours and duplicate hours are skipped.
func Merge(results []*models.HourlyFetchResult, kind models.DatasetKind) []models.MergedForecastRecord {
	ordered := make([]*models.HourlyFetchResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Hour < ordered[j].Hour
	})

	records := make([]models.MergedForecastRecord, 0, len(ordered))
	seen := make(map[int]bool, len(ordered))
	for _, r := range ordered {
		if seen[r.Hour] {
			continue
		}

		response := r.Response(kind)
		if response == nil {
			continue
		}
		i := matchIndex(response.Hourly, r.TargetTime)
		if i < 0 {
			continue
		}
		fields := response.Hourly.Row(i)
		if len(fields) == 0 {
			continue
		}

		ts, _ := parseBucketTime(response.Hourly.Time[i])
		seen[r.Hour] = true
		records = append(records, models.MergedForecastRecord{
			Hour:               r.Hour,
			Timestamp:          ts,
			PredictedLatitude:  r.PredictedPosition.Latitude,
			PredictedLongitude: r.PredictedPosition.Longitude,
			VesselMoving:       true,
			Fields:             fields,
		})
	}

	return records
}

// FirstResponse returns the kind response of the lowest-hour result that has one
func FirstResponse(results []*models.HourlyFetchResult, kind models.DatasetKind) *models.RawResponse {
	var first *models.HourlyFetchResult
	for _, r := range results {
		if r == nil || r.Response(kind) == nil {
			continue
		}
		if first == nil || r.Hour < first.Hour {
			first = r
		}
	}
	return first.Response(kind)
}

// DeriveDaily runs process once, against the first successful response only.
// Daily aggregates are not re-projected per predicted position.
func DeriveDaily(results []*models.HourlyFetchResult, kind models.DatasetKind, process DailyProcessor) []models.DailyRecord {
	if process == nil {
		return nil
	}
	response := FirstResponse(results, kind)
	if response == nil {
		return nil
	}
	return process(response)
}
