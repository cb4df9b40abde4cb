package openmeteo

import (
	"time"

	"github.com/ngmaloney/vessel-forecast/internal/models"
)

// ProcessDaily converts the daily block of resp into one record per day.
// Null values are left out and days without any value are dropped.
func ProcessDaily(resp *models.RawResponse) []models.DailyRecord {
	if resp == nil {
		return nil
	}

	var days []models.DailyRecord
	for i, date := range resp.Daily.Time {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		fields := resp.Daily.Row(i)
		if len(fields) == 0 {
			continue
		}
		days = append(days, models.DailyRecord{Date: day, Fields: fields})
	}

	return days
}
