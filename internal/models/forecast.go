package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrFetchFailed marks a forecast request that produced no usable response:
// a transport error, a non-2xx status or an undecodable body.
var ErrFetchFailed = errors.New("forecast fetch failed")

// DatasetKind names the dataset a response or record belongs to
type DatasetKind string

const (
	DatasetWeather DatasetKind = "weather"
	DatasetMarine  DatasetKind = "marine"
)

// Table is a time-indexed block of a forecast response. Every entry of
// Fields is parallel to Time.
type Table struct {
	Time   []string
	Fields map[string][]Value
}

// UnmarshalJSON reads an Open-Meteo style block such as
// {"time": [...], "temperature_2m": [...]}. Non-array members are skipped.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding table: %w", err)
	}

	t.Time = nil
	t.Fields = make(map[string][]Value, len(raw))
	for name, msg := range raw {
		if name == "time" {
			if err := json.Unmarshal(msg, &t.Time); err != nil {
				return fmt.Errorf("decoding time column: %w", err)
			}
			continue
		}

		var column []Value
		if err := json.Unmarshal(msg, &column); err != nil {
			continue
		}
		t.Fields[name] = column
	}

	return nil
}

// MarshalJSON writes the table back in the same shape it was read from
func (t Table) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Fields)+1)
	out["time"] = t.Time
	for name, column := range t.Fields {
		out[name] = column
	}
	return json.Marshal(out)
}

// Len returns the number of time buckets
func (t Table) Len() int {
	return len(t.Time)
}

// Row returns the non-null field values at index i. Missing or null entries
// are omitted, never zero-filled.
func (t Table) Row(i int) map[string]Value {
	row := make(map[string]Value)
	if i < 0 || i >= len(t.Time) {
		return row
	}

	for name, column := range t.Fields {
		if i >= len(column) || column[i].IsNull() {
			continue
		}
		row[name] = column[i]
	}
	return row
}

// RawResponse is one forecast API response for a single location
type RawResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Hourly    Table   `json:"hourly"`
	Daily     Table   `json:"daily"`
}

// HourlyFetchTask describes the request issued for one projected hour
type HourlyFetchTask struct {
	Hour              int
	TargetTime        time.Time
	PredictedPosition Position
}

// HourlyFetchResult carries the responses fetched for one projected hour.
// Primary is the weather response, Secondary the marine one; either is nil
// when its fetch failed or was not requested.
type HourlyFetchResult struct {
	Hour              int
	PredictedPosition Position
	TargetTime        time.Time
	Primary           *RawResponse
	Secondary         *RawResponse
}

// Response returns the response for the given dataset
func (r *HourlyFetchResult) Response(kind DatasetKind) *RawResponse {
	if r == nil {
		return nil
	}
	switch kind {
	case DatasetWeather:
		return r.Primary
	case DatasetMarine:
		return r.Secondary
	}
	return nil
}

// MergedForecastRecord is one hour of matched, non-empty forecast fields
// tagged with the position predicted for that hour.
type MergedForecastRecord struct {
	Hour               int              `json:"hour"`
	Timestamp          time.Time        `json:"timestamp"`
	PredictedLatitude  float64          `json:"predictedLatitude"`
	PredictedLongitude float64          `json:"predictedLongitude"`
	VesselMoving       bool             `json:"vesselMoving"`
	Zone               string           `json:"zone,omitempty"`
	Fields             map[string]Value `json:"fields"`
}

// DailyRecord is one day of a daily forecast
type DailyRecord struct {
	Date   time.Time        `json:"date"`
	Fields map[string]Value `json:"fields"`
}
