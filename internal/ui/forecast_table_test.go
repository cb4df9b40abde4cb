package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ngmaloney/vessel-forecast/internal/models"
)

func TestCompassPoint(t *testing.T) {
	tests := []struct {
		deg  float64
		want string
	}{
		{0, "N"},
		{11, "N"},
		{12, "NNE"},
		{90, "E"},
		{225, "SW"},
		{350, "N"},
		{360, "N"},
		{-90, "W"},
	}
	for _, tt := range tests {
		if got := compassPoint(tt.deg); got != tt.want {
			t.Errorf("compassPoint(%v) = %q, want %q", tt.deg, got, tt.want)
		}
	}
}

func TestDescribeWeatherCode(t *testing.T) {
	tests := []struct {
		code float64
		want string
	}{
		{0, "Clear"},
		{2, "Partly cloudy"},
		{3, "Overcast"},
		{45, "Fog"},
		{63, "Rain"},
		{81, "Showers"},
		{95, "Thunderstorm"},
		{30, "Code 30"},
	}
	for _, tt := range tests {
		if got := describeWeatherCode(tt.code); got != tt.want {
			t.Errorf("describeWeatherCode(%v) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestFormatPosition(t *testing.T) {
	if got := formatPosition(41.5, -70.6); got != "41.500N 70.600W" {
		t.Errorf("formatPosition() = %q", got)
	}
	if got := formatPosition(-33.86, 151.2); got != "33.860S 151.200E" {
		t.Errorf("formatPosition() = %q", got)
	}
}

func TestForecastRows_MissingFields(t *testing.T) {
	rows := forecastRows(models.DatasetWeather, []models.MergedForecastRecord{{
		Hour:   3,
		Fields: map[string]models.Value{"temperature_2m": models.NullValue(), "wind_speed_10m": models.NumberValue(10)},
	}})

	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if len(row) != len(tableColumns(models.DatasetWeather)) {
		t.Fatalf("row has %d cells, want %d", len(row), len(tableColumns(models.DatasetWeather)))
	}
	if row[0] != "3" {
		t.Errorf("hour cell = %q", row[0])
	}
	if row[4] != "-" {
		t.Errorf("null temperature = %q, want -", row[4])
	}
	if row[5] != "19 kt" {
		t.Errorf("wind = %q, want 19 kt", row[5])
	}
}

func TestRenderDaily(t *testing.T) {
	days := []models.DailyRecord{
		{
			Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			Fields: map[string]models.Value{
				"weather_code":       models.NumberValue(3),
				"temperature_2m_min": models.NumberValue(12),
				"temperature_2m_max": models.NumberValue(21),
			},
		},
		{Date: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)},
	}

	out := renderDaily(models.DatasetWeather, days)
	for _, want := range []string{"Sat Jun 1", "Overcast", "12-21°C", "Sun Jun 2", "no data"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderDaily() missing %q in %q", want, out)
		}
	}

	marine := renderDaily(models.DatasetMarine, []models.DailyRecord{{
		Date:   days[0].Date,
		Fields: map[string]models.Value{"wave_height_max": models.NumberValue(1.6), "wave_direction_dominant": models.NumberValue(180)},
	}})
	if !strings.Contains(marine, "waves to 1.6 m") || !strings.Contains(marine, "from S") {
		t.Errorf("renderDaily(marine) = %q", marine)
	}

	if !strings.Contains(renderDaily(models.DatasetWeather, nil), "No daily forecast") {
		t.Error("renderDaily(nil) should say there is no forecast")
	}
}

func TestChannelPublisher_Full(t *testing.T) {
	p := NewChannelPublisher()
	for i := 0; i < cap(p.updates); i++ {
		if err := p.PublishDaily(context.Background(), nil, models.DatasetWeather); err != nil {
			t.Fatalf("PublishDaily() error = %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Publish(ctx, nil, models.DatasetWeather); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Publish() on a full feed = %v, want deadline exceeded", err)
	}
}
