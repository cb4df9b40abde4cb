package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/ngmaloney/vessel-forecast/internal/models"
)

const msToKnots = 1.943844

// fieldColumn renders one forecast variable
type fieldColumn struct {
	title  string
	width  int
	field  string
	format func(float64) string
}

var (
	weatherColumns = []fieldColumn{
		{"Temp", 7, "temperature_2m", func(v float64) string { return fmt.Sprintf("%.1f°C", v) }},
		{"Wind", 9, "wind_speed_10m", formatKnots},
		{"Dir", 4, "wind_direction_10m", compassPoint},
		{"Gust", 9, "wind_gusts_10m", formatKnots},
		{"Rain", 6, "precipitation_probability", func(v float64) string { return fmt.Sprintf("%.0f%%", v) }},
		{"Sky", 14, "weather_code", describeWeatherCode},
	}

	marineColumns = []fieldColumn{
		{"Waves", 7, "wave_height", formatMeters},
		{"Period", 7, "wave_period", func(v float64) string { return fmt.Sprintf("%.0fs", v) }},
		{"Dir", 4, "wave_direction", compassPoint},
		{"Swell", 7, "swell_wave_height", formatMeters},
		{"Current", 9, "ocean_current_velocity", func(v float64) string { return fmt.Sprintf("%.1f km/h", v) }},
		{"SST", 7, "sea_surface_temperature", func(v float64) string { return fmt.Sprintf("%.1f°C", v) }},
	}
)

func columnsFor(kind models.DatasetKind) []fieldColumn {
	if kind == models.DatasetMarine {
		return marineColumns
	}
	return weatherColumns
}

// newForecastTable creates the hourly table for a dataset
func newForecastTable(kind models.DatasetKind, records []models.MergedForecastRecord, height int) table.Model {
	t := table.New(
		table.WithColumns(tableColumns(kind)),
		table.WithRows(forecastRows(kind, records)),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(colorPrimary)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(colorBorder).
		Bold(false)
	t.SetStyles(s)

	return t
}

func tableColumns(kind models.DatasetKind) []table.Column {
	cols := []table.Column{
		{Title: "Hr", Width: 3},
		{Title: "Time (UTC)", Width: 11},
		{Title: "Position", Width: 17},
		{Title: "Zone", Width: 6},
	}
	for _, c := range columnsFor(kind) {
		cols = append(cols, table.Column{Title: c.title, Width: c.width})
	}
	return cols
}

// forecastRows formats records into table rows
func forecastRows(kind models.DatasetKind, records []models.MergedForecastRecord) []table.Row {
	rows := make([]table.Row, 0, len(records))
	for _, r := range records {
		row := table.Row{
			fmt.Sprintf("%d", r.Hour),
			r.Timestamp.UTC().Format("Mon 15:04"),
			formatPosition(r.PredictedLatitude, r.PredictedLongitude),
			r.Zone,
		}
		for _, c := range columnsFor(kind) {
			row = append(row, formatField(r.Fields, c))
		}
		rows = append(rows, row)
	}
	return rows
}

func formatField(fields map[string]models.Value, c fieldColumn) string {
	v, ok := fields[c.field]
	if !ok {
		return "-"
	}
	n, ok := v.Number()
	if !ok {
		return "-"
	}
	return c.format(n)
}

// formatPosition renders degrees as e.g. 41.500N 70.600W
func formatPosition(lat, lon float64) string {
	ns, ew := "N", "E"
	if lat < 0 {
		ns = "S"
	}
	if lon < 0 {
		ew = "W"
	}
	return fmt.Sprintf("%.3f%s %.3f%s", math.Abs(lat), ns, math.Abs(lon), ew)
}

func formatKnots(mps float64) string {
	return fmt.Sprintf("%.0f kt", mps*msToKnots)
}

func formatMeters(m float64) string {
	return fmt.Sprintf("%.1f m", m)
}

var compassPoints = []string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE", "S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}

// compassPoint maps degrees to one of 16 compass points
func compassPoint(deg float64) string {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	idx := int(math.Round(deg/22.5)) % 16
	return compassPoints[idx]
}

// describeWeatherCode summarises a WMO weather interpretation code
func describeWeatherCode(code float64) string {
	switch c := int(code); {
	case c == 0:
		return "Clear"
	case c <= 2:
		return "Partly cloudy"
	case c == 3:
		return "Overcast"
	case c == 45 || c == 48:
		return "Fog"
	case c >= 51 && c <= 57:
		return "Drizzle"
	case c >= 61 && c <= 67:
		return "Rain"
	case c >= 71 && c <= 77:
		return "Snow"
	case c >= 80 && c <= 82:
		return "Showers"
	case c == 85 || c == 86:
		return "Snow showers"
	case c >= 95:
		return "Thunderstorm"
	}
	return fmt.Sprintf("Code %d", int(code))
}

// renderDaily renders the daily summary of a dataset
func renderDaily(kind models.DatasetKind, days []models.DailyRecord) string {
	if len(days) == 0 {
		return mutedStyle.Render("No daily forecast")
	}

	var lines []string
	for _, d := range days {
		var parts []string
		if kind == models.DatasetMarine {
			parts = appendNumber(parts, d.Fields, "wave_height_max", "waves to %.1f m")
			parts = appendNumber(parts, d.Fields, "swell_wave_height_max", "swell to %.1f m")
			if v, ok := d.Fields["wave_direction_dominant"].Number(); ok {
				parts = append(parts, "from "+compassPoint(v))
			}
		} else {
			if v, ok := d.Fields["weather_code"].Number(); ok {
				parts = append(parts, describeWeatherCode(v))
			}
			lo, okLo := d.Fields["temperature_2m_min"].Number()
			hi, okHi := d.Fields["temperature_2m_max"].Number()
			if okLo && okHi {
				parts = append(parts, fmt.Sprintf("%.0f-%.0f°C", lo, hi))
			}
			if v, ok := d.Fields["wind_speed_10m_max"].Number(); ok {
				parts = append(parts, "wind to "+formatKnots(v))
			}
		}
		if len(parts) == 0 {
			parts = append(parts, mutedStyle.Render("no data"))
		}
		lines = append(lines, fmt.Sprintf("%s  %s",
			labelStyle.Render(d.Date.Format("Mon Jan 2")),
			valueStyle.Render(strings.Join(parts, ", "))))
	}
	return strings.Join(lines, "\n")
}

func appendNumber(parts []string, fields map[string]models.Value, name, format string) []string {
	if v, ok := fields[name].Number(); ok {
		return append(parts, fmt.Sprintf(format, v))
	}
	return parts
}
