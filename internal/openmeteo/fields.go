package openmeteo

import (
	"math"

	"github.com/ngmaloney/vessel-forecast/internal/models"
)

// Field maps an Open-Meteo variable onto a bus path in SI units
type Field struct {
	Path    string
	Convert func(float64) float64
}

func celsiusToKelvin(c float64) float64 { return c + 273.15 }
func hectopascalToPascal(h float64) float64 { return h * 100 }
func percentToRatio(p float64) float64 { return p / 100 }
func degreesToRadians(d float64) float64 { return d * math.Pi / 180 }
func kmhToMetersPerSecond(v float64) float64 { return v / 3.6 }
func millimetersToMeters(mm float64) float64 { return mm / 1000 }

// Fields is the translation table for every requested variable. Wind speeds
// are requested in m/s and need no conversion.
var Fields = map[string]Field{
	// weather, hourly
	"temperature_2m":            {"environment.outside.temperature", celsiusToKelvin},
	"relative_humidity_2m":      {"environment.outside.relativeHumidity", percentToRatio},
	"dew_point_2m":              {"environment.outside.dewPointTemperature", celsiusToKelvin},
	"apparent_temperature":      {"environment.outside.apparentTemperature", celsiusToKelvin},
	"precipitation_probability": {"environment.forecast.precipitationProbability", percentToRatio},
	"precipitation":             {"environment.forecast.precipitationVolume", millimetersToMeters},
	"weather_code":              {"environment.forecast.weatherCode", nil},
	"pressure_msl":              {"environment.outside.pressure", hectopascalToPascal},
	"cloud_cover":               {"environment.forecast.cloudCover", percentToRatio},
	"visibility":                {"environment.forecast.visibility", nil},
	"wind_speed_10m":            {"environment.wind.speedTrue", nil},
	"wind_direction_10m":        {"environment.wind.directionTrue", degreesToRadians},
	"wind_gusts_10m":            {"environment.wind.gust", nil},
	"is_day":                    {"environment.sun.isDay", nil},

	// weather, daily
	"temperature_2m_max":            {"environment.forecast.temperatureMax", celsiusToKelvin},
	"temperature_2m_min":            {"environment.forecast.temperatureMin", celsiusToKelvin},
	"sunrise":                       {"environment.sun.sunrise", nil},
	"sunset":                        {"environment.sun.sunset", nil},
	"precipitation_sum":             {"environment.forecast.precipitationSum", millimetersToMeters},
	"precipitation_probability_max": {"environment.forecast.precipitationProbabilityMax", percentToRatio},
	"wind_speed_10m_max":            {"environment.forecast.windSpeedMax", nil},
	"wind_gusts_10m_max":            {"environment.forecast.windGustMax", nil},
	"wind_direction_10m_dominant":   {"environment.forecast.windDirectionDominant", degreesToRadians},
	"uv_index_max":                  {"environment.forecast.uvIndexMax", nil},

	// marine, hourly
	"wave_height":             {"environment.water.waves.significantHeight", nil},
	"wave_direction":          {"environment.water.waves.directionTrue", degreesToRadians},
	"wave_period":             {"environment.water.waves.period", nil},
	"wind_wave_height":        {"environment.water.windWaves.height", nil},
	"wind_wave_direction":     {"environment.water.windWaves.directionTrue", degreesToRadians},
	"wind_wave_period":        {"environment.water.windWaves.period", nil},
	"swell_wave_height":       {"environment.water.swell.height", nil},
	"swell_wave_direction":    {"environment.water.swell.directionTrue", degreesToRadians},
	"swell_wave_period":       {"environment.water.swell.period", nil},
	"ocean_current_velocity":  {"environment.current.drift", kmhToMetersPerSecond},
	"ocean_current_direction": {"environment.current.setTrue", degreesToRadians},
	"sea_surface_temperature": {"environment.water.temperature", celsiusToKelvin},

	// marine, daily
	"wave_height_max":               {"environment.water.waves.significantHeightMax", nil},
	"wave_direction_dominant":       {"environment.water.waves.directionDominant", degreesToRadians},
	"wave_period_max":               {"environment.water.waves.periodMax", nil},
	"wind_wave_height_max":          {"environment.water.windWaves.heightMax", nil},
	"swell_wave_height_max":         {"environment.water.swell.heightMax", nil},
	"swell_wave_direction_dominant": {"environment.water.swell.directionDominant", degreesToRadians},
	"swell_wave_period_max":         {"environment.water.swell.periodMax", nil},
}

// Path returns the bus path for an Open-Meteo variable
func Path(name string) string {
	if f, ok := Fields[name]; ok {
		return f.Path
	}
	return "environment.forecast." + name
}

// Translate rekeys fields by bus path and converts numbers to SI units.
// Unknown variables are kept under environment.forecast.<name> unconverted.
func Translate(fields map[string]models.Value) map[string]models.Value {
	out := make(map[string]models.Value, len(fields))
	for name, v := range fields {
		f, ok := Fields[name]
		if !ok {
			out[Path(name)] = v
			continue
		}
		if n, isNum := v.Number(); isNum && f.Convert != nil {
			v = models.NumberValue(f.Convert(n))
		}
		out[f.Path] = v
	}
	return out
}
