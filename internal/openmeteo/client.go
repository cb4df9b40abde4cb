// Package openmeteo fetches hourly and daily forecasts from the Open-Meteo
// weather and marine APIs.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ngmaloney/vessel-forecast/internal/models"
)

const (
	DefaultWeatherURL = "https://api.open-meteo.com/v1/forecast"
	DefaultMarineURL  = "https://marine-api.open-meteo.com/v1/marine"

	maxForecastDays = 16
)

// Variables requested from each endpoint
var (
	HourlyWeatherVariables = []string{
		"temperature_2m",
		"relative_humidity_2m",
		"dew_point_2m",
		"apparent_temperature",
		"precipitation_probability",
		"precipitation",
		"weather_code",
		"pressure_msl",
		"cloud_cover",
		"visibility",
		"wind_speed_10m",
		"wind_direction_10m",
		"wind_gusts_10m",
		"is_day",
	}
	DailyWeatherVariables = []string{
		"weather_code",
		"temperature_2m_max",
		"temperature_2m_min",
		"sunrise",
		"sunset",
		"precipitation_sum",
		"precipitation_probability_max",
		"wind_speed_10m_max",
		"wind_gusts_10m_max",
		"wind_direction_10m_dominant",
		"uv_index_max",
	}
	HourlyMarineVariables = []string{
		"wave_height",
		"wave_direction",
		"wave_period",
		"wind_wave_height",
		"wind_wave_direction",
		"wind_wave_period",
		"swell_wave_height",
		"swell_wave_direction",
		"swell_wave_period",
		"ocean_current_velocity",
		"ocean_current_direction",
		"sea_surface_temperature",
	}
	DailyMarineVariables = []string{
		"wave_height_max",
		"wave_direction_dominant",
		"wave_period_max",
		"wind_wave_height_max",
		"swell_wave_height_max",
		"swell_wave_direction_dominant",
		"swell_wave_period_max",
	}
)

// Config holds the client settings
type Config struct {
	WeatherURL       string
	MarineURL        string
	APIKey           string
	MaxForecastHours int
	Logger           *slog.Logger
}

// Client implements projection.Fetcher against Open-Meteo
type Client struct {
	weatherURL   string
	marineURL    string
	apiKey       string
	forecastDays int
	httpClient   *http.Client
	userAgent    string
	logger       *slog.Logger
}

// NewClient creates a new Open-Meteo client
func NewClient(cfg Config) *Client {
	weatherURL := cfg.WeatherURL
	if weatherURL == "" {
		weatherURL = DefaultWeatherURL
	}
	marineURL := cfg.MarineURL
	if marineURL == "" {
		marineURL = DefaultMarineURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		weatherURL:   weatherURL,
		marineURL:    marineURL,
		apiKey:       cfg.APIKey,
		forecastDays: ForecastDays(cfg.MaxForecastHours),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent: "VesselForecast/1.0 (github.com/ngmaloney/vessel-forecast)",
		logger:    logger.With("component", "openmeteo"),
	}
}

// ForecastDays returns how many days to request so that a projection of
// hours ahead is covered, clamped to what the API serves.
func ForecastDays(hours int) int {
	days := int(math.Ceil(float64(hours)/24)) + 1
	return max(1, min(days, maxForecastDays))
}

// FetchWeather retrieves the weather forecast for pos
func (c *Client) FetchWeather(ctx context.Context, pos models.Position) (*models.RawResponse, error) {
	params := c.params(pos, HourlyWeatherVariables, DailyWeatherVariables)
	params.Set("wind_speed_unit", "ms")
	return c.fetch(ctx, c.weatherURL, params, models.DatasetWeather)
}

// FetchMarine retrieves the marine forecast for pos
func (c *Client) FetchMarine(ctx context.Context, pos models.Position) (*models.RawResponse, error) {
	params := c.params(pos, HourlyMarineVariables, DailyMarineVariables)
	return c.fetch(ctx, c.marineURL, params, models.DatasetMarine)
}

func (c *Client) params(pos models.Position, hourly, daily []string) url.Values {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(pos.Latitude, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(pos.Longitude, 'f', 4, 64))
	params.Set("hourly", strings.Join(hourly, ","))
	params.Set("daily", strings.Join(daily, ","))
	params.Set("timezone", "UTC")
	params.Set("forecast_days", strconv.Itoa(c.forecastDays))
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	return params
}

// errorResponse is the body Open-Meteo returns with a 400
type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values, kind models.DatasetKind) (*models.RawResponse, error) {
	resp, err := c.get(ctx, endpoint, params)
	if err != nil {
		c.logger.Warn("forecast request failed",
			"dataset", kind,
			"lat", params.Get("latitude"),
			"lon", params.Get("longitude"),
			"err", err,
		)
		return nil, fmt.Errorf("%s forecast: %w: %v", kind, models.ErrFetchFailed, err)
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*models.RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Reason != "" {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, apiErr.Reason)
		}
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out models.RawResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &out, nil
}
