package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultWeatherURL       = "https://api.open-meteo.com/v1/forecast"
	DefaultMarineURL        = "https://marine-api.open-meteo.com/v1/marine"
	DefaultZoneShapefileURL = "https://www.weather.gov/source/gis/Shapefiles/WSOM/mz18mr25.zip"

	maxForecastHoursLimit = 384
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string

	SQLitePath  string
	MetricsAddr string

	UpdateInterval       time.Duration
	MaxForecastHours     int
	MovingSpeedThreshold float64 // knots

	EnableMovingForecast bool
	EnableHourlyWeather  bool
	EnableDailyWeather   bool
	EnableMarineHourly   bool
	EnableMarineDaily    bool

	FetchBatchWidth int
	FetchBatchDelay time.Duration

	WeatherURL string
	MarineURL  string
	APIKey     string

	ZoneLookup       bool
	ZoneShapefileURL string
}

func LoadFromEnv() (Config, error) {
	appEnv := envOr("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	mqttPortStr := envOr("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("MQTT_PORT out of range: %d", mqttPort)
	}

	updateInterval, err := parseDuration("UPDATE_INTERVAL", "1h")
	if err != nil {
		return Config{}, err
	}
	if updateInterval <= 0 {
		return Config{}, fmt.Errorf("UPDATE_INTERVAL must be positive, got %v", updateInterval)
	}

	maxHoursStr := envOr("MAX_FORECAST_HOURS", "72")
	maxHours, err := strconv.Atoi(maxHoursStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MAX_FORECAST_HOURS %q: %w", maxHoursStr, err)
	}
	if maxHours < 1 || maxHours > maxForecastHoursLimit {
		return Config{}, fmt.Errorf("MAX_FORECAST_HOURS must be 1-%d, got %d", maxForecastHoursLimit, maxHours)
	}

	thresholdStr := envOr("MOVING_SPEED_THRESHOLD", "1.0")
	threshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MOVING_SPEED_THRESHOLD %q: %w", thresholdStr, err)
	}
	if threshold < 0 {
		return Config{}, fmt.Errorf("MOVING_SPEED_THRESHOLD must not be negative, got %v", threshold)
	}

	movingForecast, err := parseBool("ENABLE_MOVING_FORECAST", "true")
	if err != nil {
		return Config{}, err
	}
	hourlyWeather, err := parseBool("ENABLE_HOURLY_WEATHER", "true")
	if err != nil {
		return Config{}, err
	}
	dailyWeather, err := parseBool("ENABLE_DAILY_WEATHER", "true")
	if err != nil {
		return Config{}, err
	}
	marineHourly, err := parseBool("ENABLE_MARINE_HOURLY", "true")
	if err != nil {
		return Config{}, err
	}
	marineDaily, err := parseBool("ENABLE_MARINE_DAILY", "true")
	if err != nil {
		return Config{}, err
	}
	zoneLookup, err := parseBool("ZONE_LOOKUP", "false")
	if err != nil {
		return Config{}, err
	}

	widthStr := envOr("FETCH_BATCH_WIDTH", "5")
	width, err := strconv.Atoi(widthStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid FETCH_BATCH_WIDTH %q: %w", widthStr, err)
	}
	if width < 1 {
		return Config{}, fmt.Errorf("FETCH_BATCH_WIDTH must be positive, got %d", width)
	}

	delay, err := parseDuration("FETCH_BATCH_DELAY", "200ms")
	if err != nil {
		return Config{}, err
	}
	if delay < 0 {
		return Config{}, fmt.Errorf("FETCH_BATCH_DELAY must not be negative, got %v", delay)
	}

	return Config{
		AppEnv:               appEnv,
		LogLevel:             level,
		MQTTBroker:           envOr("MQTT_BROKER", "localhost"),
		MQTTPort:             mqttPort,
		MQTTClientID:         envOr("MQTT_CLIENT_ID", "vessel-forecast"),
		MQTTTopicPrefix:      strings.TrimSuffix(envOr("MQTT_TOPIC_PREFIX", "vessels/self"), "/"),
		SQLitePath:           envOr("SQLITE_PATH", "data/vessel-forecast.db"),
		MetricsAddr:          envOrEmpty("METRICS_ADDR", ":9464"),
		UpdateInterval:       updateInterval,
		MaxForecastHours:     maxHours,
		MovingSpeedThreshold: threshold,
		EnableMovingForecast: movingForecast,
		EnableHourlyWeather:  hourlyWeather,
		EnableDailyWeather:   dailyWeather,
		EnableMarineHourly:   marineHourly,
		EnableMarineDaily:    marineDaily,
		FetchBatchWidth:      width,
		FetchBatchDelay:      delay,
		WeatherURL:           envOr("OPEN_METEO_WEATHER_URL", DefaultWeatherURL),
		MarineURL:            envOr("OPEN_METEO_MARINE_URL", DefaultMarineURL),
		APIKey:               strings.TrimSpace(os.Getenv("OPEN_METEO_API_KEY")),
		ZoneLookup:           zoneLookup,
		ZoneShapefileURL:     envOr("ZONE_SHAPEFILE_URL", DefaultZoneShapefileURL),
	}, nil
}

// envOr returns the trimmed variable, or def when unset or blank
func envOr(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

// envOrEmpty is envOr except that a variable set to "" is kept, so it can
// switch a feature off.
func envOrEmpty(name, def string) string {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

func parseDuration(name, def string) (time.Duration, error) {
	s := envOr(name, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return d, nil
}

func parseBool(name, def string) (bool, error) {
	s := envOr(name, def)
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return b, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
