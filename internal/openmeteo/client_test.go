package openmeteo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ngmaloney/vessel-forecast/internal/models"
)

func TestNewClient(t *testing.T) {
	client := NewClient(Config{MaxForecastHours: 72})

	if client == nil {
		t.Fatal("NewClient() returned nil")
	}

	if client.weatherURL != DefaultWeatherURL {
		t.Errorf("weatherURL = %s, want %s", client.weatherURL, DefaultWeatherURL)
	}

	if client.marineURL != DefaultMarineURL {
		t.Errorf("marineURL = %s, want %s", client.marineURL, DefaultMarineURL)
	}

	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", client.httpClient.Timeout)
	}

	if client.forecastDays != 4 {
		t.Errorf("forecastDays = %d, want 4", client.forecastDays)
	}
}

func TestForecastDays(t *testing.T) {
	tests := []struct {
		hours int
		want  int
	}{
		{0, 1},
		{1, 2},
		{24, 2},
		{25, 3},
		{72, 4},
		{384, 16},
		{1000, 16},
	}

	for _, tt := range tests {
		if got := ForecastDays(tt.hours); got != tt.want {
			t.Errorf("ForecastDays(%d) = %d, want %d", tt.hours, got, tt.want)
		}
	}
}

func TestClient_FetchWeather(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("User-Agent header not set")
		}

		q := r.URL.Query()
		if q.Get("latitude") != "41.5000" || q.Get("longitude") != "-70.6250" {
			t.Errorf("position = %s,%s", q.Get("latitude"), q.Get("longitude"))
		}
		if q.Get("timezone") != "UTC" {
			t.Errorf("timezone = %q, want UTC", q.Get("timezone"))
		}
		if q.Get("wind_speed_unit") != "ms" {
			t.Errorf("wind_speed_unit = %q, want ms", q.Get("wind_speed_unit"))
		}
		if q.Get("forecast_days") != "3" {
			t.Errorf("forecast_days = %q, want 3", q.Get("forecast_days"))
		}
		if !strings.Contains(q.Get("hourly"), "temperature_2m") {
			t.Errorf("hourly = %q", q.Get("hourly"))
		}
		if q.Get("apikey") != "secret" {
			t.Errorf("apikey = %q, want secret", q.Get("apikey"))
		}

		data, err := os.ReadFile("../../testdata/open_meteo_forecast.json")
		if err != nil {
			t.Errorf("reading fixture: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	defer server.Close()

	client := NewClient(Config{WeatherURL: server.URL, APIKey: "secret", MaxForecastHours: 48})

	resp, err := client.FetchWeather(context.Background(), models.Position{Latitude: 41.5, Longitude: -70.625})
	if err != nil {
		t.Fatalf("FetchWeather() error = %v", err)
	}

	if resp.Hourly.Len() != 4 {
		t.Errorf("Hourly.Len() = %d, want 4", resp.Hourly.Len())
	}
	if got := resp.Hourly.Row(2); len(got) != 0 {
		t.Errorf("Row(2) = %v, want empty", got)
	}
	if v, _ := resp.Hourly.Row(0)["temperature_2m"].Number(); v != 16.2 {
		t.Errorf("temperature_2m[0] = %v, want 16.2", v)
	}
	if resp.Daily.Len() != 3 {
		t.Errorf("Daily.Len() = %d, want 3", resp.Daily.Len())
	}
}

func TestClient_FetchMarine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !strings.Contains(q.Get("hourly"), "wave_height") {
			t.Errorf("hourly = %q", q.Get("hourly"))
		}
		if q.Has("wind_speed_unit") {
			t.Error("marine requests should keep the default current velocity unit")
		}

		data, _ := os.ReadFile("../../testdata/open_meteo_marine.json")
		w.Write(data)
	}))
	defer server.Close()

	client := NewClient(Config{MarineURL: server.URL, MaxForecastHours: 24})

	resp, err := client.FetchMarine(context.Background(), models.Position{Latitude: 41.5, Longitude: -70.625})
	if err != nil {
		t.Fatalf("FetchMarine() error = %v", err)
	}
	if resp.Hourly.Len() != 2 {
		t.Errorf("Hourly.Len() = %d, want 2", resp.Hourly.Len())
	}
}

func TestClient_FailuresAreFetchFailed(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "api error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":true,"reason":"Latitude must be in range of -90 to 90°."}`))
			},
			want: "Latitude must be in range",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream unavailable", http.StatusBadGateway)
			},
			want: "status 502",
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"hourly": [`))
			},
			want: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(Config{WeatherURL: server.URL})
			_, err := client.FetchWeather(context.Background(), models.Position{Latitude: 95})

			if !errors.Is(err, models.ErrFetchFailed) {
				t.Fatalf("error = %v, want ErrFetchFailed", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Config{MarineURL: url})
	_, err := client.FetchMarine(context.Background(), models.Position{})
	if !errors.Is(err, models.ErrFetchFailed) {
		t.Errorf("error = %v, want ErrFetchFailed", err)
	}
}
