package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ngmaloney/vessel-forecast/internal/app"
	"github.com/ngmaloney/vessel-forecast/internal/config"
	"github.com/ngmaloney/vessel-forecast/internal/geo"
	"github.com/ngmaloney/vessel-forecast/internal/logging"
	"github.com/ngmaloney/vessel-forecast/internal/models"
	"github.com/ngmaloney/vessel-forecast/internal/openmeteo"
	"github.com/ngmaloney/vessel-forecast/internal/projection"
	"github.com/ngmaloney/vessel-forecast/internal/ui"
	"github.com/ngmaloney/vessel-forecast/internal/zonelookup"
)

var version = "dev"
var appName = "forecast-tui"

func main() {
	lat := flag.Float64("lat", 41.5, "Vessel latitude in degrees")
	lon := flag.Float64("lon", -70.6, "Vessel longitude in degrees")
	heading := flag.Float64("heading", 90, "True heading in degrees")
	speed := flag.Float64("speed", 6, "Speed over ground in knots")
	hours := flag.Int("hours", 0, "Hours to project (default MAX_FORECAST_HOURS)")
	stationary := flag.Bool("stationary", false, "Disable projection and forecast the current position only")
	zones := flag.Bool("zones", false, "Annotate records with NOAA marine zones (downloads the zone shapefile on first use)")
	logFile := flag.String("log", "", "Write logs to this file (default: discard)")
	flag.Parse()

	if *lat < -90 || *lat > 90 || *lon < -180 || *lon > 180 {
		fmt.Println("Error: --lat must be within ±90 and --lon within ±180.")
		os.Exit(1)
	}
	if *speed < 0 {
		fmt.Println("Error: --speed must not be negative.")
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	if *hours > 0 {
		cfg.MaxForecastHours = *hours
	}

	// Logs would corrupt the screen, so they go to a file or nowhere
	var w io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Printf("Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	logger := logging.NewWithWriter(w, cfg, version, appName)
	slog.SetDefault(logger)

	state := projection.NewState(!*stationary)
	state.UpdatePosition(models.Position{Latitude: *lat, Longitude: *lon, Timestamp: time.Now().UTC()})
	deg := math.Mod(*heading, 360)
	if deg < 0 {
		deg += 360
	}
	state.UpdateHeading(deg * math.Pi / 180)
	state.UpdateSpeed(geo.KnotsToMetersPerSecond(*speed))

	publisher := ui.NewChannelPublisher()
	opts := app.Options(cfg)
	deps := projection.Deps{
		Fetcher: openmeteo.NewClient(openmeteo.Config{
			WeatherURL:       cfg.WeatherURL,
			MarineURL:        cfg.MarineURL,
			APIKey:           cfg.APIKey,
			MaxForecastHours: cfg.MaxForecastHours,
			Logger:           logger,
		}),
		Publisher: publisher,
		Daily:     openmeteo.ProcessDaily,
		Logger:    logger,
	}

	if *zones {
		fmt.Println("Preparing marine zones...")
		resolver, err := zonelookup.Open(context.Background(), cfg.SQLitePath, cfg.ZoneShapefileURL, logger)
		if err != nil {
			fmt.Printf("Marine zones unavailable: %v\n", err)
		} else {
			defer resolver.Close()
			deps.Zones = resolver
		}
	}

	deps.Fallback = projection.NewStationary(opts, deps)
	controller := projection.NewController(opts, deps)

	m := ui.NewModel(ui.Config{
		Runner:          controller,
		State:           state,
		Updates:         publisher.Updates(),
		RefreshInterval: cfg.UpdateInterval,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running application: %v\n", err)
		os.Exit(1)
	}
}
