package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ngmaloney/vessel-forecast/internal/config"
	"github.com/ngmaloney/vessel-forecast/internal/mqtt"
	"github.com/ngmaloney/vessel-forecast/internal/observability"
	"github.com/ngmaloney/vessel-forecast/internal/openmeteo"
	"github.com/ngmaloney/vessel-forecast/internal/projection"
	"github.com/ngmaloney/vessel-forecast/internal/store"
	"github.com/ngmaloney/vessel-forecast/internal/zonelookup"
)

// runRetention is how long the run log keeps entries
const runRetention = 7 * 24 * time.Hour

// connectWait bounds how long the first run waits for the broker
const connectWait = 30 * time.Second

// Runner performs one forecast run against the shared state
type Runner interface {
	Run(ctx context.Context, state *projection.State)
}

// StateStore persists the state between runs and restarts
type StateStore interface {
	SaveState(ctx context.Context, snap projection.Snapshot) error
	RecordRun(ctx context.Context, snap projection.Snapshot, finishedAt time.Time) error
	PruneRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service drives forecast runs on a fixed interval
type Service struct {
	state    *projection.State
	runner   Runner
	store    StateStore
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	ready     <-chan struct{}
	readyWait time.Duration
}

// NewService creates a service; store may be nil
func NewService(state *projection.State, runner Runner, st StateStore, interval time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		state:    state,
		runner:   runner,
		store:    st,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
		now:      time.Now,
	}
}

// SetStartGate holds the first run until ready is closed or wait elapses
func (s *Service) SetStartGate(ready <-chan struct{}, wait time.Duration) {
	s.ready = ready
	s.readyWait = wait
}

func (s *Service) awaitStart(ctx context.Context) error {
	if s.ready == nil {
		return nil
	}
	timer := time.NewTimer(s.readyWait)
	defer timer.Stop()

	select {
	case <-s.ready:
	case <-timer.C:
		s.logger.Warn("starting first run before the bus is ready", "waited", s.readyWait)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Loop runs once the start gate opens and then every interval until ctx is done
func (s *Service) Loop(ctx context.Context) error {
	if err := s.awaitStart(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single run and persists its outcome
func (s *Service) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.runner.Run(ctx, s.state)

	snap := s.state.Snapshot()
	s.logger.Info("forecast run finished", "status", snap.Status, "last_update", snap.LastUpdate)

	if s.store == nil {
		return
	}

	// Persist even if ctx was cancelled mid-run
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	now := s.now()
	if err := s.store.SaveState(saveCtx, snap); err != nil {
		s.logger.Error("saving state failed", "err", err)
	}
	if err := s.store.RecordRun(saveCtx, snap, now); err != nil {
		s.logger.Error("recording run failed", "err", err)
	}
	if n, err := s.store.PruneRuns(saveCtx, now.Add(-runRetention)); err != nil {
		s.logger.Error("pruning runs failed", "err", err)
	} else if n > 0 {
		s.logger.Debug("pruned run log", "removed", n)
	}
}

// Options maps the configuration onto the projection settings
func Options(cfg config.Config) projection.Options {
	return projection.Options{
		MaxForecastHours:     cfg.MaxForecastHours,
		MovingSpeedThreshold: cfg.MovingSpeedThreshold,
		EnableHourlyWeather:  cfg.EnableHourlyWeather,
		EnableDailyWeather:   cfg.EnableDailyWeather,
		EnableMarineHourly:   cfg.EnableMarineHourly,
		EnableMarineDaily:    cfg.EnableMarineDaily,
		BatchWidth:           cfg.FetchBatchWidth,
		BatchDelay:           cfg.FetchBatchDelay,
	}
}

// Run wires the bridge together and blocks until ctx is done
func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()

	logger.Info("initializing forecast bridge",
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"topic_prefix", cfg.MQTTTopicPrefix,
		"max_forecast_hours", cfg.MaxForecastHours,
		"update_interval", cfg.UpdateInterval,
	)

	db, err := store.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	state := projection.NewState(cfg.EnableMovingForecast)
	if saved, ok, err := db.LoadState(ctx); err != nil {
		logger.Warn("could not restore state", "err", err)
	} else if ok {
		// the configured toggle wins over the saved one
		state.Restore(saved.Motion, cfg.EnableMovingForecast, saved.LastUpdate)
		logger.Info("restored state", "saved_at", saved.SavedAt, "last_update", saved.LastUpdate)
	}

	var metrics *observability.Collector
	if cfg.MetricsAddr != "" {
		metrics, err = observability.NewCollector(nil)
		if err != nil {
			return err
		}
		go serveMetrics(ctx, cfg.MetricsAddr, metrics, logger)
	}

	mqttClient, err := mqtt.NewClient(cfg, logger)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect()

	nav := mqtt.NewNavigationSubscriber(state, cfg.MQTTTopicPrefix, logger)
	if err := nav.Register(mqttClient); err != nil {
		return err
	}

	connected := make(chan struct{})
	go func() {
		// paho retries internally; this only returns once connected or stopped
		if err := mqttClient.Connect(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("mqtt connect failed", "err", err)
			}
			return
		}
		close(connected)
	}()

	forecasts := openmeteo.NewClient(openmeteo.Config{
		WeatherURL:       cfg.WeatherURL,
		MarineURL:        cfg.MarineURL,
		APIKey:           cfg.APIKey,
		MaxForecastHours: cfg.MaxForecastHours,
		Logger:           logger,
	})

	opts := Options(cfg)
	deps := projection.Deps{
		Fetcher:   forecasts,
		Publisher: mqtt.NewPublisher(mqttClient, cfg.MQTTTopicPrefix, logger),
		Daily:     openmeteo.ProcessDaily,
		Metrics:   metrics,
		Logger:    logger,
	}

	if cfg.ZoneLookup {
		zones, err := zonelookup.Open(ctx, cfg.SQLitePath, cfg.ZoneShapefileURL, logger)
		if err != nil {
			logger.Warn("marine zone lookup unavailable; records will carry no zone", "err", err)
		} else {
			defer zones.Close()
			deps.Zones = zones
		}
	}

	deps.Fallback = projection.NewStationary(opts, deps)
	controller := projection.NewController(opts, deps)

	svc := NewService(state, controller, db, cfg.UpdateInterval, logger)
	svc.SetStartGate(connected, connectWait)
	err = svc.Loop(ctx)

	logger.Info("forecast bridge shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveMetrics(ctx context.Context, addr string, metrics *observability.Collector, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", "err", err)
	}
}
