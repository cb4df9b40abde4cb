package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ngmaloney/vessel-forecast/internal/geo"
	"github.com/ngmaloney/vessel-forecast/internal/models"
	"github.com/ngmaloney/vessel-forecast/internal/observability"
)

var errNoData = errors.New("no projected hour returned data")

// Fetcher retrieves forecast data for a single position. Failures that should
// only drop the requested hour are reported as models.ErrFetchFailed.
type Fetcher interface {
	FetchWeather(ctx context.Context, pos models.Position) (*models.RawResponse, error)
	FetchMarine(ctx context.Context, pos models.Position) (*models.RawResponse, error)
}

// Publisher hands forecasts to the vessel bus
type Publisher interface {
	Publish(ctx context.Context, records []models.MergedForecastRecord, kind models.DatasetKind) error
	PublishDaily(ctx context.Context, daily []models.DailyRecord, kind models.DatasetKind) error
}

// Fallback forecasts for the vessel's current position only. It owns its
// own failures and never reports them back.
type Fallback interface {
	RunStationary(ctx context.Context, state *State)
}

// ZoneResolver names the marine zone containing a position
type ZoneResolver interface {
	ZoneAt(ctx context.Context, lat, lon float64) (string, error)
}

// Options are the read-only settings of a projection run
type Options struct {
	MaxForecastHours     int
	MovingSpeedThreshold float64 // knots

	EnableHourlyWeather bool
	EnableDailyWeather  bool
	EnableMarineHourly  bool
	EnableMarineDaily   bool

	BatchWidth int
	BatchDelay time.Duration
}

// DefaultOptions mirrors the defaults of the configuration layer
func DefaultOptions() Options {
	return Options{
		MaxForecastHours:     72,
		MovingSpeedThreshold: 1.0,
		EnableHourlyWeather:  true,
		EnableDailyWeather:   true,
		EnableMarineHourly:   true,
		EnableMarineDaily:    true,
		BatchWidth:           DefaultBatchWidth,
		BatchDelay:           DefaultBatchDelay,
	}
}

func (o Options) wantWeather() bool { return o.EnableHourlyWeather || o.EnableDailyWeather }
func (o Options) wantMarine() bool  { return o.EnableMarineHourly || o.EnableMarineDaily }

// Deps are the collaborators of a Controller. Zones, Metrics, Logger and Now
// are optional.
type Deps struct {
	Fetcher   Fetcher
	Publisher Publisher
	Fallback  Fallback
	Daily     DailyProcessor
	Zones     ZoneResolver
	Metrics   *observability.Collector
	Logger    *slog.Logger
	Now       func() time.Time
}

// Controller runs the moving-vessel forecast pipeline
type Controller struct {
	opts      Options
	deps      Deps
	scheduler *Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

// NewController creates a controller
func NewController(opts Options, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		opts:      opts,
		deps:      deps,
		scheduler: NewScheduler(opts.BatchWidth, opts.BatchDelay),
		logger:    logger.With("component", "projection"),
		now:       now,
	}
}

// mergedBatch is the output of the Merging phase
type mergedBatch struct {
	weather      []models.MergedForecastRecord
	marine       []models.MergedForecastRecord
	weatherDaily []models.DailyRecord
	marineDaily  []models.DailyRecord
}

func (b mergedBatch) empty() bool {
	return len(b.weather) == 0 && len(b.marine) == 0 &&
		len(b.weatherDaily) == 0 && len(b.marineDaily) == 0
}

// Run performs one projection run. It never returns an error: when the
// vessel does not qualify, or when any stage of the pipeline fails, the run
// ends by dispatching the stationary fallback.
func (c *Controller) Run(ctx context.Context, state *State) {
	start := c.now()
	defer state.setPhase(PhaseIdle)

	c.enter(state, PhaseValidating)
	snap := state.Snapshot()
	if !ShouldProject(snap.Motion, snap.Engaged, c.opts.MovingSpeedThreshold) {
		c.logger.Debug("projection preconditions not met", "engaged", snap.Engaged)
		c.fallBack(ctx, state, "preconditions")
		c.deps.Metrics.ObserveRun(observability.OutcomePrecondition, c.now().Sub(start))
		return
	}

	if err := c.runPipeline(ctx, state, snap.Motion, start); err != nil {
		outcome := observability.OutcomeError
		reason := "pipeline error"
		if errors.Is(err, errNoData) {
			outcome = observability.OutcomeNoData
			reason = "no data"
			c.logger.Warn("projected forecast returned no data")
		} else {
			c.logger.Error("projected forecast failed", "err", err)
		}
		c.fallBack(ctx, state, reason)
		c.deps.Metrics.ObserveRun(outcome, c.now().Sub(start))
		return
	}

	c.deps.Metrics.ObserveRun(observability.OutcomePublished, c.now().Sub(start))
}

func (c *Controller) enter(state *State, p Phase) {
	state.setPhase(p)
	c.logger.Debug("phase", "phase", p.String())
}

func (c *Controller) fallBack(ctx context.Context, state *State, reason string) {
	c.enter(state, PhaseFallingBack)
	c.logger.Warn("using stationary forecast", "reason", reason)
	if c.deps.Fallback == nil {
		state.setStatus(fmt.Sprintf("stationary forecast unavailable (%s)", reason))
		return
	}
	c.deps.Fallback.RunStationary(ctx, state)
}

// runPipeline covers Projecting, Merging and Publishing. Panics in any of
// them are turned into errors so the caller can fall back.
func (c *Controller) runPipeline(ctx context.Context, state *State, motion models.MotionState, start time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	pos := *motion.CurrentPosition
	heading := *motion.Heading
	speed := *motion.SpeedOverGround
	from := start.UTC()

	c.enter(state, PhaseProjecting)
	c.logger.Info("projecting forecast",
		"lat", pos.Latitude,
		"lon", pos.Longitude,
		"heading_rad", heading,
		"sog_mps", speed,
		"hours", c.opts.MaxForecastHours,
	)

	results, err := c.scheduler.Run(ctx, c.opts.MaxForecastHours, func(ctx context.Context, hour int) (*models.HourlyFetchResult, error) {
		task := models.HourlyFetchTask{
			Hour:              hour,
			TargetTime:        from.Add(time.Duration(hour) * time.Hour),
			PredictedPosition: geo.ProjectAt(from, pos, heading, speed, float64(hour)),
		}
		return c.fetchOneHour(ctx, task)
	})
	if err != nil {
		return fmt.Errorf("fetching projected hours: %w", err)
	}
	if !anyResult(results) {
		return errNoData
	}

	c.enter(state, PhaseMerging)
	batch := c.merge(results)
	if batch.empty() {
		// responses arrived but none covered a projected hour
		return errNoData
	}
	c.annotateZones(ctx, batch.weather)
	c.annotateZones(ctx, batch.marine)

	c.enter(state, PhasePublishing)
	if err := c.publish(ctx, batch); err != nil {
		return err
	}

	state.markUpdated(c.now(), fmt.Sprintf("projected forecast: %d weather hours, %d marine hours",
		len(batch.weather), len(batch.marine)))
	c.logger.Info("projected forecast published",
		"weather_hours", len(batch.weather),
		"marine_hours", len(batch.marine),
		"weather_days", len(batch.weatherDaily),
		"marine_days", len(batch.marineDaily),
	)
	return nil
}

// fetchOneHour fetches the enabled datasets for one predicted position.
// Both requests run concurrently; the hour is dropped when neither succeeds.
func (c *Controller) fetchOneHour(ctx context.Context, task models.HourlyFetchTask) (*models.HourlyFetchResult, error) {
	var weather, marine *models.RawResponse

	var g errgroup.Group
	if c.opts.wantWeather() {
		g.Go(func() error {
			resp, err := c.fetchDataset(ctx, task, models.DatasetWeather)
			weather = resp
			return err
		})
	}
	if c.opts.wantMarine() {
		g.Go(func() error {
			resp, err := c.fetchDataset(ctx, task, models.DatasetMarine)
			marine = resp
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if weather == nil && marine == nil {
		return nil, nil
	}
	return &models.HourlyFetchResult{
		Hour:              task.Hour,
		PredictedPosition: task.PredictedPosition,
		TargetTime:        task.TargetTime,
		Primary:           weather,
		Secondary:         marine,
	}, nil
}

func (c *Controller) fetchDataset(ctx context.Context, task models.HourlyFetchTask, kind models.DatasetKind) (resp *models.RawResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("%s fetch panic: %v", kind, r)
		}
	}()

	switch kind {
	case models.DatasetMarine:
		resp, err = c.deps.Fetcher.FetchMarine(ctx, task.PredictedPosition)
	default:
		resp, err = c.deps.Fetcher.FetchWeather(ctx, task.PredictedPosition)
	}

	if errors.Is(err, models.ErrFetchFailed) {
		c.deps.Metrics.ObserveFetch(string(kind), false)
		c.logger.Debug("hour dropped", "hour", task.Hour, "dataset", kind, "err", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.deps.Metrics.ObserveFetch(string(kind), resp != nil)
	return resp, nil
}

func (c *Controller) merge(results []*models.HourlyFetchResult) mergedBatch {
	var batch mergedBatch
	if c.opts.EnableHourlyWeather {
		batch.weather = Merge(results, models.DatasetWeather)
	}
	if c.opts.EnableMarineHourly {
		batch.marine = Merge(results, models.DatasetMarine)
	}
	if c.opts.EnableDailyWeather {
		batch.weatherDaily = DeriveDaily(results, models.DatasetWeather, c.deps.Daily)
	}
	if c.opts.EnableMarineDaily {
		batch.marineDaily = DeriveDaily(results, models.DatasetMarine, c.deps.Daily)
	}
	return batch
}

func (c *Controller) annotateZones(ctx context.Context, records []models.MergedForecastRecord) {
	if c.deps.Zones == nil {
		return
	}
	for i := range records {
		zone, err := c.deps.Zones.ZoneAt(ctx, records[i].PredictedLatitude, records[i].PredictedLongitude)
		if err != nil {
			c.logger.Debug("zone lookup failed", "hour", records[i].Hour, "err", err)
			continue
		}
		records[i].Zone = zone
	}
}

func (c *Controller) publish(ctx context.Context, batch mergedBatch) error {
	if len(batch.weather) > 0 {
		if err := c.deps.Publisher.Publish(ctx, batch.weather, models.DatasetWeather); err != nil {
			return fmt.Errorf("publishing weather: %w", err)
		}
		c.deps.Metrics.AddRecords(string(models.DatasetWeather), "hourly", len(batch.weather))
	}
	if len(batch.marine) > 0 {
		if err := c.deps.Publisher.Publish(ctx, batch.marine, models.DatasetMarine); err != nil {
			return fmt.Errorf("publishing marine: %w", err)
		}
		c.deps.Metrics.AddRecords(string(models.DatasetMarine), "hourly", len(batch.marine))
	}
	if len(batch.weatherDaily) > 0 {
		if err := c.deps.Publisher.PublishDaily(ctx, batch.weatherDaily, models.DatasetWeather); err != nil {
			return fmt.Errorf("publishing daily weather: %w", err)
		}
		c.deps.Metrics.AddRecords(string(models.DatasetWeather), "daily", len(batch.weatherDaily))
	}
	if len(batch.marineDaily) > 0 {
		if err := c.deps.Publisher.PublishDaily(ctx, batch.marineDaily, models.DatasetMarine); err != nil {
			return fmt.Errorf("publishing daily marine: %w", err)
		}
		c.deps.Metrics.AddRecords(string(models.DatasetMarine), "daily", len(batch.marineDaily))
	}
	return nil
}

func anyResult(results []*models.HourlyFetchResult) bool {
	for _, r := range results {
		if r != nil {
			return true
		}
	}
	return false
}
