package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngmaloney/vessel-forecast/internal/models"
	"github.com/ngmaloney/vessel-forecast/internal/observability"
)

// Stationary publishes forecasts for the vessel's current position without
// any projection. It is the fallback for every run that cannot project.
type Stationary struct {
	opts      Options
	fetcher   Fetcher
	publisher Publisher
	daily     DailyProcessor
	metrics   *observability.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// NewStationary builds the fallback from the same collaborators as the controller
func NewStationary(opts Options, deps Deps) *Stationary {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Stationary{
		opts:      opts,
		fetcher:   deps.Fetcher,
		publisher: deps.Publisher,
		daily:     deps.Daily,
		metrics:   deps.Metrics,
		logger:    logger.With("component", "stationary"),
		now:       now,
	}
}

// RunStationary fetches and publishes the enabled datasets for the current
// position. Errors are logged and reflected in the state's status only.
func (s *Stationary) RunStationary(ctx context.Context, state *State) {
	snap := state.Snapshot()
	if snap.Motion.CurrentPosition == nil {
		s.logger.Info("no position yet, skipping stationary forecast")
		state.setStatus("waiting for position")
		return
	}
	pos := *snap.Motion.CurrentPosition
	now := s.now().UTC()

	var published []string
	var failures []error

	if s.opts.wantWeather() {
		n, err := s.runDataset(ctx, pos, now, models.DatasetWeather, s.opts.EnableHourlyWeather, s.opts.EnableDailyWeather)
		if err != nil {
			failures = append(failures, err)
		} else {
			published = append(published, fmt.Sprintf("%d weather hours", n))
		}
	}
	if s.opts.wantMarine() {
		n, err := s.runDataset(ctx, pos, now, models.DatasetMarine, s.opts.EnableMarineHourly, s.opts.EnableMarineDaily)
		if err != nil {
			failures = append(failures, err)
		} else {
			published = append(published, fmt.Sprintf("%d marine hours", n))
		}
	}

	if err := errors.Join(failures...); err != nil {
		s.logger.Error("stationary forecast failed", "err", err)
		if len(published) == 0 {
			state.setStatus(fmt.Sprintf("stationary forecast failed: %v", err))
			return
		}
	}

	status := "stationary forecast"
	for i, p := range published {
		if i == 0 {
			status += ": " + p
		} else {
			status += ", " + p
		}
	}
	state.markUpdated(s.now(), status)
	s.logger.Info("stationary forecast published", "lat", pos.Latitude, "lon", pos.Longitude, "status", status)
}

func (s *Stationary) runDataset(ctx context.Context, pos models.Position, now time.Time, kind models.DatasetKind, hourly, daily bool) (int, error) {
	var (
		resp *models.RawResponse
		err  error
	)
	switch kind {
	case models.DatasetMarine:
		resp, err = s.fetcher.FetchMarine(ctx, pos)
	default:
		resp, err = s.fetcher.FetchWeather(ctx, pos)
	}
	s.metrics.ObserveFetch(string(kind), err == nil && resp != nil)
	if err != nil {
		return 0, fmt.Errorf("fetching %s: %w", kind, err)
	}
	if resp == nil {
		return 0, fmt.Errorf("fetching %s: empty response", kind)
	}

	var records []models.MergedForecastRecord
	if hourly {
		records = StationaryRecords(resp, pos, now, s.opts.MaxForecastHours)
		if len(records) > 0 {
			if err := s.publisher.Publish(ctx, records, kind); err != nil {
				return 0, fmt.Errorf("publishing %s: %w", kind, err)
			}
			s.metrics.AddRecords(string(kind), "hourly", len(records))
		}
	}

	if daily && s.daily != nil {
		days := s.daily(resp)
		if len(days) > 0 {
			if err := s.publisher.PublishDaily(ctx, days, kind); err != nil {
				return 0, fmt.Errorf("publishing daily %s: %w", kind, err)
			}
			s.metrics.AddRecords(string(kind), "daily", len(days))
		}
	}

	return len(records), nil
}

// StationaryRecords converts up to maxHours hourly buckets, starting at the
// bucket for now, into records pinned to pos. When no bucket matches now the
// conversion starts at the first bucket. Empty buckets are skipped.
func StationaryRecords(resp *models.RawResponse, pos models.Position, now time.Time, maxHours int) []models.MergedForecastRecord {
	if resp == nil || maxHours <= 0 {
		return nil
	}

	start := matchIndex(resp.Hourly, now)
	if start < 0 {
		start = 0
	}

	var records []models.MergedForecastRecord
	for i := start; i < resp.Hourly.Len() && i-start < maxHours; i++ {
		fields := resp.Hourly.Row(i)
		if len(fields) == 0 {
			continue
		}
		ts, ok := parseBucketTime(resp.Hourly.Time[i])
		if !ok {
			continue
		}
		records = append(records, models.MergedForecastRecord{
			Hour:               i - start,
			Timestamp:          ts,
			PredictedLatitude:  pos.Latitude,
			PredictedLongitude: pos.Longitude,
			VesselMoving:       false,
			Fields:             fields,
		})
	}
	return records
}
