package projection

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ngmaloney/vessel-forecast/internal/models"
	"github.com/ngmaloney/vessel-forecast/internal/observability"
)

type fetchFunc func(pos models.Position) (*models.RawResponse, error)

type fakeFetcher struct {
	mu       sync.Mutex
	weather  fetchFunc
	marine   fetchFunc
	calls    map[models.DatasetKind]int
	lastSeen map[models.DatasetKind][]models.Position
}

func newFakeFetcher(weather, marine fetchFunc) *fakeFetcher {
	return &fakeFetcher{
		weather:  weather,
		marine:   marine,
		calls:    make(map[models.DatasetKind]int),
		lastSeen: make(map[models.DatasetKind][]models.Position),
	}
}

func (f *fakeFetcher) record(kind models.DatasetKind, pos models.Position) {
	f.mu.Lock()
	f.calls[kind]++
	f.lastSeen[kind] = append(f.lastSeen[kind], pos)
	f.mu.Unlock()
}

func (f *fakeFetcher) FetchWeather(ctx context.Context, pos models.Position) (*models.RawResponse, error) {
	f.record(models.DatasetWeather, pos)
	return f.weather(pos)
}

func (f *fakeFetcher) FetchMarine(ctx context.Context, pos models.Position) (*models.RawResponse, error) {
	f.record(models.DatasetMarine, pos)
	return f.marine(pos)
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[models.DatasetWeather] + f.calls[models.DatasetMarine]
}

type fakePublisher struct {
	hourly map[models.DatasetKind][]models.MergedForecastRecord
	daily  map[models.DatasetKind][]models.DailyRecord
	order  []string
	phases []Phase
	state  *State
	err    error
}

func newFakePublisher(state *State) *fakePublisher {
	return &fakePublisher{
		hourly: make(map[models.DatasetKind][]models.MergedForecastRecord),
		daily:  make(map[models.DatasetKind][]models.DailyRecord),
		state:  state,
	}
}

func (p *fakePublisher) Publish(ctx context.Context, records []models.MergedForecastRecord, kind models.DatasetKind) error {
	p.phases = append(p.phases, p.state.Phase())
	if p.err != nil {
		return p.err
	}
	p.hourly[kind] = records
	p.order = append(p.order, string(kind)+"/hourly")
	return nil
}

func (p *fakePublisher) PublishDaily(ctx context.Context, daily []models.DailyRecord, kind models.DatasetKind) error {
	if p.err != nil {
		return p.err
	}
	p.daily[kind] = daily
	p.order = append(p.order, string(kind)+"/daily")
	return nil
}

type fakeFallback struct {
	calls int
}

func (f *fakeFallback) RunStationary(ctx context.Context, state *State) {
	f.calls++
	state.setStatus("stationary")
}

type fakeZones struct{}

func (fakeZones) ZoneAt(ctx context.Context, lat, lon float64) (string, error) {
	if lat > 41.6 {
		return "", errors.New("outside coverage")
	}
	return "ANZ250", nil
}

func okResponse(pos models.Position) (*models.RawResponse, error) {
	resp := series(100, func(i int) models.Value { return models.NumberValue(float64(i)) })
	resp.Latitude, resp.Longitude = pos.Latitude, pos.Longitude
	return resp, nil
}

func failResponse(models.Position) (*models.RawResponse, error) {
	return nil, models.ErrFetchFailed
}

func fakeDaily(resp *models.RawResponse) []models.DailyRecord {
	return []models.DailyRecord{{
		Date:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Fields: map[string]models.Value{"latitude": models.NumberValue(resp.Latitude)},
	}}
}

type harness struct {
	state     *State
	fetcher   *fakeFetcher
	publisher *fakePublisher
	fallback  *fakeFallback
	metrics   *observability.Collector
	ctrl      *Controller
}

func newHarness(t *testing.T, opts Options, weather, marine fetchFunc) *harness {
	t.Helper()

	state := NewState(true)
	state.UpdatePosition(models.Position{Latitude: 41.5, Longitude: -70.6})
	state.UpdateHeading(0) // due north
	state.UpdateSpeed(5)

	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	h := &harness{
		state:     state,
		fetcher:   newFakeFetcher(weather, marine),
		publisher: newFakePublisher(state),
		fallback:  &fakeFallback{},
		metrics:   metrics,
	}
	h.ctrl = NewController(opts, Deps{
		Fetcher:   h.fetcher,
		Publisher: h.publisher,
		Fallback:  h.fallback,
		Daily:     fakeDaily,
		Metrics:   metrics,
		Now:       func() time.Time { return baseTime },
	})
	return h
}

func testOptions(hours int) Options {
	opts := DefaultOptions()
	opts.MaxForecastHours = hours
	opts.BatchDelay = 0
	return opts
}

func (h *harness) runs(outcome string) float64 {
	return testutil.ToFloat64(h.metrics.Runs.WithLabelValues(outcome))
}

func TestController_ProjectsWhenMoving(t *testing.T) {
	h := newHarness(t, testOptions(12), okResponse, okResponse)

	h.ctrl.Run(context.Background(), h.state)

	if h.fallback.calls != 0 {
		t.Fatalf("fallback called %d times, want 0", h.fallback.calls)
	}
	if got := h.fetcher.calls[models.DatasetWeather]; got != 12 {
		t.Errorf("weather fetches = %d, want 12", got)
	}
	if got := h.fetcher.calls[models.DatasetMarine]; got != 12 {
		t.Errorf("marine fetches = %d, want 12", got)
	}

	weather := h.publisher.hourly[models.DatasetWeather]
	if len(weather) != 12 {
		t.Fatalf("weather records = %d, want 12", len(weather))
	}
	for i, rec := range weather {
		if rec.Hour != i {
			t.Errorf("weather[%d].Hour = %d", i, rec.Hour)
		}
		if !rec.VesselMoving {
			t.Errorf("weather[%d].VesselMoving = false", i)
		}
		if v, _ := rec.Fields["temperature_2m"].Number(); v != float64(i) {
			t.Errorf("weather[%d] temperature = %v, want %d", i, v, i)
		}
		if i > 0 && rec.PredictedLatitude <= weather[i-1].PredictedLatitude {
			t.Errorf("heading north but latitude did not increase at hour %d", i)
		}
	}
	if math.Abs(weather[0].PredictedLatitude-41.5) > 1e-9 || math.Abs(weather[0].PredictedLongitude+70.6) > 1e-9 {
		t.Errorf("hour 0 position = %v,%v, want current position", weather[0].PredictedLatitude, weather[0].PredictedLongitude)
	}
	if len(h.publisher.hourly[models.DatasetMarine]) != 12 {
		t.Errorf("marine records = %d, want 12", len(h.publisher.hourly[models.DatasetMarine]))
	}

	// daily derived from the hour 0 response only
	daily := h.publisher.daily[models.DatasetWeather]
	if len(daily) != 1 {
		t.Fatalf("weather daily = %d, want 1", len(daily))
	}
	if v, _ := daily[0].Fields["latitude"].Number(); math.Abs(v-41.5) > 1e-9 {
		t.Errorf("daily derived from latitude %v, want 41.5", v)
	}

	wantOrder := []string{"weather/hourly", "marine/hourly", "weather/daily", "marine/daily"}
	if strings.Join(h.publisher.order, ",") != strings.Join(wantOrder, ",") {
		t.Errorf("publish order = %v, want %v", h.publisher.order, wantOrder)
	}
	for _, p := range h.publisher.phases {
		if p != PhasePublishing {
			t.Errorf("published during phase %v", p)
		}
	}

	snap := h.state.Snapshot()
	if !strings.HasPrefix(snap.Status, "projected forecast") {
		t.Errorf("status = %q", snap.Status)
	}
	if !snap.LastUpdate.Equal(baseTime) {
		t.Errorf("lastUpdate = %v, want %v", snap.LastUpdate, baseTime)
	}
	if snap.Phase != PhaseIdle {
		t.Errorf("phase after run = %v, want idle", snap.Phase)
	}
	if got := h.runs(observability.OutcomePublished); got != 1 {
		t.Errorf("published runs = %v, want 1", got)
	}
}

func TestController_FallsBackOnPreconditions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *State)
	}{
		{"no position", func(s *State) { s.Restore(models.MotionState{Heading: ptr(0), SpeedOverGround: ptr(5)}, true, time.Time{}) }},
		{"not engaged", func(s *State) { s.SetEngaged(false) }},
		{"too slow", func(s *State) { s.UpdateSpeed(0.1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testOptions(12), okResponse, okResponse)
			tt.setup(h.state)

			h.ctrl.Run(context.Background(), h.state)

			if h.fallback.calls != 1 {
				t.Errorf("fallback calls = %d, want 1", h.fallback.calls)
			}
			if n := h.fetcher.total(); n != 0 {
				t.Errorf("fetches = %d, want 0", n)
			}
			if len(h.publisher.order) != 0 {
				t.Errorf("published %v, want nothing", h.publisher.order)
			}
			if got := h.runs(observability.OutcomePrecondition); got != 1 {
				t.Errorf("precondition runs = %v, want 1", got)
			}
		})
	}
}

func TestController_NoDataFallsBack(t *testing.T) {
	h := newHarness(t, testOptions(12), failResponse, failResponse)

	h.ctrl.Run(context.Background(), h.state)

	if h.fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", h.fallback.calls)
	}
	if n := h.fetcher.total(); n != 24 {
		t.Errorf("fetches = %d, want 24", n)
	}
	if len(h.publisher.order) != 0 {
		t.Errorf("published %v, want nothing", h.publisher.order)
	}
	if got := h.runs(observability.OutcomeNoData); got != 1 {
		t.Errorf("no data runs = %v, want 1", got)
	}
}

func TestController_NoMatchedHoursFallsBack(t *testing.T) {
	stale := func(pos models.Position) (*models.RawResponse, error) {
		return hourlyResponse([]string{"1999-01-01T00:00"}, map[string][]models.Value{
			"temperature_2m": {models.NumberValue(12)},
		}), nil
	}
	opts := testOptions(6)
	opts.EnableDailyWeather = false
	opts.EnableMarineDaily = false
	h := newHarness(t, opts, stale, stale)

	h.ctrl.Run(context.Background(), h.state)

	if h.fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", h.fallback.calls)
	}
	if len(h.publisher.order) != 0 {
		t.Errorf("published %v, want nothing", h.publisher.order)
	}
	if !h.state.LastUpdate().IsZero() {
		t.Errorf("lastUpdate = %v, want unchanged", h.state.LastUpdate())
	}
	if got := h.runs(observability.OutcomeNoData); got != 1 {
		t.Errorf("no data runs = %v, want 1", got)
	}
	if got := h.runs(observability.OutcomePublished); got != 0 {
		t.Errorf("published runs = %v, want 0", got)
	}
}

func TestController_DropsFailedHours(t *testing.T) {
	flaky := func(pos models.Position) (*models.RawResponse, error) {
		// from hour 1 on the track is north of 41.6
		if pos.Latitude > 41.6 {
			return nil, models.ErrFetchFailed
		}
		return okResponse(pos)
	}
	h := newHarness(t, testOptions(12), flaky, failResponse)

	h.ctrl.Run(context.Background(), h.state)

	if h.fallback.calls != 0 {
		t.Fatalf("fallback calls = %d, want 0", h.fallback.calls)
	}
	weather := h.publisher.hourly[models.DatasetWeather]
	if len(weather) == 0 || len(weather) >= 12 {
		t.Fatalf("weather records = %d, want some but not all hours", len(weather))
	}
	for _, rec := range weather {
		if rec.PredictedLatitude > 41.6 {
			t.Errorf("hour %d should have been dropped", rec.Hour)
		}
	}
	if _, ok := h.publisher.hourly[models.DatasetMarine]; ok {
		t.Error("marine published with no data")
	}
	if _, ok := h.publisher.daily[models.DatasetMarine]; ok {
		t.Error("marine daily published with no data")
	}
}

func TestController_ErrorsFallBack(t *testing.T) {
	tests := []struct {
		name    string
		weather fetchFunc
	}{
		{
			name: "unexpected error",
			weather: func(pos models.Position) (*models.RawResponse, error) {
				return nil, errors.New("decoder exploded")
			},
		},
		{
			name: "panic",
			weather: func(pos models.Position) (*models.RawResponse, error) {
				panic("nil map write")
			},
		},
		{
			name: "panic on one hour",
			weather: func(pos models.Position) (*models.RawResponse, error) {
				if pos.Latitude > 41.7 {
					panic("late failure")
				}
				return okResponse(pos)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testOptions(12), tt.weather, okResponse)

			h.ctrl.Run(context.Background(), h.state)

			if h.fallback.calls != 1 {
				t.Errorf("fallback calls = %d, want 1", h.fallback.calls)
			}
			if len(h.publisher.order) != 0 {
				t.Errorf("published %v, want nothing", h.publisher.order)
			}
			if got := h.runs(observability.OutcomeError); got != 1 {
				t.Errorf("error runs = %v, want 1", got)
			}
			if h.state.Phase() != PhaseIdle {
				t.Errorf("phase = %v, want idle", h.state.Phase())
			}
		})
	}
}

func TestController_PublishErrorFallsBack(t *testing.T) {
	h := newHarness(t, testOptions(6), okResponse, okResponse)
	h.publisher.err = errors.New("broker gone")

	h.ctrl.Run(context.Background(), h.state)

	if h.fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", h.fallback.calls)
	}
	if !h.state.LastUpdate().IsZero() {
		t.Error("lastUpdate set despite failed publish")
	}
}

func TestController_DisabledPasses(t *testing.T) {
	opts := testOptions(6)
	opts.EnableMarineHourly = false
	opts.EnableMarineDaily = false
	opts.EnableDailyWeather = false
	h := newHarness(t, opts, okResponse, okResponse)

	h.ctrl.Run(context.Background(), h.state)

	if got := h.fetcher.calls[models.DatasetMarine]; got != 0 {
		t.Errorf("marine fetches = %d, want 0", got)
	}
	if got := strings.Join(h.publisher.order, ","); got != "weather/hourly" {
		t.Errorf("published %q, want weather/hourly only", got)
	}
}

func TestController_ZoneAnnotation(t *testing.T) {
	h := newHarness(t, testOptions(6), okResponse, okResponse)
	h.ctrl.deps.Zones = fakeZones{}

	h.ctrl.Run(context.Background(), h.state)

	for _, rec := range h.publisher.hourly[models.DatasetWeather] {
		want := "ANZ250"
		if rec.PredictedLatitude > 41.6 {
			want = ""
		}
		if rec.Zone != want {
			t.Errorf("hour %d zone = %q, want %q", rec.Hour, rec.Zone, want)
		}
	}
}

func TestController_NilFallback(t *testing.T) {
	h := newHarness(t, testOptions(6), okResponse, okResponse)
	h.ctrl.deps.Fallback = nil
	h.state.SetEngaged(false)

	h.ctrl.Run(context.Background(), h.state)

	if !strings.Contains(h.state.Status(), "unavailable") {
		t.Errorf("status = %q", h.state.Status())
	}
}

func TestStationary_RunStationary(t *testing.T) {
	t.Run("waits for position", func(t *testing.T) {
		state := NewState(true)
		fetcher := newFakeFetcher(okResponse, okResponse)
		s := NewStationary(testOptions(6), Deps{Fetcher: fetcher, Publisher: newFakePublisher(state)})

		s.RunStationary(context.Background(), state)

		if state.Status() != "waiting for position" {
			t.Errorf("status = %q", state.Status())
		}
		if fetcher.total() != 0 {
			t.Errorf("fetches = %d, want 0", fetcher.total())
		}
	})

	t.Run("publishes current position", func(t *testing.T) {
		state := NewState(false)
		state.UpdatePosition(models.Position{Latitude: 41.5, Longitude: -70.6})
		fetcher := newFakeFetcher(okResponse, okResponse)
		pub := newFakePublisher(state)
		s := NewStationary(testOptions(6), Deps{
			Fetcher:   fetcher,
			Publisher: pub,
			Daily:     fakeDaily,
			Now:       func() time.Time { return baseTime },
		})

		s.RunStationary(context.Background(), state)

		if fetcher.total() != 2 {
			t.Errorf("fetches = %d, want 2", fetcher.total())
		}
		records := pub.hourly[models.DatasetWeather]
		if len(records) != 6 {
			t.Fatalf("weather records = %d, want 6", len(records))
		}
		for _, rec := range records {
			if rec.VesselMoving {
				t.Errorf("hour %d marked moving", rec.Hour)
			}
			if rec.PredictedLatitude != 41.5 {
				t.Errorf("hour %d latitude = %v", rec.Hour, rec.PredictedLatitude)
			}
		}
		if len(pub.daily[models.DatasetMarine]) != 1 {
			t.Error("marine daily not published")
		}
		if !state.LastUpdate().Equal(baseTime) {
			t.Errorf("lastUpdate = %v", state.LastUpdate())
		}
	})

	t.Run("failure only sets status", func(t *testing.T) {
		state := NewState(false)
		state.UpdatePosition(models.Position{Latitude: 41.5, Longitude: -70.6})
		s := NewStationary(testOptions(6), Deps{
			Fetcher:   newFakeFetcher(failResponse, failResponse),
			Publisher: newFakePublisher(state),
		})

		s.RunStationary(context.Background(), state)

		if !strings.Contains(state.Status(), "failed") {
			t.Errorf("status = %q", state.Status())
		}
		if !state.LastUpdate().IsZero() {
			t.Error("lastUpdate set on failure")
		}
	})
}
