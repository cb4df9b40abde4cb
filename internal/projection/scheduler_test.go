package projection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ngmaloney/vessel-forecast/internal/models"
)

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(0, -1)
	if s.BatchWidth != DefaultBatchWidth {
		t.Errorf("BatchWidth = %d, want %d", s.BatchWidth, DefaultBatchWidth)
	}
	if s.BatchDelay != DefaultBatchDelay {
		t.Errorf("BatchDelay = %v, want %v", s.BatchDelay, DefaultBatchDelay)
	}

	s = NewScheduler(3, 0)
	if s.BatchWidth != 3 || s.BatchDelay != 0 {
		t.Errorf("NewScheduler(3, 0) = %d/%v, want 3/0", s.BatchWidth, s.BatchDelay)
	}
}

func TestScheduler_RunBatches(t *testing.T) {
	s := NewScheduler(5, time.Second)

	var waits int
	s.wait = func(ctx context.Context, d time.Duration) error {
		if d != time.Second {
			t.Errorf("wait(%v), want 1s", d)
		}
		waits++
		return nil
	}

	var (
		mu        sync.Mutex
		completed int
		startedAt = make(map[int]int)
	)
	fetch := func(ctx context.Context, hour int) (*models.HourlyFetchResult, error) {
		mu.Lock()
		startedAt[hour] = completed
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		completed++
		mu.Unlock()
		return &models.HourlyFetchResult{Hour: hour}, nil
	}

	results, err := s.Run(context.Background(), 12, fetch)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 12 {
		t.Fatalf("len(results) = %d, want 12", len(results))
	}
	for i, r := range results {
		if r == nil || r.Hour != i {
			t.Errorf("results[%d] = %+v, want hour %d", i, r, i)
		}
	}

	// batches of 5, 5, 2: every call starts after the previous batch settled
	// and before any later batch has run
	for hour, done := range startedAt {
		lo := (hour / 5) * 5
		if done < lo || done >= lo+5 {
			t.Errorf("hour %d started with %d completed, want [%d, %d)", hour, done, lo, lo+5)
		}
	}
	if waits != 2 {
		t.Errorf("waits = %d, want 2", waits)
	}
}

func TestScheduler_ConcurrencyBound(t *testing.T) {
	s := NewScheduler(4, 0)

	var inFlight, peak int32
	fetch := func(ctx context.Context, hour int) (*models.HourlyFetchResult, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	}

	if _, err := s.Run(context.Background(), 10, fetch); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if peak > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", peak)
	}
}

func TestScheduler_FailedHoursAreNil(t *testing.T) {
	fetch := func(ctx context.Context, hour int) (*models.HourlyFetchResult, error) {
		if hour%2 == 1 {
			return nil, nil
		}
		return &models.HourlyFetchResult{Hour: hour}, nil
	}

	results, err := RunBatches(context.Background(), 6, 5, 0, fetch)
	if err != nil {
		t.Fatalf("RunBatches() error = %v", err)
	}
	for i, r := range results {
		if (i%2 == 1) != (r == nil) {
			t.Errorf("results[%d] = %v", i, r)
		}
	}
}

func TestScheduler_ErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	var calls int32
	fetch := func(ctx context.Context, hour int) (*models.HourlyFetchResult, error) {
		atomic.AddInt32(&calls, 1)
		if hour == 2 {
			return nil, boom
		}
		return &models.HourlyFetchResult{Hour: hour}, nil
	}

	results, err := RunBatches(context.Background(), 12, 5, 0, fetch)
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if results != nil {
		t.Errorf("results = %v, want nil", results)
	}
	// the failing batch settles but no further batch starts
	if calls != 5 {
		t.Errorf("calls = %d, want 5", calls)
	}
}

func TestScheduler_PanicBecomesError(t *testing.T) {
	fetch := func(ctx context.Context, hour int) (*models.HourlyFetchResult, error) {
		if hour == 1 {
			panic("bad response")
		}
		return nil, nil
	}

	_, err := RunBatches(context.Background(), 3, 5, 0, fetch)
	if err == nil {
		t.Fatal("Run() error = nil, want panic error")
	}
}

func TestScheduler_CancelledBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fetch := func(ctx context.Context, hour int) (*models.HourlyFetchResult, error) {
		cancel()
		return nil, nil
	}

	_, err := RunBatches(ctx, 10, 5, time.Hour, fetch)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestScheduler_ZeroHours(t *testing.T) {
	results, err := RunBatches(context.Background(), 0, 5, 0, func(ctx context.Context, hour int) (*models.HourlyFetchResult, error) {
		t.Error("fetch should not be called")
		return nil, nil
	})
	if err != nil || results != nil {
		t.Errorf("Run(0) = %v, %v, want nil, nil", results, err)
	}
}
