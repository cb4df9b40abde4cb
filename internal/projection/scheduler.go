package projection

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ngmaloney/vessel-forecast/internal/models"
)

const (
	DefaultBatchWidth = 5
	DefaultBatchDelay = 200 * time.Millisecond
)

// FetchHourFunc fetches forecast data for one projected hour. A nil result
// with a nil error means the hour failed and is dropped. A non-nil error
// aborts the whole schedule.
type FetchHourFunc func(ctx context.Context, hour int) (*models.HourlyFetchResult, error)

// Scheduler dispatches one fetch per hour in fixed-width concurrent batches
type Scheduler struct {
	BatchWidth int
	BatchDelay time.Duration

	// wait pauses between batches; replaced in tests
	wait func(ctx context.Context, d time.Duration) error
}

// NewScheduler returns a scheduler, substituting defaults for non-positive values
func NewScheduler(width int, delay time.Duration) *Scheduler {
	if width <= 0 {
		width = DefaultBatchWidth
	}
	if delay < 0 {
		delay = DefaultBatchDelay
	}
	return &Scheduler{BatchWidth: width, BatchDelay: delay, wait: sleepContext}
}

// Run fetches hours [0, hourCount). The returned slice is indexed by hour and
// holds nil for failed hours. Every call in a batch settles before the next
// batch starts; siblings are never cancelled when one of them fails.
func (s *Scheduler) Run(ctx context.Context, hourCount int, fetch FetchHourFunc) ([]*models.HourlyFetchResult, error) {
	if hourCount <= 0 {
		return nil, nil
	}

	width := s.BatchWidth
	if width <= 0 {
		width = DefaultBatchWidth
	}
	wait := s.wait
	if wait == nil {
		wait = sleepContext
	}

	results := make([]*models.HourlyFetchResult, hourCount)
	for start := 0; start < hourCount; start += width {
		if start > 0 && s.BatchDelay > 0 {
			if err := wait(ctx, s.BatchDelay); err != nil {
				return nil, err
			}
		}

		end := min(start+width, hourCount)

		var g errgroup.Group
		for hour := start; hour < end; hour++ {
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("hour %d: panic: %v", hour, r)
					}
				}()

				res, err := fetch(ctx, hour)
				if err != nil {
					return fmt.Errorf("hour %d: %w", hour, err)
				}
				results[hour] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// RunBatches runs a one-off schedule with the given width and delay
func RunBatches(ctx context.Context, hourCount, batchWidth int, delay time.Duration, fetch FetchHourFunc) ([]*models.HourlyFetchResult, error) {
	return NewScheduler(batchWidth, delay).Run(ctx, hourCount, fetch)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
