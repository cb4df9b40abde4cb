package ui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ngmaloney/vessel-forecast/internal/models"
	"github.com/ngmaloney/vessel-forecast/internal/projection"
)

var errFeedClosed = errors.New("forecast feed closed")

// Runner performs one forecast run against the shared state
type Runner interface {
	Run(ctx context.Context, state *projection.State)
}

// hourlyMsg carries one published hourly forecast
type hourlyMsg struct {
	kind    models.DatasetKind
	records []models.MergedForecastRecord
}

// dailyMsg carries one published daily forecast
type dailyMsg struct {
	kind models.DatasetKind
	days []models.DailyRecord
}

// runFinishedMsg is sent when a forecast run returns
type runFinishedMsg struct {
	snapshot projection.Snapshot
}

// refreshMsg triggers a scheduled run; stale generations are ignored
type refreshMsg struct {
	gen int
}

// errMsg is a message type for errors
type errMsg struct {
	err error
}

// runForecast performs a run in the background
func runForecast(runner Runner, state *projection.State, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		runner.Run(ctx, state)
		return runFinishedMsg{snapshot: state.Snapshot()}
	}
}

// waitForUpdate blocks until the publisher delivers a forecast
func waitForUpdate(updates <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-updates
		if !ok {
			return errMsg{err: errFeedClosed}
		}
		return msg
	}
}

// scheduleRefresh fires a refreshMsg after d; zero disables it
func scheduleRefresh(d time.Duration, gen int) tea.Cmd {
	if d <= 0 {
		return nil
	}
	return tea.Tick(d, func(time.Time) tea.Msg {
		return refreshMsg{gen: gen}
	})
}
