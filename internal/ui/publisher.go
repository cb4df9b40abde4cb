package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ngmaloney/vessel-forecast/internal/models"
)

// ChannelPublisher hands published forecasts to the terminal UI. It
// satisfies projection.Publisher.
type ChannelPublisher struct {
	updates chan tea.Msg
}

// NewChannelPublisher creates a publisher with room for one full run
func NewChannelPublisher() *ChannelPublisher {
	return &ChannelPublisher{updates: make(chan tea.Msg, 4)}
}

// Updates is read by the model
func (p *ChannelPublisher) Updates() <-chan tea.Msg {
	return p.updates
}

// Publish forwards hourly records
func (p *ChannelPublisher) Publish(ctx context.Context, records []models.MergedForecastRecord, kind models.DatasetKind) error {
	out := make([]models.MergedForecastRecord, len(records))
	copy(out, records)
	return p.send(ctx, hourlyMsg{kind: kind, records: out})
}

// PublishDaily forwards daily records
func (p *ChannelPublisher) PublishDaily(ctx context.Context, daily []models.DailyRecord, kind models.DatasetKind) error {
	out := make([]models.DailyRecord, len(daily))
	copy(out, daily)
	return p.send(ctx, dailyMsg{kind: kind, days: out})
}

func (p *ChannelPublisher) send(ctx context.Context, msg tea.Msg) error {
	select {
	case p.updates <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
