package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ngmaloney/vessel-forecast/internal/models"
	"github.com/ngmaloney/vessel-forecast/internal/openmeteo"
)

// Sender delivers one message to the bus
type Sender interface {
	Send(ctx context.Context, topic string, payload []byte, retained bool) error
}

// HourlyPayload is the retained message published for an hourly forecast
type HourlyPayload struct {
	Kind        models.DatasetKind `json:"kind"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Moving      bool               `json:"moving"`
	Records     []RecordPayload    `json:"records"`
}

// RecordPayload is one hour with bus-keyed fields
type RecordPayload struct {
	Hour         int                     `json:"hour"`
	Timestamp    time.Time               `json:"timestamp"`
	Latitude     float64                 `json:"latitude"`
	Longitude    float64                 `json:"longitude"`
	VesselMoving bool                    `json:"vesselMoving"`
	Zone         string                  `json:"zone,omitempty"`
	Fields       map[string]models.Value `json:"fields"`
}

// DailyPayload is the retained message published for a daily forecast
type DailyPayload struct {
	Kind        models.DatasetKind `json:"kind"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Days        []DayPayload       `json:"days"`
}

// DayPayload is one day with bus-keyed fields
type DayPayload struct {
	Date   string                  `json:"date"`
	Fields map[string]models.Value `json:"fields"`
}

// Publisher implements projection.Publisher on top of a Sender
type Publisher struct {
	sender Sender
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a publisher writing below prefix, e.g. vessels/self
func NewPublisher(sender Sender, prefix string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		sender: sender,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger.With("component", "publisher"),
		now:    time.Now,
	}
}

// HourlyTopic returns the topic of the hourly forecast for kind
func (p *Publisher) HourlyTopic(kind models.DatasetKind) string {
	return fmt.Sprintf("%s/forecast/%s/hourly", p.prefix, kind)
}

// DailyTopic returns the topic of the daily forecast for kind
func (p *Publisher) DailyTopic(kind models.DatasetKind) string {
	return fmt.Sprintf("%s/forecast/%s/daily", p.prefix, kind)
}

// Publish sends the hourly records for kind as one retained message
func (p *Publisher) Publish(ctx context.Context, records []models.MergedForecastRecord, kind models.DatasetKind) error {
	payload := BuildHourlyPayload(kind, records, p.now())
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal hourly forecast: %w", err)
	}

	topic := p.HourlyTopic(kind)
	if err := p.sender.Send(ctx, topic, data, true); err != nil {
		return err
	}

	p.logger.Debug("published hourly forecast", "topic", topic, "records", len(records), "moving", payload.Moving)
	return nil
}

// PublishDaily sends the daily records for kind as one retained message
func (p *Publisher) PublishDaily(ctx context.Context, daily []models.DailyRecord, kind models.DatasetKind) error {
	payload := BuildDailyPayload(kind, daily, p.now())
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal daily forecast: %w", err)
	}

	topic := p.DailyTopic(kind)
	if err := p.sender.Send(ctx, topic, data, true); err != nil {
		return err
	}

	p.logger.Debug("published daily forecast", "topic", topic, "days", len(daily))
	return nil
}

// BuildHourlyPayload translates records into the bus representation
func BuildHourlyPayload(kind models.DatasetKind, records []models.MergedForecastRecord, at time.Time) HourlyPayload {
	payload := HourlyPayload{
		Kind:        kind,
		GeneratedAt: at.UTC(),
		Records:     make([]RecordPayload, 0, len(records)),
	}
	for _, r := range records {
		if r.VesselMoving {
			payload.Moving = true
		}
		payload.Records = append(payload.Records, RecordPayload{
			Hour:         r.Hour,
			Timestamp:    r.Timestamp.UTC(),
			Latitude:     r.PredictedLatitude,
			Longitude:    r.PredictedLongitude,
			VesselMoving: r.VesselMoving,
			Zone:         r.Zone,
			Fields:       openmeteo.Translate(r.Fields),
		})
	}
	return payload
}

// BuildDailyPayload translates daily records into the bus representation
func BuildDailyPayload(kind models.DatasetKind, daily []models.DailyRecord, at time.Time) DailyPayload {
	payload := DailyPayload{
		Kind:        kind,
		GeneratedAt: at.UTC(),
		Days:        make([]DayPayload, 0, len(daily)),
	}
	for _, d := range daily {
		payload.Days = append(payload.Days, DayPayload{
			Date:   d.Date.Format("2006-01-02"),
			Fields: openmeteo.Translate(d.Fields),
		})
	}
	return payload
}
