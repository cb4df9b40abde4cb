package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ngmaloney/vessel-forecast/internal/models"
	"github.com/ngmaloney/vessel-forecast/internal/projection"
)

// Subscriber registers topic handlers on the bus
type Subscriber interface {
	Subscribe(topic string, handler MessageHandler) error
}

type positionMessage struct {
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Timestamp *time.Time `json:"timestamp"`
}

type numberMessage struct {
	Value *float64 `json:"value"`
}

type boolMessage struct {
	Value *bool `json:"value"`
}

// NavigationSubscriber feeds navigation data and the engaged flag from the
// bus into the controller state.
type NavigationSubscriber struct {
	state  *projection.State
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewNavigationSubscriber creates a subscriber for topics below prefix
func NewNavigationSubscriber(state *projection.State, prefix string, logger *slog.Logger) *NavigationSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &NavigationSubscriber{
		state:  state,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger.With("component", "navigation"),
		now:    time.Now,
	}
}

func (n *NavigationSubscriber) positionTopic() string { return n.prefix + "/navigation/position" }
func (n *NavigationSubscriber) headingTopic() string { return n.prefix + "/navigation/headingTrue" }
func (n *NavigationSubscriber) speedTopic() string { return n.prefix + "/navigation/speedOverGround" }
func (n *NavigationSubscriber) engagedTopic() string { return n.prefix + "/forecast/engaged" }

// Topics lists every topic the subscriber listens on
func (n *NavigationSubscriber) Topics() []string {
	return []string{n.positionTopic(), n.headingTopic(), n.speedTopic(), n.engagedTopic()}
}

// Register subscribes to every navigation topic
func (n *NavigationSubscriber) Register(sub Subscriber) error {
	for _, topic := range n.Topics() {
		if err := sub.Subscribe(topic, n.HandleMessage); err != nil {
			return err
		}
	}
	return nil
}

// HandleMessage applies one bus message to the state. Invalid payloads are
// logged and dropped.
func (n *NavigationSubscriber) HandleMessage(topic string, payload []byte) {
	n.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var err error
	switch topic {
	case n.positionTopic():
		err = n.handlePosition(payload)
	case n.headingTopic():
		err = n.handleNumber(payload, func(v float64) error {
			if v < 0 || v > 2*math.Pi {
				return fmt.Errorf("heading out of range: %f (must be 0-2π rad)", v)
			}
			n.state.UpdateHeading(v)
			return nil
		})
	case n.speedTopic():
		err = n.handleNumber(payload, func(v float64) error {
			if v < 0 {
				return fmt.Errorf("speed must not be negative: %f", v)
			}
			n.state.UpdateSpeed(v)
			return nil
		})
	case n.engagedTopic():
		var msg boolMessage
		if err = json.Unmarshal(payload, &msg); err == nil {
			if msg.Value == nil {
				err = fmt.Errorf("value is required")
			} else {
				n.state.SetEngaged(*msg.Value)
				n.logger.Info("moving forecast engaged changed", "engaged", *msg.Value)
			}
		}
	default:
		n.logger.Debug("ignoring message on unknown topic", "topic", topic)
		return
	}

	if err != nil {
		n.logger.Warn("invalid navigation message",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
	}
}

func (n *NavigationSubscriber) handlePosition(payload []byte) error {
	var msg positionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	if msg.Latitude == nil || msg.Longitude == nil {
		return fmt.Errorf("latitude and longitude are required")
	}
	if *msg.Latitude < -90 || *msg.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %f", *msg.Latitude)
	}
	if *msg.Longitude < -180 || *msg.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %f", *msg.Longitude)
	}

	pos := models.Position{Latitude: *msg.Latitude, Longitude: *msg.Longitude, Timestamp: n.now()}
	if msg.Timestamp != nil {
		pos.Timestamp = *msg.Timestamp
	}
	n.state.UpdatePosition(pos)
	return nil
}

func (n *NavigationSubscriber) handleNumber(payload []byte, apply func(float64) error) error {
	var msg numberMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	if msg.Value == nil {
		return fmt.Errorf("value is required")
	}
	return apply(*msg.Value)
}
