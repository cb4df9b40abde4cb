package models

import "time"

// Position is a vessel fix. Projections always produce a new Position.
type Position struct {
	Latitude  float64   `json:"latitude"`  // degrees
	Longitude float64   `json:"longitude"` // degrees
	Timestamp time.Time `json:"timestamp"`
}

// MotionState is the vessel's navigation data as last reported by the feed.
// Nil fields have not been reported yet.
type MotionState struct {
	Heading         *float64  // radians, true
	SpeedOverGround *float64  // m/s
	CurrentPosition *Position
}

// Clone returns a deep copy so a run can hold a snapshot the feed cannot mutate
func (m MotionState) Clone() MotionState {
	var out MotionState
	if m.Heading != nil {
		h := *m.Heading
		out.Heading = &h
	}
	if m.SpeedOverGround != nil {
		s := *m.SpeedOverGround
		out.SpeedOverGround = &s
	}
	if m.CurrentPosition != nil {
		p := *m.CurrentPosition
		out.CurrentPosition = &p
	}
	return out
}
