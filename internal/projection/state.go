package projection

import (
	"sync"
	"time"

	"github.com/ngmaloney/vessel-forecast/internal/models"
)

// Phase is the controller's position in a projection run
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseValidating
	PhaseProjecting
	PhaseMerging
	PhasePublishing
	PhaseFallingBack
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseValidating:
		return "validating"
	case PhaseProjecting:
		return "projecting"
	case PhaseMerging:
		return "merging"
	case PhasePublishing:
		return "publishing"
	case PhaseFallingBack:
		return "falling back"
	}
	return "unknown"
}

// State is the host state shared between the navigation feed and the
// controller. The feed writes motion data. The engaged flag is set at startup
// or by the operator command topic. Only the controller writes the phase,
// status and last update time.
type State struct {
	mu         sync.RWMutex
	motion     models.MotionState
	engaged    bool
	lastUpdate time.Time
	status     string
	phase      Phase
}

// Snapshot is an immutable copy of State taken at the start of a run
type Snapshot struct {
	Motion     models.MotionState
	Engaged    bool
	LastUpdate time.Time
	Status     string
	Phase      Phase
}

// NewState returns an idle state with the given engaged flag
func NewState(engaged bool) *State {
	return &State{engaged: engaged, status: "waiting for first run"}
}

// Snapshot copies the current state
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Motion:     s.motion.Clone(),
		Engaged:    s.engaged,
		LastUpdate: s.lastUpdate,
		Status:     s.status,
		Phase:      s.phase,
	}
}

// UpdatePosition records a new position fix
func (s *State) UpdatePosition(pos models.Position) {
	s.mu.Lock()
	s.motion.CurrentPosition = &pos
	s.mu.Unlock()
}

// UpdateHeading records a new true heading in radians
func (s *State) UpdateHeading(rad float64) {
	s.mu.Lock()
	s.motion.Heading = &rad
	s.mu.Unlock()
}

// UpdateSpeed records a new speed over ground in m/s
func (s *State) UpdateSpeed(mps float64) {
	s.mu.Lock()
	s.motion.SpeedOverGround = &mps
	s.mu.Unlock()
}

// SetEngaged turns moving-vessel forecasting on or off
func (s *State) SetEngaged(engaged bool) {
	s.mu.Lock()
	s.engaged = engaged
	s.mu.Unlock()
}

// Restore loads previously persisted values, typically at startup
func (s *State) Restore(motion models.MotionState, engaged bool, lastUpdate time.Time) {
	s.mu.Lock()
	s.motion = motion.Clone()
	s.engaged = engaged
	s.lastUpdate = lastUpdate
	s.mu.Unlock()
}

// Status returns the human readable outcome of the latest run
func (s *State) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Phase returns the phase of the run in flight, or PhaseIdle
func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// LastUpdate returns when a forecast was last published
func (s *State) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

func (s *State) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *State) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *State) markUpdated(at time.Time, status string) {
	s.mu.Lock()
	s.lastUpdate = at
	s.status = status
	s.mu.Unlock()
}
