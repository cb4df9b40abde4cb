package projection

import (
	"github.com/ngmaloney/vessel-forecast/internal/geo"
	"github.com/ngmaloney/vessel-forecast/internal/models"
)

// IsMoving reports whether speedMps is strictly above thresholdKnots
func IsMoving(speedMps, thresholdKnots float64) bool {
	return speedMps > geo.KnotsToMetersPerSecond(thresholdKnots)
}

// ShouldProject reports whether a run can use projected positions. Any
// missing prerequisite sends the controller down the stationary path.
func ShouldProject(motion models.MotionState, engaged bool, thresholdKnots float64) bool {
	if motion.CurrentPosition == nil || motion.Heading == nil || motion.SpeedOverGround == nil {
		return false
	}
	if !IsMoving(*motion.SpeedOverGround, thresholdKnots) {
		return false
	}
	return engaged
}
