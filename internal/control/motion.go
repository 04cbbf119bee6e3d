// Package control implements the differential-drive motion controller and the
// distance-based gain scheduler.
package control

import (
	"math"

	"ThymioNav/internal/model"
)

// Terms are the two components of a differential-drive command before mixing.
type Terms struct {
	AngleError float64 // degrees, in (-180, 180]
	Angular    float64
	Positional float64
}

// ComputeTerms returns the angle error and the angular/positional terms that
// drive the robot at position with the given heading towards goal.
func ComputeTerms(position, goal model.Point, angularGain, positionalGain, heading float64) Terms {
	angleError := model.NormalizeAngle(heading - position.BearingTo(goal))
	return Terms{
		AngleError: angleError,
		Angular:    angularGain * angleError,
		Positional: positionalGain * (180 - math.Abs(angleError)),
	}
}

// Mix turns the terms into wheel velocities: turning contributes oppositely to
// each wheel, translation equally.
func (t Terms) Mix() model.MotorCommand {
	return model.MotorCommand{
		Left:  t.Angular + t.Positional,
		Right: -t.Angular + t.Positional,
	}
}

// ComputeVelocities maps the current pose error to left/right wheel velocities.
// When goalReached is set it returns a hard stop regardless of the other inputs.
func ComputeVelocities(position, goal model.Point, angularGain, positionalGain, heading float64, goalReached bool) model.MotorCommand {
	if goalReached {
		return model.Stop
	}
	return ComputeTerms(position, goal, angularGain, positionalGain, heading).Mix()
}
