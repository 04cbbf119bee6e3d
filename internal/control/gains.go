package control

import (
	"errors"
	"fmt"
	"math"

	"ThymioNav/internal/model"
)

// ErrInvalidSpeedScale is returned when the speed scale is zero, negative or not finite.
var ErrInvalidSpeedScale = errors.New("speed scale must be a positive finite number")

// Gains are the proportional gains used by ComputeVelocities for one tick.
type Gains struct {
	Angular    float64
	Positional float64
}

// Regime names the gain set that was selected.
type Regime int

const (
	RegimeNear Regime = iota + 1
	RegimeFar
)

func (r Regime) String() string {
	switch r {
	case RegimeNear:
		return "NEAR"
	case RegimeFar:
		return "FAR"
	default:
		return fmt.Sprintf("Regime(%d)", int(r))
	}
}

// Schedule holds the unscaled gains of both regimes.
//
// The regime is picked from a single distance sample with no dead-band, so a
// robot hovering at the threshold can switch gain sets every tick.
type Schedule struct {
	Far  Gains
	Near Gains
}

// DefaultSchedule favors heading correction far from the checkpoint and forward
// motion close to it.
func DefaultSchedule() Schedule {
	return Schedule{
		Far:  Gains{Angular: 3.0, Positional: 0.8},
		Near: Gains{Angular: 1.2, Positional: 1.0},
	}
}

// ScheduleFromConfig builds a Schedule from the gains section of the config.
func ScheduleFromConfig(cfg model.GainsConfig) Schedule {
	return Schedule{
		Far:  Gains{Angular: cfg.FarAngular, Positional: cfg.FarPositional},
		Near: Gains{Angular: cfg.NearAngular, Positional: cfg.NearPositional},
	}
}

// Regime returns RegimeFar when distance is strictly greater than the slowing
// threshold and RegimeNear otherwise; a distance equal to the threshold is near.
func (s Schedule) Regime(distance, slowingDistance float64) Regime {
	if distance > slowingDistance {
		return RegimeFar
	}
	return RegimeNear
}

// Select returns the gains for distance, divided by speedScale.
func (s Schedule) Select(distance, slowingDistance, speedScale float64) (Gains, error) {
	if !(speedScale > 0) || math.IsInf(speedScale, 1) {
		return Gains{}, fmt.Errorf("%w: %v", ErrInvalidSpeedScale, speedScale)
	}
	g := s.Near
	if s.Regime(distance, slowingDistance) == RegimeFar {
		g = s.Far
	}
	return Gains{Angular: g.Angular / speedScale, Positional: g.Positional / speedScale}, nil
}

// SelectGains applies the default schedule.
func SelectGains(distance, slowingDistance, speedScale float64) (Gains, error) {
	return DefaultSchedule().Select(distance, slowingDistance, speedScale)
}
