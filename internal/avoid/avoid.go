// Package avoid reacts to the robot's front proximity sensors.
package avoid

import "ThymioNav/internal/model"

// Adjustment is the avoidance contribution for one tick. When Override is set
// Delta replaces the controller output instead of being added to it.
type Adjustment struct {
	Active   bool
	Override bool
	Delta    model.MotorCommand
}

// Apply combines the adjustment with the controller command.
func (a Adjustment) Apply(c model.MotorCommand) model.MotorCommand {
	switch {
	case !a.Active:
		return c
	case a.Override:
		return a.Delta
	default:
		return c.Add(a.Delta)
	}
}

// Braitenberg maps proximity readings to wheel speed offsets with one weight
// per sensor and wheel. Sensors are ordered left to right.
type Braitenberg struct {
	Threshold    float64
	Scale        float64
	WeightsLeft  []float64
	WeightsRight []float64
	Override     bool
}

// New builds an avoider from configuration.
func New(cfg model.AvoidanceConfig) *Braitenberg {
	return &Braitenberg{
		Threshold:    cfg.Threshold,
		Scale:        cfg.Scale,
		WeightsLeft:  cfg.WeightsLeft,
		WeightsRight: cfg.WeightsRight,
		Override:     cfg.Override,
	}
}

// Adjust returns an inactive adjustment unless some sensor reads at least
// Threshold.
func (b *Braitenberg) Adjust(env model.Environment, _ model.Pose) Adjustment {
	prox := env.Sensors.Proximity
	near := false
	for _, p := range prox {
		if p >= b.Threshold {
			near = true
			break
		}
	}
	if !near {
		return Adjustment{}
	}
	return Adjustment{
		Active:   true,
		Override: b.Override,
		Delta: model.MotorCommand{
			Left:  weigh(b.WeightsLeft, prox) * b.Scale,
			Right: weigh(b.WeightsRight, prox) * b.Scale,
		},
	}
}

func weigh(weights, prox []float64) float64 {
	sum := 0.0
	for i := 0; i < len(weights) && i < len(prox); i++ {
		sum += weights[i] * prox[i]
	}
	return sum
}
