package model

import "time"

// MotorCommand is a pair of wheel velocities in robot motor units.
type MotorCommand struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// Stop is the zero command.
var Stop = MotorCommand{}

// IsStop reports whether both wheels are commanded to zero.
func (c MotorCommand) IsStop() bool { return c.Left == 0 && c.Right == 0 }

// Add returns the wheel-wise sum of c and d.
func (c MotorCommand) Add(d MotorCommand) MotorCommand {
	return MotorCommand{Left: c.Left + d.Left, Right: c.Right + d.Right}
}

// Clamp bounds both wheels to [-limit, limit]. A non-positive limit leaves the
// command untouched.
func (c MotorCommand) Clamp(limit float64) MotorCommand {
	if limit <= 0 {
		return c
	}
	return MotorCommand{Left: clamp(c.Left, -limit, limit), Right: clamp(c.Right, -limit, limit)}
}

// SensorSnapshot is one reading of the robot's sensor variables.
type SensorSnapshot struct {
	Time       time.Time `json:"time"`
	MotorLeft  float64   `json:"motor_left"`
	MotorRight float64   `json:"motor_right"`
	Proximity  []float64 `json:"proximity,omitempty"`
}

// Detection is the result of processing one camera frame. Found flags are false
// when the marker was not visible in the frame.
type Detection struct {
	Time       time.Time `json:"time"`
	RobotFound bool      `json:"robot_found"`
	Robot      Pose      `json:"robot"`
	GoalFound  bool      `json:"goal_found"`
	Goal       Point     `json:"goal"`
}

// clamp keeps value inside [lo, hi].
func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
