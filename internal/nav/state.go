package nav

import (
	"errors"
	"fmt"
	"time"

	"ThymioNav/internal/model"
)

// State is the supervisor state.
type State int

const (
	StatePlanningNeeded State = iota + 1
	StateFollowingPath
	StateGoalReached
	StateLost
)

func (s State) String() string {
	switch s {
	case StatePlanningNeeded:
		return "PLANNING_NEEDED"
	case StateFollowingPath:
		return "FOLLOWING_PATH"
	case StateGoalReached:
		return "GOAL_REACHED"
	case StateLost:
		return "LOST"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether the loop stops in s.
func (s State) Terminal() bool { return s == StateGoalReached || s == StateLost }

var (
	ErrInvalidConfig = errors.New("invalid navigator configuration")
	ErrNoGoal        = errors.New("no goal")
	ErrLost          = errors.New("robot lost")
	ErrLinkFailure   = errors.New("robot link failure")
	ErrPlanTimeout   = errors.New("planning timed out")
	ErrNoPlanner     = errors.New("no planner configured")
)

// Snapshot is a copy of the navigator state after a tick.
type Snapshot struct {
	RunID               string             `json:"run_id"`
	Tick                uint64             `json:"tick"`
	LastTick            time.Time          `json:"last_tick"`
	State               State              `json:"state"`
	HasPose             bool               `json:"has_pose"`
	Pose                model.Pose         `json:"pose"`
	HasGoal             bool               `json:"has_goal"`
	Goal                model.Point        `json:"goal"`
	Path                []model.Point      `json:"path"`
	ReplanningRequested bool               `json:"replanning_requested"`
	Distance            float64            `json:"distance_to_checkpoint"`
	Regime              string             `json:"regime,omitempty"`
	Command             model.MotorCommand `json:"command"`
	Avoiding            bool               `json:"avoiding"`
	Replans             int                `json:"replans"`
	LostReplans         int                `json:"lost_replans"`
	StaleTicks          int                `json:"stale_ticks"`
	SensorStaleTicks    int                `json:"sensor_stale_ticks"`
	Pops                int                `json:"pops"`
	LastError           string             `json:"last_error,omitempty"`
}
