// Package nav implements the navigation supervisor: a fixed-period loop that
// plans, follows checkpoints, detects arrival and loss, and drives the robot
// link through the motion controller.
package nav

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"ThymioNav/internal/avoid"
	"ThymioNav/internal/control"
	"ThymioNav/internal/estimate"
	"ThymioNav/internal/model"
	"ThymioNav/internal/planner"
	"ThymioNav/internal/slot"
	"ThymioNav/internal/timeutil"
	"ThymioNav/internal/util"
)

// Estimator fuses the latest measurement and sensor reading into a pose.
type Estimator interface {
	Estimate(in estimate.Input) (model.Pose, error)
}

// Planner produces checkpoints from the robot to the goal.
type Planner interface {
	Plan(ctx context.Context, env model.Environment, robotSize float64, flags planner.Flags) ([]model.Point, error)
}

// Avoider contributes a local correction on top of the controller output.
type Avoider interface {
	Adjust(env model.Environment, pose model.Pose) avoid.Adjustment
}

// Link accepts motor commands. Limit is the absolute wheel speed bound.
type Link interface {
	SetMotorCommand(ctx context.Context, c model.MotorCommand) error
	Limit() float64
}

// Inputs are the slots the sampling tasks publish into.
type Inputs struct {
	Pose    *slot.Slot[model.Pose] // camera pose
	Goal    *slot.Slot[model.Point]
	Sensors *slot.Slot[model.SensorSnapshot]
}

// Deps are the navigator's collaborators. Link and Inputs.Pose are required;
// Planner may be nil only when InitialPath is set.
type Deps struct {
	Link        Link
	Estimator   Estimator
	Planner     Planner
	Avoider     Avoider
	Grid        *model.Grid
	Inputs      Inputs
	Clock       timeutil.Clock
	InitialPath []model.Point
	Snapshots   *slot.Slot[Snapshot]
}

// Navigator is the supervisor. Its state is owned by the goroutine calling
// Tick or Run.
type Navigator struct {
	cfg      model.NavigationConfig
	schedule control.Schedule
	deps     Deps
	clock    timeutil.Clock
	runID    string

	state       State
	path        []model.Point
	replan      bool
	pose        model.Pose
	hasPose     bool
	goal        model.Point
	hasGoal     bool
	poseSeq     uint64
	goalSeq     uint64
	sensorSeq   uint64
	staleTicks  int
	sensorStale int
	lostReplans int
	replans     int
	pops        int
	nextPlanAt  time.Time
	started     time.Time
	lastEst     time.Time
	tick        uint64
	lastTick    time.Time
	distance    float64
	regime      string
	cmd         model.MotorCommand
	avoiding    bool
	lastErr     error
	linkFailed  bool
}

// NewNavigator validates the configuration and collaborators.
func NewNavigator(cfg model.NavigationConfig, schedule control.Schedule, deps Deps) (*Navigator, error) {
	switch {
	case !(cfg.SpeedScale > 0) || math.IsInf(cfg.SpeedScale, 0):
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, control.ErrInvalidSpeedScale)
	case cfg.Period <= 0:
		return nil, fmt.Errorf("%w: period must be > 0", ErrInvalidConfig)
	case cfg.ReachThreshold <= 0 || cfg.LostThreshold <= cfg.ReachThreshold:
		return nil, fmt.Errorf("%w: need 0 < reach threshold (%v) < lost threshold (%v)",
			ErrInvalidConfig, cfg.ReachThreshold, cfg.LostThreshold)
	case cfg.ArrivalTolerance <= 0:
		return nil, fmt.Errorf("%w: arrival tolerance must be > 0", ErrInvalidConfig)
	case deps.Link == nil:
		return nil, fmt.Errorf("%w: no robot link", ErrInvalidConfig)
	case deps.Inputs.Pose == nil:
		return nil, fmt.Errorf("%w: no pose source", ErrInvalidConfig)
	case deps.Planner == nil && len(deps.InitialPath) == 0:
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, ErrNoPlanner)
	case cfg.Goal == nil && deps.Inputs.Goal == nil && len(deps.InitialPath) == 0:
		return nil, fmt.Errorf("%w: %w: no fixed goal, goal source or initial path", ErrInvalidConfig, ErrNoGoal)
	}

	n := &Navigator{
		cfg:      cfg,
		schedule: schedule,
		deps:     deps,
		clock:    deps.Clock,
		runID:    uuid.Must(uuid.NewV7()).String(),
		state:    StatePlanningNeeded,
	}
	if n.clock == nil {
		n.clock = timeutil.RealClock{}
	}
	if len(deps.InitialPath) > 0 {
		n.path = append([]model.Point(nil), deps.InitialPath...)
		n.state = StateFollowingPath
		n.goal, n.hasGoal = n.path[len(n.path)-1], true
	}
	if cfg.Goal != nil {
		n.goal, n.hasGoal = *cfg.Goal, true
	}
	return n, nil
}

// RunID identifies this navigation run in logs and telemetry.
func (n *Navigator) RunID() string { return n.runID }

// State returns the current supervisor state.
func (n *Navigator) State() State { return n.state }

// Tick runs one supervisory step. done reports that the loop must stop; err is
// set for terminal failures (link failure, lost, no goal).
func (n *Navigator) Tick(ctx context.Context) (done bool, err error) {
	if n.state.Terminal() {
		return true, nil
	}
	now := n.clock.Now()
	if n.tick == 0 {
		n.started = now
	}
	n.tick++
	n.lastTick = now
	n.lastErr = nil
	n.avoiding = false
	defer n.publish()

	sensors := n.observeSensors()
	n.observe(now, sensors)

	if !n.hasGoal {
		if n.cfg.GoalWait > 0 && now.Sub(n.started) > n.cfg.GoalWait {
			return n.terminate(ctx, StateLost, fmt.Errorf("%w: none received within %v", ErrNoGoal, n.cfg.GoalWait))
		}
		return n.hold(ctx, "waiting for goal")
	}
	if !n.hasPose {
		return n.hold(ctx, "waiting for pose")
	}
	if n.cfg.MaxStaleTicks > 0 && n.staleTicks > n.cfg.MaxStaleTicks {
		if !n.replan {
			util.Warn("[nav] no fresh pose for %d ticks, re-plan requested", n.staleTicks)
		}
		n.replan = true
		return n.hold(ctx, "stale pose")
	}
	if n.cfg.MaxStaleTicks > 0 && n.sensorStale > n.cfg.MaxStaleTicks {
		if !n.replan {
			util.Warn("[nav] no fresh sensor report for %d ticks, re-plan requested", n.sensorStale)
		}
		n.replan = true
		return n.hold(ctx, "stale sensors")
	}

	if n.pose.Dist(n.goal) < n.cfg.ArrivalTolerance {
		util.Info("[nav] goal %v reached at %v", n.goal, n.pose)
		return n.terminate(ctx, StateGoalReached, nil)
	}

	env := model.Environment{Grid: n.deps.Grid, Robot: n.pose, Goal: n.goal, Sensors: sensors}

	if n.state == StatePlanningNeeded || n.replan {
		if !n.planIfDue(ctx, env, now) {
			return n.hold(ctx, "no usable path")
		}
	}

	if len(n.path) > 0 {
		d := n.pose.Dist(n.path[0])
		switch {
		case d >= n.cfg.LostThreshold:
			n.replan = true
			n.lostReplans++
			util.Warn("[nav] %.2f from checkpoint %v, re-plan requested (%d)", d, n.path[0], n.lostReplans)
			if n.cfg.MaxReplans > 0 && n.lostReplans > n.cfg.MaxReplans {
				return n.terminate(ctx, StateLost,
					fmt.Errorf("%w: %d consecutive re-plans without progress", ErrLost, n.lostReplans))
			}
		case d <= n.cfg.ReachThreshold:
			util.Debug("[nav] checkpoint %v reached", n.path[0])
			n.path = n.path[1:]
			n.pops++
			n.lostReplans = 0
		}
	}

	target := n.goal
	if len(n.path) > 0 {
		target = n.path[0]
	}
	n.distance = n.pose.Dist(target)
	gains, err := n.schedule.Select(n.distance, n.cfg.SlowingDistance, n.cfg.SpeedScale)
	if err != nil {
		return n.terminate(ctx, StateLost, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	n.regime = n.schedule.Regime(n.distance, n.cfg.SlowingDistance).String()

	cmd := control.ComputeVelocities(n.pose.Point, target, gains.Angular, gains.Positional, n.pose.Heading, false)
	if n.deps.Avoider != nil {
		adj := n.deps.Avoider.Adjust(env, n.pose)
		n.avoiding = adj.Active
		cmd = adj.Apply(cmd)
	}
	if err := n.send(ctx, cmd.Clamp(n.deps.Link.Limit())); err != nil {
		return true, err
	}
	return false, nil
}

// observeSensors reads the sensor slot. Staleness is counted once the robot
// link has reported at least once.
func (n *Navigator) observeSensors() model.SensorSnapshot {
	if n.deps.Inputs.Sensors == nil {
		return model.SensorSnapshot{}
	}
	snap := n.deps.Inputs.Sensors.Load()
	switch {
	case !snap.Valid():
	case snap.Seq != n.sensorSeq:
		n.sensorSeq = snap.Seq
		n.sensorStale = 0
	default:
		n.sensorStale++
	}
	return snap.Value
}

// observe reads the pose and goal slots and runs the estimator.
func (n *Navigator) observe(now time.Time, sensors model.SensorSnapshot) {
	vision := n.deps.Inputs.Pose.Load()
	var meas *model.Pose
	if vision.Valid() && vision.Seq != n.poseSeq {
		n.poseSeq = vision.Seq
		n.staleTicks = 0
		m := vision.Value
		meas = &m
	} else if n.hasPose {
		n.staleTicks++
	}

	if n.deps.Estimator != nil {
		dt := 0.0
		if !n.lastEst.IsZero() {
			dt = now.Sub(n.lastEst).Seconds()
		}
		n.lastEst = now
		pose, err := n.deps.Estimator.Estimate(estimate.Input{Sensors: sensors, Measurement: meas, Dt: dt})
		switch {
		case err == nil:
			n.pose, n.hasPose = pose, true
		case errors.Is(err, estimate.ErrNotInitialized):
		default:
			n.lastErr = err
			util.Warn("[nav] estimator: %v, keeping last pose", err)
		}
	} else if meas != nil {
		n.pose, n.hasPose = *meas, true
	}

	if n.deps.Inputs.Goal == nil {
		return
	}
	goal := n.deps.Inputs.Goal.Load()
	if !goal.Valid() || goal.Seq == n.goalSeq {
		return
	}
	n.goalSeq = goal.Seq
	if n.hasGoal && !goal.Value.Equal(n.goal) {
		util.Info("[nav] goal moved %v -> %v, re-plan requested", n.goal, goal.Value)
		n.replan = true
	}
	n.goal, n.hasGoal = goal.Value, true
}

// planIfDue plans when the backoff allows it and reports whether a usable path
// exists afterwards.
func (n *Navigator) planIfDue(ctx context.Context, env model.Environment, now time.Time) bool {
	if now.Before(n.nextPlanAt) {
		return n.plausible()
	}
	path, err := n.plan(ctx, env)
	if err != nil {
		n.lastErr = err
		n.nextPlanAt = now.Add(n.cfg.PlanBackoff)
		util.Warn("[nav] planning failed: %v (retry in %v)", err, n.cfg.PlanBackoff)
		return n.plausible()
	}
	n.path = path
	n.replan = false
	n.replans++
	n.nextPlanAt = time.Time{}
	if n.state != StateFollowingPath {
		util.Info("[nav] %s -> %s with %d checkpoints", n.state, StateFollowingPath, len(path))
	}
	n.state = StateFollowingPath
	return true
}

// plausible reports whether the current path can still be followed.
func (n *Navigator) plausible() bool {
	return len(n.path) > 0 && n.pose.Dist(n.path[0]) < n.cfg.LostThreshold
}

// plan calls the planner off the loop goroutine, bounded by PlanTimeout.
func (n *Navigator) plan(ctx context.Context, env model.Environment) ([]model.Point, error) {
	if n.deps.Planner == nil {
		return nil, ErrNoPlanner
	}
	pctx, cancel := ctx, context.CancelFunc(func() {})
	if n.cfg.PlanTimeout > 0 {
		pctx, cancel = context.WithTimeout(ctx, n.cfg.PlanTimeout)
	}
	defer cancel()

	type result struct {
		path []model.Point
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := n.deps.Planner.Plan(pctx, env, n.cfg.RobotSize, planner.Flags{AllowDiagonal: n.cfg.AllowDiagonal})
		ch <- result{p, err}
	}()

	select {
	case r := <-ch:
		if errors.Is(r.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrPlanTimeout, n.cfg.PlanTimeout)
		}
		if r.err == nil && len(r.path) == 0 {
			return nil, errors.New("planner returned an empty path")
		}
		return r.path, r.err
	case <-pctx.Done():
		if errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrPlanTimeout, n.cfg.PlanTimeout)
		}
		return nil, pctx.Err()
	}
}

// hold sends a zero command without leaving the current state.
func (n *Navigator) hold(ctx context.Context, reason string) (bool, error) {
	util.Debug("[nav] hold: %s", reason)
	n.distance, n.regime = 0, ""
	if err := n.send(ctx, model.Stop); err != nil {
		return true, err
	}
	return false, nil
}

// terminate moves to a terminal state and emits the final zero command.
func (n *Navigator) terminate(ctx context.Context, s State, cause error) (bool, error) {
	n.state = s
	n.lastErr = cause
	if err := n.send(ctx, model.Stop); err != nil {
		return true, err
	}
	return true, cause
}

// send dispatches c. On failure one immediate stop is attempted and the
// wrapped failure is returned.
func (n *Navigator) send(ctx context.Context, c model.MotorCommand) error {
	err := n.deps.Link.SetMotorCommand(ctx, c)
	if err == nil {
		n.cmd = c
		return nil
	}
	n.linkFailed = true
	if stopErr := n.deps.Link.SetMotorCommand(context.Background(), model.Stop); stopErr != nil {
		util.Error("[nav] stop after link failure also failed: %v", stopErr)
	} else {
		n.cmd = model.Stop
	}
	n.lastErr = fmt.Errorf("%w: %w", ErrLinkFailure, err)
	return n.lastErr
}

// Snapshot returns a copy of the current state.
func (n *Navigator) Snapshot() Snapshot {
	s := Snapshot{
		RunID:               n.runID,
		Tick:                n.tick,
		LastTick:            n.lastTick,
		State:               n.state,
		HasPose:             n.hasPose,
		Pose:                n.pose,
		HasGoal:             n.hasGoal,
		Goal:                n.goal,
		Path:                append([]model.Point(nil), n.path...),
		ReplanningRequested: n.replan,
		Distance:            n.distance,
		Regime:              n.regime,
		Command:             n.cmd,
		Avoiding:            n.avoiding,
		Replans:             n.replans,
		LostReplans:         n.lostReplans,
		StaleTicks:          n.staleTicks,
		SensorStaleTicks:    n.sensorStale,
		Pops:                n.pops,
	}
	if n.lastErr != nil {
		s.LastError = n.lastErr.Error()
	}
	return s
}

func (n *Navigator) publish() {
	if n.deps.Snapshots != nil {
		n.deps.Snapshots.Publish(n.Snapshot())
	}
}
