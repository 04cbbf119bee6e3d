package device

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"ThymioNav/internal/model"
	"ThymioNav/internal/parser"
	"ThymioNav/internal/slot"
)

// Simulated proximity sensors, leftmost first, in degrees relative to the heading.
var proxAngles = []float64{30, 15, 0, -15, -30}

const (
	proxRange = 2.0    // grid units
	proxMax   = 4500.0 // reading at contact
)

// SimRobot is a kinematic differential-drive robot. It implements the motor
// link directly and can also stand in for the camera and for a serial bridge.
type SimRobot struct {
	ID           string
	MaxSpeed     float64
	SpeedPerUnit float64 // grid units per second per motor unit
	Wheelbase    float64
	Grid         *model.Grid // optional, enables proximity readings

	mu      sync.Mutex
	pose    model.Pose
	cmd     model.MotorCommand
	goal    model.Point
	hasGoal bool
}

// NewSimRobot places a simulated robot at start.
func NewSimRobot(start model.Pose, cfg model.RobotConfig, grid *model.Grid) *SimRobot {
	return &SimRobot{
		ID:           cfg.ID,
		MaxSpeed:     cfg.MaxSpeed,
		SpeedPerUnit: cfg.SpeedPerUnit,
		Wheelbase:    cfg.Wheelbase,
		Grid:         grid,
		pose:         start,
	}
}

// Limit returns the absolute wheel speed limit.
func (s *SimRobot) Limit() float64 { return s.MaxSpeed }

// SetMotorCommand clamps and applies c from the next Step on.
func (s *SimRobot) SetMotorCommand(_ context.Context, c model.MotorCommand) error {
	s.setCommand(c)
	return nil
}

func (s *SimRobot) setCommand(c model.MotorCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmd = c.Clamp(s.MaxSpeed)
}

// Command returns the command currently applied to the wheels.
func (s *SimRobot) Command() model.MotorCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd
}

// SetGoal places the goal marker the simulated camera reports.
func (s *SimRobot) SetGoal(p model.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goal, s.hasGoal = p, true
}

// Pose returns the true pose.
func (s *SimRobot) Pose() model.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose
}

// Step integrates the current command over dt seconds. A faster left wheel
// turns the robot clockwise on the image.
func (s *SimRobot) Step(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := (s.cmd.Left + s.cmd.Right) / 2 * s.SpeedPerUnit
	omega := 0.0
	if s.Wheelbase > 0 {
		omega = (s.cmd.Right - s.cmd.Left) * s.SpeedPerUnit / s.Wheelbase * 180 / math.Pi
	}
	rad := s.pose.Heading * math.Pi / 180
	x := s.pose.X + v*math.Cos(rad)*dt
	y := s.pose.Y - v*math.Sin(rad)*dt
	s.pose = model.NewPose(x, y, s.pose.Heading+omega*dt)
}

// Sensors returns what the robot would report right now.
func (s *SimRobot) Sensors() model.SensorSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := model.SensorSnapshot{MotorLeft: s.cmd.Left, MotorRight: s.cmd.Right}
	if s.Grid != nil {
		snap.Proximity = make([]float64, len(proxAngles))
		for i, a := range proxAngles {
			if d, ok := s.raycast(s.pose.Heading + a); ok {
				snap.Proximity[i] = proxMax * (1 - d/proxRange)
			}
		}
	}
	return snap
}

// raycast returns the distance to the first occupied cell along heading.
func (s *SimRobot) raycast(heading float64) (float64, bool) {
	rad := heading * math.Pi / 180
	dx, dy := math.Cos(rad), -math.Sin(rad)
	for d := 0.05; d <= proxRange; d += 0.05 {
		x, y := s.Grid.Cell(model.Point{X: s.pose.X + dx*d, Y: s.pose.Y + dy*d})
		if s.Grid.Occupied(x, y) {
			return d, true
		}
	}
	return 0, false
}

// Detection returns what an overhead camera would report right now.
func (s *SimRobot) Detection() model.Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Detection{RobotFound: true, Robot: s.pose, GoalFound: s.hasGoal, Goal: s.goal}
}

// Run advances the simulation every period and publishes the sensor reading
// and camera detection. sensors may be nil when a serial bridge serves them.
func (s *SimRobot) Run(ctx context.Context, period time.Duration, sensors *slot.Slot[model.SensorSnapshot],
	pose *slot.Slot[model.Pose], goal *slot.Slot[model.Point]) error {
	if period <= 0 {
		return errors.New("simulation period must be > 0")
	}
	log.Printf("[sim %s] started at %v", s.ID, s.Pose())
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	s.publish(sensors, pose, goal)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sim %s] stopped at %v", s.ID, s.Pose())
			return nil
		case <-ticker.C:
			s.Step(period.Seconds())
			s.publish(sensors, pose, goal)
		}
	}
}

func (s *SimRobot) publish(sensors *slot.Slot[model.SensorSnapshot], pose *slot.Slot[model.Pose], goal *slot.Slot[model.Point]) {
	if sensors != nil {
		snap := s.Sensors()
		snap.Time = time.Now()
		sensors.Publish(snap)
	}
	PublishDetection(s.Detection(), pose, goal)
}

// Serve plays the robot side of the serial protocol on dev: command lines are
// applied to the wheels and a sensor report is written every period.
func (s *SimRobot) Serve(ctx context.Context, dev Device, p parser.Parser, period time.Duration) error {
	if period <= 0 {
		return errors.New("serve period must be > 0")
	}
	next := time.Now().Add(period)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		wait := time.Until(next)
		if wait <= 0 {
			line, err := p.EncodeSensors(s.Sensors())
			if err != nil {
				return err
			}
			if err := dev.WriteLine(line); err != nil {
				return err
			}
			next = next.Add(period)
			continue
		}

		line, err := dev.ReadLine(wait)
		switch {
		case errors.Is(err, ErrTimeout):
			continue
		case err != nil:
			return err
		}
		c, err := p.DecodeCommand(line)
		if err != nil {
			log.Printf("[sim %s] skip command %q: %v", s.ID, line, err)
			continue
		}
		s.setCommand(c)
	}
}
