// Package core wires configuration into a running navigator: the robot link
// and its sampling tasks, the camera receiver, the estimator, planner and
// avoider, and the telemetry server.
package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"ThymioNav/internal/avoid"
	"ThymioNav/internal/control"
	"ThymioNav/internal/device"
	"ThymioNav/internal/estimate"
	"ThymioNav/internal/model"
	"ThymioNav/internal/nav"
	"ThymioNav/internal/parser"
	"ThymioNav/internal/planner"
	"ThymioNav/internal/slot"
	"ThymioNav/internal/telemetry"
	"ThymioNav/internal/util"
)

// defaultGridSize is used when no map is configured.
const defaultGridSize = 50

// Options select how the robot is reached.
type Options struct {
	// Simulate replaces the robot and camera with a kinematic simulator.
	Simulate bool
	// VirtualSerial serves the simulator over a socat pty pair.
	VirtualSerial bool
	// Start overrides the simulator's initial pose.
	Start *model.Pose
}

// System owns every component of one navigation run.
type System struct {
	Config model.Config
	Grid   *model.Grid

	Inputs    nav.Inputs
	Snapshots *slot.Slot[nav.Snapshot]

	Robot     *Robot
	Camera    *device.Camera
	Navigator *nav.Navigator
	Telemetry *telemetry.Server

	mu     sync.Mutex
	cancel context.CancelFunc
	stop   bool
}

// NewSystem validates cfg and constructs all components. Hardware is opened
// here; call Close when Run is not used.
func NewSystem(ctx context.Context, cfg model.Config, opts Options) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	grid, err := loadGrid(cfg.Map)
	if err != nil {
		return nil, err
	}
	if cfg.Navigation.Goal == nil && grid.Goal != nil {
		g := *grid.Goal
		cfg.Navigation.Goal = &g
	}

	s := &System{
		Config: cfg,
		Grid:   grid,
		Inputs: nav.Inputs{
			Pose:    slot.New[model.Pose](),
			Goal:    slot.New[model.Point](),
			Sensors: slot.New[model.SensorSnapshot](),
		},
		Snapshots: slot.New[nav.Snapshot](),
	}

	simulate := opts.Simulate || cfg.Robot.Device == ""
	switch {
	case simulate:
		sim := device.NewSimRobot(startPose(opts, grid), cfg.Robot, grid)
		if cfg.Navigation.Goal != nil {
			sim.SetGoal(*cfg.Navigation.Goal)
		}
		if opts.VirtualSerial {
			s.Robot, err = newVirtualSerialRobot(ctx, sim, cfg.Robot, s.Inputs)
			if err != nil {
				return nil, fmt.Errorf("virtual serial: %w", err)
			}
		} else {
			s.Robot = newSimulatedRobot(sim, cfg.Robot, s.Inputs)
		}
	default:
		if cfg.Camera.UDPAddr == "" {
			return nil, fmt.Errorf("%w: camera.udp_addr is required with a hardware robot", model.ErrConfig)
		}
		p, err := parser.New(cfg.Camera.WireFormat)
		if err != nil {
			return nil, fmt.Errorf("%w: camera: %v", model.ErrConfig, err)
		}
		s.Camera = device.NewCamera(cfg.Camera.UDPAddr, cfg.Camera.ReadBuffer, p)
		s.Robot, err = newHardwareRobot(cfg.Robot, s.Inputs.Sensors)
		if err != nil {
			return nil, err
		}
	}

	deps := nav.Deps{
		Link:      s.Robot.Link,
		Estimator: estimate.NewKalman(cfg.Estimator, cfg.Robot),
		Planner:   planner.New(grid),
		Grid:      grid,
		Inputs:    s.Inputs,
		Snapshots: s.Snapshots,
	}
	if cfg.Avoidance.Enabled {
		deps.Avoider = avoid.New(cfg.Avoidance)
	}
	s.Navigator, err = nav.NewNavigator(cfg.Navigation, control.ScheduleFromConfig(cfg.Gains), deps)
	if err != nil {
		_ = s.Robot.Close()
		return nil, err
	}

	if cfg.Telemetry.Addr != "" {
		s.Telemetry = telemetry.NewServer(cfg.Telemetry.Addr, cfg.Telemetry.Interval, s.Snapshots, s.Stop)
	}
	return s, nil
}

// Run starts every sampling task and the navigator, and returns once the
// navigator is done and every task has exited. Cancelling ctx or calling Stop
// ends the run through the navigator's final stop.
func (s *System) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	stopped := s.stop
	s.mu.Unlock()
	if stopped {
		cancel()
	}

	util.Info("[system] run %s: robot %s, grid %dx%d", s.Navigator.RunID(), s.Robot.ID, s.Grid.Width, s.Grid.Height)
	g, gctx := errgroup.WithContext(ctx)
	s.Robot.Start(gctx, g)
	if s.Camera != nil {
		g.Go(func() error { return s.Camera.Run(gctx, s.Inputs.Pose, s.Inputs.Goal) })
	}
	if s.Telemetry != nil {
		g.Go(func() error { return s.Telemetry.Run(gctx) })
	}
	g.Go(func() error {
		err := s.Navigator.Run(gctx)
		// The final stop has been sent; closing the link unblocks readers.
		cancel()
		if cerr := s.Close(); cerr != nil {
			log.Printf("[system] close: %v", cerr)
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}

// Stop asks a running system to stop. It is safe to call from any goroutine.
func (s *System) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Close releases the robot link and simulator plumbing. Run closes the
// system itself once the navigator has stopped.
func (s *System) Close() error {
	if s.Robot == nil {
		return nil
	}
	return s.Robot.Close()
}

func loadGrid(cfg model.MapConfig) (*model.Grid, error) {
	if cfg.Path == "" {
		util.Warn("[system] no map configured, using an empty %dx%d grid", defaultGridSize, defaultGridSize)
		return model.NewGrid(defaultGridSize, defaultGridSize), nil
	}
	return model.LoadGrid(cfg.Path)
}

func startPose(opts Options, grid *model.Grid) model.Pose {
	switch {
	case opts.Start != nil:
		return *opts.Start
	case grid.Start != nil:
		return model.Pose{Point: *grid.Start}
	default:
		return model.NewPose(0.5, 0.5, 0)
	}
}
