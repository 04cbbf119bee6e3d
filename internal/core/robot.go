package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ThymioNav/internal/device"
	"ThymioNav/internal/model"
	"ThymioNav/internal/nav"
	"ThymioNav/internal/parser"
	"ThymioNav/internal/slot"
	"ThymioNav/internal/util"
)

// Robot is the navigator's view of the vehicle: the link it drives plus the
// sampling tasks that keep the sensor (and, in simulation, vision) slots fresh.
type Robot struct {
	ID   string
	Link nav.Link
	Sim  *device.SimRobot // set in simulation

	tasks   []func(ctx context.Context) error
	mu      sync.Mutex
	closers []func() error
}

// newHardwareRobot opens the serial link described by cfg and polls its
// sensors into sensors.
func newHardwareRobot(cfg model.RobotConfig, sensors *slot.Slot[model.SensorSnapshot]) (*Robot, error) {
	link, err := device.OpenRobotLink(cfg)
	if err != nil {
		return nil, fmt.Errorf("robot %s: %w", cfg.ID, err)
	}
	log.Printf("[robot %s] serial link on %s (baud %d)", cfg.ID, cfg.Device, cfg.Baud)
	r := &Robot{ID: cfg.ID, Link: link}
	r.tasks = append(r.tasks, func(ctx context.Context) error {
		return link.Poll(ctx, cfg.PollInterval, sensors)
	})
	r.closers = append(r.closers, link.Close)
	return r, nil
}

// newSimulatedRobot drives a SimRobot directly. It publishes sensors, pose
// and goal every poll interval, standing in for the camera as well.
func newSimulatedRobot(sim *device.SimRobot, cfg model.RobotConfig, in nav.Inputs) *Robot {
	r := &Robot{ID: cfg.ID, Link: sim, Sim: sim}
	r.tasks = append(r.tasks, func(ctx context.Context) error {
		return sim.Run(ctx, cfg.PollInterval, in.Sensors, in.Pose, in.Goal)
	})
	return r
}

// newVirtualSerialRobot runs the simulator behind a socat pty pair so the
// navigator talks to it through the real serial link.
func newVirtualSerialRobot(ctx context.Context, sim *device.SimRobot, cfg model.RobotConfig, in nav.Inputs) (*Robot, error) {
	dir, err := os.MkdirTemp("", "thymionav-")
	if err != nil {
		return nil, err
	}
	hostPath, robotPath := filepath.Join(dir, "host"), filepath.Join(dir, "robot")

	vs := util.NewVirtualSerial()
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := vs.CreatePair(cctx, hostPath, robotPath); err != nil {
		vs.Cleanup()
		_ = os.RemoveAll(dir)
		return nil, err
	}
	cleanup := func() error {
		vs.Cleanup()
		return os.RemoveAll(dir)
	}

	p, err := parser.New(cfg.WireFormat)
	if err != nil {
		_ = cleanup()
		return nil, err
	}
	robotSide, err := device.OpenSerial(robotPath, cfg.Baud)
	if err != nil {
		_ = cleanup()
		return nil, err
	}
	hostCfg := cfg
	hostCfg.Device = hostPath
	r, err := newHardwareRobot(hostCfg, in.Sensors)
	if err != nil {
		_ = robotSide.Close()
		_ = cleanup()
		return nil, err
	}
	r.Sim = sim
	r.tasks = append(r.tasks,
		func(ctx context.Context) error { return sim.Run(ctx, cfg.PollInterval, nil, in.Pose, in.Goal) },
		func(ctx context.Context) error { return sim.Serve(ctx, robotSide, p, cfg.PollInterval) },
	)
	r.closers = append(r.closers, robotSide.Close, cleanup)
	return r, nil
}

// Start launches the sampling tasks in g. Errors a task reports after ctx
// is done come from the devices being closed and are dropped.
func (r *Robot) Start(ctx context.Context, g *errgroup.Group) {
	for _, task := range r.tasks {
		task := task
		g.Go(func() error {
			err := task(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}
}

// Close releases the link and any simulator plumbing. It is safe to call
// more than once and from any goroutine.
func (r *Robot) Close() error {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	var first error
	for _, c := range closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
