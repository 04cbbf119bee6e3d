package device

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ThymioNav/internal/model"
	"ThymioNav/internal/parser"
	"ThymioNav/internal/slot"
)

func pipePair(t *testing.T) (*SerialDevice, *SerialDevice) {
	t.Helper()
	a, b := net.Pipe()
	da, db := NewSerialDevice(a), NewSerialDevice(b)
	t.Cleanup(func() {
		_ = da.Close()
		_ = db.Close()
	})
	return da, db
}

func TestSerialDeviceReadWrite(t *testing.T) {
	da, db := pipePair(t)

	require.NoError(t, da.WriteLine("hello"))
	line, err := db.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", line)

	require.NoError(t, da.WriteLine("crlf\r"))
	line, err = db.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "crlf", line)
}

func TestSerialDeviceTimeout(t *testing.T) {
	_, db := pipePair(t)
	_, err := db.ReadLine(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSerialDeviceClose(t *testing.T) {
	da, db := pipePair(t)

	require.NoError(t, da.Close())
	assert.NoError(t, da.Close())
	assert.Error(t, da.WriteLine("x"))

	_, err := db.ReadLine(time.Second)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestRobotLinkClampsCommands(t *testing.T) {
	da, db := pipePair(t)
	link := NewRobotLink("t", da, parser.NewCSVParser(), 500, time.Second)

	require.NoError(t, link.SetMotorCommand(context.Background(), model.MotorCommand{Left: 900, Right: -700}))
	line, err := db.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "M,500,-500", line)
	assert.Equal(t, model.MotorCommand{Left: 500, Right: -500}, link.LastCommand())
	assert.Equal(t, 500.0, link.Limit())
}

func TestRobotLinkStopAfterCancel(t *testing.T) {
	da, db := pipePair(t)
	link := NewRobotLink("t", da, parser.NewCSVParser(), 500, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, link.SetMotorCommand(ctx, model.Stop))
	line, err := db.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "M,0,0", line)
}

func TestRobotLinkReadSensors(t *testing.T) {
	da, db := pipePair(t)
	link := NewRobotLink("t", da, parser.NewCSVParser(), 500, time.Second)

	require.NoError(t, db.WriteLine("S,10,20,0,100"))
	s, err := link.ReadSensors()
	require.NoError(t, err)
	assert.Equal(t, 10.0, s.MotorLeft)
	assert.Equal(t, 20.0, s.MotorRight)
	assert.Equal(t, []float64{0, 100}, s.Proximity)
	assert.False(t, s.Time.IsZero())

	require.NoError(t, db.WriteLine("garbage"))
	_, err = link.ReadSensors()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRobotLinkPoll(t *testing.T) {
	da, db := pipePair(t)
	link := NewRobotLink("t", da, parser.NewCSVParser(), 500, 20*time.Millisecond)
	out := slot.New[model.SensorSnapshot]()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- link.Poll(ctx, 10*time.Millisecond, out) }()

	require.NoError(t, db.WriteLine("bad"))
	require.NoError(t, db.WriteLine("S,1,2"))
	require.Eventually(t, func() bool {
		v, ok := out.Value()
		return ok && v.MotorLeft == 1 && v.MotorRight == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), out.Load().Seq)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poll did not stop")
	}
}

func TestRobotLinkPollStopsWithoutReadTimeout(t *testing.T) {
	da, _ := pipePair(t)
	link := NewRobotLink("t", da, parser.NewCSVParser(), 500, 0)
	out := slot.New[model.SensorSnapshot]()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- link.Poll(ctx, 10*time.Millisecond, out) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(defaultReadTimeout + time.Second):
		t.Fatal("poll did not stop on a silent link")
	}
	assert.False(t, out.Load().Valid())
}

func TestPublishDetectionKeepsLastFound(t *testing.T) {
	pose := slot.New[model.Pose]()
	goal := slot.New[model.Point]()

	PublishDetection(model.Detection{RobotFound: true, Robot: model.NewPose(1, 2, 3), GoalFound: true, Goal: model.Point{X: 4, Y: 5}}, pose, goal)
	PublishDetection(model.Detection{}, pose, goal)

	p, ok := pose.Value()
	require.True(t, ok)
	assert.Equal(t, model.NewPose(1, 2, 3), p)
	g, ok := goal.Value()
	require.True(t, ok)
	assert.Equal(t, model.Point{X: 4, Y: 5}, g)
	assert.Equal(t, uint64(1), pose.Load().Seq)
}

func TestCameraReceivesDetections(t *testing.T) {
	cam := NewCamera("127.0.0.1:0", 0, parser.NewCSVParser())
	require.NoError(t, cam.Listen())
	addr := cam.LocalAddr().(*net.UDPAddr)

	pose := slot.New[model.Pose]()
	goal := slot.New[model.Point]()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cam.Run(ctx, pose, goal) }()

	conn, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("1,2,3,270,1,5,6\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return pose.Load().Valid() }, time.Second, 5*time.Millisecond)
	p, _ := pose.Value()
	assert.Equal(t, model.NewPose(2, 3, -90), p)

	// robot lost, goal moved
	_, err = conn.Write([]byte("0,0,0,0,1,7,8\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		g, _ := goal.Value()
		return g == model.Point{X: 7, Y: 8}
	}, time.Second, 5*time.Millisecond)
	p, _ = pose.Value()
	assert.Equal(t, model.NewPose(2, 3, -90), p)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("camera did not stop")
	}
}

func simConfig() model.RobotConfig {
	return model.RobotConfig{ID: "sim", MaxSpeed: 500, SpeedPerUnit: 0.01, Wheelbase: 1}
}

func TestSimRobotStep(t *testing.T) {
	sim := NewSimRobot(model.NewPose(0, 0, 0), simConfig(), nil)
	require.NoError(t, sim.SetMotorCommand(context.Background(), model.MotorCommand{Left: 100, Right: 100}))
	sim.Step(1)
	p := sim.Pose()
	assert.InDelta(t, 1.0, p.X, 1e-9)
	assert.InDelta(t, 0.0, p.Y, 1e-9)
	assert.InDelta(t, 0.0, p.Heading, 1e-9)

	// heading 90 points up the image, which is -y
	sim = NewSimRobot(model.NewPose(0, 0, 90), simConfig(), nil)
	require.NoError(t, sim.SetMotorCommand(context.Background(), model.MotorCommand{Left: 100, Right: 100}))
	sim.Step(1)
	assert.InDelta(t, -1.0, sim.Pose().Y, 1e-9)
}

func TestSimRobotTurnsAwayFromFasterWheel(t *testing.T) {
	sim := NewSimRobot(model.NewPose(0, 0, 0), simConfig(), nil)
	require.NoError(t, sim.SetMotorCommand(context.Background(), model.MotorCommand{Left: 60, Right: 40}))
	sim.Step(0.1)
	assert.Less(t, sim.Pose().Heading, 0.0)

	require.NoError(t, sim.SetMotorCommand(context.Background(), model.MotorCommand{Left: 40, Right: 60}))
	sim.Step(0.2)
	assert.Greater(t, sim.Pose().Heading, 0.0)
}

func TestSimRobotClampsAndSensesWalls(t *testing.T) {
	grid := model.NewGrid(10, 10)
	for y := 0; y < 10; y++ {
		grid.SetOccupied(6, y, true)
	}
	sim := NewSimRobot(model.NewPose(5, 5, 0), simConfig(), grid)
	require.NoError(t, sim.SetMotorCommand(context.Background(), model.MotorCommand{Left: 800, Right: -800}))
	assert.Equal(t, model.MotorCommand{Left: 500, Right: -500}, sim.Command())

	s := sim.Sensors()
	require.Len(t, s.Proximity, 5)
	assert.Greater(t, s.Proximity[2], 0.0)

	far := NewSimRobot(model.NewPose(1, 5, 180), simConfig(), model.NewGrid(50, 10))
	assert.Greater(t, far.Sensors().Proximity[2], 0.0, "grid edge counts as a wall")
	far = NewSimRobot(model.NewPose(25, 5, 0), simConfig(), model.NewGrid(50, 10))
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, far.Sensors().Proximity)
}

func TestSimRobotRunPublishes(t *testing.T) {
	sim := NewSimRobot(model.NewPose(1, 1, 0), simConfig(), nil)
	sim.SetGoal(model.Point{X: 9, Y: 9})
	sensors := slot.New[model.SensorSnapshot]()
	pose := slot.New[model.Pose]()
	goal := slot.New[model.Point]()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sim.Run(ctx, 5*time.Millisecond, sensors, pose, goal) }()

	require.Eventually(t, func() bool { return pose.Load().Seq > 2 }, time.Second, 5*time.Millisecond)
	g, ok := goal.Value()
	require.True(t, ok)
	assert.Equal(t, model.Point{X: 9, Y: 9}, g)
	assert.True(t, sensors.Load().Valid())
}

func TestSimRobotServe(t *testing.T) {
	da, db := pipePair(t)
	link := NewRobotLink("host", da, parser.NewCSVParser(), 500, 100*time.Millisecond)
	sim := NewSimRobot(model.NewPose(0, 0, 0), simConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sim.Serve(ctx, db, parser.NewCSVParser(), 5*time.Millisecond) }()

	require.NoError(t, link.SetMotorCommand(ctx, model.MotorCommand{Left: 100, Right: 200}))
	require.Eventually(t, func() bool {
		s, err := link.ReadSensors()
		return err == nil && s.MotorLeft == 100 && s.MotorRight == 200
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, model.MotorCommand{Left: 100, Right: 200}, sim.Command())

	// raw wire commands bypass the host clamp; the robot clamps them itself
	require.NoError(t, da.WriteLine("M,900,-900"))
	require.Eventually(t, func() bool {
		return sim.Command() == model.MotorCommand{Left: 500, Right: -500}
	}, 2*time.Second, time.Millisecond)
}
