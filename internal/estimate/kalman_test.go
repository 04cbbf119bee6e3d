package estimate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ThymioNav/internal/model"
)

func newTestKalman() *Kalman {
	return NewKalman(
		model.EstimatorConfig{ProcessPosition: 0.01, ProcessHeading: 1, MeasurementPosition: 0.05, MeasurementHeading: 4},
		model.RobotConfig{SpeedPerUnit: 0.01, Wheelbase: 1},
	)
}

func posePtr(x, y, h float64) *model.Pose {
	p := model.NewPose(x, y, h)
	return &p
}

func TestKalmanNeedsMeasurement(t *testing.T) {
	k := newTestKalman()
	_, err := k.Estimate(Input{Dt: 0.1})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Nil(t, k.Covariance())

	p, err := k.Estimate(Input{Measurement: posePtr(3, 4, 90)})
	require.NoError(t, err)
	assert.Equal(t, model.NewPose(3, 4, 90), p)
}

func TestKalmanPredictsFromMotors(t *testing.T) {
	k := newTestKalman()
	_, err := k.Estimate(Input{Measurement: posePtr(0, 0, 0)})
	require.NoError(t, err)

	p, err := k.Estimate(Input{Sensors: model.SensorSnapshot{MotorLeft: 100, MotorRight: 100}, Dt: 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p.X, 1e-9)
	assert.InDelta(t, 0.0, p.Y, 1e-9)
	assert.InDelta(t, 0.0, p.Heading, 1e-9)

	// faster left wheel turns clockwise on the image
	p, err = k.Estimate(Input{Sensors: model.SensorSnapshot{MotorLeft: 60, MotorRight: 40}, Dt: 1})
	require.NoError(t, err)
	assert.Less(t, p.Heading, 0.0)
}

func TestKalmanUpdateBlendsMeasurement(t *testing.T) {
	k := newTestKalman()
	_, err := k.Estimate(Input{Measurement: posePtr(0, 0, 0)})
	require.NoError(t, err)
	before := k.Covariance().At(0, 0)

	p, err := k.Estimate(Input{Measurement: posePtr(1, 0, 0)})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.X, 1e-9)
	assert.Less(t, k.Covariance().At(0, 0), before)
}

func TestKalmanHeadingWraps(t *testing.T) {
	k := newTestKalman()
	_, err := k.Estimate(Input{Measurement: posePtr(0, 0, 179)})
	require.NoError(t, err)

	p, err := k.Estimate(Input{Measurement: posePtr(0, 0, -179)})
	require.NoError(t, err)
	assert.InDelta(t, 180, math.Abs(p.Heading), 1e-6)
}

func TestKalmanResetsOnDivergence(t *testing.T) {
	k := newTestKalman()
	_, err := k.Estimate(Input{Measurement: posePtr(0, 0, 0)})
	require.NoError(t, err)

	_, err = k.Estimate(Input{Sensors: model.SensorSnapshot{MotorLeft: math.NaN()}, Dt: 0.1})
	assert.ErrorIs(t, err, ErrDiverged)

	_, err = k.Estimate(Input{Dt: 0.1})
	assert.ErrorIs(t, err, ErrNotInitialized)
}
