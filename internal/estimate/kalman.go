// Package estimate fuses camera poses with wheel odometry.
package estimate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"ThymioNav/internal/model"
)

var (
	// ErrNotInitialized is returned until the first camera measurement arrives.
	ErrNotInitialized = errors.New("estimator not initialized")
	// ErrDiverged is returned when the filter state stopped being finite. The
	// filter resets and waits for the next measurement.
	ErrDiverged = errors.New("estimator diverged")
)

// Input is what the estimator sees on one control tick.
type Input struct {
	Sensors     model.SensorSnapshot
	Measurement *model.Pose // nil when no fresh camera pose this tick
	Dt          float64     // seconds since the previous call
}

// Kalman is an extended Kalman filter over the state [x, y, heading]. Motor
// feedback drives the prediction and camera poses the correction. Heading is
// kept in degrees and follows the image-frame convention of model.Pose.
type Kalman struct {
	speedPerUnit float64
	wheelbase    float64
	q            *mat.DiagDense // process noise per second
	r            *mat.DiagDense // measurement noise

	x           *mat.VecDense
	p           *mat.Dense
	initialized bool
}

// NewKalman builds a filter from the estimator noise and the robot kinematics.
func NewKalman(ec model.EstimatorConfig, rc model.RobotConfig) *Kalman {
	return &Kalman{
		speedPerUnit: rc.SpeedPerUnit,
		wheelbase:    rc.Wheelbase,
		q:            mat.NewDiagDense(3, []float64{ec.ProcessPosition, ec.ProcessPosition, ec.ProcessHeading}),
		r:            mat.NewDiagDense(3, []float64{ec.MeasurementPosition, ec.MeasurementPosition, ec.MeasurementHeading}),
	}
}

// Reset drops the state; the next measurement re-initializes the filter.
func (k *Kalman) Reset() {
	k.x, k.p, k.initialized = nil, nil, false
}

// Estimate runs one predict/update cycle and returns the fused pose.
func (k *Kalman) Estimate(in Input) (model.Pose, error) {
	if !k.initialized {
		if in.Measurement == nil {
			return model.Pose{}, ErrNotInitialized
		}
		m := *in.Measurement
		k.x = mat.NewVecDense(3, []float64{m.X, m.Y, model.NormalizeAngle(m.Heading)})
		k.p = mat.DenseCopyOf(k.r)
		k.initialized = true
		return k.pose(), nil
	}

	if in.Dt > 0 {
		k.predict(in.Sensors, in.Dt)
	}
	if in.Measurement != nil {
		if err := k.update(*in.Measurement); err != nil {
			return model.Pose{}, err
		}
	}
	if !k.finite() {
		k.Reset()
		return model.Pose{}, ErrDiverged
	}
	return k.pose(), nil
}

// Covariance returns a copy of the state covariance, or nil before the first
// measurement.
func (k *Kalman) Covariance() *mat.Dense {
	if !k.initialized {
		return nil
	}
	return mat.DenseCopyOf(k.p)
}

func (k *Kalman) pose() model.Pose {
	return model.NewPose(k.x.AtVec(0), k.x.AtVec(1), k.x.AtVec(2))
}

// predict integrates the unicycle model: x += v cos θ dt, y -= v sin θ dt,
// θ += ω dt, with ω positive when the right wheel is faster.
func (k *Kalman) predict(s model.SensorSnapshot, dt float64) {
	v := (s.MotorLeft + s.MotorRight) / 2 * k.speedPerUnit
	omega := 0.0
	if k.wheelbase > 0 {
		omega = (s.MotorRight - s.MotorLeft) * k.speedPerUnit / k.wheelbase * 180 / math.Pi
	}
	theta := k.x.AtVec(2) * math.Pi / 180
	sin, cos := math.Sincos(theta)

	k.x.SetVec(0, k.x.AtVec(0)+v*cos*dt)
	k.x.SetVec(1, k.x.AtVec(1)-v*sin*dt)
	k.x.SetVec(2, model.NormalizeAngle(k.x.AtVec(2)+omega*dt))

	f := mat.NewDense(3, 3, []float64{
		1, 0, -v * sin * dt * math.Pi / 180,
		0, 1, -v * cos * dt * math.Pi / 180,
		0, 0, 1,
	})
	var fp, fpf mat.Dense
	fp.Mul(f, k.p)
	fpf.Mul(&fp, f.T())

	var q mat.Dense
	q.Scale(dt, k.q)
	k.p.Add(&fpf, &q)
}

// update applies a direct pose measurement (H = I).
func (k *Kalman) update(m model.Pose) error {
	y := mat.NewVecDense(3, []float64{
		m.X - k.x.AtVec(0),
		m.Y - k.x.AtVec(1),
		model.NormalizeAngle(m.Heading - k.x.AtVec(2)),
	})

	var s, sInv mat.Dense
	s.Add(k.p, k.r)
	if err := sInv.Inverse(&s); err != nil {
		return fmt.Errorf("%w: innovation covariance: %v", ErrDiverged, err)
	}

	var gain mat.Dense
	gain.Mul(k.p, &sInv)

	var dx mat.VecDense
	dx.MulVec(&gain, y)
	k.x.AddVec(k.x, &dx)
	k.x.SetVec(2, model.NormalizeAngle(k.x.AtVec(2)))

	var ikh, p mat.Dense
	ikh.Sub(eye3(), &gain)
	p.Mul(&ikh, k.p)
	k.p = &p
	return nil
}

func (k *Kalman) finite() bool {
	for i := 0; i < 3; i++ {
		v := k.x.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		if d := k.p.At(i, i); math.IsNaN(d) || math.IsInf(d, 0) {
			return false
		}
	}
	return true
}

func eye3() *mat.DiagDense {
	return mat.NewDiagDense(3, []float64{1, 1, 1})
}
