// Package model defines the shared value types of the navigator: grid points,
// poses, motor commands, sensor snapshots, camera detections and configuration.
//
// Coordinates are grid units in the camera image frame (x grows to the right,
// y grows downward). Headings are degrees, counter-clockwise-positive as seen on
// the image, normalized to (-180, 180]. The bearing from a to b is therefore
// -atan2(b.Y-a.Y, b.X-a.X). Every component that produces or consumes a heading
// (camera, estimator, controller, simulator) uses this convention.
package model

import (
	"fmt"
	"math"
)

// Point is a 2D coordinate in grid units.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Equal reports whether p and q are the same point.
func (p Point) Equal(q Point) bool { return p.X == q.X && p.Y == q.Y }

// BearingTo returns the heading, in degrees, that points from p towards q.
func (p Point) BearingTo(q Point) float64 {
	return -math.Atan2(q.Y-p.Y, q.X-p.X) * 180 / math.Pi
}

func (p Point) String() string { return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y) }

// Pose is a position plus a heading in degrees.
type Pose struct {
	Point
	Heading float64 `json:"heading"`
}

// NewPose builds a Pose with its heading normalized.
func NewPose(x, y, heading float64) Pose {
	return Pose{Point: Point{X: x, Y: y}, Heading: NormalizeAngle(heading)}
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.1f°)", p.X, p.Y, p.Heading)
}

// NormalizeAngle wraps an angle in degrees into (-180, 180].
// The wrap is ((a + 180) mod 360) - 180 with -180 mapped onto 180, so applying
// it twice yields the same value.
func NormalizeAngle(deg float64) float64 {
	a := math.Mod(deg+180, 360)
	if a < 0 {
		a += 360
	}
	a -= 180
	if a <= -180 {
		a = 180
	}
	return a
}
