// Package device implements the navigator's hardware-facing collaborators: a
// line-oriented serial device, the robot link that speaks the motor/sensor
// protocol over it, the UDP receiver for camera detections and a simulated
// robot that stands in for all of them.
package device

import (
	"errors"
	"time"
)

// ErrTimeout is returned by ReadLine when no line arrived in time.
var ErrTimeout = errors.New("read timeout")

// ErrMalformed wraps a line that could not be decoded.
var ErrMalformed = errors.New("malformed line")

// Device defines an abstract interface for line-based communication devices.
type Device interface {
	// ReadLine reads a single line terminated by '\n', without the terminator.
	// If timeout > 0, it returns ErrTimeout after timeout even if no data is available.
	ReadLine(timeout time.Duration) (string, error)

	// WriteLine writes s followed by '\n' to the device.
	WriteLine(s string) error

	// Close closes the device and releases underlying resources.
	Close() error
}
