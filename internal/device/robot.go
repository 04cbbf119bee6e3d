package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ThymioNav/internal/model"
	"ThymioNav/internal/parser"
	"ThymioNav/internal/slot"
)

// defaultReadTimeout bounds sensor reads when no ReadTimeout is configured.
const defaultReadTimeout = 500 * time.Millisecond

// RobotLink speaks the motor/sensor protocol with a Thymio bridge over a line
// device. Commands are clamped to the configured motor limit before they are
// written.
type RobotLink struct {
	ID          string
	Device      Device
	Parser      parser.Parser
	MaxSpeed    float64
	ReadTimeout time.Duration

	mu   sync.Mutex
	last model.MotorCommand
}

// NewRobotLink creates a link on an already opened device.
func NewRobotLink(id string, dev Device, p parser.Parser, maxSpeed float64, readTimeout time.Duration) *RobotLink {
	return &RobotLink{ID: id, Device: dev, Parser: p, MaxSpeed: maxSpeed, ReadTimeout: readTimeout}
}

// OpenRobotLink opens the serial port described by cfg and wraps it in a RobotLink.
func OpenRobotLink(cfg model.RobotConfig) (*RobotLink, error) {
	p, err := parser.New(cfg.WireFormat)
	if err != nil {
		return nil, err
	}
	dev, err := OpenSerial(cfg.Device, cfg.Baud)
	if err != nil {
		return nil, err
	}
	return NewRobotLink(cfg.ID, dev, p, cfg.MaxSpeed, cfg.ReadTimeout), nil
}

// Limit returns the absolute wheel speed limit.
func (l *RobotLink) Limit() float64 { return l.MaxSpeed }

// SetMotorCommand clamps c and sends it to the robot. The context is not
// consulted so that a final stop still goes out after cancellation.
func (l *RobotLink) SetMotorCommand(_ context.Context, c model.MotorCommand) error {
	c = c.Clamp(l.MaxSpeed)
	line, err := l.Parser.EncodeCommand(c)
	if err != nil {
		return err
	}
	if err := l.Device.WriteLine(line); err != nil {
		return fmt.Errorf("robot %s: write command: %w", l.ID, err)
	}
	l.mu.Lock()
	l.last = c
	l.mu.Unlock()
	return nil
}

// LastCommand returns the most recent command accepted by the device.
func (l *RobotLink) LastCommand() model.MotorCommand {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// ReadSensors blocks for the next sensor report, at most ReadTimeout.
func (l *RobotLink) ReadSensors() (model.SensorSnapshot, error) {
	line, err := l.Device.ReadLine(l.readTimeout())
	if err != nil {
		return model.SensorSnapshot{}, err
	}
	s, err := l.Parser.DecodeSensors(line)
	if err != nil {
		return model.SensorSnapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	s.Time = time.Now()
	return s, nil
}

func (l *RobotLink) readTimeout() time.Duration {
	if l.ReadTimeout <= 0 {
		return defaultReadTimeout
	}
	return l.ReadTimeout
}

// Poll publishes every sensor report into out until ctx is done. Malformed
// lines are skipped; read errors other than timeouts back off for interval.
func (l *RobotLink) Poll(ctx context.Context, interval time.Duration, out *slot.Slot[model.SensorSnapshot]) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		s, err := l.ReadSensors()
		switch {
		case err == nil:
			out.Publish(s)
		case errors.Is(err, ErrTimeout):
			log.Printf("[link %s] no sensor report within %v", l.ID, l.readTimeout())
		case errors.Is(err, ErrMalformed):
			log.Printf("[link %s] skip line: %v", l.ID, err)
		default:
			log.Printf("[link %s] read error: %v", l.ID, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
	}
}

// Close closes the underlying device.
func (l *RobotLink) Close() error {
	if l.Device == nil {
		return nil
	}
	return l.Device.Close()
}
